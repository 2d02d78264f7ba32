// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package http

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/jeremyhahn/go-passkey/pkg/ceremony"
)

// maxBodyBytes caps ceremony request bodies. Attestation objects for the
// supported formats stay well under this.
const maxBodyBytes = 1 << 20

// Handler provides HTTP handlers for ceremony operations.
// These handlers can be mounted on any HTTP router.
type Handler struct {
	engine *ceremony.Engine
	logger *slog.Logger
}

// NewHandler creates a new ceremony HTTP handler.
func NewHandler(engine *ceremony.Engine) *Handler {
	return &Handler{
		engine: engine,
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger for the handler.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	h.logger = logger
	return h
}

// BeginRegistration handles POST /registration/begin
//
// Request body:
//
//	{
//	    "name": "user@example.com",
//	    "display_name": "User Name" // optional
//	}
//
// Response: WebAuthn PublicKeyCredentialCreationOptions
// Header: X-Session-Id (session identifier for FinishRegistration)
func (h *Handler) BeginRegistration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	var req BeginRegistrationRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "name is required")
		return
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Name
	}

	options, sessionID, err := h.engine.BeginRegistration(r.Context(), req.Name, displayName)
	if err != nil {
		h.handleEngineError(w, err)
		return
	}

	w.Header().Set(HeaderSessionID, sessionID)
	h.writeJSON(w, http.StatusOK, options)
}

// FinishRegistration handles POST /registration/finish
//
// Header: X-Session-Id (from BeginRegistration)
// Request body: PublicKeyCredential attestation response from the client
// Response: AuthResponse with token and user ID
func (h *Handler) FinishRegistration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	sessionID := r.Header.Get(HeaderSessionID)
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidSession, "session ID header is required")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "failed to read request body")
		return
	}

	token, user, err := h.engine.FinishRegistration(r.Context(), sessionID, body)
	if err != nil {
		h.handleEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, AuthResponse{
		Token:  token,
		UserID: base64.RawURLEncoding.EncodeToString(user.ID),
	})
}

// BeginAuthentication handles POST /authentication/begin
//
// Request body:
//
//	{
//	    "name": "user@example.com" // optional
//	}
//
// If no name is provided, the discoverable credentials flow is used.
// Response: WebAuthn PublicKeyCredentialRequestOptions
// Header: X-Session-Id (session identifier for FinishAuthentication)
func (h *Handler) BeginAuthentication(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	var req BeginAuthenticationRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		// Allow empty body for discoverable credentials
		req = BeginAuthenticationRequest{}
	}

	options, sessionID, err := h.engine.BeginAuthentication(r.Context(), req.Name)
	if err != nil {
		h.handleEngineError(w, err)
		return
	}

	w.Header().Set(HeaderSessionID, sessionID)
	h.writeJSON(w, http.StatusOK, options)
}

// FinishAuthentication handles POST /authentication/finish
//
// Header: X-Session-Id (from BeginAuthentication)
// Request body: PublicKeyCredential assertion response from the client
// Response: AuthResponse with token and user ID
func (h *Handler) FinishAuthentication(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	sessionID := r.Header.Get(HeaderSessionID)
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidSession, "session ID header is required")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "failed to read request body")
		return
	}

	token, user, err := h.engine.FinishAuthentication(r.Context(), sessionID, body)
	if err != nil {
		h.handleEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, AuthResponse{
		Token:  token,
		UserID: base64.RawURLEncoding.EncodeToString(user.ID),
	})
}

// RegistrationStatus handles GET /registration/status
//
// Query param: name or user_id
// Response: {"registered": true/false}
func (h *Handler) RegistrationStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	userIDStr := r.Header.Get(HeaderUserID)
	if userIDStr == "" {
		userIDStr = r.URL.Query().Get("user_id")
	}

	if userIDStr == "" {
		name := r.URL.Query().Get("name")
		if name == "" {
			h.writeJSON(w, http.StatusOK, RegistrationStatusResponse{Registered: false})
			return
		}
		user, err := h.engine.GetUserByName(r.Context(), name)
		if err != nil {
			if ceremony.IsUserNotFound(err) {
				h.writeJSON(w, http.StatusOK, RegistrationStatusResponse{Registered: false})
				return
			}
			h.handleEngineError(w, err)
			return
		}
		userIDStr = base64.RawURLEncoding.EncodeToString(user.ID)
	}

	userID, err := base64.RawURLEncoding.DecodeString(userIDStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid user ID encoding")
		return
	}

	registered, err := h.engine.IsRegistered(r.Context(), userID)
	if err != nil {
		h.handleEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, RegistrationStatusResponse{Registered: registered})
}

// verificationSentinels are the failures that collapse into one generic
// 401 so a response never reveals which check rejected the ceremony.
var verificationSentinels = []error{
	ceremony.ErrTypeMismatch,
	ceremony.ErrChallengeMismatch,
	ceremony.ErrOriginMismatch,
	ceremony.ErrRPIDMismatch,
	ceremony.ErrUserNotPresent,
	ceremony.ErrUserNotVerified,
	ceremony.ErrAlgorithmNotAllowed,
	ceremony.ErrUnknownCredential,
	ceremony.ErrCredentialOwnerMismatch,
	ceremony.ErrCredentialExists,
	ceremony.ErrSignatureInvalid,
	ceremony.ErrCloneDetected,
	ceremony.ErrVerificationFailed,
}

func isVerificationFailure(err error) bool {
	for _, sentinel := range verificationSentinels {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// handleEngineError maps engine errors to HTTP responses. Challenge
// expiry is the only verification failure surfaced distinctly.
func (h *Handler) handleEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ceremony.ErrChallengeExpired):
		h.writeError(w, http.StatusBadRequest, ErrorCodeSessionExpired, "challenge expired")
	case errors.Is(err, ceremony.ErrChallengeMissing):
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidSession, "session not found")
	case errors.Is(err, ceremony.ErrUserNotFound):
		h.writeError(w, http.StatusNotFound, ErrorCodeUserNotFound, "user not found")
	case errors.Is(err, ceremony.ErrNoCredentials):
		h.writeError(w, http.StatusBadRequest, ErrorCodeNoCredentials, "user has no registered credentials")
	case errors.Is(err, ceremony.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request")
	case errors.Is(err, ceremony.ErrStorageUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, ErrorCodeStorageUnavailable, "storage unavailable")
	case isVerificationFailure(err):
		h.logger.Warn("ceremony verification failed", "error", err)
		h.writeError(w, http.StatusUnauthorized, ErrorCodeVerificationFailed, "verification failed")
	default:
		h.logger.Error("ceremony handler error", "error", err)
		h.writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal server error")
	}
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response headers already written, can only log the error
		h.logger.Error("failed to encode JSON response",
			"error", err,
			"status", status)
	}
}

// writeError writes an error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}
