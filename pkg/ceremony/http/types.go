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

// HeaderSessionID is the header name for the ceremony session ID.
const HeaderSessionID = "X-Session-Id"

// HeaderUserID is the header name for the user ID.
const HeaderUserID = "X-User-Id"

// BeginRegistrationRequest is the request body for starting registration.
type BeginRegistrationRequest struct {
	// Name is the account identifier, typically an email address (required).
	Name string `json:"name"`

	// DisplayName is the user's display name (optional, defaults to name).
	DisplayName string `json:"display_name,omitempty"`
}

// BeginAuthenticationRequest is the request body for starting authentication.
type BeginAuthenticationRequest struct {
	// Name is the account identifier (optional).
	// If not provided, the discoverable credentials flow is used.
	Name string `json:"name,omitempty"`
}

// RegistrationStatusResponse is the response for registration status.
type RegistrationStatusResponse struct {
	// Registered indicates if the user has registered credentials.
	Registered bool `json:"registered"`
}

// AuthResponse is the response after successful registration or login.
type AuthResponse struct {
	// Token is the authentication token (JWT or base64 user handle).
	Token string `json:"token"`

	// UserID is the base64-encoded user handle.
	UserID string `json:"user_id"`
}

// ErrorResponse is the response format for errors.
type ErrorResponse struct {
	// Error is the error code.
	Error string `json:"error"`

	// Message is a human-readable error message.
	Message string `json:"message"`
}

// Error codes returned in ErrorResponse.
const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeInvalidSession     = "invalid_session"
	ErrorCodeSessionExpired     = "session_expired"
	ErrorCodeUserNotFound       = "user_not_found"
	ErrorCodeNoCredentials      = "no_credentials"
	ErrorCodeVerificationFailed = "verification_failed"
	ErrorCodeStorageUnavailable = "storage_unavailable"
	ErrorCodeInternalError      = "internal_error"
)
