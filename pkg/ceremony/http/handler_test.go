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
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/descope/virtualwebauthn"
	"github.com/jeremyhahn/go-passkey/pkg/ceremony"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) *Handler {
	engine, err := ceremony.NewEngine(ceremony.EngineParams{
		Config: &ceremony.Config{
			RPID:          "example.com",
			RPDisplayName: "Example",
			RPOrigins:     []string{"https://example.com"},
		},
		UserStore:       ceremony.NewMemoryUserStore(),
		ChallengeStore:  ceremony.NewMemoryChallengeStore(),
		CredentialStore: ceremony.NewMemoryCredentialStore(),
	})
	require.NoError(t, err)
	return NewHandler(engine)
}

func testRelyingParty() virtualwebauthn.RelyingParty {
	return virtualwebauthn.RelyingParty{
		Name:   "Example",
		ID:     "example.com",
		Origin: "https://example.com",
	}
}

func doRequest(h http.HandlerFunc, method, target, sessionID string, body []byte) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(HeaderSessionID, sessionID)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

// registerCredential drives a complete registration through the handler
// and returns the AuthResponse.
func registerCredential(t *testing.T, h *Handler, rp virtualwebauthn.RelyingParty,
	authenticator *virtualwebauthn.Authenticator, credential *virtualwebauthn.Credential, name string) AuthResponse {
	t.Helper()

	beginBody, _ := json.Marshal(BeginRegistrationRequest{Name: name})
	rec := doRequest(h.BeginRegistration, http.MethodPost, "/registration/begin", "", beginBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sessionID := rec.Header().Get(HeaderSessionID)
	require.NotEmpty(t, sessionID)

	options, err := virtualwebauthn.ParseAttestationOptions(rec.Body.String())
	require.NoError(t, err)

	attestation := virtualwebauthn.CreateAttestationResponse(rp, *authenticator, *credential, *options)

	rec = doRequest(h.FinishRegistration, http.MethodPost, "/registration/finish", sessionID, []byte(attestation))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	authenticator.AddCredential(*credential)

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	require.NotEmpty(t, resp.UserID)
	return resp
}

func TestHandler_BeginRegistration(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		name       string
		method     string
		body       string
		wantStatus int
		wantErr    string
	}{
		{
			name:       "wrong method",
			method:     http.MethodGet,
			wantStatus: http.StatusMethodNotAllowed,
			wantErr:    "method not allowed",
		},
		{
			name:       "invalid body",
			method:     http.MethodPost,
			body:       "not json",
			wantStatus: http.StatusBadRequest,
			wantErr:    "invalid request body",
		},
		{
			name:       "missing name",
			method:     http.MethodPost,
			body:       "{}",
			wantStatus: http.StatusBadRequest,
			wantErr:    "name is required",
		},
		{
			name:       "success",
			method:     http.MethodPost,
			body:       `{"name":"test@example.com","display_name":"Test User"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "success without display name",
			method:     http.MethodPost,
			body:       `{"name":"test2@example.com"}`,
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(h.BeginRegistration, tt.method, "/registration/begin", "", []byte(tt.body))
			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantErr != "" {
				var errResp ErrorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
				assert.Contains(t, errResp.Message, tt.wantErr)
				return
			}

			// Success must carry the session ID and valid options
			assert.NotEmpty(t, rec.Header().Get(HeaderSessionID))

			var options map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &options))
			assert.NotEmpty(t, options["challenge"])
			rp, ok := options["rp"].(map[string]interface{})
			require.True(t, ok)
			assert.Equal(t, "example.com", rp["id"])
		})
	}
}

func TestHandler_FinishRegistration_SessionErrors(t *testing.T) {
	h := newTestHandler(t)

	t.Run("missing session header", func(t *testing.T) {
		rec := doRequest(h.FinishRegistration, http.MethodPost, "/registration/finish", "", []byte("{}"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var errResp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
		assert.Equal(t, ErrorCodeInvalidSession, errResp.Error)
	})

	t.Run("unknown session", func(t *testing.T) {
		rec := doRequest(h.FinishRegistration, http.MethodPost, "/registration/finish", "no-such-session", []byte("{}"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var errResp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
		assert.Equal(t, ErrorCodeInvalidSession, errResp.Error)
	})
}

func TestHandler_FinishRegistration_InvalidBody(t *testing.T) {
	h := newTestHandler(t)

	beginBody, _ := json.Marshal(BeginRegistrationRequest{Name: "garbage@example.com"})
	rec := doRequest(h.BeginRegistration, http.MethodPost, "/registration/begin", "", beginBody)
	require.Equal(t, http.StatusOK, rec.Code)
	sessionID := rec.Header().Get(HeaderSessionID)

	rec = doRequest(h.FinishRegistration, http.MethodPost, "/registration/finish", sessionID, []byte("not a credential"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, ErrorCodeInvalidRequest, errResp.Error)
}

func TestHandler_RegistrationFlow(t *testing.T) {
	h := newTestHandler(t)
	rp := testRelyingParty()
	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	resp := registerCredential(t, h, rp, &authenticator, &credential, "flow@example.com")
	assert.NotEmpty(t, resp.Token)

	// Status by name must now report registered
	rec := doRequest(h.RegistrationStatus, http.MethodGet, "/registration/status?name=flow@example.com", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status RegistrationStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Registered)
}

func TestHandler_BeginAuthentication(t *testing.T) {
	h := newTestHandler(t)

	t.Run("wrong method", func(t *testing.T) {
		rec := doRequest(h.BeginAuthentication, http.MethodGet, "/authentication/begin", "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		rec := doRequest(h.BeginAuthentication, http.MethodPost, "/authentication/begin", "", []byte(`{"name":"nobody@example.com"}`))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("user without credentials", func(t *testing.T) {
		// Begin (but never finish) registration so the user exists
		beginBody, _ := json.Marshal(BeginRegistrationRequest{Name: "nocreds@example.com"})
		rec := doRequest(h.BeginRegistration, http.MethodPost, "/registration/begin", "", beginBody)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doRequest(h.BeginAuthentication, http.MethodPost, "/authentication/begin", "", []byte(`{"name":"nocreds@example.com"}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var errResp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
		assert.Equal(t, ErrorCodeNoCredentials, errResp.Error)
	})

	t.Run("empty body uses discoverable flow", func(t *testing.T) {
		rec := doRequest(h.BeginAuthentication, http.MethodPost, "/authentication/begin", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get(HeaderSessionID))

		var options map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &options))
		assert.Empty(t, options["allowCredentials"])
	})
}

func TestHandler_AuthenticationFlow(t *testing.T) {
	h := newTestHandler(t)
	rp := testRelyingParty()
	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	registered := registerCredential(t, h, rp, &authenticator, &credential, "login@example.com")

	rec := doRequest(h.BeginAuthentication, http.MethodPost, "/authentication/begin", "", []byte(`{"name":"login@example.com"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sessionID := rec.Header().Get(HeaderSessionID)
	require.NotEmpty(t, sessionID)

	options, err := virtualwebauthn.ParseAssertionOptions(rec.Body.String())
	require.NoError(t, err)

	credential.Counter++
	assertion := virtualwebauthn.CreateAssertionResponse(rp, authenticator, credential, *options)

	rec = doRequest(h.FinishAuthentication, http.MethodPost, "/authentication/finish", sessionID, []byte(assertion))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, registered.UserID, resp.UserID)
}

func TestHandler_FinishAuthentication_OriginMismatch(t *testing.T) {
	h := newTestHandler(t)
	rp := testRelyingParty()
	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	registerCredential(t, h, rp, &authenticator, &credential, "origin@example.com")

	rec := doRequest(h.BeginAuthentication, http.MethodPost, "/authentication/begin", "", []byte(`{"name":"origin@example.com"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	sessionID := rec.Header().Get(HeaderSessionID)

	options, err := virtualwebauthn.ParseAssertionOptions(rec.Body.String())
	require.NoError(t, err)

	// Sign from a different origin than the RP allows
	evilRP := rp
	evilRP.Origin = "https://evil.example.org"
	credential.Counter++
	assertion := virtualwebauthn.CreateAssertionResponse(evilRP, authenticator, credential, *options)

	rec = doRequest(h.FinishAuthentication, http.MethodPost, "/authentication/finish", sessionID, []byte(assertion))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// The response must not reveal which check failed
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, ErrorCodeVerificationFailed, errResp.Error)
	assert.Equal(t, "verification failed", errResp.Message)
}

func TestHandler_FinishAuthentication_SessionReuse(t *testing.T) {
	h := newTestHandler(t)
	rp := testRelyingParty()
	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	registerCredential(t, h, rp, &authenticator, &credential, "replay@example.com")

	rec := doRequest(h.BeginAuthentication, http.MethodPost, "/authentication/begin", "", []byte(`{"name":"replay@example.com"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	sessionID := rec.Header().Get(HeaderSessionID)

	options, err := virtualwebauthn.ParseAssertionOptions(rec.Body.String())
	require.NoError(t, err)

	credential.Counter++
	assertion := virtualwebauthn.CreateAssertionResponse(rp, authenticator, credential, *options)

	rec = doRequest(h.FinishAuthentication, http.MethodPost, "/authentication/finish", sessionID, []byte(assertion))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Replaying the same session must fail: challenges are single-use
	rec = doRequest(h.FinishAuthentication, http.MethodPost, "/authentication/finish", sessionID, []byte(assertion))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, ErrorCodeInvalidSession, errResp.Error)
}

func TestHandler_RegistrationStatus(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		name       string
		method     string
		target     string
		wantStatus int
		registered bool
	}{
		{
			name:       "wrong method",
			method:     http.MethodPost,
			target:     "/registration/status",
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "no identifier",
			method:     http.MethodGet,
			target:     "/registration/status",
			wantStatus: http.StatusOK,
			registered: false,
		},
		{
			name:       "unknown name",
			method:     http.MethodGet,
			target:     "/registration/status?name=nobody@example.com",
			wantStatus: http.StatusOK,
			registered: false,
		},
		{
			name:       "invalid user ID encoding",
			method:     http.MethodGet,
			target:     "/registration/status?user_id=%21%21%21",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(h.RegistrationStatus, tt.method, tt.target, "", nil)
			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusOK {
				var status RegistrationStatusResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
				assert.Equal(t, tt.registered, status.Registered)
			}
		})
	}
}

func TestHandler_RegistrationStatus_ByUserID(t *testing.T) {
	h := newTestHandler(t)
	rp := testRelyingParty()
	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	resp := registerCredential(t, h, rp, &authenticator, &credential, "status@example.com")

	req := httptest.NewRequest(http.MethodGet, "/registration/status", nil)
	req.Header.Set(HeaderUserID, resp.UserID)
	rec := httptest.NewRecorder()
	h.RegistrationStatus(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var status RegistrationStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Registered)
}

func TestHandler_WithLogger(t *testing.T) {
	h := newTestHandler(t)
	require.NotNil(t, h.logger)

	h2 := h.WithLogger(h.logger)
	assert.Same(t, h, h2)
}

func TestHandler_MethodNotAllowedMessages(t *testing.T) {
	h := newTestHandler(t)

	handlers := map[string]http.HandlerFunc{
		"/registration/finish":   h.FinishRegistration,
		"/authentication/finish": h.FinishAuthentication,
	}

	for path, handler := range handlers {
		rec := doRequest(handler, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, path)
		assert.True(t, strings.Contains(rec.Body.String(), "method not allowed"), path)
	}
}
