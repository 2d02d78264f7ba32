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

package ceremony

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/descope/virtualwebauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRP = virtualwebauthn.RelyingParty{
	Name:   "Example Corp",
	ID:     "example.com",
	Origin: "https://example.com",
}

func newIntegrationEngine(t *testing.T, mutate func(*Config)) *engineFixture {
	t.Helper()
	return newEngineFixture(t, func(c *Config) {
		c.RPDisplayName = "Example Corp"
		if mutate != nil {
			mutate(c)
		}
	})
}

// register drives a full registration ceremony against the engine with a
// virtual authenticator.
func register(t *testing.T, f *engineFixture, authenticator *virtualwebauthn.Authenticator,
	credential *virtualwebauthn.Credential, name, displayName string) (string, *User) {
	t.Helper()
	ctx := context.Background()

	options, sessionID, err := f.engine.BeginRegistration(ctx, name, displayName)
	require.NoError(t, err)

	optionsJSON, err := json.Marshal(options)
	require.NoError(t, err)

	parsedOptions, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	require.NoError(t, err)

	attestationResponse := virtualwebauthn.CreateAttestationResponse(testRP, *authenticator, *credential, *parsedOptions)

	token, user, err := f.engine.FinishRegistration(ctx, sessionID, []byte(attestationResponse))
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.NotNil(t, user)

	authenticator.AddCredential(*credential)
	return token, user
}

// assertion runs BeginAuthentication and answers it with the virtual
// authenticator, returning the session ID and raw assertion response.
func assertion(t *testing.T, f *engineFixture, authenticator virtualwebauthn.Authenticator,
	credential virtualwebauthn.Credential, name string) (string, []byte) {
	t.Helper()
	ctx := context.Background()

	options, sessionID, err := f.engine.BeginAuthentication(ctx, name)
	require.NoError(t, err)

	optionsJSON, err := json.Marshal(options)
	require.NoError(t, err)

	parsedOptions, err := virtualwebauthn.ParseAssertionOptions(string(optionsJSON))
	require.NoError(t, err)

	assertionResponse := virtualwebauthn.CreateAssertionResponse(testRP, authenticator, credential, *parsedOptions)
	return sessionID, []byte(assertionResponse)
}

func TestIntegration_FullRegistrationFlow(t *testing.T) {
	f := newIntegrationEngine(t, nil)
	ctx := context.Background()

	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	_, user := register(t, f, &authenticator, &credential, "testuser@example.com", "Test User")

	assert.Equal(t, "testuser@example.com", user.Name)
	assert.Equal(t, "Test User", user.DisplayName)

	creds, err := f.engine.GetCredentials(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, user.ID, creds[0].UserID)
	assert.NotEmpty(t, creds[0].PublicKey)
	assert.True(t, creds[0].Flags.UserPresent)
	assert.False(t, creds[0].CloneWarning)

	registered, err := f.engine.IsRegistered(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, registered)

	// Observer saw a successful registration
	require.NotEmpty(t, f.observer.outcomes)
	assert.Equal(t, CeremonyRegistration, f.observer.kinds[0])
	assert.Equal(t, OutcomeSuccess, f.observer.outcomes[0])
}

func TestIntegration_FullLoginFlow(t *testing.T) {
	f := newIntegrationEngine(t, nil)
	ctx := context.Background()

	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	_, user := register(t, f, &authenticator, &credential, "logintest@example.com", "Login Test User")

	credential.Counter++
	sessionID, response := assertion(t, f, authenticator, credential, "logintest@example.com")

	token, loggedIn, err := f.engine.FinishAuthentication(ctx, sessionID, response)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, user.ID, loggedIn.ID)
	assert.Equal(t, "logintest@example.com", loggedIn.Name)

	assert.Equal(t, OutcomeSuccess, f.observer.outcomes[len(f.observer.outcomes)-1])
}

func TestIntegration_DiscoverableCredentialFlow(t *testing.T) {
	f := newIntegrationEngine(t, func(c *Config) { c.ResidentKeyRequirement = "required" })
	ctx := context.Background()

	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	_, user := register(t, f, &authenticator, &credential, "passkey@example.com", "Passkey User")

	// Authenticator that discloses the user handle, as discoverable
	// credentials do
	discoverableAuth := virtualwebauthn.NewAuthenticatorWithOptions(virtualwebauthn.AuthenticatorOptions{
		UserHandle: user.ID,
	})
	discoverableAuth.AddCredential(credential)

	credential.Counter++
	sessionID, response := assertion(t, f, discoverableAuth, credential, "")

	token, loggedIn, err := f.engine.FinishAuthentication(ctx, sessionID, response)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, "passkey@example.com", loggedIn.Name)
}

func TestIntegration_DiscoverableWithoutUserHandleRejected(t *testing.T) {
	f := newIntegrationEngine(t, nil)
	ctx := context.Background()

	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	register(t, f, &authenticator, &credential, "nohandle@example.com", "")

	// Usernameless ceremony answered by an authenticator that does not
	// disclose the user handle: the engine cannot bind the credential
	credential.Counter++
	sessionID, response := assertion(t, f, authenticator, credential, "")

	_, _, err := f.engine.FinishAuthentication(ctx, sessionID, response)
	assert.ErrorIs(t, err, ErrCredentialOwnerMismatch)
	assert.Equal(t, ErrVerificationFailed, ClientFacing(err))
}

func TestIntegration_MultipleCredentials(t *testing.T) {
	f := newIntegrationEngine(t, nil)
	ctx := context.Background()

	auth1 := virtualwebauthn.NewAuthenticator()
	cred1 := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	auth2 := virtualwebauthn.NewAuthenticator()
	cred2 := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	_, user := register(t, f, &auth1, &cred1, "multicred@example.com", "Multi Cred User")

	// Second registration must exclude the first credential
	options, sessionID, err := f.engine.BeginRegistration(ctx, "multicred@example.com", "Multi Cred User")
	require.NoError(t, err)
	require.Len(t, options.ExcludeCredentials, 1)

	optionsJSON, err := json.Marshal(options)
	require.NoError(t, err)
	parsedOptions, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	require.NoError(t, err)

	attestationResponse := virtualwebauthn.CreateAttestationResponse(testRP, auth2, cred2, *parsedOptions)
	_, _, err = f.engine.FinishRegistration(ctx, sessionID, []byte(attestationResponse))
	require.NoError(t, err)
	auth2.AddCredential(cred2)

	creds, err := f.engine.GetCredentials(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, creds, 2)

	// Both authenticators can log in
	cred1.Counter++
	sessionID1, response1 := assertion(t, f, auth1, cred1, "multicred@example.com")
	_, _, err = f.engine.FinishAuthentication(ctx, sessionID1, response1)
	require.NoError(t, err)

	cred2.Counter++
	sessionID2, response2 := assertion(t, f, auth2, cred2, "multicred@example.com")
	_, _, err = f.engine.FinishAuthentication(ctx, sessionID2, response2)
	require.NoError(t, err)
}

func TestIntegration_DuplicateCredentialIDRejected(t *testing.T) {
	f := newIntegrationEngine(t, nil)
	ctx := context.Background()

	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	register(t, f, &authenticator, &credential, "dupe-a@example.com", "")

	// Replaying the same credential ID for a different account must fail:
	// credential IDs are globally unique
	options, sessionID, err := f.engine.BeginRegistration(ctx, "dupe-b@example.com", "")
	require.NoError(t, err)

	optionsJSON, err := json.Marshal(options)
	require.NoError(t, err)
	parsedOptions, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	require.NoError(t, err)

	attestationResponse := virtualwebauthn.CreateAttestationResponse(testRP, authenticator, credential, *parsedOptions)
	_, _, err = f.engine.FinishRegistration(ctx, sessionID, []byte(attestationResponse))
	assert.True(t, IsCredentialExists(err))
}

func TestIntegration_SignCountProgression(t *testing.T) {
	f := newIntegrationEngine(t, nil)
	ctx := context.Background()

	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	_, user := register(t, f, &authenticator, &credential, "signcount@example.com", "")

	creds, err := f.engine.GetCredentials(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), creds[0].SignCount)

	for i := 1; i <= 3; i++ {
		credential.Counter++

		sessionID, response := assertion(t, f, authenticator, credential, "signcount@example.com")
		_, _, err := f.engine.FinishAuthentication(ctx, sessionID, response)
		require.NoError(t, err, "login %d", i)

		creds, err = f.engine.GetCredentials(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, uint32(i), creds[0].SignCount)
		assert.False(t, creds[0].LastUsedAt.IsZero())
	}
}

func TestIntegration_CloneDetection(t *testing.T) {
	f := newIntegrationEngine(t, nil)
	ctx := context.Background()

	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	_, user := register(t, f, &authenticator, &credential, "clone@example.com", "")

	// Establish a high counter
	credential.Counter = 10
	sessionID, response := assertion(t, f, authenticator, credential, "clone@example.com")
	_, _, err := f.engine.FinishAuthentication(ctx, sessionID, response)
	require.NoError(t, err)

	// A cloned authenticator would present a regressed counter
	credential.Counter = 3
	sessionID, response = assertion(t, f, authenticator, credential, "clone@example.com")
	_, _, err = f.engine.FinishAuthentication(ctx, sessionID, response)
	require.Error(t, err)
	assert.True(t, IsCloneDetected(err))
	assert.Equal(t, ErrVerificationFailed, ClientFacing(err))

	// The credential carries a sticky warning and kept its counter
	creds, err := f.engine.GetCredentials(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, creds[0].CloneWarning)
	assert.Equal(t, uint32(10), creds[0].SignCount)

	assert.Equal(t, OutcomeCloneDetected, f.observer.outcomes[len(f.observer.outcomes)-1])

	// A later legitimate assertion with a healthy counter still works
	credential.Counter = 11
	sessionID, response = assertion(t, f, authenticator, credential, "clone@example.com")
	_, _, err = f.engine.FinishAuthentication(ctx, sessionID, response)
	require.NoError(t, err)

	creds, err = f.engine.GetCredentials(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, creds[0].CloneWarning, "clone warning is sticky")
}

func TestIntegration_ChallengeMismatch(t *testing.T) {
	f := newIntegrationEngine(t, nil)
	ctx := context.Background()

	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	register(t, f, &authenticator, &credential, "mismatch@example.com", "")

	// Answer session A's challenge, present it against session B
	credential.Counter++
	_, staleResponse := assertion(t, f, authenticator, credential, "mismatch@example.com")
	sessionB, _ := assertion(t, f, authenticator, credential, "mismatch@example.com")

	_, _, err := f.engine.FinishAuthentication(ctx, sessionB, staleResponse)
	assert.ErrorIs(t, err, ErrChallengeMismatch)
	assert.Equal(t, ErrVerificationFailed, ClientFacing(err))
}

func TestIntegration_UnknownCredentialScope(t *testing.T) {
	f := newIntegrationEngine(t, nil)
	ctx := context.Background()

	authA := virtualwebauthn.NewAuthenticator()
	credA := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	authB := virtualwebauthn.NewAuthenticator()
	credB := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	register(t, f, &authA, &credA, "user-a@example.com", "")
	register(t, f, &authB, &credB, "user-b@example.com", "")

	// A ceremony bound to user A answered with user B's credential is out
	// of scope
	credB.Counter++
	options, sessionID, err := f.engine.BeginAuthentication(ctx, "user-a@example.com")
	require.NoError(t, err)

	optionsJSON, err := json.Marshal(options)
	require.NoError(t, err)

	// Strip the allow list so the virtual authenticator will answer with
	// user B's credential
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(optionsJSON, &raw))
	delete(raw, "allowCredentials")
	strippedJSON, err := json.Marshal(raw)
	require.NoError(t, err)

	parsedOptions, err := virtualwebauthn.ParseAssertionOptions(string(strippedJSON))
	require.NoError(t, err)

	response := virtualwebauthn.CreateAssertionResponse(testRP, authB, credB, *parsedOptions)

	_, _, err = f.engine.FinishAuthentication(ctx, sessionID, []byte(response))
	assert.ErrorIs(t, err, ErrUnknownCredential)
}

func TestIntegration_RSACredential(t *testing.T) {
	f := newIntegrationEngine(t, nil)
	ctx := context.Background()

	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeRSA)

	_, user := register(t, f, &authenticator, &credential, "rsa@example.com", "")

	credential.Counter++
	sessionID, response := assertion(t, f, authenticator, credential, "rsa@example.com")
	_, _, err := f.engine.FinishAuthentication(ctx, sessionID, response)
	require.NoError(t, err)

	creds, err := f.engine.GetCredentials(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, creds, 1)
}

func TestIntegration_CustomTokenGenerator(t *testing.T) {
	cfg := &Config{
		RPID:          "example.com",
		RPDisplayName: "Example Corp",
		RPOrigins:     []string{"https://example.com"},
	}

	f := &engineFixture{
		users:      NewMemoryUserStore(),
		challenges: NewMemoryChallengeStore(),
		creds:      NewMemoryCredentialStore(),
		observer:   &recordingObserver{},
	}

	engine, err := NewEngine(EngineParams{
		Config:          cfg,
		UserStore:       f.users,
		ChallengeStore:  f.challenges,
		CredentialStore: f.creds,
		TokenGenerator:  &staticTokenGenerator{},
		Observer:        f.observer,
	})
	require.NoError(t, err)
	f.engine = engine

	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	token, _ := register(t, f, &authenticator, &credential, "custom@example.com", "")
	assert.Equal(t, "token-for-custom@example.com", token)
}

type staticTokenGenerator struct{}

func (g *staticTokenGenerator) GenerateToken(ctx context.Context, user *User) (string, error) {
	return fmt.Sprintf("token-for-%s", user.Name), nil
}

func TestIntegration_ConcurrentAssertions(t *testing.T) {
	f := newIntegrationEngine(t, nil)
	ctx := context.Background()

	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	_, user := register(t, f, &authenticator, &credential, "race@example.com", "")

	// Prepare two assertions with distinct counters, then finish them
	// concurrently. Both carry counters above the stored value, so both
	// must succeed regardless of completion order, and the stored counter
	// must end at the maximum.
	credential.Counter = 6
	session1, response1 := assertion(t, f, authenticator, credential, "race@example.com")
	credential.Counter = 7
	session2, response2 := assertion(t, f, authenticator, credential, "race@example.com")

	errs := make(chan error, 2)
	go func() {
		_, _, err := f.engine.FinishAuthentication(ctx, session1, response1)
		errs <- err
	}()
	go func() {
		_, _, err := f.engine.FinishAuthentication(ctx, session2, response2)
		errs <- err
	}()

	var failures []error
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			failures = append(failures, err)
		}
	}

	// The assertion carrying 7 always succeeds. The one carrying 6 may
	// lose the race and be treated as a clone; any failure must be that.
	require.LessOrEqual(t, len(failures), 1)
	for _, err := range failures {
		assert.True(t, IsCloneDetected(err))
	}

	creds, err := f.engine.GetCredentials(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), creds[0].SignCount)
}
