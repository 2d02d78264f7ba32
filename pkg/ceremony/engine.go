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
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-passkey/pkg/protocol"
)

// Ceremony outcome labels reported to observers.
const (
	OutcomeSuccess       = "success"
	OutcomeRejected      = "rejected"
	OutcomeExpired       = "expired"
	OutcomeCloneDetected = "clone_detected"
	OutcomeError         = "error"
)

// Observer receives the outcome of each finished ceremony, for metrics.
type Observer interface {
	ObserveCeremony(kind, outcome string)
}

// Engine orchestrates WebAuthn registration and authentication ceremonies.
type Engine struct {
	config     *Config
	users      UserStore
	challenges ChallengeStore
	creds      CredentialStore
	tokens     TokenGenerator // optional
	observer   Observer       // optional
	logger     *slog.Logger
	rpIDHash   []byte
	configured bool
}

// EngineParams contains dependencies for creating a ceremony engine.
type EngineParams struct {
	// Config is the ceremony configuration (required).
	Config *Config

	// UserStore is the user persistence layer (required).
	UserStore UserStore

	// ChallengeStore is the pending challenge persistence layer (required).
	ChallengeStore ChallengeStore

	// CredentialStore is the credential persistence layer (required).
	CredentialStore CredentialStore

	// TokenGenerator is an optional token generator for post-auth tokens.
	// If nil, the engine returns the base64-encoded user handle.
	TokenGenerator TokenGenerator

	// Observer receives ceremony outcomes. Optional.
	Observer Observer

	// Logger is the structured logger. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewEngine creates a new ceremony engine with the provided dependencies.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.UserStore == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if params.ChallengeStore == nil {
		return nil, fmt.Errorf("challenge store is required")
	}
	if params.CredentialStore == nil {
		return nil, fmt.Errorf("credential store is required")
	}

	// Set defaults and validate
	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rpIDHash := sha256.Sum256([]byte(params.Config.RPID))

	return &Engine{
		config:     params.Config,
		users:      params.UserStore,
		challenges: params.ChallengeStore,
		creds:      params.CredentialStore,
		tokens:     params.TokenGenerator,
		observer:   params.Observer,
		logger:     logger,
		rpIDHash:   rpIDHash[:],
		configured: true,
	}, nil
}

// BeginRegistration starts a registration ceremony for the named account,
// creating the user if it does not exist yet. Returns the creation
// options to send to the client and the session ID that must accompany
// the finish call.
func (e *Engine) BeginRegistration(ctx context.Context, name, displayName string) (*protocol.CredentialCreationOptions, string, error) {
	if !e.configured {
		return nil, "", ErrNotConfigured
	}
	if name == "" {
		return nil, "", NewError("begin registration", fmt.Errorf("%w: name is required", ErrInvalidInput))
	}

	// Get existing user or create a new one
	user, err := e.users.GetByName(ctx, name)
	if err != nil {
		if !IsUserNotFound(err) {
			return nil, "", WrapError("get user by name", err)
		}
		user, err = e.users.Create(ctx, name, displayName)
		if err != nil {
			return nil, "", WrapError("create user", err)
		}
	}

	// Exclude credentials the user already registered
	existing, err := e.creds.GetByUserID(ctx, user.ID)
	if err != nil {
		return nil, "", WrapError("get credentials", err)
	}
	excludeList := make([]protocol.CredentialDescriptor, len(existing))
	for i, cred := range existing {
		excludeList[i] = cred.Descriptor()
	}

	session, err := e.issueChallenge(ctx, CeremonyRegistration, user.ID, nil)
	if err != nil {
		return nil, "", err
	}

	options := &protocol.CredentialCreationOptions{
		Challenge: session.Challenge,
		RelyingParty: protocol.RelyingPartyEntity{
			ID:   e.config.RPID,
			Name: e.config.RPDisplayName,
		},
		User: protocol.UserEntity{
			ID:          user.ID,
			Name:        user.Name,
			DisplayName: user.EffectiveDisplayName(),
		},
		Parameters:         e.config.credentialParameters(),
		Timeout:            e.config.ChallengeTimeout.Milliseconds(),
		ExcludeCredentials: excludeList,
		AuthenticatorSelection: protocol.AuthenticatorSelection{
			AuthenticatorAttachment: protocol.AuthenticatorAttachment(e.config.AuthenticatorAttachment),
			ResidentKey:             protocol.ResidentKeyRequirement(e.config.ResidentKeyRequirement),
			UserVerification:        protocol.UserVerificationRequirement(e.config.UserVerification),
		},
		Attestation: protocol.AttestationConveyance(e.config.AttestationPreference),
	}

	return options, session.ID, nil
}

// FinishRegistration completes a registration ceremony. The response is
// the raw JSON PublicKeyCredential produced by the client. On success the
// credential is stored and a token for the user is returned.
//
// No state is mutated on any verification failure: the challenge is
// consumed, but the credential store is untouched.
func (e *Engine) FinishRegistration(ctx context.Context, sessionID string, response []byte) (string, *User, error) {
	if !e.configured {
		return "", nil, ErrNotConfigured
	}

	token, user, err := e.finishRegistration(ctx, sessionID, response)
	e.observe(CeremonyRegistration, err)
	return token, user, err
}

func (e *Engine) finishRegistration(ctx context.Context, sessionID string, response []byte) (string, *User, error) {
	session, err := e.consumeChallenge(ctx, sessionID, CeremonyRegistration)
	if err != nil {
		return "", nil, err
	}

	parsed, err := protocol.ParseCreationResponse(response)
	if err != nil {
		return "", nil, NewError("parse registration response", fmt.Errorf("%w: %w", ErrInvalidInput, err))
	}

	if err := e.verifyClientData(parsed.ClientData, protocol.CeremonyCreate, session.Challenge); err != nil {
		return "", nil, err
	}

	authData := parsed.Attestation.AuthData
	if err := e.verifyAuthData(authData); err != nil {
		return "", nil, err
	}

	attested := authData.AttestedCredential
	if !e.config.allowsAlgorithm(attested.PublicKey.Algorithm) {
		return "", nil, NewError("verify algorithm",
			fmt.Errorf("%w: %s", ErrAlgorithmNotAllowed, attested.PublicKey.Algorithm))
	}

	if err := parsed.Attestation.VerifyStatement(parsed.ClientDataHash); err != nil {
		if errors.Is(err, protocol.ErrMalformed) {
			return "", nil, NewError("verify attestation", fmt.Errorf("%w: %w", ErrInvalidInput, err))
		}
		return "", nil, NewError("verify attestation", fmt.Errorf("%w: %w", ErrSignatureInvalid, err))
	}

	user, err := e.users.GetByID(ctx, session.UserID)
	if err != nil {
		return "", nil, WrapError("get user", err)
	}

	cred := &Credential{
		ID:              attested.CredentialID,
		UserID:          user.ID,
		PublicKey:       attested.PublicKey.Raw,
		Algorithm:       attested.PublicKey.Algorithm,
		AttestationType: parsed.Attestation.Format,
		Transports:      parsed.Transports,
		Flags:           flagsFromAuthData(authData.Flags),
		AAGUID:          attested.AAGUID,
		SignCount:       authData.SignCount,
		CreatedAt:       time.Now().UTC(),
	}

	if err := e.creds.Save(ctx, cred); err != nil {
		return "", nil, WrapError("save credential", err)
	}

	e.logger.Info("credential registered",
		"user", user.Name,
		"credential_id", protocol.Base64URLBytes(cred.ID).String(),
		"algorithm", cred.Algorithm.String(),
	)

	token, err := e.generateToken(ctx, user)
	if err != nil {
		return "", nil, WrapError("generate token", err)
	}

	return token, user, nil
}

// BeginAuthentication starts an authentication ceremony. With a non-empty
// name the options carry an allowCredentials hint scoped to that user's
// credentials. With an empty name the ceremony is usernameless: any
// discoverable credential may answer, and the user is resolved from the
// asserted user handle at finish time.
func (e *Engine) BeginAuthentication(ctx context.Context, name string) (*protocol.CredentialAssertionOptions, string, error) {
	if !e.configured {
		return nil, "", ErrNotConfigured
	}

	var userID []byte
	var allowList []protocol.CredentialDescriptor
	var allowedIDs [][]byte

	if name != "" {
		user, err := e.users.GetByName(ctx, name)
		if err != nil {
			return nil, "", WrapError("get user", err)
		}

		creds, err := e.creds.GetByUserID(ctx, user.ID)
		if err != nil {
			return nil, "", WrapError("get credentials", err)
		}
		if len(creds) == 0 {
			return nil, "", ErrNoCredentials
		}

		userID = user.ID
		allowList = make([]protocol.CredentialDescriptor, len(creds))
		allowedIDs = make([][]byte, len(creds))
		for i, cred := range creds {
			allowList[i] = cred.Descriptor()
			allowedIDs[i] = cred.ID
		}
	}

	session, err := e.issueChallenge(ctx, CeremonyAuthentication, userID, allowedIDs)
	if err != nil {
		return nil, "", err
	}

	options := &protocol.CredentialAssertionOptions{
		Challenge:        session.Challenge,
		RelyingPartyID:   e.config.RPID,
		Timeout:          e.config.ChallengeTimeout.Milliseconds(),
		AllowCredentials: allowList,
		UserVerification: protocol.UserVerificationRequirement(e.config.UserVerification),
	}

	return options, session.ID, nil
}

// FinishAuthentication completes an authentication ceremony. The response
// is the raw JSON PublicKeyCredential produced by the client. On success
// the credential's signature counter is advanced and a token for the
// authenticated user is returned.
func (e *Engine) FinishAuthentication(ctx context.Context, sessionID string, response []byte) (string, *User, error) {
	if !e.configured {
		return "", nil, ErrNotConfigured
	}

	token, user, err := e.finishAuthentication(ctx, sessionID, response)
	e.observe(CeremonyAuthentication, err)
	return token, user, err
}

func (e *Engine) finishAuthentication(ctx context.Context, sessionID string, response []byte) (string, *User, error) {
	session, err := e.consumeChallenge(ctx, sessionID, CeremonyAuthentication)
	if err != nil {
		return "", nil, err
	}

	parsed, err := protocol.ParseAssertionResponse(response)
	if err != nil {
		return "", nil, NewError("parse authentication response", fmt.Errorf("%w: %w", ErrInvalidInput, err))
	}

	if err := e.verifyClientData(parsed.ClientData, protocol.CeremonyAssert, session.Challenge); err != nil {
		return "", nil, err
	}

	if err := e.verifyAuthData(parsed.AuthData); err != nil {
		return "", nil, err
	}

	if !session.allows(parsed.RawID) {
		return "", nil, NewError("verify credential scope", ErrUnknownCredential)
	}

	cred, err := e.creds.GetByID(ctx, parsed.RawID)
	if err != nil {
		return "", nil, WrapError("get credential", err)
	}

	// Bind the credential to the right user: either the user the
	// ceremony was issued for, or (usernameless) the asserted handle.
	if len(session.UserID) != 0 {
		if string(cred.UserID) != string(session.UserID) {
			return "", nil, NewError("verify credential owner", ErrCredentialOwnerMismatch)
		}
	} else {
		if len(parsed.UserHandle) == 0 {
			return "", nil, NewError("verify credential owner",
				fmt.Errorf("%w: no user handle in discoverable assertion", ErrCredentialOwnerMismatch))
		}
		if string(cred.UserID) != string(parsed.UserHandle) {
			return "", nil, NewError("verify credential owner", ErrCredentialOwnerMismatch)
		}
	}

	pub, _, err := protocol.ParsePublicKey(cred.PublicKey)
	if err != nil {
		return "", nil, WrapError("parse stored public key", err)
	}
	if err := pub.Verify(parsed.SignedBytes, parsed.Signature); err != nil {
		return "", nil, NewError("verify signature", fmt.Errorf("%w: %w", ErrSignatureInvalid, err))
	}

	if err := e.advanceSignCount(ctx, cred, parsed.AuthData.SignCount); err != nil {
		return "", nil, err
	}

	user, err := e.users.GetByID(ctx, cred.UserID)
	if err != nil {
		return "", nil, WrapError("get user", err)
	}

	token, err := e.generateToken(ctx, user)
	if err != nil {
		return "", nil, WrapError("generate token", err)
	}

	return token, user, nil
}

// advanceSignCount applies the clone heuristic and persists the new
// counter with compare-and-swap. A lost race re-reads the stored counter
// and re-evaluates: of two concurrent assertions only those whose counter
// still exceeds the freshly stored value survive.
func (e *Engine) advanceSignCount(ctx context.Context, cred *Credential, received uint32) error {
	prev := cred.SignCount
	for {
		if !signCountAcceptable(prev, received) {
			e.logger.Warn("signature counter regression, possible cloned authenticator",
				"credential_id", protocol.Base64URLBytes(cred.ID).String(),
				"stored", prev,
				"received", received,
			)
			if err := e.creds.SetCloneWarning(ctx, cred.ID); err != nil {
				e.logger.Error("failed to record clone warning", "error", err)
			}
			return NewError("verify sign count", ErrCloneDetected)
		}

		err := e.creds.UpdateSignCount(ctx, cred.ID, prev, received)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrSignCountStale) {
			return WrapError("update sign count", err)
		}

		fresh, err := e.creds.GetByID(ctx, cred.ID)
		if err != nil {
			return WrapError("get credential", err)
		}
		prev = fresh.SignCount
	}
}

// IsRegistered checks if a user has any registered credentials.
func (e *Engine) IsRegistered(ctx context.Context, userID []byte) (bool, error) {
	if !e.configured {
		return false, ErrNotConfigured
	}
	if userID == nil {
		return false, nil
	}

	creds, err := e.creds.GetByUserID(ctx, userID)
	if err != nil {
		return false, WrapError("get credentials", err)
	}
	return len(creds) > 0, nil
}

// GetUser retrieves a user by their handle.
func (e *Engine) GetUser(ctx context.Context, userID []byte) (*User, error) {
	if !e.configured {
		return nil, ErrNotConfigured
	}
	return e.users.GetByID(ctx, userID)
}

// GetUserByName retrieves a user by their account name.
func (e *Engine) GetUserByName(ctx context.Context, name string) (*User, error) {
	if !e.configured {
		return nil, ErrNotConfigured
	}
	return e.users.GetByName(ctx, name)
}

// GetCredentials retrieves all credentials for a user.
func (e *Engine) GetCredentials(ctx context.Context, userID []byte) ([]*Credential, error) {
	if !e.configured {
		return nil, ErrNotConfigured
	}
	return e.creds.GetByUserID(ctx, userID)
}

// RevokeCredential removes a credential.
func (e *Engine) RevokeCredential(ctx context.Context, credID []byte) error {
	if !e.configured {
		return ErrNotConfigured
	}
	return e.creds.Delete(ctx, credID)
}

// DeleteUser removes a user and all their credentials.
func (e *Engine) DeleteUser(ctx context.Context, userID []byte) error {
	if !e.configured {
		return ErrNotConfigured
	}

	if err := e.creds.DeleteByUserID(ctx, userID); err != nil {
		return WrapError("delete user credentials", err)
	}
	return e.users.Delete(ctx, userID)
}

// Config returns the engine configuration.
func (e *Engine) Config() *Config {
	return e.config
}

// issueChallenge generates a fresh challenge and stores it as a pending
// session.
func (e *Engine) issueChallenge(ctx context.Context, kind string, userID []byte, allowedIDs [][]byte) (*ChallengeSession, error) {
	challenge := make([]byte, e.config.ChallengeSize)
	if _, err := rand.Read(challenge); err != nil {
		return nil, WrapError("generate challenge", err)
	}

	now := time.Now().UTC()
	session := &ChallengeSession{
		ID:                   uuid.NewString(),
		Ceremony:             kind,
		UserID:               userID,
		Challenge:            challenge,
		AllowedCredentialIDs: allowedIDs,
		CreatedAt:            now,
		ExpiresAt:            now.Add(e.config.ChallengeTimeout),
	}

	if err := e.challenges.Issue(ctx, session); err != nil {
		return nil, WrapError("issue challenge", err)
	}
	return session, nil
}

// consumeChallenge removes and returns the pending challenge. A session
// issued for a different ceremony kind is treated as missing.
func (e *Engine) consumeChallenge(ctx context.Context, sessionID, kind string) (*ChallengeSession, error) {
	if sessionID == "" {
		return nil, NewError("consume challenge", ErrChallengeMissing)
	}

	session, err := e.challenges.Consume(ctx, sessionID)
	if err != nil {
		return nil, WrapError("consume challenge", err)
	}
	if session.Ceremony != kind {
		return nil, NewError("consume challenge", ErrChallengeMissing)
	}
	return session, nil
}

// verifyClientData checks ceremony type, challenge echo, and origin.
func (e *Engine) verifyClientData(cd *protocol.CollectedClientData, wantType string, issued []byte) error {
	if cd.Type != wantType {
		return NewError("verify client data", fmt.Errorf("%w: got %q", ErrTypeMismatch, cd.Type))
	}
	if !cd.Challenge.Equal(issued) {
		return NewError("verify client data", ErrChallengeMismatch)
	}
	if !e.config.allowsOrigin(cd.Origin) {
		return NewError("verify client data", fmt.Errorf("%w: %s", ErrOriginMismatch, cd.Origin))
	}
	return nil
}

// verifyAuthData checks RP ID scope and the user presence/verification flags.
func (e *Engine) verifyAuthData(ad *protocol.AuthenticatorData) error {
	if string(ad.RPIDHash) != string(e.rpIDHash) {
		return NewError("verify authenticator data", ErrRPIDMismatch)
	}
	if !ad.Flags.UserPresent() {
		return NewError("verify authenticator data", ErrUserNotPresent)
	}
	if e.config.RequireUserVerification && !ad.Flags.UserVerified() {
		return NewError("verify authenticator data", ErrUserNotVerified)
	}
	return nil
}

// generateToken creates a token for the authenticated user.
func (e *Engine) generateToken(ctx context.Context, user *User) (string, error) {
	if e.tokens != nil {
		return e.tokens.GenerateToken(ctx, user)
	}
	// Default: return base64-encoded user handle
	return base64.RawURLEncoding.EncodeToString(user.ID), nil
}

// observe reports a ceremony outcome to the configured observer.
func (e *Engine) observe(kind string, err error) {
	if e.observer == nil {
		return
	}
	switch {
	case err == nil:
		e.observer.ObserveCeremony(kind, OutcomeSuccess)
	case errors.Is(err, ErrCloneDetected):
		e.observer.ObserveCeremony(kind, OutcomeCloneDetected)
	case errors.Is(err, ErrChallengeExpired):
		e.observer.ObserveCeremony(kind, OutcomeExpired)
	case errors.Is(err, ErrStorageUnavailable):
		e.observer.ObserveCeremony(kind, OutcomeError)
	default:
		e.observer.ObserveCeremony(kind, OutcomeRejected)
	}
}
