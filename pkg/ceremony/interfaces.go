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

import "context"

// UserStore is the interface applications implement for user persistence.
// This interface is intentionally minimal - applications bring their own
// user model.
type UserStore interface {
	// GetByID retrieves a user by their user handle.
	// Returns ErrUserNotFound if the user does not exist.
	GetByID(ctx context.Context, userID []byte) (*User, error)

	// GetByName retrieves a user by their account name.
	// Returns ErrUserNotFound if the user does not exist.
	GetByName(ctx context.Context, name string) (*User, error)

	// Create creates a new user with the given name and display name.
	// Returns the created user with its assigned handle, or
	// ErrUserAlreadyExists.
	Create(ctx context.Context, name, displayName string) (*User, error)

	// Delete removes a user by their handle.
	// Returns ErrUserNotFound if the user does not exist.
	Delete(ctx context.Context, userID []byte) error
}

// ChallengeStore manages pending ceremony challenges. Challenges are
// short-lived (60 seconds by default) and consumed exactly once.
type ChallengeStore interface {
	// Issue stores a pending challenge session under its session ID.
	// Issuing under an existing session ID replaces the previous
	// challenge; only the most recent issuance is acceptable.
	Issue(ctx context.Context, session *ChallengeSession) error

	// Consume atomically retrieves and removes a pending challenge.
	// Returns ErrChallengeMissing if no challenge exists for the session
	// ID (or it was already consumed), and ErrChallengeExpired if a
	// challenge existed but its deadline passed. An expired challenge is
	// removed as well; a second consume reports it missing.
	Consume(ctx context.Context, sessionID string) (*ChallengeSession, error)
}

// CredentialStore manages credential persistence. Credential IDs are
// globally unique: two users can never hold the same credential ID.
type CredentialStore interface {
	// Save stores a new credential.
	// Returns ErrCredentialExists if the credential ID is already
	// registered, to any user.
	Save(ctx context.Context, cred *Credential) error

	// GetByID retrieves a credential by its ID.
	// Returns ErrUnknownCredential if the credential does not exist.
	GetByID(ctx context.Context, credID []byte) (*Credential, error)

	// GetByUserID retrieves all credentials for a user.
	// Returns an empty slice if the user has no credentials.
	GetByUserID(ctx context.Context, userID []byte) ([]*Credential, error)

	// UpdateSignCount updates the signature counter with compare-and-swap
	// semantics: the update applies only if the stored counter still
	// equals prev. Returns ErrSignCountStale when it does not, and
	// ErrUnknownCredential if the credential does not exist. The
	// credential's last-used time advances on success.
	UpdateSignCount(ctx context.Context, credID []byte, prev, next uint32) error

	// SetCloneWarning marks a credential as having shown a counter
	// regression. The flag is sticky.
	SetCloneWarning(ctx context.Context, credID []byte) error

	// Delete removes a credential by its ID.
	// Returns ErrUnknownCredential if the credential does not exist.
	Delete(ctx context.Context, credID []byte) error

	// DeleteByUserID removes all credentials for a user.
	DeleteByUserID(ctx context.Context, userID []byte) error
}

// TokenGenerator is an optional interface for generating tokens after a
// successful registration or authentication. If not provided, the engine
// returns the base64-encoded user handle.
type TokenGenerator interface {
	// GenerateToken creates a JWT or other token for the authenticated user.
	GenerateToken(ctx context.Context, user *User) (string, error)
}
