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
	"errors"
	"fmt"
)

// Sentinel errors for ceremony operations.
var (
	// ErrInvalidInput is returned when a request or response payload is
	// structurally invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUserNotFound is returned when a user cannot be found.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists is returned when creating a user that already exists.
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrChallengeMissing is returned when no pending challenge exists for
	// the presented session, or it was already consumed.
	ErrChallengeMissing = errors.New("challenge not found")

	// ErrChallengeExpired is returned when the pending challenge's deadline
	// has passed. This is the only verification failure surfaced to
	// clients distinctly, so they can restart the ceremony.
	ErrChallengeExpired = errors.New("challenge expired")

	// ErrChallengeMismatch is returned when the challenge echoed in client
	// data does not equal the issued challenge.
	ErrChallengeMismatch = errors.New("challenge mismatch")

	// ErrTypeMismatch is returned when client data carries the wrong
	// ceremony type.
	ErrTypeMismatch = errors.New("ceremony type mismatch")

	// ErrOriginMismatch is returned when the client-observed origin is not
	// in the configured allow list.
	ErrOriginMismatch = errors.New("origin not allowed")

	// ErrRPIDMismatch is returned when the authenticator scoped the
	// operation to a different Relying Party ID.
	ErrRPIDMismatch = errors.New("relying party ID mismatch")

	// ErrUserNotPresent is returned when the user presence flag is unset.
	ErrUserNotPresent = errors.New("user presence flag not set")

	// ErrUserNotVerified is returned when user verification is required
	// but the user verification flag is unset.
	ErrUserNotVerified = errors.New("user verification flag not set")

	// ErrAlgorithmNotAllowed is returned when the credential declares an
	// algorithm outside the offered parameters.
	ErrAlgorithmNotAllowed = errors.New("credential algorithm not allowed")

	// ErrUnknownCredential is returned when an asserted credential ID is
	// not registered.
	ErrUnknownCredential = errors.New("unknown credential")

	// ErrCredentialOwnerMismatch is returned when an asserted credential
	// belongs to a different user than the ceremony was issued for.
	ErrCredentialOwnerMismatch = errors.New("credential owner mismatch")

	// ErrCredentialExists is returned when registering a credential ID
	// that is already stored.
	ErrCredentialExists = errors.New("credential already registered")

	// ErrNoCredentials is returned when a user has no registered credentials.
	ErrNoCredentials = errors.New("user has no registered credentials")

	// ErrSignatureInvalid is returned when the assertion signature does
	// not verify against the stored public key.
	ErrSignatureInvalid = errors.New("assertion signature invalid")

	// ErrCloneDetected is returned when the signature counter regressed,
	// indicating a possibly cloned authenticator.
	ErrCloneDetected = errors.New("cloned authenticator detected")

	// ErrSignCountStale is returned by credential stores when a
	// compare-and-swap counter update lost a race. Engine-internal;
	// callers never see it.
	ErrSignCountStale = errors.New("sign count changed concurrently")

	// ErrStorageUnavailable is returned when a backing store cannot be
	// reached.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrNotConfigured is returned when the engine is not properly configured.
	ErrNotConfigured = errors.New("ceremony engine not configured")
)

// CeremonyError wraps an error with the operation that produced it.
type CeremonyError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error message.
func (e *CeremonyError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *CeremonyError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *CeremonyError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new CeremonyError with the given operation and error.
func NewError(op string, err error) error {
	return &CeremonyError{
		Op:  op,
		Err: err,
	}
}

// WrapError wraps an error with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(op, err)
}

// ErrVerificationFailed is the collapsed client-facing failure. Every
// verification error except ErrChallengeExpired maps to it so that
// responses do not leak which check rejected the ceremony.
var ErrVerificationFailed = errors.New("ceremony verification failed")

// ClientFacing maps an internal ceremony error to the error that may be
// shown to a client. Challenge expiry passes through; every other
// failure collapses to ErrVerificationFailed.
func ClientFacing(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrChallengeExpired) {
		return ErrChallengeExpired
	}
	return ErrVerificationFailed
}

// IsUserNotFound returns true if the error indicates a user was not found.
func IsUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

// IsChallengeExpired returns true if the error indicates an expired challenge.
func IsChallengeExpired(err error) bool {
	return errors.Is(err, ErrChallengeExpired)
}

// IsCloneDetected returns true if the error indicates a suspected clone.
func IsCloneDetected(err error) bool {
	return errors.Is(err, ErrCloneDetected)
}

// IsCredentialExists returns true if the error indicates a duplicate
// credential registration.
func IsCredentialExists(err error) bool {
	return errors.Is(err, ErrCredentialExists)
}
