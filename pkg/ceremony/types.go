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
	"encoding/binary"
	"time"

	"github.com/jeremyhahn/go-passkey/pkg/protocol"
)

// Ceremony kinds tracked on pending challenges.
const (
	CeremonyRegistration   = "registration"
	CeremonyAuthentication = "authentication"
)

// User is the identity a credential binds to. ID is the opaque user
// handle handed to authenticators; it carries no personal information.
type User struct {
	// ID is the WebAuthn user handle, at most 64 bytes.
	ID []byte `json:"id"`

	// Name is the account identifier, typically an email address.
	Name string `json:"name"`

	// DisplayName is the human-friendly name shown in authenticator UI.
	DisplayName string `json:"display_name"`

	// CreatedAt is when the user was first seen.
	CreatedAt time.Time `json:"created_at"`
}

// EffectiveDisplayName returns the display name, falling back to the
// account name when unset.
func (u *User) EffectiveDisplayName() string {
	if u.DisplayName == "" {
		return u.Name
	}
	return u.DisplayName
}

// GenerateUserID generates a deterministic user handle from an account
// name. The ID is an 8-byte value suitable for WebAuthn user handles.
func GenerateUserID(name string) []byte {
	// FNV-1a for a deterministic, stable handle
	var h uint64 = 14695981039346656037 // FNV offset basis
	for _, b := range []byte(name) {
		h ^= uint64(b)
		h *= 1099511628211 // FNV prime
	}
	id := make([]byte, 8)
	binary.BigEndian.PutUint64(id, h)
	return id
}

// Credential is the public key record the Relying Party stores per
// registered authenticator.
type Credential struct {
	// ID is the credential identifier assigned by the authenticator.
	// Globally unique across all users.
	ID []byte `json:"id"`

	// UserID is the user handle this credential belongs to.
	UserID []byte `json:"user_id"`

	// PublicKey is the credential's public key in COSE format, stored
	// verbatim as received at registration.
	PublicKey []byte `json:"public_key"`

	// Algorithm is the COSE algorithm the credential signs with.
	Algorithm protocol.COSEAlgorithm `json:"algorithm"`

	// AttestationType is the attestation format conveyed at registration.
	AttestationType string `json:"attestation_type"`

	// Transports lists the transports the client reported for the
	// authenticator. Echoed in allowCredentials hints.
	Transports []string `json:"transports,omitempty"`

	// Flags captures the authenticator flags observed at registration.
	Flags CredentialFlags `json:"flags"`

	// AAGUID identifies the authenticator model.
	AAGUID []byte `json:"aaguid"`

	// SignCount is the last accepted signature counter value.
	SignCount uint32 `json:"sign_count"`

	// CloneWarning records that a counter regression was observed for
	// this credential at some point.
	CloneWarning bool `json:"clone_warning"`

	// CreatedAt is when the credential was registered.
	CreatedAt time.Time `json:"created_at"`

	// LastUsedAt is when the credential last completed an authentication.
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
}

// CredentialFlags contains authenticator capability flags.
type CredentialFlags struct {
	// UserPresent indicates the user was present during the operation.
	UserPresent bool `json:"user_present"`

	// UserVerified indicates the user was verified (e.g., biometric, PIN).
	UserVerified bool `json:"user_verified"`

	// BackupEligible indicates the credential can be backed up.
	BackupEligible bool `json:"backup_eligible"`

	// BackupState indicates the credential is currently backed up.
	BackupState bool `json:"backup_state"`
}

// flagsFromAuthData captures the flag bits relevant to stored credentials.
func flagsFromAuthData(f protocol.AuthenticatorFlags) CredentialFlags {
	return CredentialFlags{
		UserPresent:    f.UserPresent(),
		UserVerified:   f.UserVerified(),
		BackupEligible: f.BackupEligible(),
		BackupState:    f.BackedUp(),
	}
}

// Descriptor returns the credential reference used in exclude and allow
// lists.
func (c *Credential) Descriptor() protocol.CredentialDescriptor {
	return protocol.CredentialDescriptor{
		Type:       protocol.PublicKeyCredentialType,
		ID:         protocol.Base64URLBytes(c.ID),
		Transports: c.Transports,
	}
}

// ChallengeSession is the pending server-side state of an in-flight
// ceremony: the issued challenge, who it was issued for, and when it
// stops being acceptable. Consumed exactly once.
type ChallengeSession struct {
	// ID is the session identifier returned to the client.
	ID string `json:"id"`

	// Ceremony is CeremonyRegistration or CeremonyAuthentication.
	Ceremony string `json:"ceremony"`

	// UserID is the user handle the ceremony was issued for. Empty for
	// usernameless authentication.
	UserID []byte `json:"user_id,omitempty"`

	// Challenge is the issued random challenge.
	Challenge []byte `json:"challenge"`

	// AllowedCredentialIDs scopes authentication to specific credentials.
	// Empty means any credential the user handle resolves.
	AllowedCredentialIDs [][]byte `json:"allowed_credential_ids,omitempty"`

	// CreatedAt is when the challenge was issued.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is when the challenge stops being acceptable.
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session deadline has passed at now.
func (s *ChallengeSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// allows reports whether credID is acceptable for this session.
func (s *ChallengeSession) allows(credID []byte) bool {
	if len(s.AllowedCredentialIDs) == 0 {
		return true
	}
	for _, id := range s.AllowedCredentialIDs {
		if string(id) == string(credID) {
			return true
		}
	}
	return false
}
