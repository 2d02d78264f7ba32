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

package protocol

import "encoding/binary"

// AuthenticatorFlags is the flags byte of authenticator data.
//
// https://www.w3.org/TR/webauthn-3/#authdata-flags
type AuthenticatorFlags byte

// Flag bit positions.
const (
	FlagUserPresent       AuthenticatorFlags = 1 << 0
	FlagUserVerified      AuthenticatorFlags = 1 << 2
	FlagBackupEligible    AuthenticatorFlags = 1 << 3
	FlagBackupState       AuthenticatorFlags = 1 << 4
	FlagAttestedCredData  AuthenticatorFlags = 1 << 6
	FlagHasExtensionsData AuthenticatorFlags = 1 << 7
)

// UserPresent reports whether the authenticator performed a user
// presence test.
func (f AuthenticatorFlags) UserPresent() bool {
	return f&FlagUserPresent != 0
}

// UserVerified reports whether the authenticator verified the user
// (PIN, biometric, or equivalent).
func (f AuthenticatorFlags) UserVerified() bool {
	return f&FlagUserVerified != 0
}

// BackupEligible reports whether the credential may be synced off the
// authenticator.
func (f AuthenticatorFlags) BackupEligible() bool {
	return f&FlagBackupEligible != 0
}

// BackedUp reports whether the credential is currently backed up.
func (f AuthenticatorFlags) BackedUp() bool {
	return f&FlagBackupState != 0
}

// HasAttestedCredentialData reports whether attested credential data
// follows the counter.
func (f AuthenticatorFlags) HasAttestedCredentialData() bool {
	return f&FlagAttestedCredData != 0
}

// HasExtensions reports whether extension data follows.
func (f AuthenticatorFlags) HasExtensions() bool {
	return f&FlagHasExtensionsData != 0
}

// AttestedCredentialData is the credential material embedded in
// authenticator data during registration.
//
// https://www.w3.org/TR/webauthn-3/#attested-credential-data
type AttestedCredentialData struct {
	// AAGUID identifies the authenticator model (16 bytes).
	AAGUID []byte

	// CredentialID is the authenticator-assigned credential handle.
	CredentialID []byte

	// PublicKey is the parsed COSE credential public key.
	PublicKey *PublicKey
}

// AuthenticatorData is the parsed binary authenticator data structure.
//
// Layout: rpIdHash (32) | flags (1) | signCount (4, big-endian) |
// [attested credential data] | [extensions].
//
// https://www.w3.org/TR/webauthn-3/#sctn-authenticator-data
type AuthenticatorData struct {
	// RPIDHash is the SHA-256 hash of the RP ID the authenticator
	// scoped this operation to.
	RPIDHash []byte

	// Flags carries the user presence/verification and layout bits.
	Flags AuthenticatorFlags

	// SignCount is the authenticator's signature counter.
	SignCount uint32

	// AttestedCredential is present when the AT flag is set.
	AttestedCredential *AttestedCredentialData

	// Extensions holds the raw CBOR extension data when the ED flag is
	// set. It is carried opaquely; no extensions are interpreted.
	Extensions []byte

	// Raw is the undecoded input, kept for signature verification.
	Raw []byte
}

const authDataMinLength = 32 + 1 + 4

// ParseAuthenticatorData decodes the binary authenticator data structure.
// The whole buffer must be consumed; trailing garbage is a decode error.
func ParseAuthenticatorData(b []byte) (*AuthenticatorData, error) {
	if len(b) < authDataMinLength {
		return nil, malformedf("authenticatorData", "need at least %d bytes, got %d", authDataMinLength, len(b))
	}

	ad := &AuthenticatorData{
		RPIDHash:  b[:32],
		Flags:     AuthenticatorFlags(b[32]),
		SignCount: binary.BigEndian.Uint32(b[33:37]),
		Raw:       b,
	}
	rest := b[authDataMinLength:]

	if ad.Flags.HasAttestedCredentialData() {
		var err error
		ad.AttestedCredential, rest, err = parseAttestedCredentialData(rest)
		if err != nil {
			return nil, err
		}
	}

	if ad.Flags.HasExtensions() {
		if len(rest) == 0 {
			return nil, malformed("authenticatorData", "ED flag set but no extension data")
		}
		ad.Extensions = rest
		rest = nil
	}

	if len(rest) != 0 {
		return nil, malformedf("authenticatorData", "%d trailing bytes", len(rest))
	}

	return ad, nil
}

// parseAttestedCredentialData decodes the attested credential data block
// and returns the remaining bytes (extension data, if any).
func parseAttestedCredentialData(b []byte) (*AttestedCredentialData, []byte, error) {
	if len(b) < 16+2 {
		return nil, nil, malformed("attestedCredentialData", "truncated AAGUID or credential ID length")
	}

	aaguid := b[:16]
	idLen := int(binary.BigEndian.Uint16(b[16:18]))
	b = b[18:]

	if idLen == 0 {
		return nil, nil, malformed("attestedCredentialData", "zero-length credential ID")
	}
	if len(b) < idLen {
		return nil, nil, malformed("attestedCredentialData", "truncated credential ID")
	}
	credID := b[:idLen]
	b = b[idLen:]

	pk, rest, err := ParsePublicKey(b)
	if err != nil {
		return nil, nil, err
	}

	return &AttestedCredentialData{
		AAGUID:       aaguid,
		CredentialID: credID,
		PublicKey:    pk,
	}, rest, nil
}
