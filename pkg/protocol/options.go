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

// CredentialType is the PublicKeyCredential type. The only value the
// specification defines is "public-key".
type CredentialType string

// PublicKeyCredentialType is the sole defined credential type.
const PublicKeyCredentialType CredentialType = "public-key"

// UserVerificationRequirement expresses how strongly the Relying Party
// wants user verification during a ceremony.
//
// https://www.w3.org/TR/webauthn-3/#enum-userVerificationRequirement
type UserVerificationRequirement string

const (
	UserVerificationRequired    UserVerificationRequirement = "required"
	UserVerificationPreferred   UserVerificationRequirement = "preferred"
	UserVerificationDiscouraged UserVerificationRequirement = "discouraged"
)

// ResidentKeyRequirement expresses whether the credential should be a
// discoverable (resident) credential.
type ResidentKeyRequirement string

const (
	ResidentKeyRequired    ResidentKeyRequirement = "required"
	ResidentKeyPreferred   ResidentKeyRequirement = "preferred"
	ResidentKeyDiscouraged ResidentKeyRequirement = "discouraged"
)

// AuthenticatorAttachment narrows acceptable authenticator form factors.
type AuthenticatorAttachment string

const (
	AttachmentPlatform      AuthenticatorAttachment = "platform"
	AttachmentCrossPlatform AuthenticatorAttachment = "cross-platform"
)

// AttestationConveyance expresses how much attestation the Relying
// Party asks the client to convey.
type AttestationConveyance string

const (
	AttestationNone     AttestationConveyance = "none"
	AttestationIndirect AttestationConveyance = "indirect"
	AttestationDirect   AttestationConveyance = "direct"
)

// RelyingPartyEntity identifies the Relying Party in creation options.
type RelyingPartyEntity struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// UserEntity identifies the registering user in creation options. ID is
// the opaque user handle, never the username.
type UserEntity struct {
	ID          Base64URLBytes `json:"id"`
	Name        string         `json:"name"`
	DisplayName string         `json:"displayName"`
}

// CredentialParameter is an acceptable credential type and algorithm
// pair, in preference order.
type CredentialParameter struct {
	Type      CredentialType `json:"type"`
	Algorithm COSEAlgorithm  `json:"alg"`
}

// CredentialDescriptor references an existing credential, used to
// exclude duplicates during registration and to scope assertions.
type CredentialDescriptor struct {
	Type       CredentialType `json:"type"`
	ID         Base64URLBytes `json:"id"`
	Transports []string       `json:"transports,omitempty"`
}

// AuthenticatorSelection narrows which authenticators may create the
// credential.
type AuthenticatorSelection struct {
	AuthenticatorAttachment AuthenticatorAttachment     `json:"authenticatorAttachment,omitempty"`
	ResidentKey             ResidentKeyRequirement      `json:"residentKey,omitempty"`
	RequireResidentKey      *bool                       `json:"requireResidentKey,omitempty"`
	UserVerification        UserVerificationRequirement `json:"userVerification,omitempty"`
}

// CredentialCreationOptions is the PublicKeyCredentialCreationOptions
// dictionary handed to navigator.credentials.create.
//
// https://www.w3.org/TR/webauthn-3/#dictionary-makecredentialoptions
type CredentialCreationOptions struct {
	Challenge              Base64URLBytes         `json:"challenge"`
	RelyingParty           RelyingPartyEntity     `json:"rp"`
	User                   UserEntity             `json:"user"`
	Parameters             []CredentialParameter  `json:"pubKeyCredParams"`
	Timeout                int64                  `json:"timeout,omitempty"`
	ExcludeCredentials     []CredentialDescriptor `json:"excludeCredentials,omitempty"`
	AuthenticatorSelection AuthenticatorSelection `json:"authenticatorSelection,omitempty"`
	Attestation            AttestationConveyance  `json:"attestation,omitempty"`
}

// CredentialAssertionOptions is the PublicKeyCredentialRequestOptions
// dictionary handed to navigator.credentials.get.
//
// https://www.w3.org/TR/webauthn-3/#dictionary-assertion-options
type CredentialAssertionOptions struct {
	Challenge        Base64URLBytes              `json:"challenge"`
	RelyingPartyID   string                      `json:"rpId"`
	Timeout          int64                       `json:"timeout,omitempty"`
	AllowCredentials []CredentialDescriptor      `json:"allowCredentials,omitempty"`
	UserVerification UserVerificationRequirement `json:"userVerification,omitempty"`
}
