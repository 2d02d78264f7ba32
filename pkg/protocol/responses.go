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

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
)

// CredentialCreationResponse is the wire form of the PublicKeyCredential
// returned by navigator.credentials.create.
type CredentialCreationResponse struct {
	ID       string                        `json:"id"`
	RawID    Base64URLBytes                `json:"rawId"`
	Type     CredentialType                `json:"type"`
	Response AuthenticatorAttestationBlock `json:"response"`
}

// AuthenticatorAttestationBlock is the response member of a registration
// credential: the serialized client data and the CBOR attestation object.
type AuthenticatorAttestationBlock struct {
	ClientDataJSON    Base64URLBytes `json:"clientDataJSON"`
	AttestationObject Base64URLBytes `json:"attestationObject"`
	Transports        []string       `json:"transports,omitempty"`
}

// CredentialAssertionResponse is the wire form of the PublicKeyCredential
// returned by navigator.credentials.get.
type CredentialAssertionResponse struct {
	ID       string                      `json:"id"`
	RawID    Base64URLBytes              `json:"rawId"`
	Type     CredentialType              `json:"type"`
	Response AuthenticatorAssertionBlock `json:"response"`
}

// AuthenticatorAssertionBlock is the response member of an assertion
// credential.
type AuthenticatorAssertionBlock struct {
	ClientDataJSON    Base64URLBytes `json:"clientDataJSON"`
	AuthenticatorData Base64URLBytes `json:"authenticatorData"`
	Signature         Base64URLBytes `json:"signature"`
	UserHandle        Base64URLBytes `json:"userHandle,omitempty"`
}

// ParsedCredentialCreation is a fully decoded registration response with
// every nested structure parsed and cross-checked.
type ParsedCredentialCreation struct {
	// RawID is the binary credential ID.
	RawID []byte

	// ClientData is the decoded collected client data.
	ClientData *CollectedClientData

	// ClientDataHash is the SHA-256 of the raw clientDataJSON bytes.
	ClientDataHash []byte

	// Attestation is the decoded attestation object, authenticator data
	// included.
	Attestation *AttestationObject

	// Transports are the transports the client reported for the new
	// credential, when present.
	Transports []string
}

// ParsedCredentialAssertion is a fully decoded authentication response.
type ParsedCredentialAssertion struct {
	// RawID is the binary credential ID asserted by the client.
	RawID []byte

	// ClientData is the decoded collected client data.
	ClientData *CollectedClientData

	// AuthData is the decoded authenticator data.
	AuthData *AuthenticatorData

	// Signature covers authenticatorData || SHA-256(clientDataJSON).
	Signature []byte

	// SignedBytes is the exact byte string the signature covers.
	SignedBytes []byte

	// UserHandle is the user handle the authenticator returned, if any.
	UserHandle []byte
}

// ParseCreationResponse decodes a registration response from its JSON
// wire form. Decoding is all or nothing: any structural defect anywhere
// in the payload fails the whole parse.
func ParseCreationResponse(body []byte) (*ParsedCredentialCreation, error) {
	var resp CredentialCreationResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, malformed("credential", "invalid JSON")
	}
	return resp.Parse()
}

// Parse validates the envelope and decodes the nested client data and
// attestation object.
func (r *CredentialCreationResponse) Parse() (*ParsedCredentialCreation, error) {
	rawID, err := checkEnvelope(r.ID, r.RawID, r.Type)
	if err != nil {
		return nil, err
	}
	if len(r.Response.ClientDataJSON) == 0 {
		return nil, malformed("response.clientDataJSON", "missing")
	}
	if len(r.Response.AttestationObject) == 0 {
		return nil, malformed("response.attestationObject", "missing")
	}

	cd, err := ParseClientData(r.Response.ClientDataJSON)
	if err != nil {
		return nil, err
	}

	att, err := ParseAttestationObject(r.Response.AttestationObject)
	if err != nil {
		return nil, err
	}

	// The envelope credential ID and the attested credential ID must
	// name the same credential.
	if !bytes.Equal(rawID, att.AuthData.AttestedCredential.CredentialID) {
		return nil, malformed("rawId", "does not match attested credential ID")
	}

	hash := sha256.Sum256(r.Response.ClientDataJSON)

	return &ParsedCredentialCreation{
		RawID:          rawID,
		ClientData:     cd,
		ClientDataHash: hash[:],
		Attestation:    att,
		Transports:     r.Response.Transports,
	}, nil
}

// ParseAssertionResponse decodes an authentication response from its
// JSON wire form.
func ParseAssertionResponse(body []byte) (*ParsedCredentialAssertion, error) {
	var resp CredentialAssertionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, malformed("credential", "invalid JSON")
	}
	return resp.Parse()
}

// Parse validates the envelope and decodes the nested client data and
// authenticator data, and assembles the signed byte string.
func (r *CredentialAssertionResponse) Parse() (*ParsedCredentialAssertion, error) {
	rawID, err := checkEnvelope(r.ID, r.RawID, r.Type)
	if err != nil {
		return nil, err
	}
	if len(r.Response.ClientDataJSON) == 0 {
		return nil, malformed("response.clientDataJSON", "missing")
	}
	if len(r.Response.AuthenticatorData) == 0 {
		return nil, malformed("response.authenticatorData", "missing")
	}
	if len(r.Response.Signature) == 0 {
		return nil, malformed("response.signature", "missing")
	}

	cd, err := ParseClientData(r.Response.ClientDataJSON)
	if err != nil {
		return nil, err
	}

	ad, err := ParseAuthenticatorData(r.Response.AuthenticatorData)
	if err != nil {
		return nil, err
	}

	hash := sha256.Sum256(r.Response.ClientDataJSON)
	signed := make([]byte, 0, len(ad.Raw)+len(hash))
	signed = append(signed, ad.Raw...)
	signed = append(signed, hash[:]...)

	return &ParsedCredentialAssertion{
		RawID:       rawID,
		ClientData:  cd,
		AuthData:    ad,
		Signature:   r.Response.Signature,
		SignedBytes: signed,
		UserHandle:  r.Response.UserHandle,
	}, nil
}

// checkEnvelope validates the fields common to both credential response
// envelopes: type must be "public-key", the credential ID must be
// non-empty, and id must be the base64url encoding of rawId.
func checkEnvelope(id string, rawID Base64URLBytes, typ CredentialType) ([]byte, error) {
	if typ != PublicKeyCredentialType {
		return nil, malformedf("type", "expected %q, got %q", PublicKeyCredentialType, typ)
	}
	if len(rawID) == 0 {
		return nil, malformed("rawId", "missing credential ID")
	}
	if id != rawID.String() {
		return nil, malformed("id", "does not match rawId")
	}
	return rawID, nil
}
