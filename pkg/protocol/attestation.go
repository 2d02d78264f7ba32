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
	"crypto/x509"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Attestation statement formats recognized by this package.
//
// https://www.w3.org/TR/webauthn-3/#sctn-defined-attestation-formats
const (
	AttestationFormatNone   = "none"
	AttestationFormatPacked = "packed"
)

// AttestationObject is the decoded attestationObject of a registration
// response: a CBOR map of attestation format, attestation statement and
// raw authenticator data.
//
// https://www.w3.org/TR/webauthn-3/#attestation-object
type AttestationObject struct {
	// Format is the attestation statement format identifier.
	Format string `cbor:"fmt"`

	// Statement is the raw CBOR attestation statement. Empty for the
	// "none" format.
	Statement cbor.RawMessage `cbor:"attStmt"`

	// RawAuthData is the undecoded authenticator data.
	RawAuthData []byte `cbor:"authData"`

	// AuthData is the parsed authenticator data.
	AuthData *AuthenticatorData `cbor:"-"`
}

// ParseAttestationObject decodes an attestation object and its embedded
// authenticator data. The authenticator data must carry attested
// credential data; registration responses without it are malformed.
func ParseAttestationObject(b []byte) (*AttestationObject, error) {
	var obj AttestationObject
	if err := cbor.Unmarshal(b, &obj); err != nil {
		return nil, malformed("attestationObject", "invalid CBOR")
	}
	if obj.Format == "" {
		return nil, malformed("attestationObject.fmt", "missing attestation format")
	}
	if len(obj.RawAuthData) == 0 {
		return nil, malformed("attestationObject.authData", "missing authenticator data")
	}

	ad, err := ParseAuthenticatorData(obj.RawAuthData)
	if err != nil {
		return nil, err
	}
	if ad.AttestedCredential == nil {
		return nil, malformed("attestationObject.authData", "no attested credential data")
	}
	obj.AuthData = ad

	return &obj, nil
}

// packedStatement is the decoded "packed" attestation statement.
//
// https://www.w3.org/TR/webauthn-3/#sctn-packed-attestation
type packedStatement struct {
	Algorithm int64    `cbor:"alg"`
	Signature []byte   `cbor:"sig"`
	X5C       [][]byte `cbor:"x5c"`
}

// VerifyStatement checks the attestation statement signature over
// authData || clientDataHash for the formats this package implements.
//
// Only structural and signature-format correctness is verified. Chain
// validation against manufacturer roots and metadata service lookups
// are deliberately out of scope; callers needing full trust decisions
// plug that in above this layer.
func (o *AttestationObject) VerifyStatement(clientDataHash []byte) error {
	switch o.Format {
	case AttestationFormatNone:
		// Nothing to verify.
		return nil

	case AttestationFormatPacked:
		return o.verifyPacked(clientDataHash)

	default:
		return malformedf("attestationObject.fmt", "unsupported attestation format %q", o.Format)
	}
}

func (o *AttestationObject) verifyPacked(clientDataHash []byte) error {
	var stmt packedStatement
	if err := cbor.Unmarshal(o.Statement, &stmt); err != nil {
		return malformed("attStmt", "invalid packed statement")
	}
	if stmt.Algorithm == 0 {
		return malformed("attStmt.alg", "missing algorithm")
	}
	if len(stmt.Signature) == 0 {
		return malformed("attStmt.sig", "missing signature")
	}

	signed := make([]byte, 0, len(o.RawAuthData)+len(clientDataHash))
	signed = append(signed, o.RawAuthData...)
	signed = append(signed, clientDataHash...)

	if len(stmt.X5C) == 0 {
		// Self attestation: signed with the credential private key, and
		// alg must match the credential key's declared algorithm.
		pk := o.AuthData.AttestedCredential.PublicKey
		if COSEAlgorithm(stmt.Algorithm) != pk.Algorithm {
			return fmt.Errorf("packed self-attestation algorithm %s does not match credential algorithm %s",
				COSEAlgorithm(stmt.Algorithm), pk.Algorithm)
		}
		return pk.Verify(signed, stmt.Signature)
	}

	cert, err := x509.ParseCertificate(stmt.X5C[0])
	if err != nil {
		return malformed("attStmt.x5c", "invalid attestation certificate")
	}
	return VerifySignature(cert.PublicKey, COSEAlgorithm(stmt.Algorithm), signed, stmt.Signature)
}
