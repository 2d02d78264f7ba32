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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildAttestationObject marshals an attestation object for tests.
func buildAttestationObject(t *testing.T, format string, statement map[string]any, authData []byte) []byte {
	t.Helper()
	b, err := cbor.Marshal(map[string]any{
		"fmt":      format,
		"attStmt":  statement,
		"authData": authData,
	})
	require.NoError(t, err)
	return b
}

func registrationAuthData(t *testing.T, priv *ecdsa.PrivateKey) []byte {
	t.Helper()
	attested := buildAttestedCredData([]byte("credential-handle-01"),
		coseEC2(t, &priv.PublicKey, AlgES256, coseCurveP256))
	return buildAuthData("login.example.com", FlagUserPresent|FlagAttestedCredData, 0, attested)
}

func TestParseAttestationObject_None(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	raw := buildAttestationObject(t, "none", map[string]any{}, registrationAuthData(t, priv))

	obj, err := ParseAttestationObject(raw)
	require.NoError(t, err)
	assert.Equal(t, AttestationFormatNone, obj.Format)
	require.NotNil(t, obj.AuthData)
	require.NotNil(t, obj.AuthData.AttestedCredential)
	assert.Equal(t, []byte("credential-handle-01"), obj.AuthData.AttestedCredential.CredentialID)

	assert.NoError(t, obj.VerifyStatement([]byte("any hash, none verifies nothing")))
}

func TestParseAttestationObject_Malformed(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	authData := registrationAuthData(t, priv)

	assertionAuthData := buildAuthData("login.example.com", FlagUserPresent, 3, nil)

	tests := []struct {
		name  string
		input []byte
	}{
		{"not cbor", []byte("definitely not cbor")},
		{"missing format", buildAttestationObject(t, "", nil, authData)},
		{"missing authData", buildAttestationObject(t, "none", nil, nil)},
		{"no attested credential", buildAttestationObject(t, "none", nil, assertionAuthData)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseAttestationObject(tc.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestVerifyStatement_PackedSelfAttestation(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	authData := registrationAuthData(t, priv)
	clientDataHash := sha256.Sum256([]byte(`{"type":"webauthn.create"}`))

	signed := append(append([]byte(nil), authData...), clientDataHash[:]...)
	digest := sha256.Sum256(signed)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	require.NoError(t, err)

	raw := buildAttestationObject(t, "packed", map[string]any{
		"alg": int64(AlgES256),
		"sig": sig,
	}, authData)

	obj, err := ParseAttestationObject(raw)
	require.NoError(t, err)
	assert.NoError(t, obj.VerifyStatement(clientDataHash[:]))

	// Flip a bit in the hash and the statement no longer verifies.
	tampered := append([]byte(nil), clientDataHash[:]...)
	tampered[0] ^= 0xff
	assert.Error(t, obj.VerifyStatement(tampered))
}

func TestVerifyStatement_PackedAlgorithmMismatch(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	raw := buildAttestationObject(t, "packed", map[string]any{
		"alg": int64(AlgRS256),
		"sig": []byte("sig"),
	}, registrationAuthData(t, priv))

	obj, err := ParseAttestationObject(raw)
	require.NoError(t, err)
	assert.Error(t, obj.VerifyStatement(make([]byte, 32)))
}

func TestVerifyStatement_UnsupportedFormat(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	raw := buildAttestationObject(t, "fido-u2f", map[string]any{}, registrationAuthData(t, priv))

	obj, err := ParseAttestationObject(raw)
	require.NoError(t, err)

	err = obj.VerifyStatement(make([]byte, 32))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}
