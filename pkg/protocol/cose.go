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
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// COSEAlgorithm is a COSE algorithm identifier.
//
// https://www.iana.org/assignments/cose/cose.xhtml#algorithms
type COSEAlgorithm int64

// Algorithms supported by this package.
const (
	AlgES256 COSEAlgorithm = -7
	AlgEdDSA COSEAlgorithm = -8
	AlgES384 COSEAlgorithm = -35
	AlgES512 COSEAlgorithm = -36
	AlgRS256 COSEAlgorithm = -257
	AlgRS384 COSEAlgorithm = -258
	AlgRS512 COSEAlgorithm = -259
)

var algNames = map[COSEAlgorithm]string{
	AlgES256: "ES256",
	AlgEdDSA: "EdDSA",
	AlgES384: "ES384",
	AlgES512: "ES512",
	AlgRS256: "RS256",
	AlgRS384: "RS384",
	AlgRS512: "RS512",
}

// String returns the JOSE-style name of the algorithm.
func (a COSEAlgorithm) String() string {
	if name, ok := algNames[a]; ok {
		return name
	}
	return fmt.Sprintf("COSEAlgorithm(%d)", int64(a))
}

// COSE key type values.
//
// https://www.iana.org/assignments/cose/cose.xhtml#key-type
const (
	coseKeyTypeOKP int64 = 1
	coseKeyTypeEC2 int64 = 2
	coseKeyTypeRSA int64 = 3
)

// COSE elliptic curve identifiers.
const (
	coseCurveP256    int64 = 1
	coseCurveP384    int64 = 2
	coseCurveP521    int64 = 3
	coseCurveEd25519 int64 = 6
)

// coseKeyHeader carries the fields common to every COSE key. The key
// material labels overlap between key types (-1 is both "crv" and "n"),
// so the type-specific fields are decoded in a second pass.
type coseKeyHeader struct {
	KeyType   int64 `cbor:"1,keyasint"`
	Algorithm int64 `cbor:"3,keyasint"`
}

type coseEC2Key struct {
	Curve int64  `cbor:"-1,keyasint"`
	X     []byte `cbor:"-2,keyasint"`
	Y     []byte `cbor:"-3,keyasint"`
}

type coseOKPKey struct {
	Curve int64  `cbor:"-1,keyasint"`
	X     []byte `cbor:"-2,keyasint"`
}

type coseRSAKey struct {
	Modulus  []byte `cbor:"-1,keyasint"`
	Exponent []byte `cbor:"-2,keyasint"`
}

// PublicKey is a parsed COSE public key.
type PublicKey struct {
	// Algorithm is the signing algorithm declared by the key.
	Algorithm COSEAlgorithm

	// Key is the parsed key material: *ecdsa.PublicKey, *rsa.PublicKey
	// or ed25519.PublicKey.
	Key crypto.PublicKey

	// Raw is the CBOR encoding the key was parsed from. It is stored
	// verbatim by the credential store and re-parsed at authentication.
	Raw []byte
}

// ParsePublicKey decodes a COSE public key from the start of b and
// returns the key together with any trailing bytes (authenticator data
// extensions follow the key in attested credential data).
func ParsePublicKey(b []byte) (*PublicKey, []byte, error) {
	dec := cbor.NewDecoder(bytes.NewReader(b))

	var raw cbor.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, nil, malformed("credentialPublicKey", "invalid CBOR")
	}
	rest := b[dec.NumBytesRead():]

	var hdr coseKeyHeader
	if err := cbor.Unmarshal(raw, &hdr); err != nil {
		return nil, nil, malformed("credentialPublicKey", "invalid COSE key map")
	}

	pk := &PublicKey{
		Algorithm: COSEAlgorithm(hdr.Algorithm),
		Raw:       raw,
	}

	switch hdr.KeyType {
	case coseKeyTypeEC2:
		var ec coseEC2Key
		if err := cbor.Unmarshal(raw, &ec); err != nil {
			return nil, nil, malformed("credentialPublicKey", "invalid EC2 key")
		}
		curve, err := ellipticCurve(ec.Curve)
		if err != nil {
			return nil, nil, err
		}
		if len(ec.X) == 0 || len(ec.Y) == 0 {
			return nil, nil, malformed("credentialPublicKey", "missing EC2 coordinates")
		}
		pk.Key = &ecdsa.PublicKey{
			Curve: curve,
			X:     new(big.Int).SetBytes(ec.X),
			Y:     new(big.Int).SetBytes(ec.Y),
		}

	case coseKeyTypeOKP:
		var okp coseOKPKey
		if err := cbor.Unmarshal(raw, &okp); err != nil {
			return nil, nil, malformed("credentialPublicKey", "invalid OKP key")
		}
		if okp.Curve != coseCurveEd25519 {
			return nil, nil, malformedf("credentialPublicKey", "unsupported OKP curve %d", okp.Curve)
		}
		if len(okp.X) != ed25519.PublicKeySize {
			return nil, nil, malformed("credentialPublicKey", "invalid Ed25519 key length")
		}
		pk.Key = ed25519.PublicKey(okp.X)

	case coseKeyTypeRSA:
		var rk coseRSAKey
		if err := cbor.Unmarshal(raw, &rk); err != nil {
			return nil, nil, malformed("credentialPublicKey", "invalid RSA key")
		}
		if len(rk.Modulus) == 0 || len(rk.Exponent) == 0 {
			return nil, nil, malformed("credentialPublicKey", "missing RSA parameters")
		}
		exponent := new(big.Int).SetBytes(rk.Exponent)
		if !exponent.IsInt64() || exponent.Int64() > int64(^uint32(0)) {
			return nil, nil, malformed("credentialPublicKey", "RSA exponent out of range")
		}
		pk.Key = &rsa.PublicKey{
			N: new(big.Int).SetBytes(rk.Modulus),
			E: int(exponent.Int64()),
		}

	default:
		return nil, nil, malformedf("credentialPublicKey", "unsupported key type %d", hdr.KeyType)
	}

	return pk, rest, nil
}

// Verify checks sig over data with the key's declared algorithm.
// A nil return means the signature is valid.
func (pk *PublicKey) Verify(data, sig []byte) error {
	return VerifySignature(pk.Key, pk.Algorithm, data, sig)
}

// VerifySignature checks sig over data using pub and the given COSE
// algorithm. ECDSA signatures are expected in ASN.1 DER form, as
// produced by WebAuthn authenticators.
func VerifySignature(pub crypto.PublicKey, alg COSEAlgorithm, data, sig []byte) error {
	switch alg {
	case AlgES256, AlgES384, AlgES512:
		key, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return fmt.Errorf("%s requires an ECDSA public key, got %T", alg, pub)
		}
		digest := hashFor(alg, data)
		if !ecdsa.VerifyASN1(key, digest, sig) {
			return fmt.Errorf("invalid %s signature", alg)
		}

	case AlgEdDSA:
		key, ok := pub.(ed25519.PublicKey)
		if !ok {
			return fmt.Errorf("EdDSA requires an Ed25519 public key, got %T", pub)
		}
		if !ed25519.Verify(key, data, sig) {
			return fmt.Errorf("invalid EdDSA signature")
		}

	case AlgRS256, AlgRS384, AlgRS512:
		key, ok := pub.(*rsa.PublicKey)
		if !ok {
			return fmt.Errorf("%s requires an RSA public key, got %T", alg, pub)
		}
		digest := hashFor(alg, data)
		if err := rsa.VerifyPKCS1v15(key, cryptoHash(alg), digest, sig); err != nil {
			return fmt.Errorf("invalid %s signature: %w", alg, err)
		}

	default:
		return fmt.Errorf("unsupported signing algorithm %s", alg)
	}
	return nil
}

// hashFor computes the digest the algorithm signs over.
func hashFor(alg COSEAlgorithm, data []byte) []byte {
	switch alg {
	case AlgES384, AlgRS384:
		sum := sha512.Sum384(data)
		return sum[:]
	case AlgES512, AlgRS512:
		sum := sha512.Sum512(data)
		return sum[:]
	default:
		sum := sha256.Sum256(data)
		return sum[:]
	}
}

// cryptoHash maps a COSE algorithm to its crypto.Hash.
func cryptoHash(alg COSEAlgorithm) crypto.Hash {
	switch alg {
	case AlgES384, AlgRS384:
		return crypto.SHA384
	case AlgES512, AlgRS512:
		return crypto.SHA512
	default:
		return crypto.SHA256
	}
}

// ellipticCurve maps a COSE curve identifier to its stdlib curve.
func ellipticCurve(id int64) (elliptic.Curve, error) {
	switch id {
	case coseCurveP256:
		return elliptic.P256(), nil
	case coseCurveP384:
		return elliptic.P384(), nil
	case coseCurveP521:
		return elliptic.P521(), nil
	default:
		return nil, malformedf("credentialPublicKey", "unsupported EC2 curve %d", id)
	}
}
