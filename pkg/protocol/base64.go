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
	"encoding/base64"
	"encoding/json"
)

// Base64URLBytes is a byte slice that marshals to and from the base64url
// encoding WebAuthn uses for binary values in JSON payloads (credential
// IDs, challenges, client data, and so on).
//
// Encoding always emits the unpadded form. Decoding accepts both padded
// and unpadded input because client-side serializers disagree on padding.
type Base64URLBytes []byte

// MarshalJSON encodes the bytes as an unpadded base64url JSON string.
func (b Base64URLBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.RawURLEncoding.EncodeToString(b))
}

// UnmarshalJSON decodes a base64url JSON string, padded or unpadded.
func (b *Base64URLBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return malformed("base64url", "value is not a JSON string")
	}

	decoded, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		// Retry with the padded alphabet before giving up.
		decoded, err = base64.URLEncoding.DecodeString(s)
		if err != nil {
			return malformed("base64url", "invalid base64url encoding")
		}
	}

	*b = decoded
	return nil
}

// String returns the unpadded base64url encoding of the bytes.
func (b Base64URLBytes) String() string {
	return base64.RawURLEncoding.EncodeToString(b)
}
