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
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
)

// Ceremony type values carried in collected client data.
//
// https://www.w3.org/TR/webauthn-3/#dom-collectedclientdata-type
const (
	CeremonyCreate = "webauthn.create"
	CeremonyAssert = "webauthn.get"
)

// Challenge is the challenge value echoed back by the client inside
// clientDataJSON. It is transported base64url-encoded.
type Challenge []byte

// Equal compares the challenge against the issued value in constant time.
func (c Challenge) Equal(issued []byte) bool {
	return subtle.ConstantTimeCompare(c, issued) == 1
}

// UnmarshalJSON decodes the base64url challenge string from clientDataJSON.
func (c *Challenge) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return malformed("clientData.challenge", "value is not a JSON string")
	}
	decoded, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return malformed("clientData.challenge", "invalid base64url encoding")
	}
	*c = decoded
	return nil
}

// MarshalJSON encodes the challenge as an unpadded base64url string.
func (c Challenge) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.RawURLEncoding.EncodeToString(c))
}

// CollectedClientData is the client data the browser serialized and the
// authenticator signed over during a ceremony.
//
// https://www.w3.org/TR/webauthn-3/#dictionary-client-data
type CollectedClientData struct {
	// Type is the ceremony type: CeremonyCreate or CeremonyAssert.
	Type string `json:"type"`

	// Challenge is the challenge the Relying Party issued for this ceremony.
	Challenge Challenge `json:"challenge"`

	// Origin is the fully qualified origin the client observed.
	Origin string `json:"origin"`

	// TopOrigin is the top-level origin for cross-origin requests.
	TopOrigin string `json:"topOrigin,omitempty"`

	// CrossOrigin indicates the request came from a cross-origin iframe.
	CrossOrigin bool `json:"crossOrigin,omitempty"`
}

// ParseClientData decodes the clientDataJSON bytes of a ceremony response.
func ParseClientData(raw []byte) (*CollectedClientData, error) {
	var cd CollectedClientData
	if err := json.Unmarshal(raw, &cd); err != nil {
		if errors.Is(err, ErrMalformed) {
			return nil, err
		}
		return nil, malformed("clientData", "invalid JSON")
	}
	if cd.Type == "" {
		return nil, malformed("clientData.type", "missing ceremony type")
	}
	if len(cd.Challenge) == 0 {
		return nil, malformed("clientData.challenge", "missing challenge")
	}
	if cd.Origin == "" {
		return nil, malformed("clientData.origin", "missing origin")
	}
	return &cd, nil
}
