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

// Package protocol implements the WebAuthn wire formats exchanged between
// a Relying Party and an authenticator.
//
// The package is purely a codec: it decodes the binary structures carried
// inside ceremony responses (attestation objects, authenticator data,
// collected client data, COSE public keys) and encodes the JSON option
// payloads sent to the client. It holds no state and performs no I/O;
// ceremony policy lives in the ceremony package.
//
// Decoding is all-or-nothing. Any structural violation - a truncated
// buffer, an invalid CBOR item, an unsupported key type - fails with an
// error wrapping ErrMalformed, and no partially decoded value is returned.
//
// References:
//   - https://www.w3.org/TR/webauthn-3/
//   - https://www.iana.org/assignments/cose/cose.xhtml
package protocol
