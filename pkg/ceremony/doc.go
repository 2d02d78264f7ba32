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

// Package ceremony implements the Relying Party side of WebAuthn (FIDO2)
// registration and authentication ceremonies.
//
// The package provides:
//   - Challenge issuance with single-use, time-bound semantics
//   - Full verification of registration and authentication responses
//   - Signature counter tracking with clone detection
//   - Pluggable storage interfaces for users, credentials, and challenges
//   - In-memory storage implementations for development/testing
//   - Optional JWT generation after successful authentication
//
// # Architecture
//
// The package is designed with a layered architecture:
//
//  1. Engine layer (Engine) - Ceremony orchestration and verification
//  2. Codec layer (pkg/protocol) - Wire format parsing and signature checks
//  3. Storage layer (UserStore, CredentialStore, ChallengeStore) - Pluggable persistence
//  4. HTTP layer (pkg/ceremony/http) - Composable HTTP handlers
//
// # Usage
//
// Basic usage with in-memory storage (for development):
//
//	engine, err := ceremony.NewEngine(ceremony.EngineParams{
//	    Config: &ceremony.Config{
//	        RPID:          "localhost",
//	        RPDisplayName: "My App",
//	        RPOrigins:     []string{"https://localhost:3000"},
//	    },
//	    UserStore:       ceremony.NewMemoryUserStore(),
//	    ChallengeStore:  ceremony.NewMemoryChallengeStore(),
//	    CredentialStore: ceremony.NewMemoryCredentialStore(),
//	})
//
// For production, implement the storage interfaces with your database.
//
// # HTTP Handlers
//
// The http subpackage provides handlers that can be mounted on any router:
//
//	handler := ceremonyhttp.NewHandler(engine)
//	ceremonyhttp.MountChi(r, handler)
//
// # Error Handling
//
// Verification failures carry precise sentinel errors internally
// (ErrOriginMismatch, ErrSignatureInvalid, ...). Before an error reaches
// a client it should pass through ClientFacing, which collapses every
// failure except ErrChallengeExpired into a single generic rejection.
//
// # WebAuthn Specification Compliance
//
// This implementation follows the W3C Web Authentication specification:
//   - https://www.w3.org/TR/webauthn-2/
//   - https://www.w3.org/TR/webauthn-3/
//
// Attestation trust chains and authenticator metadata are out of scope;
// the engine validates statement structure and signatures only.
//
// Note: WebAuthn requires HTTPS for all operations. Browsers will only
// expose the WebAuthn API in secure contexts.
package ceremony
