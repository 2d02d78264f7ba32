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

package ceremony

// signCountAcceptable applies the signature counter clone heuristic.
//
// An assertion is acceptable when the received counter strictly exceeds
// the stored one. Authenticators that do not implement a counter report
// zero on every assertion; both sides zero is therefore acceptable and
// carries no clone signal. Any other relationship - equal non-zero
// counters or a regression - indicates the private key may have been
// extracted and used on another authenticator.
func signCountAcceptable(stored, received uint32) bool {
	if received > stored {
		return true
	}
	return stored == 0 && received == 0
}
