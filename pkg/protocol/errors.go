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
	"errors"
	"fmt"
)

// ErrMalformed is the sentinel all structural decode failures wrap.
// Callers match it with errors.Is to distinguish malformed input from
// verification failures.
var ErrMalformed = errors.New("malformed webauthn payload")

// ProtocolError describes a structural violation in a wire payload.
type ProtocolError struct {
	// Field names the structure or field that failed to decode.
	Field string

	// Detail is a human-readable description of the violation.
	Detail string
}

// Error returns the error message.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: %s: %s", e.Field, e.Detail)
}

// Unwrap returns ErrMalformed so errors.Is(err, ErrMalformed) matches.
func (e *ProtocolError) Unwrap() error {
	return ErrMalformed
}

// malformed creates a ProtocolError for the given field.
func malformed(field, detail string) error {
	return &ProtocolError{Field: field, Detail: detail}
}

// malformedf creates a ProtocolError with a formatted detail message.
func malformedf(field, format string, args ...any) error {
	return &ProtocolError{Field: field, Detail: fmt.Sprintf(format, args...)}
}
