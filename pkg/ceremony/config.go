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

import (
	"fmt"
	"time"

	"github.com/jeremyhahn/go-passkey/pkg/protocol"
)

// Config configures the ceremony engine.
type Config struct {
	// RPID is the Relying Party identifier, typically the domain name.
	// Example: "example.com"
	RPID string `yaml:"id" json:"id" mapstructure:"id"`

	// RPDisplayName is the human-readable name of the Relying Party.
	// Example: "Example Corp"
	RPDisplayName string `yaml:"display_name" json:"display_name" mapstructure:"display_name"`

	// RPOrigins are the allowed origins for WebAuthn operations.
	// Example: []string{"https://example.com", "https://www.example.com"}
	RPOrigins []string `yaml:"origins" json:"origins" mapstructure:"origins"`

	// ChallengeTimeout is how long an issued challenge stays valid.
	// Default: 60 seconds.
	ChallengeTimeout time.Duration `yaml:"challenge_timeout" json:"challenge_timeout" mapstructure:"challenge_timeout"`

	// ChallengeSize is the challenge length in bytes. Minimum 16.
	// Default: 32.
	ChallengeSize int `yaml:"challenge_size" json:"challenge_size" mapstructure:"challenge_size"`

	// RequireUserVerification rejects ceremonies whose authenticator did
	// not verify the user (PIN, biometric). Default: false; user presence
	// alone is accepted.
	RequireUserVerification bool `yaml:"require_user_verification" json:"require_user_verification" mapstructure:"require_user_verification"`

	// UserVerification is the requirement hinted to clients in ceremony
	// options. Options: "required", "preferred", "discouraged"
	// Default: "preferred"
	UserVerification string `yaml:"user_verification" json:"user_verification" mapstructure:"user_verification"`

	// AttestationPreference specifies the attestation conveyance preference.
	// Options: "none", "indirect", "direct"
	// Default: "none"
	AttestationPreference string `yaml:"attestation" json:"attestation" mapstructure:"attestation"`

	// ResidentKeyRequirement specifies whether to require resident keys (passkeys).
	// Options: "required", "preferred", "discouraged"
	// Default: "preferred"
	ResidentKeyRequirement string `yaml:"resident_key" json:"resident_key" mapstructure:"resident_key"`

	// AuthenticatorAttachment limits the type of authenticators allowed.
	// Options: "platform", "cross-platform", "" (any)
	// Default: "" (any)
	AuthenticatorAttachment string `yaml:"authenticator_attachment" json:"authenticator_attachment" mapstructure:"authenticator_attachment"`

	// Algorithms are the COSE algorithms offered during registration, in
	// preference order. Default: ES256, RS256.
	Algorithms []protocol.COSEAlgorithm `yaml:"algorithms" json:"algorithms" mapstructure:"algorithms"`

	// Debug enables debug logging.
	Debug bool `yaml:"debug" json:"debug" mapstructure:"debug"`
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.RPID == "" {
		return fmt.Errorf("RPID is required")
	}
	if c.RPDisplayName == "" {
		return fmt.Errorf("RPDisplayName is required")
	}
	if len(c.RPOrigins) == 0 {
		return fmt.Errorf("at least one RPOrigin is required")
	}
	if c.ChallengeTimeout < 0 {
		return fmt.Errorf("challenge timeout must not be negative")
	}
	if c.ChallengeSize != 0 && c.ChallengeSize < minChallengeSize {
		return fmt.Errorf("challenge size must be at least %d bytes", minChallengeSize)
	}

	// Validate user verification
	switch c.UserVerification {
	case "", "required", "preferred", "discouraged":
		// Valid
	default:
		return fmt.Errorf("invalid user verification: %s", c.UserVerification)
	}

	// Validate attestation preference
	switch c.AttestationPreference {
	case "", "none", "indirect", "direct":
		// Valid
	default:
		return fmt.Errorf("invalid attestation preference: %s", c.AttestationPreference)
	}

	// Validate resident key requirement
	switch c.ResidentKeyRequirement {
	case "", "required", "preferred", "discouraged":
		// Valid
	default:
		return fmt.Errorf("invalid resident key requirement: %s", c.ResidentKeyRequirement)
	}

	// Validate authenticator attachment
	switch c.AuthenticatorAttachment {
	case "", "platform", "cross-platform":
		// Valid
	default:
		return fmt.Errorf("invalid authenticator attachment: %s", c.AuthenticatorAttachment)
	}

	return nil
}

// minChallengeSize is the smallest challenge the engine will issue.
const minChallengeSize = 16

// SetDefaults sets default values for unset configuration fields.
func (c *Config) SetDefaults() {
	if c.ChallengeTimeout == 0 {
		c.ChallengeTimeout = 60 * time.Second
	}
	if c.ChallengeSize == 0 {
		c.ChallengeSize = 32
	}
	if c.UserVerification == "" {
		if c.RequireUserVerification {
			c.UserVerification = "required"
		} else {
			c.UserVerification = "preferred"
		}
	}
	if c.AttestationPreference == "" {
		c.AttestationPreference = "none"
	}
	if c.ResidentKeyRequirement == "" {
		c.ResidentKeyRequirement = "preferred"
	}
	if len(c.Algorithms) == 0 {
		c.Algorithms = []protocol.COSEAlgorithm{protocol.AlgES256, protocol.AlgRS256}
	}
}

// credentialParameters returns the pubKeyCredParams offered to clients.
func (c *Config) credentialParameters() []protocol.CredentialParameter {
	params := make([]protocol.CredentialParameter, len(c.Algorithms))
	for i, alg := range c.Algorithms {
		params[i] = protocol.CredentialParameter{
			Type:      protocol.PublicKeyCredentialType,
			Algorithm: alg,
		}
	}
	return params
}

// allowsAlgorithm reports whether alg is in the offered parameters.
func (c *Config) allowsAlgorithm(alg protocol.COSEAlgorithm) bool {
	for _, a := range c.Algorithms {
		if a == alg {
			return true
		}
	}
	return false
}

// allowsOrigin reports whether origin is in the allow list.
func (c *Config) allowsOrigin(origin string) bool {
	for _, o := range c.RPOrigins {
		if o == origin {
			return true
		}
	}
	return false
}
