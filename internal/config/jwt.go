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

package config

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	"github.com/jeremyhahn/go-passkey/pkg/ceremony"
)

// JWTConfig controls token issuance after a verified ceremony. When
// disabled the engine hands back the base64 user handle instead.
type JWTConfig struct {
	Enabled bool `yaml:"enabled"`

	// KeyFile is a PEM-encoded private key (PKCS#8, SEC1 EC, or PKCS#1 RSA)
	KeyFile string `yaml:"key_file"`

	// KeyID is the kid header stamped on issued tokens (optional)
	KeyID string `yaml:"key_id"`

	Issuer    string        `yaml:"issuer"`
	Audience  []string      `yaml:"audience"`
	ExpiresIn time.Duration `yaml:"expires_in"`
}

// Validate checks the JWT configuration.
func (c *JWTConfig) Validate() error {
	if c.KeyFile == "" {
		return fmt.Errorf("key_file is required when jwt is enabled")
	}
	if c.ExpiresIn < 0 {
		return fmt.Errorf("expires_in must not be negative")
	}
	return nil
}

// NewTokenGenerator builds a JWT generator from the configured signing key.
func (c *JWTConfig) NewTokenGenerator() (*ceremony.DefaultJWTGenerator, error) {
	key, err := loadPrivateKey(c.KeyFile)
	if err != nil {
		return nil, err
	}

	return ceremony.NewDefaultJWTGenerator(&ceremony.JWTGeneratorConfig{
		PrivateKey: key,
		Issuer:     c.Issuer,
		Audience:   c.Audience,
		ExpiresIn:  c.ExpiresIn,
		KeyID:      c.KeyID,
	})
}

// loadPrivateKey reads a PEM-encoded private key from disk.
func loadPrivateKey(path string) (crypto.PrivateKey, error) {
	// #nosec G304 - Key file path from trusted config
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	return nil, fmt.Errorf("unsupported private key format in %s", path)
}
