// Package config loads process configuration from the environment. All
// brokerwell env vars use the BROKERWELL_ prefix, declared as struct tags on
// each command's config type.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv populates target from environment variables declared in its
// struct tags.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
