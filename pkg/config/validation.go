package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization is handled in ApplyDefaults, not here. Validation
// accepts both uppercase and lowercase log levels.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	g := cfg.Adapters.Gopher

	if !g.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	if cfg.Server.Metrics.Enabled && g.Port != 0 && cfg.Server.Metrics.Port == g.Port {
		return fmt.Errorf("server.metrics.port: %d is already used by the gopher adapter", g.Port)
	}

	if g.MenuCache.Enabled && g.MenuCache.MaxEntries <= 0 {
		return fmt.Errorf("adapters.gopher.menu_cache.max_entries: must be > 0 when the cache is enabled")
	}

	if g.RateLimit.RequestsPerSecond > 0 && g.RateLimit.Burst == 0 {
		return fmt.Errorf("adapters.gopher.rate_limit.burst: must be > 0 when rate limiting is enabled")
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
