package config

import (
	"time"

	"github.com/tendant/login-guard/pkg/ratelimit"
)

// PolicyConfig holds one rate limit policy. Durations accept ISO 8601 or Go syntax.
type PolicyConfig struct {
	MaxAttempts   int    `env:"MAX_ATTEMPTS"`
	Window        string `env:"WINDOW"`
	BlockDuration string `env:"BLOCK_DURATION"`
}

func policyConfigFrom(p ratelimit.Policy) PolicyConfig {
	return PolicyConfig{
		MaxAttempts:   p.MaxAttempts,
		Window:        p.Window.String(),
		BlockDuration: p.BlockDuration.String(),
	}
}

// ToPolicy parses the config into a ratelimit.Policy named name.
func (p PolicyConfig) ToPolicy(name string) (ratelimit.Policy, error) {
	window, err := ParseDuration(p.Window)
	if err != nil {
		return ratelimit.Policy{}, &ValidationError{Field: name + ".window", Message: err.Error()}
	}
	block, err := ParseDuration(p.BlockDuration)
	if err != nil {
		return ratelimit.Policy{}, &ValidationError{Field: name + ".block_duration", Message: err.Error()}
	}
	return ratelimit.Policy{
		Name:          name,
		MaxAttempts:   p.MaxAttempts,
		Window:        window,
		BlockDuration: block,
	}, nil
}

func (p PolicyConfig) validate(name string) ValidationErrors {
	window, _ := ParseDuration(p.Window)
	block, _ := ParseDuration(p.BlockDuration)
	return CollectErrors(
		RequirePositive(name+".max_attempts", p.MaxAttempts),
		RequirePositiveDuration(name+".window", window),
		RequirePositiveDuration(name+".block_duration", block),
	)
}

// durationOrZero is used where a parse error has already been reported by validation.
func durationOrZero(s string) time.Duration {
	d, _ := ParseDuration(s)
	return d
}
