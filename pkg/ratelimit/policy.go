package ratelimit

import (
	"time"
)

// Policy is a sliding-window rate limit: MaxAttempts failures inside the
// trailing Window block the identifier for BlockDuration.
type Policy struct {
	Name          string        `json:"name"`
	MaxAttempts   int           `json:"max_attempts"`
	Window        time.Duration `json:"window"`
	BlockDuration time.Duration `json:"block_duration"`
}

var (
	LoginPolicy = Policy{
		Name:          "login",
		MaxAttempts:   5,
		Window:        15 * time.Minute,
		BlockDuration: 15 * time.Minute,
	}
	PasswordResetPolicy = Policy{
		Name:          "password_reset",
		MaxAttempts:   3,
		Window:        time.Hour,
		BlockDuration: time.Hour,
	}
	SuspiciousPolicy = Policy{
		Name:          "suspicious",
		MaxAttempts:   10,
		Window:        5 * time.Minute,
		BlockDuration: time.Hour,
	}
)

// withDefaults fills zero or negative fields from LoginPolicy.
func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = LoginPolicy.MaxAttempts
	}
	if p.Window <= 0 {
		p.Window = LoginPolicy.Window
	}
	if p.BlockDuration <= 0 {
		p.BlockDuration = LoginPolicy.BlockDuration
	}
	return p
}
