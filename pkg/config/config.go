package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/tendant/login-guard/pkg/ratelimit"
)

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Config is the full login-guard configuration.
type Config struct {
	Login         PolicyConfig `env-prefix:"LOGIN_"`
	PasswordReset PolicyConfig `env-prefix:"PASSWORD_RESET_"`
	Suspicious    PolicyConfig `env-prefix:"SUSPICIOUS_"`

	StoreTimeout string `env:"STORE_TIMEOUT" env-default:"3s"`

	// DeviceTrustDuration is the remember-me lifetime, e.g. "P30D".
	DeviceTrustDuration   string `env:"DEVICE_TRUST_DURATION" env-default:"P30D"`
	DeviceCleanupInterval string `env:"DEVICE_CLEANUP_INTERVAL" env-default:"PT1H"`

	// LedgerBackend selects the attempt ledger store.
	LedgerBackend string `env:"LEDGER_BACKEND" env-default:"postgres"`
	// SessionBackend selects the event log and device session store.
	SessionBackend string `env:"SESSION_BACKEND" env-default:"postgres"`

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	ServiceAuth ServiceAuthConfig
}

// Default returns a Config populated with the built-in policies.
func Default() Config {
	return Config{
		Login:                 policyConfigFrom(ratelimit.LoginPolicy),
		PasswordReset:         policyConfigFrom(ratelimit.PasswordResetPolicy),
		Suspicious:            policyConfigFrom(ratelimit.SuspiciousPolicy),
		StoreTimeout:          "3s",
		DeviceTrustDuration:   "P30D",
		DeviceCleanupInterval: "PT1H",
		LedgerBackend:         BackendPostgres,
		SessionBackend:        BackendPostgres,
	}
}

// LoadEnvFile loads envFile into the process environment when it exists.
func LoadEnvFile(envFile string) {
	if envFile == "" {
		return
	}
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		slog.Debug("No .env file found (using environment variables or defaults)", "path", envFile)
		return
	}

	slog.Info("Loading configuration from .env file", "path", envFile)
	if err := godotenv.Load(envFile); err != nil {
		slog.Warn("Failed to load .env file", "error", err)
	}
}

// Load reads the environment over Default and validates the result.
func Load() (Config, error) {
	cfg := Default()
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section in use.
func (c Config) Validate() error {
	backends := []string{BackendPostgres, BackendRedis, BackendMemory}
	return Validate(
		func() ValidationErrors { return c.Login.validate("login") },
		func() ValidationErrors { return c.PasswordReset.validate("password_reset") },
		func() ValidationErrors { return c.Suspicious.validate("suspicious") },
		func() ValidationErrors {
			return CollectErrors(
				RequirePositiveDuration("store_timeout", durationOrZero(c.StoreTimeout)),
				RequirePositiveDuration("device_trust_duration", durationOrZero(c.DeviceTrustDuration)),
				RequirePositiveDuration("device_cleanup_interval", durationOrZero(c.DeviceCleanupInterval)),
				RequireOneOf("ledger_backend", c.LedgerBackend, backends),
				RequireOneOf("session_backend", c.SessionBackend, []string{BackendPostgres, BackendMemory}),
			)
		},
		func() ValidationErrors {
			if c.LedgerBackend == BackendPostgres || c.SessionBackend == BackendPostgres {
				return c.Database.validate()
			}
			return nil
		},
		func() ValidationErrors {
			if c.LedgerBackend == BackendRedis {
				return c.Redis.validate(c.longestPolicySpan())
			}
			return nil
		},
		c.JWT.validate,
		func() ValidationErrors { return c.ServiceAuth.validate(c.JWT.Secret) },
	)
}

// longestPolicySpan is how far back the ledger must remember attempts: the
// longest window or block duration over all policies.
func (c Config) longestPolicySpan() time.Duration {
	var longest time.Duration
	for _, p := range []PolicyConfig{c.Login, c.PasswordReset, c.Suspicious} {
		for _, d := range []string{p.Window, p.BlockDuration} {
			if v := durationOrZero(d); v > longest {
				longest = v
			}
		}
	}
	return longest
}

// Policies returns the login, password reset and suspicious policies.
func (c Config) Policies() (login, passwordReset, suspicious ratelimit.Policy, err error) {
	if login, err = c.Login.ToPolicy(ratelimit.LoginPolicy.Name); err != nil {
		return
	}
	if passwordReset, err = c.PasswordReset.ToPolicy(ratelimit.PasswordResetPolicy.Name); err != nil {
		return
	}
	suspicious, err = c.Suspicious.ToPolicy(ratelimit.SuspiciousPolicy.Name)
	return
}

func (c Config) ParseStoreTimeout() (time.Duration, error) {
	return ParseDuration(c.StoreTimeout)
}

func (c Config) ParseDeviceTrustDuration() (time.Duration, error) {
	return ParseDuration(c.DeviceTrustDuration)
}

func (c Config) ParseDeviceCleanupInterval() (time.Duration, error) {
	return ParseDuration(c.DeviceCleanupInterval)
}

func (c Config) ParseRedisRetention() (time.Duration, error) {
	return ParseDuration(c.Redis.Retention)
}
