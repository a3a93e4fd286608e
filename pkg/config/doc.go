// Package config loads login-guard settings from the environment.
//
// Values are read with cleanenv over the defaults returned by Default, so
// each rate limit policy keeps its own defaults under its prefix:
//
//	LOGIN_MAX_ATTEMPTS=5
//	LOGIN_WINDOW=PT15M
//	PASSWORD_RESET_BLOCK_DURATION=1h
//	DEVICE_TRUST_DURATION=P30D
//	LEDGER_BACKEND=redis
//
// Durations accept ISO 8601 ("PT15M", "P30D") or Go syntax ("15m").
// Load validates the result and returns ValidationErrors listing every
// invalid field.
package config
