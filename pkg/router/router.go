package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"

	deviceapi "github.com/tendant/login-guard/pkg/device/api"
	"github.com/tendant/login-guard/pkg/guardapi"
)

// PrefixConfig holds the mount point of each route group. An empty prefix
// leaves that group unmounted.
type PrefixConfig struct {
	Guard   string
	Devices string
	Metrics string
}

// DefaultPrefixConfig returns the prefixes used by cmd/guard.
func DefaultPrefixConfig() PrefixConfig {
	return PrefixConfig{
		Guard:   "/api/v1/guard",
		Devices: "/api/v1/devices",
		Metrics: "/metrics",
	}
}

// Config holds the handlers and middleware needed to set up routes
type Config struct {
	PrefixConfig PrefixConfig

	GuardHandle  *guardapi.Handle
	DeviceHandle *deviceapi.DeviceHandler

	// MetricsHandler is typically promhttp.HandlerFor(registry, ...)
	MetricsHandler http.Handler

	// TokenAuth verifies the access tokens of users managing their devices
	TokenAuth *jwtauth.JWTAuth

	// ServiceAuth verifies the service tokens of the identity provider calling
	// the guard API. It must use a different key from TokenAuth. The guard API
	// is not mounted without it.
	ServiceAuth *jwtauth.JWTAuth
}

// SetupRoutes mounts all login-guard routes on the provided router
func SetupRoutes(router chi.Router, cfg Config) {
	if cfg.PrefixConfig.Metrics != "" && cfg.MetricsHandler != nil {
		router.Handle(cfg.PrefixConfig.Metrics, cfg.MetricsHandler)
	}

	if cfg.PrefixConfig.Guard != "" && cfg.GuardHandle != nil {
		if cfg.ServiceAuth == nil {
			slog.Warn("Guard API not mounted: no service token verifier configured", "prefix", cfg.PrefixConfig.Guard)
		} else {
			router.Group(func(r chi.Router) {
				r.Use(jwtauth.Verifier(cfg.ServiceAuth))
				r.Use(jwtauth.Authenticator(cfg.ServiceAuth))
				r.Mount(cfg.PrefixConfig.Guard, guardapi.Handler(cfg.GuardHandle))
			})
		}
	}

	if cfg.PrefixConfig.Devices == "" || cfg.DeviceHandle == nil {
		return
	}
	router.Group(func(r chi.Router) {
		r.Use(jwtauth.Verifier(cfg.TokenAuth))
		r.Use(jwtauth.Authenticator(cfg.TokenAuth))
		r.Mount(cfg.PrefixConfig.Devices, deviceapi.Handler(cfg.DeviceHandle))
	})
}
