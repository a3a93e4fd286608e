package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-chi/jwtauth/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/chi-demo/app"
	dbutils "github.com/tendant/db-utils/db"

	"github.com/tendant/login-guard/pkg/attempts"
	"github.com/tendant/login-guard/pkg/config"
	"github.com/tendant/login-guard/pkg/detector"
	"github.com/tendant/login-guard/pkg/device"
	deviceapi "github.com/tendant/login-guard/pkg/device/api"
	"github.com/tendant/login-guard/pkg/guardapi"
	"github.com/tendant/login-guard/pkg/metrics"
	"github.com/tendant/login-guard/pkg/ratelimit"
	"github.com/tendant/login-guard/pkg/router"
	"github.com/tendant/login-guard/pkg/securityevent"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
	}))
	slog.SetDefault(logger)

	envFile := flag.String("env", "", "path to .env file (defaults to .env next to the binary or in the working directory)")
	cleanupOnly := flag.Bool("cleanup-only", false, "delete expired device sessions and exit")
	flag.Parse()

	if *envFile == "" {
		*envFile = findEnvFile()
	}
	config.LoadEnvFile(*envFile)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if cfg.LedgerBackend == config.BackendPostgres || cfg.SessionBackend == config.BackendPostgres {
		dbConfig := cfg.Database.ToDbConfig()
		pool, err = dbutils.NewDbPool(ctx, dbConfig)
		if err != nil {
			slog.Error("Failed creating dbpool", "db", dbConfig.Database, "host", dbConfig.Host, "port", dbConfig.Port, "user", dbConfig.User)
			os.Exit(-1)
		}
		defer pool.Close()
	}

	var redisClient redis.UniversalClient
	if cfg.LedgerBackend == config.BackendRedis {
		redisClient = redis.NewClient(cfg.Redis.ToOptions())
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.Warn("Redis not reachable at startup, rate limiting will fail open until it is", "addr", cfg.Redis.Addr, "error", err)
		}
	}

	storeTimeout, _ := cfg.ParseStoreTimeout()
	trustDuration, _ := cfg.ParseDeviceTrustDuration()
	cleanupInterval, _ := cfg.ParseDeviceCleanupInterval()
	retention, _ := cfg.ParseRedisRetention()
	loginPolicy, resetPolicy, suspiciousPolicy, err := cfg.Policies()
	if err != nil {
		slog.Error("Invalid rate limit policy", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	guardMetrics := metrics.New(registry)

	eventRepo, err := securityevent.NewRepository(cfg.SessionBackend, securityevent.RepositoryConfig{DB: pool})
	if err != nil {
		slog.Error("Failed creating security event repository", "error", err)
		os.Exit(1)
	}
	events := securityevent.NewLogger(eventRepo, securityevent.WithMetrics(guardMetrics))

	sessionRepo, err := device.NewRepository(cfg.SessionBackend, device.RepositoryConfig{DB: pool})
	if err != nil {
		slog.Error("Failed creating device session repository", "error", err)
		os.Exit(1)
	}
	deviceService := device.NewService(sessionRepo, events,
		device.WithDefaultDuration(trustDuration),
		device.WithMetrics(guardMetrics),
		device.WithStoreTimeout(storeTimeout),
	)

	if *cleanupOnly {
		deleted, err := deviceService.CleanupExpiredSessions(ctx)
		if err != nil {
			slog.Error("Device session cleanup failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Device session cleanup finished", "deleted", deleted)
		return
	}

	attemptConfig := attempts.RepositoryConfig{
		Redis:        redisClient,
		RedisOptions: []attempts.RedisOption{attempts.WithKeyPrefix(cfg.Redis.KeyPrefix), attempts.WithRetention(retention)},
	}
	if pool != nil {
		attemptConfig.DB = pool
	}
	attemptRepo, err := attempts.NewRepository(cfg.LedgerBackend, attemptConfig)
	if err != nil {
		slog.Error("Failed creating attempt ledger", "backend", cfg.LedgerBackend, "error", err)
		os.Exit(1)
	}

	detectorOptions := detector.DefaultOptions()
	detectorOptions.SummaryFailedWindow = loginPolicy.Window
	suspicious := detector.New(attemptRepo, events, detectorOptions)

	limiter := ratelimit.NewLimiter(attemptRepo, events,
		ratelimit.WithDetector(suspicious),
		ratelimit.WithMetrics(guardMetrics),
		ratelimit.WithStoreTimeout(storeTimeout),
	)

	cleanupDone := deviceService.StartCleanup(ctx, cleanupInterval)

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	router.SetupRoutes(server.R, router.Config{
		PrefixConfig:   router.DefaultPrefixConfig(),
		GuardHandle:    guardapi.NewHandle(limiter, suspicious, deviceService, loginPolicy, resetPolicy, suspiciousPolicy),
		DeviceHandle:   deviceapi.NewDeviceHandler(deviceService),
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		TokenAuth:      jwtauth.New(cfg.JWT.Algorithm, []byte(cfg.JWT.Secret), nil),
		ServiceAuth:    jwtauth.New(cfg.ServiceAuth.Algorithm, []byte(cfg.ServiceAuth.Secret), nil),
	})

	slog.Info("Login guard ready",
		"ledger", cfg.LedgerBackend,
		"sessions", cfg.SessionBackend,
		"login_policy", loginPolicy,
		"device_trust", trustDuration,
	)

	server.Run()

	stop()
	<-cleanupDone
}

// findEnvFile looks for .env next to the executable, then in the working directory.
func findEnvFile() string {
	if execPath, err := os.Executable(); err == nil {
		envFile := filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(envFile); err == nil {
			return envFile
		}
	}
	cwd, _ := os.Getwd()
	return filepath.Join(cwd, ".env")
}
