package securityevent

import (
	"context"
	"log/slog"
	"time"

	"github.com/tendant/login-guard/pkg/metrics"
)

// Logger records security events. Recording is best-effort: a failed write is
// reported through slog and never returned to the caller.
type Logger struct {
	repo    Repository
	metrics *metrics.Metrics
	now     func() time.Time
}

// LoggerOption configures a Logger
type LoggerOption func(*Logger)

// WithMetrics counts every event passed to Log.
func WithMetrics(m *metrics.Metrics) LoggerOption {
	return func(l *Logger) {
		l.metrics = m
	}
}

// WithClock overrides the time source used to stamp events.
func WithClock(now func() time.Time) LoggerOption {
	return func(l *Logger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLogger creates a new security event logger backed by repo.
func NewLogger(repo Repository, opts ...LoggerOption) *Logger {
	l := &Logger{
		repo: repo,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Repository returns the underlying event store.
func (l *Logger) Repository() Repository {
	if l == nil {
		return nil
	}
	return l.repo
}

// Log persists the event. It is safe to call on a nil Logger.
func (l *Logger) Log(ctx context.Context, event SecurityEvent) {
	if l == nil {
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = l.now().UTC()
	}
	if event.Severity == "" {
		event.Severity = SeverityLow
	}

	l.metrics.ObserveSecurityEvent(string(event.EventType), string(event.Severity))

	if event.Severity.AtLeast(SeverityHigh) {
		slog.Warn("Security event", "event_type", event.EventType, "severity", event.Severity,
			"identifier", event.Identifier(), "ip_address", event.IPAddress)
	} else {
		slog.Debug("Security event", "event_type", event.EventType, "severity", event.Severity,
			"identifier", event.Identifier())
	}

	if l.repo == nil {
		return
	}
	if _, err := l.repo.Create(ctx, event); err != nil {
		slog.Error("Failed to record security event", "event_type", event.EventType, "error", err)
	}
}
