package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/tendant/login-guard/pkg/attempts"
	"github.com/tendant/login-guard/pkg/detector"
	"github.com/tendant/login-guard/pkg/metrics"
	"github.com/tendant/login-guard/pkg/securityevent"
	"github.com/tendant/login-guard/pkg/utils"
)

// MessageBlocked is the only text shown to a blocked caller.
const MessageBlocked = "Too many attempts. Please try again later."

// DefaultStoreTimeout bounds each store round trip of the limiter.
const DefaultStoreTimeout = 3 * time.Second

type Decision string

const (
	DecisionAllowed           Decision = "allowed"
	DecisionBlockedRateLimit  Decision = "blocked_rate_limit"
	DecisionBlockedPriorBlock Decision = "blocked_prior_block"
)

// Result is the outcome of CheckRateLimit.
type Result struct {
	Allowed      bool       `json:"allowed"`
	Decision     Decision   `json:"decision"`
	Remaining    int        `json:"remaining"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
	Message      string     `json:"message,omitempty"`
}

// AttemptDetails carries optional context for RecordLoginAttempt.
type AttemptDetails struct {
	Email     string
	IPAddress string
	UserAgent string
	UserID    string
}

// Limiter enforces Policies against the attempt ledger.
//
// The limiter fails open: when the store errors or exceeds the store timeout,
// CheckRateLimit allows the request with full remaining budget and records a
// rate_limiter_error event.
//
// Counting and the blocking insert are separate store calls, so concurrent
// checks for one identifier can each see a count below the threshold and
// admit slightly more than MaxAttempts attempts. The next check after the
// burst observes the full count and blocks.
type Limiter struct {
	attempts     attempts.Repository
	events       *securityevent.Logger
	detector     *detector.Detector
	metrics      *metrics.Metrics
	now          func() time.Time
	storeTimeout time.Duration
}

// Option configures a Limiter
type Option func(*Limiter)

// WithDetector runs the detector after every failed attempt.
func WithDetector(d *detector.Detector) Option {
	return func(l *Limiter) {
		l.detector = d
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

func WithStoreTimeout(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.storeTimeout = d
		}
	}
}

// NewLimiter creates a new store-backed rate limiter
func NewLimiter(attemptRepo attempts.Repository, events *securityevent.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		attempts:     attemptRepo,
		events:       events,
		now:          time.Now,
		storeTimeout: DefaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CheckRateLimit decides whether identifier may attempt another login under policy.
func (l *Limiter) CheckRateLimit(ctx context.Context, identifier string, policy Policy) Result {
	policy = policy.withDefaults()
	now := l.now()

	storeCtx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	result, event, err := l.evaluate(storeCtx, identifier, policy, now)
	if err != nil {
		slog.Error("Rate limiter store failure, allowing request", "identifier", identifier, "policy", policy.Name, "error", err)
		l.events.Log(ctx, securityevent.SecurityEvent{
			EventType: securityevent.EventRateLimiterError,
			Severity:  securityevent.SeverityMedium,
			Metadata: map[string]any{
				securityevent.MetadataIdentifier: identifier,
				"policy":                         policy.Name,
				"error":                          err.Error(),
			},
		})
		l.metrics.ObserveDecision("fail_open")
		return Result{
			Allowed:   true,
			Decision:  DecisionAllowed,
			Remaining: policy.MaxAttempts,
		}
	}

	if event != nil {
		l.events.Log(ctx, *event)
	}
	l.metrics.ObserveDecision(string(result.Decision))
	return result
}

func (l *Limiter) evaluate(ctx context.Context, identifier string, policy Policy, now time.Time) (Result, *securityevent.SecurityEvent, error) {
	blockedUntil, err := l.attempts.ActiveBlock(ctx, identifier, now)
	if err != nil {
		return Result{}, nil, err
	}
	if blockedUntil != nil {
		return Result{
				Allowed:      false,
				Decision:     DecisionBlockedPriorBlock,
				BlockedUntil: blockedUntil,
				Message:      MessageBlocked,
			}, &securityevent.SecurityEvent{
				EventType: securityevent.EventRateLimitBlockedAccess,
				Severity:  securityevent.SeverityMedium,
				Metadata: map[string]any{
					securityevent.MetadataIdentifier: identifier,
					"policy":                         policy.Name,
					"blockedUntil":                   blockedUntil.UTC().Format(time.RFC3339),
				},
			}, nil
	}

	failed, err := l.attempts.CountFailedSince(ctx, identifier, now.Add(-policy.Window))
	if err != nil {
		return Result{}, nil, err
	}
	if failed < policy.MaxAttempts {
		return Result{
			Allowed:   true,
			Decision:  DecisionAllowed,
			Remaining: policy.MaxAttempts - failed,
		}, nil, nil
	}

	until := now.Add(policy.BlockDuration)
	_, err = l.attempts.Create(ctx, attempts.LoginAttempt{
		Identifier:   identifier,
		Success:      false,
		CreatedAt:    now,
		BlockedUntil: &until,
	})
	if err != nil {
		return Result{}, nil, err
	}

	return Result{
			Allowed:      false,
			Decision:     DecisionBlockedRateLimit,
			BlockedUntil: &until,
			Message:      MessageBlocked,
		}, &securityevent.SecurityEvent{
			EventType: securityevent.EventRateLimitExceeded,
			Severity:  securityevent.SeverityHigh,
			Metadata: map[string]any{
				securityevent.MetadataIdentifier: identifier,
				"policy":                         policy.Name,
				"failedCount":                    failed,
				"blockedUntil":                   until.UTC().Format(time.RFC3339),
			},
		}, nil
}

// RecordLoginAttempt stores the outcome of an authentication attempt and
// records the matching security event. Failed attempts are handed to the
// detector. The returned error reports only a failure to store the attempt.
func (l *Limiter) RecordLoginAttempt(ctx context.Context, identifier string, success bool, details AttemptDetails) error {
	storeCtx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	_, err := l.attempts.Create(storeCtx, attempts.LoginAttempt{
		Identifier: identifier,
		Success:    success,
		Email:      details.Email,
		IPAddress:  details.IPAddress,
		UserAgent:  details.UserAgent,
		UserID:     details.UserID,
		CreatedAt:  l.now(),
	})
	if err != nil {
		slog.Error("Failed to record login attempt", "identifier", identifier, "success", success, "error", err)
		return err
	}

	event := securityevent.SecurityEvent{
		EventType: securityevent.EventSuccessfulLogin,
		Severity:  securityevent.SeverityLow,
		IPAddress: details.IPAddress,
		UserAgent: details.UserAgent,
		Metadata: map[string]any{
			securityevent.MetadataIdentifier: identifier,
		},
	}
	if details.Email != "" {
		event.Metadata["email"] = utils.MaskEmail(details.Email)
	}
	if details.UserID != "" {
		event.Metadata["userId"] = details.UserID
	}
	if !success {
		event.EventType = securityevent.EventFailedLogin
		event.Severity = securityevent.SeverityMedium
	}
	l.events.Log(ctx, event)

	if !success && l.detector != nil {
		detectCtx, cancel := context.WithTimeout(ctx, l.storeTimeout)
		defer cancel()
		l.detector.Inspect(detectCtx, detector.Attempt{
			Identifier: identifier,
			Email:      details.Email,
			IPAddress:  details.IPAddress,
			UserAgent:  details.UserAgent,
		})
	}
	return nil
}
