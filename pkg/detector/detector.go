// Package detector flags suspicious login patterns after failed attempts.
// It only records security events; blocking belongs to the rate limiter.
package detector

import (
	"context"
	"log/slog"
	"time"

	"github.com/tendant/login-guard/pkg/attempts"
	"github.com/tendant/login-guard/pkg/securityevent"
)

// Options holds the detector heuristics.
type Options struct {
	// EnumerationWindow and EnumerationThreshold: more than Threshold distinct
	// emails within the window is enumeration.
	EnumerationWindow    time.Duration
	EnumerationThreshold int
	// RapidFireWindow and RapidFireThreshold: more than Threshold attempts of
	// any outcome within the window is rapid fire.
	RapidFireWindow    time.Duration
	RapidFireThreshold int
	// SummaryFailedWindow bounds RecentFailedAttempts in a Summary.
	SummaryFailedWindow time.Duration
	// SummarySuspiciousWindow bounds the suspicious event lookup in a Summary.
	SummarySuspiciousWindow time.Duration
	Now                     func() time.Time
}

// DefaultOptions returns the default heuristics.
func DefaultOptions() Options {
	return Options{
		EnumerationWindow:       time.Hour,
		EnumerationThreshold:    3,
		RapidFireWindow:         5 * time.Minute,
		RapidFireThreshold:      10,
		SummaryFailedWindow:     time.Hour,
		SummarySuspiciousWindow: 24 * time.Hour,
		Now:                     time.Now,
	}
}

// Attempt describes the failed attempt being inspected.
type Attempt struct {
	Identifier string
	Email      string
	IPAddress  string
	UserAgent  string
}

// Summary aggregates the security state of one identifier.
type Summary struct {
	RecentFailedAttempts int        `json:"recent_failed_attempts"`
	IsBlocked            bool       `json:"is_blocked"`
	BlockedUntil         *time.Time `json:"blocked_until,omitempty"`
	LastSuccessfulLogin  *time.Time `json:"last_successful_login,omitempty"`
	SuspiciousActivity   bool       `json:"suspicious_activity"`
}

type Detector struct {
	attempts attempts.Repository
	events   *securityevent.Logger
	options  Options
}

func New(attemptRepo attempts.Repository, events *securityevent.Logger, options Options) *Detector {
	defaults := DefaultOptions()
	if options.EnumerationWindow <= 0 {
		options.EnumerationWindow = defaults.EnumerationWindow
	}
	if options.EnumerationThreshold <= 0 {
		options.EnumerationThreshold = defaults.EnumerationThreshold
	}
	if options.RapidFireWindow <= 0 {
		options.RapidFireWindow = defaults.RapidFireWindow
	}
	if options.RapidFireThreshold <= 0 {
		options.RapidFireThreshold = defaults.RapidFireThreshold
	}
	if options.SummaryFailedWindow <= 0 {
		options.SummaryFailedWindow = defaults.SummaryFailedWindow
	}
	if options.SummarySuspiciousWindow <= 0 {
		options.SummarySuspiciousWindow = defaults.SummarySuspiciousWindow
	}
	if options.Now == nil {
		options.Now = defaults.Now
	}
	return &Detector{
		attempts: attemptRepo,
		events:   events,
		options:  options,
	}
}

// Inspect runs both heuristics independently. Store errors are logged and
// skip the affected heuristic.
func (d *Detector) Inspect(ctx context.Context, attempt Attempt) {
	now := d.options.Now()

	distinct, err := d.attempts.DistinctEmailsSince(ctx, attempt.Identifier, now.Add(-d.options.EnumerationWindow))
	if err != nil {
		slog.Error("Failed to check email enumeration", "identifier", attempt.Identifier, "error", err)
	} else if distinct > d.options.EnumerationThreshold {
		d.events.Log(ctx, securityevent.SecurityEvent{
			EventType: securityevent.EventSuspiciousEmailEnumeration,
			Severity:  securityevent.SeverityHigh,
			IPAddress: attempt.IPAddress,
			UserAgent: attempt.UserAgent,
			Metadata: map[string]any{
				securityevent.MetadataIdentifier: attempt.Identifier,
				"distinctEmails":                 distinct,
				"email":                          attempt.Email,
			},
		})
	}

	total, err := d.attempts.CountSince(ctx, attempt.Identifier, now.Add(-d.options.RapidFireWindow))
	if err != nil {
		slog.Error("Failed to check rapid fire attempts", "identifier", attempt.Identifier, "error", err)
	} else if total > d.options.RapidFireThreshold {
		d.events.Log(ctx, securityevent.SecurityEvent{
			EventType: securityevent.EventRapidFireAttempts,
			Severity:  securityevent.SeverityCritical,
			IPAddress: attempt.IPAddress,
			UserAgent: attempt.UserAgent,
			Metadata: map[string]any{
				securityevent.MetadataIdentifier: attempt.Identifier,
				"attemptCount":                   total,
			},
		})
	}
}

// GetSecuritySummary reports the current state of an identifier.
func (d *Detector) GetSecuritySummary(ctx context.Context, identifier string) (Summary, error) {
	now := d.options.Now()
	var summary Summary

	failed, err := d.attempts.CountFailedSince(ctx, identifier, now.Add(-d.options.SummaryFailedWindow))
	if err != nil {
		return Summary{}, err
	}
	summary.RecentFailedAttempts = failed

	blockedUntil, err := d.attempts.ActiveBlock(ctx, identifier, now)
	if err != nil {
		return Summary{}, err
	}
	summary.BlockedUntil = blockedUntil
	summary.IsBlocked = blockedUntil != nil

	last, err := d.attempts.LatestSuccess(ctx, identifier)
	if err != nil {
		return Summary{}, err
	}
	summary.LastSuccessfulLogin = last

	if repo := d.events.Repository(); repo != nil {
		count, err := repo.Count(ctx, securityevent.Filter{
			Identifier: identifier,
			EventTypes: securityevent.SuspiciousEventTypes,
			Since:      now.Add(-d.options.SummarySuspiciousWindow),
		})
		if err != nil {
			return Summary{}, err
		}
		summary.SuspiciousActivity = count > 0
	}

	return summary, nil
}
