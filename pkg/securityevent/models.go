package securityevent

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType names a security event. Known types are declared below; Other
// builds an ad-hoc type without a schema change.
type EventType string

const (
	EventSuccessfulLogin            EventType = "successful_login"
	EventFailedLogin                EventType = "failed_login"
	EventRateLimitBlockedAccess     EventType = "rate_limit_blocked_access"
	EventRateLimitExceeded          EventType = "rate_limit_exceeded"
	EventRateLimiterError           EventType = "rate_limiter_error"
	EventSuspiciousEmailEnumeration EventType = "suspicious_email_enumeration"
	EventRapidFireAttempts          EventType = "rapid_fire_attempts"
	EventDeviceFingerprintMismatch  EventType = "device_fingerprint_mismatch"
	EventRememberMeCreationFailed   EventType = "remember_me_creation_failed"
	EventDeviceSessionRevoked       EventType = "device_session_revoked"
	EventDeviceSessionsRevoked      EventType = "device_sessions_revoked"
)

var knownEventTypes = map[EventType]struct{}{
	EventSuccessfulLogin:            {},
	EventFailedLogin:                {},
	EventRateLimitBlockedAccess:     {},
	EventRateLimitExceeded:          {},
	EventRateLimiterError:           {},
	EventSuspiciousEmailEnumeration: {},
	EventRapidFireAttempts:          {},
	EventDeviceFingerprintMismatch:  {},
	EventRememberMeCreationFailed:   {},
	EventDeviceSessionRevoked:       {},
	EventDeviceSessionsRevoked:      {},
}

// SuspiciousEventTypes are the types that mark an identifier as suspicious in summaries.
var SuspiciousEventTypes = []EventType{
	EventSuspiciousEmailEnumeration,
	EventRapidFireAttempts,
	EventRateLimitExceeded,
}

// Other returns an event type outside the known set.
func Other(name string) EventType {
	return EventType(strings.ToLower(strings.TrimSpace(name)))
}

// IsKnown reports whether t is one of the declared event types.
func (t EventType) IsKnown() bool {
	_, ok := knownEventTypes[t]
	return ok
}

func (t EventType) String() string {
	return string(t)
}

// Severity is an ordinal classification of a security event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities; unknown values rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// ParseSeverity parses a severity name, case-insensitively.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if sev.Rank() == 0 {
		return "", false
	}
	return sev, true
}

// MetadataIdentifier is the metadata key holding the rate-limit identifier.
const MetadataIdentifier = "identifier"

// SecurityEvent is an append-only audit record.
type SecurityEvent struct {
	ID        uuid.UUID      `json:"id"`
	EventType EventType      `json:"event_type"`
	Severity  Severity       `json:"severity"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Identifier returns the identifier stored in the event metadata, if any.
func (e SecurityEvent) Identifier() string {
	if e.Metadata == nil {
		return ""
	}
	id, _ := e.Metadata[MetadataIdentifier].(string)
	return id
}

// Filter selects events for Count and List. Zero values do not filter.
type Filter struct {
	Identifier string
	EventTypes []EventType
	Since      time.Time
	Until      time.Time
	Limit      int
}

func (f Filter) matches(e SecurityEvent) bool {
	if f.Identifier != "" && e.Identifier() != f.Identifier {
		return false
	}
	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if t == e.EventType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !e.CreatedAt.Before(f.Until) {
		return false
	}
	return true
}
