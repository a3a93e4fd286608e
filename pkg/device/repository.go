package device

import (
	"context"
	"time"

	"github.com/google/uuid"

	guarderrors "github.com/tendant/login-guard/pkg/errors"
)

// DeviceSession is one issued remember-me token. A session is never
// reactivated once IsActive is false, and ExpiresAt is never extended.
type DeviceSession struct {
	ID                uuid.UUID `json:"id"`
	UserID            string    `json:"user_id"`
	DeviceFingerprint string    `json:"device_fingerprint"`
	DeviceName        string    `json:"device_name"`
	IPAddress         string    `json:"ip_address,omitempty"`
	UserAgent         string    `json:"user_agent,omitempty"`
	RememberToken     string    `json:"-"`
	ExpiresAt         time.Time `json:"expires_at"`
	CreatedAt         time.Time `json:"created_at"`
	LastUsedAt        time.Time `json:"last_used_at"`
	IsActive          bool      `json:"is_active"`
}

// IsUsableAt reports whether the session is active and not yet expired at now.
func (s DeviceSession) IsUsableAt(now time.Time) bool {
	return s.IsActive && !s.ExpiresAt.Before(now)
}

// Repository defines the interface for device session storage operations
type Repository interface {
	Create(ctx context.Context, session DeviceSession) (DeviceSession, error)
	// FindActiveByToken returns ErrSessionNotFound when no active, unexpired
	// session carries the token.
	FindActiveByToken(ctx context.Context, token string, now time.Time) (DeviceSession, error)
	TouchLastUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) error
	// Deactivate reports whether a row changed. An empty userID disables the
	// owner filter.
	Deactivate(ctx context.Context, id uuid.UUID, userID string) (bool, error)
	DeactivateAllForUser(ctx context.Context, userID string, except *uuid.UUID) (int, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	// ListActiveByUser returns usable sessions, most recently used first.
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]DeviceSession, error)
}

// ErrSessionNotFound is returned when no usable session matches a lookup.
var ErrSessionNotFound = guarderrors.New(guarderrors.ErrCodeSessionNotFound, "device session not found")
