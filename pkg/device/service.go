package device

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"

	guarderrors "github.com/tendant/login-guard/pkg/errors"
	"github.com/tendant/login-guard/pkg/metrics"
	"github.com/tendant/login-guard/pkg/securityevent"
)

const (
	// TokenBytes is the amount of randomness in a remember-me token.
	TokenBytes = 64
	// TokenLength is the hex-encoded length of a remember-me token.
	TokenLength = TokenBytes * 2

	DefaultDurationDays = 30
	DefaultStoreTimeout = 3 * time.Second
)

// IssuedSession is returned to the login flow after a token is issued.
type IssuedSession struct {
	SessionID   uuid.UUID `json:"session_id"`
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Fingerprint string    `json:"fingerprint"`
}

// ValidationResult never says why a token was rejected.
type ValidationResult struct {
	Valid     bool      `json:"valid"`
	UserID    string    `json:"user_id,omitempty"`
	SessionID uuid.UUID `json:"session_id,omitempty"`
}

// SessionSummary is a simplified session view for listing
type SessionSummary struct {
	ID         uuid.UUID `json:"id"`
	DeviceName string    `json:"device_name"`
	DeviceType string    `json:"device_type"`
	IPAddress  string    `json:"ip_address"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	IsCurrent  bool      `json:"is_current"`
}

// Service manages remember-me device sessions.
//
// Validation fails closed: any store error makes the token invalid.
// Issuance through TryCreateSession is best-effort and never fails a login.
type Service struct {
	repo            Repository
	events          *securityevent.Logger
	metrics         *metrics.Metrics
	now             func() time.Time
	random          io.Reader
	defaultDuration time.Duration
	storeTimeout    time.Duration
}

// Option configures a Service
type Option func(*Service)

// WithDefaultDuration sets the lifetime used when CreateSession gets no
// positive duration.
func WithDefaultDuration(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.defaultDuration = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithRandom replaces crypto/rand as the token source.
func WithRandom(r io.Reader) Option {
	return func(s *Service) {
		if r != nil {
			s.random = r
		}
	}
}

func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// NewService creates a new device trust service
func NewService(repo Repository, events *securityevent.Logger, opts ...Option) *Service {
	s := &Service{
		repo:            repo,
		events:          events,
		now:             time.Now,
		random:          rand.Reader,
		defaultDuration: DefaultDurationDays * 24 * time.Hour,
		storeTimeout:    DefaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) generateToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := io.ReadFull(s.random, b); err != nil {
		return "", guarderrors.Wrap(err, guarderrors.ErrCodeTokenGeneration, "failed to generate remember token")
	}
	return hex.EncodeToString(b), nil
}

// CreateSession issues a remember-me token for userID bound to info.
// A non-positive durationDays uses the configured default.
func (s *Service) CreateSession(ctx context.Context, userID string, info DeviceInfo, durationDays int) (IssuedSession, error) {
	if userID == "" {
		return IssuedSession{}, guarderrors.New(guarderrors.ErrCodeInvalidDeviceInput, "user id is required")
	}

	token, err := s.generateToken()
	if err != nil {
		return IssuedSession{}, err
	}

	duration := s.defaultDuration
	if durationDays > 0 {
		duration = time.Duration(durationDays) * 24 * time.Hour
	}

	now := s.now().UTC()
	fingerprint := Fingerprint(info)
	session := DeviceSession{
		ID:                uuid.New(),
		UserID:            userID,
		DeviceFingerprint: fingerprint,
		DeviceName:        DeviceName(info.UserAgent),
		IPAddress:         info.IPAddress,
		UserAgent:         info.UserAgent,
		RememberToken:     token,
		ExpiresAt:         now.Add(duration),
		CreatedAt:         now,
		LastUsedAt:        now,
		IsActive:          true,
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	created, err := s.repo.Create(storeCtx, session)
	if err != nil {
		return IssuedSession{}, fmt.Errorf("failed to create device session: %w", err)
	}

	slog.Info("Device session created", "session_id", created.ID, "user_id", userID, "device_name", created.DeviceName)
	return IssuedSession{
		SessionID:   created.ID,
		Token:       token,
		ExpiresAt:   created.ExpiresAt,
		Fingerprint: fingerprint,
	}, nil
}

// TryCreateSession is CreateSession for the login flow. A failure is recorded
// as a remember_me_creation_failed event and reported as false.
func (s *Service) TryCreateSession(ctx context.Context, userID string, info DeviceInfo, durationDays int) (IssuedSession, bool) {
	issued, err := s.CreateSession(ctx, userID, info, durationDays)
	if err != nil {
		slog.Error("Remember-me creation failed, continuing login", "user_id", userID, "error", err)
		s.events.Log(ctx, securityevent.SecurityEvent{
			EventType: securityevent.EventRememberMeCreationFailed,
			Severity:  securityevent.SeverityMedium,
			IPAddress: info.IPAddress,
			UserAgent: info.UserAgent,
			Metadata: map[string]any{
				"userId": userID,
			},
		})
		return IssuedSession{}, false
	}
	return issued, true
}

// ValidateToken checks a presented token against the device presenting it.
// A fingerprint mismatch deactivates the session permanently.
func (s *Service) ValidateToken(ctx context.Context, token string, info DeviceInfo) ValidationResult {
	if len(token) != TokenLength {
		s.metrics.ObserveTokenValidation("malformed")
		return ValidationResult{}
	}

	now := s.now().UTC()
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	session, err := s.repo.FindActiveByToken(storeCtx, token, now)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			s.metrics.ObserveTokenValidation("not_found")
		} else {
			slog.Error("Token validation store failure, rejecting token", "error", err)
			s.metrics.ObserveTokenValidation("store_error")
		}
		return ValidationResult{}
	}

	presented := Fingerprint(info)
	if presented != session.DeviceFingerprint {
		s.events.Log(ctx, securityevent.SecurityEvent{
			EventType: securityevent.EventDeviceFingerprintMismatch,
			Severity:  securityevent.SeverityHigh,
			IPAddress: info.IPAddress,
			UserAgent: info.UserAgent,
			Metadata: map[string]any{
				"sessionId":            session.ID.String(),
				"userId":               session.UserID,
				"storedFingerprint":    session.DeviceFingerprint,
				"presentedFingerprint": presented,
				"tokenSuffix":          token[len(token)-4:],
			},
		})
		if _, err := s.repo.Deactivate(storeCtx, session.ID, ""); err != nil {
			slog.Error("Failed to deactivate session after fingerprint mismatch", "session_id", session.ID, "error", err)
		}
		s.metrics.ObserveTokenValidation("fingerprint_mismatch")
		return ValidationResult{}
	}

	if err := s.repo.TouchLastUsed(storeCtx, session.ID, now); err != nil {
		slog.Error("Failed to update session last used time, rejecting token", "session_id", session.ID, "error", err)
		s.metrics.ObserveTokenValidation("store_error")
		return ValidationResult{}
	}

	s.metrics.ObserveTokenValidation("valid")
	return ValidationResult{
		Valid:     true,
		UserID:    session.UserID,
		SessionID: session.ID,
	}
}

// RevokeDeviceSession deactivates one session. An empty userID revokes
// regardless of owner.
func (s *Service) RevokeDeviceSession(ctx context.Context, sessionID uuid.UUID, userID string) (bool, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	changed, err := s.repo.Deactivate(storeCtx, sessionID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to revoke device session: %w", err)
	}
	if changed {
		s.events.Log(ctx, securityevent.SecurityEvent{
			EventType: securityevent.EventDeviceSessionRevoked,
			Severity:  securityevent.SeverityLow,
			Metadata: map[string]any{
				"sessionId": sessionID.String(),
				"userId":    userID,
			},
		})
	}
	return changed, nil
}

// RevokeAllUserSessions deactivates every active session of userID except
// the optional one, returning how many changed.
func (s *Service) RevokeAllUserSessions(ctx context.Context, userID string, exceptSessionID *uuid.UUID) (int, error) {
	if userID == "" {
		return 0, guarderrors.New(guarderrors.ErrCodeInvalidDeviceInput, "user id is required")
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	count, err := s.repo.DeactivateAllForUser(storeCtx, userID, exceptSessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke user device sessions: %w", err)
	}
	if count > 0 {
		metadata := map[string]any{
			"userId": userID,
			"count":  count,
		}
		if exceptSessionID != nil {
			metadata["exceptSessionId"] = exceptSessionID.String()
		}
		s.events.Log(ctx, securityevent.SecurityEvent{
			EventType: securityevent.EventDeviceSessionsRevoked,
			Severity:  securityevent.SeverityLow,
			Metadata:  metadata,
		})
	}
	return count, nil
}

// CleanupExpiredSessions deletes sessions whose expiry has passed.
func (s *Service) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	deleted, err := s.repo.DeleteExpired(storeCtx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up expired device sessions: %w", err)
	}
	s.metrics.ObserveSessionsCleaned(deleted)
	if deleted > 0 {
		slog.Info("Expired device sessions deleted", "count", deleted)
	}
	return deleted, nil
}

// StartCleanup runs CleanupExpiredSessions every interval until ctx is done.
// The returned channel closes when the loop exits.
func (s *Service) StartCleanup(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.CleanupExpiredSessions(ctx); err != nil {
					slog.Error("Device session cleanup failed", "error", err)
				}
			}
		}
	}()
	return done
}

// GetUserDeviceSessions lists the user's usable sessions, most recently used first.
func (s *Service) GetUserDeviceSessions(ctx context.Context, userID string) ([]SessionSummary, error) {
	return s.GetUserDeviceSessionsWithCurrent(ctx, userID, nil)
}

// GetUserDeviceSessionsWithCurrent is GetUserDeviceSessions with the
// caller's own session flagged as current.
func (s *Service) GetUserDeviceSessionsWithCurrent(ctx context.Context, userID string, currentSessionID *uuid.UUID) ([]SessionSummary, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	sessions, err := s.repo.ListActiveByUser(storeCtx, userID, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list device sessions: %w", err)
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	if len(sessions) == 0 {
		return summaries, nil
	}
	if err := copier.Copy(&summaries, &sessions); err != nil {
		return nil, fmt.Errorf("failed to map device sessions: %w", err)
	}
	for i := range summaries {
		summaries[i].DeviceType = DeviceType(sessions[i].UserAgent)
		summaries[i].IsCurrent = currentSessionID != nil && summaries[i].ID == *currentSessionID
	}
	return summaries, nil
}
