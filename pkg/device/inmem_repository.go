package device

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	guarderrors "github.com/tendant/login-guard/pkg/errors"
)

// InMemRepository implements Repository using an in-memory map
type InMemRepository struct {
	sessions map[uuid.UUID]DeviceSession
	mu       sync.Mutex
}

// NewInMemRepository creates a new in-memory device session repository
func NewInMemRepository() *InMemRepository {
	return &InMemRepository{
		sessions: make(map[uuid.UUID]DeviceSession),
	}
}

func (r *InMemRepository) Create(ctx context.Context, session DeviceSession) (DeviceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	for _, existing := range r.sessions {
		if existing.RememberToken == session.RememberToken {
			return DeviceSession{}, guarderrors.New(guarderrors.ErrCodeStoreWrite, "remember token already exists")
		}
	}
	r.sessions[session.ID] = session
	return session, nil
}

func (r *InMemRepository) FindActiveByToken(ctx context.Context, token string, now time.Time) (DeviceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if s.RememberToken == token && s.IsUsableAt(now) {
			return s, nil
		}
	}
	return DeviceSession{}, ErrSessionNotFound
}

func (r *InMemRepository) TouchLastUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.LastUsedAt = usedAt
	r.sessions[id] = s
	return nil
}

func (r *InMemRepository) Deactivate(ctx context.Context, id uuid.UUID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || !s.IsActive || (userID != "" && s.UserID != userID) {
		return false, nil
	}
	s.IsActive = false
	r.sessions[id] = s
	return true, nil
}

func (r *InMemRepository) DeactivateAllForUser(ctx context.Context, userID string, except *uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for id, s := range r.sessions {
		if s.UserID != userID || !s.IsActive {
			continue
		}
		if except != nil && id == *except {
			continue
		}
		s.IsActive = false
		r.sessions[id] = s
		count++
	}
	return count, nil
}

func (r *InMemRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, s := range r.sessions {
		if s.ExpiresAt.Before(now) {
			delete(r.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *InMemRepository) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]DeviceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []DeviceSession
	for _, s := range r.sessions {
		if s.UserID == userID && s.IsUsableAt(now) {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastUsedAt.After(result[j].LastUsedAt)
	})
	return result, nil
}

// Get returns a session by id regardless of state.
func (r *InMemRepository) Get(id uuid.UUID) (DeviceSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}
