package attempts

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemRepository implements Repository using an in-memory slice
type InMemRepository struct {
	attempts []LoginAttempt
	mu       sync.Mutex
}

// NewInMemRepository creates a new in-memory attempt ledger
func NewInMemRepository() *InMemRepository {
	return &InMemRepository{}
}

func (r *InMemRepository) Create(ctx context.Context, attempt LoginAttempt) (LoginAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}
	r.attempts = append(r.attempts, attempt)
	return attempt, nil
}

func (r *InMemRepository) CountFailedSince(ctx context.Context, identifier string, since time.Time) (int, error) {
	return r.count(identifier, since, func(a LoginAttempt) bool { return !a.Success }), nil
}

func (r *InMemRepository) CountSince(ctx context.Context, identifier string, since time.Time) (int, error) {
	return r.count(identifier, since, func(LoginAttempt) bool { return true }), nil
}

func (r *InMemRepository) DistinctEmailsSince(ctx context.Context, identifier string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	emails := make(map[string]struct{})
	for _, a := range r.attempts {
		if a.Identifier == identifier && a.Email != "" && a.CreatedAt.After(since) {
			emails[a.Email] = struct{}{}
		}
	}
	return len(emails), nil
}

func (r *InMemRepository) ActiveBlock(ctx context.Context, identifier string, now time.Time) (*time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var latest *time.Time
	for _, a := range r.attempts {
		if a.Identifier != identifier || a.BlockedUntil == nil || !a.BlockedUntil.After(now) {
			continue
		}
		if latest == nil || a.BlockedUntil.After(*latest) {
			t := *a.BlockedUntil
			latest = &t
		}
	}
	return latest, nil
}

func (r *InMemRepository) LatestSuccess(ctx context.Context, identifier string) (*time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var latest *time.Time
	for _, a := range r.attempts {
		if a.Identifier != identifier || !a.Success {
			continue
		}
		if latest == nil || a.CreatedAt.After(*latest) {
			t := a.CreatedAt
			latest = &t
		}
	}
	return latest, nil
}

func (r *InMemRepository) count(identifier string, since time.Time, keep func(LoginAttempt) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, a := range r.attempts {
		if a.Identifier == identifier && a.CreatedAt.After(since) && keep(a) {
			n++
		}
	}
	return n
}
