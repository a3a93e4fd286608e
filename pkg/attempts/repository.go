package attempts

import (
	"context"
	"time"
)

// Repository is the attempt ledger. Every "since" bound is exclusive: an
// attempt created exactly at since is outside the window.
type Repository interface {
	Create(ctx context.Context, attempt LoginAttempt) (LoginAttempt, error)
	CountFailedSince(ctx context.Context, identifier string, since time.Time) (int, error)
	CountSince(ctx context.Context, identifier string, since time.Time) (int, error)
	DistinctEmailsSince(ctx context.Context, identifier string, since time.Time) (int, error)
	// ActiveBlock returns the latest BlockedUntil still after now, or nil.
	ActiveBlock(ctx context.Context, identifier string, now time.Time) (*time.Time, error)
	// LatestSuccess returns the time of the last successful attempt, or nil.
	LatestSuccess(ctx context.Context, identifier string) (*time.Time, error)
}
