package securityevent

import (
	"context"
)

// Repository stores security events. Events are never updated or deleted.
type Repository interface {
	Create(ctx context.Context, event SecurityEvent) (SecurityEvent, error)
	Count(ctx context.Context, filter Filter) (int, error)
	// List returns matching events, newest first.
	List(ctx context.Context, filter Filter) ([]SecurityEvent, error)
}
