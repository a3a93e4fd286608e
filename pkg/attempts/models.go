package attempts

import (
	"time"

	"github.com/google/uuid"
)

// LoginAttempt is one authentication attempt under an identifier. Attempts
// are immutable once created.
type LoginAttempt struct {
	ID         uuid.UUID `json:"id"`
	Identifier string    `json:"identifier"`
	Success    bool      `json:"success"`
	Email      string    `json:"email,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	// BlockedUntil is set only on the attempt that caused a block.
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
}
