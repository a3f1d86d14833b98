package audit

import (
	"context"
	"time"
)

// DenialEvent is an append-only audit record written once per denied
// access check. Events are never mutated and feed reporting only; the
// gate never reads them back to make decisions.
type DenialEvent struct {
	ID               string    `json:"id"`
	GuildID          string    `json:"guild_id"`
	UserID           string    `json:"user_id"`
	CommandAttempted string    `json:"command_attempted"`
	Reason           string    `json:"reason"`
	UserRoleIDs      []string  `json:"user_role_ids"`
	RequiredRoleIDs  []string  `json:"required_role_ids"`
	WasInformed      bool      `json:"was_informed"`
	CreatedAt        time.Time `json:"created_at"`
}

// Filters narrows a denial-event query. Zero values are ignored.
type Filters struct {
	GuildID string
	UserID  string
	Reason  string
	Since   time.Time
	Until   time.Time
	Limit   int
	Offset  int
}

// Store persists denial events.
type Store interface {
	// Insert appends one event. The event's ID and CreatedAt are expected
	// to be set by the caller.
	Insert(ctx context.Context, event *DenialEvent) error

	// Query returns events matching the filters, newest first.
	Query(ctx context.Context, filters *Filters) ([]*DenialEvent, error)
}
