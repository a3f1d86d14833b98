package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates the store and ensures the backing table
// exists.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	s := &PostgresStore{db: db}
	if err := s.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure denial_events table: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS denial_events (
		id UUID PRIMARY KEY,
		guild_id VARCHAR(19) NOT NULL,
		user_id VARCHAR(19) NOT NULL,
		command_attempted TEXT NOT NULL,
		reason VARCHAR(50) NOT NULL,
		user_role_ids TEXT[] NOT NULL DEFAULT '{}',
		required_role_ids TEXT[] NOT NULL DEFAULT '{}',
		was_informed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_denial_events_guild_id ON denial_events(guild_id);
	CREATE INDEX IF NOT EXISTS idx_denial_events_created_at ON denial_events(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_denial_events_reason ON denial_events(reason);
	`

	_, err := s.db.Exec(query)
	return err
}

// Insert appends one denial event.
func (s *PostgresStore) Insert(ctx context.Context, event *DenialEvent) error {
	query := `
		INSERT INTO denial_events (id, guild_id, user_id, command_attempted, reason,
			user_role_ids, required_role_ids, was_informed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.GuildID,
		event.UserID,
		event.CommandAttempted,
		event.Reason,
		pq.Array(event.UserRoleIDs),
		pq.Array(event.RequiredRoleIDs),
		event.WasInformed,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert denial event: %w", err)
	}
	return nil
}

// Query returns matching events, newest first.
func (s *PostgresStore) Query(ctx context.Context, filters *Filters) ([]*DenialEvent, error) {
	if filters == nil {
		filters = &Filters{}
	}

	query := `
		SELECT id, guild_id, user_id, command_attempted, reason,
			user_role_ids, required_role_ids, was_informed, created_at
		FROM denial_events
		WHERE 1=1
	`
	args := []interface{}{}
	argNum := 1

	if filters.GuildID != "" {
		query += fmt.Sprintf(" AND guild_id = $%d", argNum)
		args = append(args, filters.GuildID)
		argNum++
	}
	if filters.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argNum)
		args = append(args, filters.UserID)
		argNum++
	}
	if filters.Reason != "" {
		query += fmt.Sprintf(" AND reason = $%d", argNum)
		args = append(args, filters.Reason)
		argNum++
	}
	if !filters.Since.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argNum)
		args = append(args, filters.Since)
		argNum++
	}
	if !filters.Until.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argNum)
		args = append(args, filters.Until)
		argNum++
	}

	query += " ORDER BY created_at DESC"

	limit := filters.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT $%d", argNum)
	args = append(args, limit)
	argNum++

	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filters.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query denial events: %w", err)
	}
	defer rows.Close()

	var events []*DenialEvent
	for rows.Next() {
		event := &DenialEvent{}
		err := rows.Scan(
			&event.ID,
			&event.GuildID,
			&event.UserID,
			&event.CommandAttempted,
			&event.Reason,
			pq.Array(&event.UserRoleIDs),
			pq.Array(&event.RequiredRoleIDs),
			&event.WasInformed,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan denial event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating denial events: %w", err)
	}

	return events, nil
}
