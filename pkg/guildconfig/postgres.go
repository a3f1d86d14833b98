package guildconfig

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/platinummonkey/gatekeeper/pkg/identifier"
)

// PostgresService implements Service using PostgreSQL.
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a PostgresService and ensures the backing
// table exists.
func NewPostgresService(db *sql.DB) (*PostgresService, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	s := &PostgresService{db: db}
	if err := s.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure guild_configs table: %w", err)
	}
	return s, nil
}

func (s *PostgresService) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS guild_configs (
		id BIGSERIAL PRIMARY KEY,
		guild_id VARCHAR(19) NOT NULL UNIQUE,
		access_mode VARCHAR(30) NOT NULL,
		required_role_ids TEXT[] NOT NULL DEFAULT '{}',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		modified_by VARCHAR(19) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_guild_configs_guild_id ON guild_configs(guild_id);
	`

	_, err := s.db.Exec(query)
	return err
}

// Get retrieves a guild's configuration. Returns (nil, nil) when absent.
func (s *PostgresService) Get(ctx context.Context, guildID string) (*Config, error) {
	if err := validateGuildID(guildID); err != nil {
		return nil, err
	}

	query := `
		SELECT guild_id, access_mode, required_role_ids, is_active, modified_by, created_at, updated_at
		FROM guild_configs
		WHERE guild_id = $1
	`

	cfg := &Config{}
	err := s.db.QueryRowContext(ctx, query, guildID).Scan(
		&cfg.GuildID,
		&cfg.AccessMode,
		pq.Array(&cfg.RequiredRoleIDs),
		&cfg.IsActive,
		&cfg.ModifiedBy,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreError{Op: "get", Err: err}
	}

	return cfg, nil
}

// Create stores a new configuration record for the guild.
func (s *PostgresService) Create(ctx context.Context, guildID string, mode AccessMode, requiredRoleIDs []string, modifiedBy string) (*Config, error) {
	if err := validateRecord(guildID, mode, requiredRoleIDs, modifiedBy); err != nil {
		return nil, err
	}

	if mode == AccessModeOpen {
		requiredRoleIDs = nil
	}

	cfg := &Config{
		GuildID:         guildID,
		AccessMode:      mode,
		RequiredRoleIDs: requiredRoleIDs,
		IsActive:        true,
		ModifiedBy:      modifiedBy,
	}

	query := `
		INSERT INTO guild_configs (guild_id, access_mode, required_role_ids, is_active, modified_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	err := s.db.QueryRowContext(ctx, query,
		cfg.GuildID, cfg.AccessMode, pq.Array(cfg.RequiredRoleIDs), cfg.IsActive, cfg.ModifiedBy,
	).Scan(&cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, &StoreError{Op: "create", Err: err}
	}

	return cfg, nil
}

// Update applies a partial update to an existing record and revalidates
// the merged result before writing.
func (s *PostgresService) Update(ctx context.Context, guildID string, update Update, modifiedBy string) (*Config, error) {
	if err := validateGuildID(guildID); err != nil {
		return nil, err
	}

	current, err := s.Get(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrNotFound
	}

	merged := *current
	if update.AccessMode != nil {
		merged.AccessMode = *update.AccessMode
	}
	if update.RequiredRoleIDs != nil {
		merged.RequiredRoleIDs = *update.RequiredRoleIDs
	}
	if update.IsActive != nil {
		merged.IsActive = *update.IsActive
	}
	merged.ModifiedBy = modifiedBy

	if err := validateRecord(merged.GuildID, merged.AccessMode, merged.RequiredRoleIDs, merged.ModifiedBy); err != nil {
		return nil, err
	}
	if merged.AccessMode == AccessModeOpen {
		merged.RequiredRoleIDs = nil
	}

	query := `
		UPDATE guild_configs
		SET access_mode = $2, required_role_ids = $3, is_active = $4, modified_by = $5, updated_at = NOW()
		WHERE guild_id = $1
		RETURNING updated_at
	`

	err = s.db.QueryRowContext(ctx, query,
		merged.GuildID, merged.AccessMode, pq.Array(merged.RequiredRoleIDs), merged.IsActive, merged.ModifiedBy,
	).Scan(&merged.UpdatedAt)
	if err == sql.ErrNoRows {
		// Deleted between read and write. Treat as missing.
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StoreError{Op: "update", Err: err}
	}

	return &merged, nil
}

// Exists reports whether a configuration record exists for the guild.
func (s *PostgresService) Exists(ctx context.Context, guildID string) (bool, error) {
	if err := validateGuildID(guildID); err != nil {
		return false, err
	}

	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM guild_configs WHERE guild_id = $1)", guildID).Scan(&exists)
	if err != nil {
		return false, &StoreError{Op: "exists", Err: err}
	}
	return exists, nil
}

func validateGuildID(guildID string) error {
	return identifier.Validate(guildID, "guild_id")
}

// isUniqueViolation checks for the PostgreSQL unique_violation code.
func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
