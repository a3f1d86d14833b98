package guildconfig

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/gatekeeper/pkg/identifier"
)

// AccessMode controls how the gate treats commands in a guild.
type AccessMode string

const (
	// AccessModeOpen allows every member without verification.
	AccessModeOpen AccessMode = "open_access"
	// AccessModeSubscription requires the member to hold at least one of
	// the configured subscriber roles.
	AccessModeSubscription AccessMode = "subscription_required"
)

// Valid reports whether m is a known access mode.
func (m AccessMode) Valid() bool {
	return m == AccessModeOpen || m == AccessModeSubscription
}

// Config is the per-guild access configuration. Exactly one active record
// exists per guild; the guild id is immutable after creation.
type Config struct {
	GuildID         string     `json:"guild_id"`
	AccessMode      AccessMode `json:"access_mode"`
	RequiredRoleIDs []string   `json:"required_role_ids"`
	IsActive        bool       `json:"is_active"`
	ModifiedBy      string     `json:"modified_by"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Update is a partial configuration change. Nil fields are left unchanged.
// The guild id is deliberately absent: it cannot be changed.
type Update struct {
	AccessMode      *AccessMode
	RequiredRoleIDs *[]string
	IsActive        *bool
}

// Service manages per-guild access configuration records.
type Service interface {
	// Get returns the guild's configuration, or (nil, nil) when no record
	// exists. Absence is not an error.
	Get(ctx context.Context, guildID string) (*Config, error)

	// Create stores a new configuration for the guild. It fails with
	// ErrAlreadyExists when a record is already present.
	Create(ctx context.Context, guildID string, mode AccessMode, requiredRoleIDs []string, modifiedBy string) (*Config, error)

	// Update applies a partial change to an existing record, revalidating
	// the merged result. It fails with ErrNotFound when the guild has no
	// record.
	Update(ctx context.Context, guildID string, update Update, modifiedBy string) (*Config, error)

	// Exists reports whether the guild has a configuration record.
	Exists(ctx context.Context, guildID string) (bool, error)
}

var (
	// ErrAlreadyExists is returned by Create when the guild already has a
	// configuration record.
	ErrAlreadyExists = errors.New("guild configuration already exists")

	// ErrNotFound is returned by Update when the guild has no
	// configuration record to modify.
	ErrNotFound = errors.New("guild configuration not found")
)

// StoreError wraps a backing-store failure. All infrastructure failures
// surface as this single kind so callers can fail closed without
// inspecting driver errors.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("config store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsStoreError reports whether err is a backing-store failure.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// validateRecord checks identifier formats and the mode/role consistency
// rule before any store access.
func validateRecord(guildID string, mode AccessMode, requiredRoleIDs []string, modifiedBy string) error {
	if err := identifier.Validate(guildID, "guild_id"); err != nil {
		return err
	}
	if err := identifier.Validate(modifiedBy, "modified_by"); err != nil {
		return err
	}
	if !mode.Valid() {
		return fmt.Errorf("unknown access mode %q", mode)
	}
	if err := identifier.ValidateAll(requiredRoleIDs, "required_role_ids"); err != nil {
		return err
	}
	if mode == AccessModeSubscription && len(requiredRoleIDs) == 0 {
		return fmt.Errorf("subscription_required needs at least one role id")
	}
	return nil
}
