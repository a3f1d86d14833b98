package verifycache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// DefaultTTL is how long a verification outcome counts as fresh.
	DefaultTTL = 60 * time.Second

	// DefaultRetention is how long an entry stays readable in Redis after
	// it goes logically stale. Stale entries feed the degradation path
	// when the live provider is down; the Redis key TTL is the sweep that
	// finally removes them.
	DefaultRetention = 10 * time.Minute
)

// Entry is a cached verification outcome for one (guild, user) pair.
// Freshness is decided against ExpiresAt, not against the Redis key TTL.
type Entry struct {
	GuildID    string    `json:"guild_id"`
	UserID     string    `json:"user_id"`
	HasAccess  bool      `json:"has_access"`
	RoleIDs    []string  `json:"role_ids"`
	VerifiedAt time.Time `json:"verified_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the entry is logically stale.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Cache is a Redis-backed verification cache shared across gate replicas.
type Cache struct {
	client    *redis.Client
	ttl       time.Duration
	retention time.Duration
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides the freshness window.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithRetention overrides how long stale entries remain readable.
func WithRetention(retention time.Duration) Option {
	return func(c *Cache) { c.retention = retention }
}

// New creates a Cache on top of an existing Redis client.
func New(client *redis.Client, opts ...Option) *Cache {
	c := &Cache{
		client:    client,
		ttl:       DefaultTTL,
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retention < c.ttl {
		c.retention = c.ttl
	}
	return c
}

// Dial connects to Redis at the given URL and returns a Cache over it.
func Dial(redisURL string, opts ...Option) (*Cache, error) {
	ropts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	ropts.DialTimeout = 5 * time.Second
	ropts.ReadTimeout = 3 * time.Second
	ropts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(ropts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return New(client, opts...), nil
}

// TTL returns the freshness window.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Client exposes the underlying Redis client for health checks.
func (c *Cache) Client() *redis.Client {
	return c.client
}

// Close closes the underlying Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

func key(guildID, userID string) string {
	return fmt.Sprintf("verify:%s:%s", guildID, userID)
}

// Get returns the entry only while fresh. Logically expired entries and
// absent keys both report a miss (nil, nil).
func (c *Cache) Get(ctx context.Context, guildID, userID string) (*Entry, error) {
	entry, err := c.GetAny(ctx, guildID, userID)
	if err != nil || entry == nil {
		return nil, err
	}
	if entry.Expired(time.Now()) {
		return nil, nil
	}
	return entry, nil
}

// GetAny returns the entry regardless of logical expiry, for the stale
// fallback. Returns (nil, nil) when no entry is retained.
func (c *Cache) GetAny(ctx context.Context, guildID, userID string) (*Entry, error) {
	k := key(guildID, userID)

	data, err := c.client.Get(ctx, k).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		// Corrupt data is useless; drop it and report a miss.
		c.client.Del(ctx, k)
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}

	return &entry, nil
}

// Set records a verification outcome, overwriting any prior entry for the
// pair. Last writer wins; entries are idempotently derived from the
// latest verification.
func (c *Cache) Set(ctx context.Context, guildID, userID string, hasAccess bool, roleIDs []string) (*Entry, error) {
	now := time.Now().UTC()
	entry := &Entry{
		GuildID:    guildID,
		UserID:     userID,
		HasAccess:  hasAccess,
		RoleIDs:    roleIDs,
		VerifiedAt: now,
		ExpiresAt:  now.Add(c.ttl),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := c.client.Set(ctx, key(guildID, userID), data, c.retention).Err(); err != nil {
		return nil, fmt.Errorf("redis set failed: %w", err)
	}

	return entry, nil
}

// Delete removes a single entry.
func (c *Cache) Delete(ctx context.Context, guildID, userID string) error {
	if err := c.client.Del(ctx, key(guildID, userID)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// InvalidateGuild removes every retained entry for the guild, used when
// the guild is reconfigured. Returns the number of entries removed.
func (c *Cache) InvalidateGuild(ctx context.Context, guildID string) (int, error) {
	var removed int
	var cursor uint64
	pattern := fmt.Sprintf("verify:%s:*", guildID)

	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return removed, fmt.Errorf("redis scan failed: %w", err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("redis del failed: %w", err)
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return removed, nil
}
