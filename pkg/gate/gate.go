package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/guildconfig"
	"github.com/platinummonkey/gatekeeper/pkg/identifier"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/roles"
	"github.com/platinummonkey/gatekeeper/pkg/verifycache"
)

// DefaultProviderTimeout bounds the live verification call so a stuck
// upstream cannot drag an access check past its own budget.
const DefaultProviderTimeout = 500 * time.Millisecond

// VerificationCache is the slice of verifycache.Cache the gate needs.
type VerificationCache interface {
	Get(ctx context.Context, guildID, userID string) (*verifycache.Entry, error)
	GetAny(ctx context.Context, guildID, userID string) (*verifycache.Entry, error)
	Set(ctx context.Context, guildID, userID string, hasAccess bool, roleIDs []string) (*verifycache.Entry, error)
	Delete(ctx context.Context, guildID, userID string) error
}

// Gate decides, per command, whether a user in a guild may proceed. It is
// stateless and safe for concurrent use; all shared state lives in the
// configuration store and the verification cache.
type Gate struct {
	configs  guildconfig.Service
	provider roles.Provider
	cache    VerificationCache
	denials  audit.Store
	logger   *observability.Logger
	metrics  *observability.Metrics

	providerTimeout time.Duration
	singleFlight    bool
	group           singleflight.Group
}

// Option configures a Gate.
type Option func(*Gate)

// WithProviderTimeout overrides the verification call timeout.
func WithProviderTimeout(timeout time.Duration) Option {
	return func(g *Gate) { g.providerTimeout = timeout }
}

// WithoutSingleFlight disables collapsing of concurrent identical
// lookups. Collapsing is purely a load optimization; duplicate provider
// calls are harmless (idempotent, last write wins).
func WithoutSingleFlight() Option {
	return func(g *Gate) { g.singleFlight = false }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *observability.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// New creates a Gate over the given collaborators.
func New(configs guildconfig.Service, provider roles.Provider, cache VerificationCache, denials audit.Store, logger *observability.Logger, opts ...Option) *Gate {
	g := &Gate{
		configs:         configs,
		provider:        provider,
		cache:           cache,
		denials:         denials,
		logger:          logger,
		providerTimeout: DefaultProviderTimeout,
		singleFlight:    true,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return g
}

// CheckAccess decides whether userID may run commands in guildID. It
// always returns a Decision and never an error: ambiguous or failing
// states resolve to a denial.
func (g *Gate) CheckAccess(ctx context.Context, guildID, userID string) Decision {
	start := time.Now()

	// Step 1: input validation. No further work on malformed ids.
	if err := identifier.Validate(guildID, "guild_id"); err != nil {
		return g.finish(deny(ReasonInvalidGuildID), "invalid", start)
	}
	if err := identifier.Validate(userID, "user_id"); err != nil {
		return g.finish(deny(ReasonInvalidUserID), "invalid", start)
	}

	// Step 2: configuration lookup. Unreadable, missing and inactive all
	// fail closed.
	cfg, err := g.configs.Get(ctx, guildID)
	if err != nil {
		g.logger.WithError(err).WithField("guild_id", guildID).Error("configuration read failed")
		return g.finish(denyErr(ReasonVerificationError, err), "config_error", start)
	}
	if cfg == nil {
		return g.finish(deny(ReasonConfigNotFound), "unconfigured", start)
	}
	if !cfg.IsActive {
		return g.finish(deny(ReasonConfigInactive), "unconfigured", start)
	}

	// Step 3: open access bypasses the cache and the provider entirely.
	if cfg.AccessMode == guildconfig.AccessModeOpen {
		return g.finish(Decision{HasAccess: true, Reason: ReasonOpenAccess}, "open", start)
	}

	// Step 4: gated mode, fresh cache path. A cache read failure is a
	// miss, not a denial.
	entry, err := g.cache.Get(ctx, guildID, userID)
	if err != nil {
		g.logger.WithError(err).WithField("guild_id", guildID).Warn("verification cache read failed")
	}
	if entry != nil {
		g.recordCache("verification", true)
		return g.finish(g.cachedDecision(cfg, entry, false), "cache_hit", start)
	}
	g.recordCache("verification", false)

	// Step 5: provider path.
	result, err := g.verify(ctx, guildID, userID, cfg.RequiredRoleIDs)
	if err == nil {
		d := Decision{HasAccess: result.HasAccess, CacheHit: false}
		if result.HasAccess {
			d.Reason = ReasonVerified
		} else {
			d.Reason = ReasonNoSubscription
			d.RequiredRoleIDs = cfg.RequiredRoleIDs
		}
		return g.finish(d, "cache_miss", start)
	}

	g.logger.WithError(err).WithFields(map[string]interface{}{
		"guild_id": guildID,
		"user_id":  userID,
	}).Warn("role verification failed, trying stale cache")

	// Step 6: stale fallback. A retained entry, even expired, beats an
	// outage; with nothing retained the check fails closed.
	stale, staleErr := g.cache.GetAny(ctx, guildID, userID)
	if staleErr == nil && stale != nil {
		d := g.cachedDecision(cfg, stale, true)
		return g.finish(d, "degraded", start)
	}

	return g.finish(denyErr(ReasonVerificationUnavailable, err), "unavailable", start)
}

// verify calls the provider under the configured timeout, writing the
// outcome through to the cache on success. Concurrent identical lookups
// are collapsed unless disabled.
func (g *Gate) verify(ctx context.Context, guildID, userID string, requiredRoleIDs []string) (*roles.Result, error) {
	if !g.singleFlight {
		return g.verifyOnce(ctx, guildID, userID, requiredRoleIDs)
	}

	v, err, _ := g.group.Do(guildID+":"+userID, func() (interface{}, error) {
		return g.verifyOnce(ctx, guildID, userID, requiredRoleIDs)
	})
	if err != nil {
		return nil, err
	}
	return v.(*roles.Result), nil
}

func (g *Gate) verifyOnce(ctx context.Context, guildID, userID string, requiredRoleIDs []string) (*roles.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.providerTimeout)
	defer cancel()

	start := time.Now()
	result, err := g.provider.Verify(callCtx, guildID, userID, requiredRoleIDs)
	if g.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		g.metrics.ObserveProviderCall(status, time.Since(start))
	}
	if err != nil {
		return nil, err
	}

	// Best effort: a cache write failure must not change the decision.
	if _, err := g.cache.Set(ctx, guildID, userID, result.HasAccess, result.UserRoleIDs); err != nil {
		g.logger.WithError(err).WithFields(map[string]interface{}{
			"guild_id": guildID,
			"user_id":  userID,
		}).Warn("verification cache write failed")
	}

	return result, nil
}

// cachedDecision maps a cache entry onto a Decision.
func (g *Gate) cachedDecision(cfg *guildconfig.Config, entry *verifycache.Entry, stale bool) Decision {
	d := Decision{
		HasAccess: entry.HasAccess,
		CacheHit:  true,
		Degraded:  stale,
	}
	switch {
	case entry.HasAccess && stale:
		d.Reason = ReasonVerifiedStale
	case entry.HasAccess:
		d.Reason = ReasonVerified
	case stale:
		d.Reason = ReasonNoSubscriptionStale
	default:
		d.Reason = ReasonNoSubscription
	}
	if !entry.HasAccess {
		d.RequiredRoleIDs = cfg.RequiredRoleIDs
	}
	return d
}

// InvalidateCache drops one verification entry. Backing-store failures
// are logged and swallowed: a reconfiguration flow must not crash because
// eager invalidation failed, the TTL still bounds staleness.
func (g *Gate) InvalidateCache(ctx context.Context, guildID, userID string) error {
	if err := identifier.Validate(guildID, "guild_id"); err != nil {
		return err
	}
	if err := identifier.Validate(userID, "user_id"); err != nil {
		return err
	}

	if err := g.cache.Delete(ctx, guildID, userID); err != nil {
		g.logger.WithError(err).WithFields(map[string]interface{}{
			"guild_id": guildID,
			"user_id":  userID,
		}).Warn("verification cache invalidation failed")
	}
	return nil
}

// LogDenialEvent validates and persists one denial audit record. Input
// validation failures are returned, since they are caller bugs; store
// failures yield (nil, nil) because audit logging must never block the
// command path.
func (g *Gate) LogDenialEvent(ctx context.Context, event *audit.DenialEvent) (*audit.DenialEvent, error) {
	if event == nil {
		return nil, fmt.Errorf("denial event is required")
	}
	if err := identifier.Validate(event.GuildID, "guild_id"); err != nil {
		return nil, err
	}
	if err := identifier.Validate(event.UserID, "user_id"); err != nil {
		return nil, err
	}
	if event.CommandAttempted == "" {
		return nil, fmt.Errorf("command_attempted is required")
	}
	if !IsDenialReason(Reason(event.Reason)) {
		return nil, fmt.Errorf("unknown denial reason %q", event.Reason)
	}

	stored := *event
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	if stored.UserRoleIDs == nil {
		stored.UserRoleIDs = []string{}
	}
	if stored.RequiredRoleIDs == nil {
		stored.RequiredRoleIDs = []string{}
	}

	if err := g.denials.Insert(ctx, &stored); err != nil {
		g.logger.WithError(err).WithFields(map[string]interface{}{
			"guild_id": stored.GuildID,
			"user_id":  stored.UserID,
			"reason":   stored.Reason,
		}).Error("failed to persist denial event")
		return nil, nil
	}

	if g.metrics != nil {
		g.metrics.RecordDenialEvent(stored.Reason)
	}
	return &stored, nil
}

func (g *Gate) finish(d Decision, path string, start time.Time) Decision {
	if g.metrics != nil {
		g.metrics.ObserveAccessCheck(string(d.Reason), d.HasAccess, path, time.Since(start))
	}
	return d
}

func (g *Gate) recordCache(cache string, hit bool) {
	if g.metrics == nil {
		return
	}
	if hit {
		g.metrics.RecordCacheHit(cache)
	} else {
		g.metrics.RecordCacheMiss(cache)
	}
}
