// Package guildconfig manages per-guild access configuration for the
// gatekeeper.
//
// # Overview
//
// Each guild carries exactly one configuration record selecting its access
// mode: open_access (every member may run commands) or
// subscription_required (members must hold at least one of the configured
// subscriber roles). Records are stored in PostgreSQL, unique on guild id,
// and soft-disabled via is_active rather than deleted.
//
// # Caching
//
// CachedService layers an in-process expirable LRU over the Postgres
// service. Mutations invalidate exactly the mutated guild's entry, so a
// reconfiguration is visible to this replica immediately; the entry TTL
// bounds staleness for replicas that did not perform the write.
//
// # Usage Example
//
//	svc, err := guildconfig.NewPostgresService(db)
//	if err != nil {
//		return err
//	}
//	configs := guildconfig.NewCachedService(svc)
//
//	cfg, err := configs.Get(ctx, guildID)
//	if err != nil {
//		// backing store failure, fail closed upstream
//	}
//	if cfg == nil {
//		// guild not set up yet
//	}
//
// # Related Packages
//
//   - pkg/gate: consumes configuration during access checks
//   - pkg/identifier: guild/role identifier validation
package guildconfig
