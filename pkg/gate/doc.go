// Package gate is the subscription-gated access-control core.
//
// # Decision order
//
// CheckAccess resolves in strict order: input validation, configuration
// lookup, open-access bypass, fresh verification cache, live provider,
// stale-cache fallback. Every branch that cannot positively establish
// access denies; there is no allow-by-default path.
//
// # Degradation
//
// The provider call runs under a 500 ms timeout. When it fails and a
// retained (possibly expired) cache entry exists, the entry's prior
// outcome is served with Degraded set; with nothing retained the check
// denies with verification_unavailable.
//
// # Usage Example
//
//	g := gate.New(configs, provider, cache, denials, logger)
//
//	d := g.CheckAccess(ctx, guildID, userID)
//	if !d.HasAccess {
//		g.LogDenialEvent(ctx, &audit.DenialEvent{
//			GuildID:          guildID,
//			UserID:           userID,
//			CommandAttempted: "signals",
//			Reason:           string(d.Reason),
//			RequiredRoleIDs:  d.RequiredRoleIDs,
//		})
//	}
package gate
