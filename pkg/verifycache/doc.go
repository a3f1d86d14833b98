// Package verifycache is the shared, Redis-backed cache of verification
// outcomes keyed by (guild, user).
//
// Entries are fresh for 60 seconds from verification (the ExpiresAt
// embedded in the payload). The Redis key TTL is set to a longer
// retention window, so an entry that has gone logically stale remains
// briefly retrievable: the gate reads it through GetAny as a degraded
// fallback when the live provider is unreachable. Redis expiry is the
// sweep that finally removes retained entries.
//
// This cache is deliberately separate from guildconfig's in-process read
// cache: configuration freshness is guaranteed by explicit invalidation
// on write, verification freshness by this TTL.
package verifycache
