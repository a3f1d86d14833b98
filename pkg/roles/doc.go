// Package roles verifies a guild member's roles against a required
// subscriber role set.
//
// Two implementations share the Provider interface: APIProvider talks to
// the chat platform's REST API under a 500 ms request budget, and
// MemoryProvider is a deterministic in-memory double with error-injection
// hooks for tests. The gate consumes only the interface.
//
// Provider failures carry a machine-readable code and a Retryable flag:
// timeouts, rate limits and 5xx responses are retryable; unknown guilds or
// members and permission failures are not.
package roles
