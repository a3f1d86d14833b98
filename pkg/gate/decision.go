package gate

// Reason explains an access decision.
type Reason string

const (
	// Denial reasons.
	ReasonInvalidGuildID          Reason = "invalid_guild_id"
	ReasonInvalidUserID           Reason = "invalid_user_id"
	ReasonVerificationError       Reason = "verification_error"
	ReasonConfigNotFound          Reason = "configuration_not_found"
	ReasonConfigInactive          Reason = "configuration_inactive"
	ReasonNoSubscription          Reason = "no_subscription"
	ReasonNoSubscriptionStale     Reason = "no_subscription_stale"
	ReasonVerificationUnavailable Reason = "verification_unavailable"

	// Allow reasons.
	ReasonOpenAccess         Reason = "open_access"
	ReasonVerified           Reason = "verified_subscription"
	ReasonVerifiedStale      Reason = "verified_subscription_stale"
)

// denialReasons is the closed set accepted by LogDenialEvent.
var denialReasons = map[Reason]struct{}{
	ReasonInvalidGuildID:          {},
	ReasonInvalidUserID:           {},
	ReasonVerificationError:       {},
	ReasonConfigNotFound:          {},
	ReasonConfigInactive:          {},
	ReasonNoSubscription:          {},
	ReasonNoSubscriptionStale:     {},
	ReasonVerificationUnavailable: {},
}

// IsDenialReason reports whether r is a valid audit denial reason.
func IsDenialReason(r Reason) bool {
	_, ok := denialReasons[r]
	return ok
}

// Decision is the result of one access check. Callers always receive a
// Decision; errors encountered along the way are attached, never
// propagated, so the command path cannot be broken by infrastructure
// failures.
type Decision struct {
	// HasAccess is the gate's verdict. Every branch that cannot
	// positively establish access leaves it false.
	HasAccess bool `json:"has_access"`

	// Reason explains the verdict.
	Reason Reason `json:"reason"`

	// CacheHit is true when the verdict came from the verification
	// cache, fresh or stale.
	CacheHit bool `json:"cache_hit"`

	// Degraded is true when a stale cache entry was served because the
	// live verification path failed.
	Degraded bool `json:"degraded,omitempty"`

	// RequiredRoleIDs carries the guild's subscriber roles on a gated
	// denial, for caller-side messaging.
	RequiredRoleIDs []string `json:"required_role_ids,omitempty"`

	// Err is the underlying failure for verification_error and
	// verification_unavailable outcomes. Informational only.
	Err error `json:"-"`
}

func deny(reason Reason) Decision {
	return Decision{HasAccess: false, Reason: reason}
}

func denyErr(reason Reason, err error) Decision {
	return Decision{HasAccess: false, Reason: reason, Err: err}
}
