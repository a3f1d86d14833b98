package roles

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Result is the outcome of a role verification.
type Result struct {
	// HasAccess is true iff the member holds at least one required role.
	HasAccess bool `json:"has_access"`
	// UserRoleIDs is the member's full role snapshot at verification time.
	UserRoleIDs []string `json:"user_role_ids"`
	// MatchingRoles is the intersection of the member's roles with the
	// required set, in required-set order.
	MatchingRoles []string `json:"matching_roles"`
	// VerifiedAt is when the verification was performed.
	VerifiedAt time.Time `json:"verified_at"`
	// Reason is set to ReasonNoSubscription when access is denied.
	Reason string `json:"reason,omitempty"`
}

// ReasonNoSubscription marks a verification that found none of the
// required roles.
const ReasonNoSubscription = "no_subscription"

// Provider verifies a guild member's roles against a required set. The
// live API client and the in-memory test double implement the same
// contract so the gate stays provider-agnostic.
type Provider interface {
	// Verify checks whether the member holds any of requiredRoleIDs.
	// requiredRoleIDs must be non-empty.
	Verify(ctx context.Context, guildID, userID string, requiredRoleIDs []string) (*Result, error)

	// ListRoles returns the member's current role ids.
	ListRoles(ctx context.Context, guildID, userID string) ([]string, error)

	// RoleExists reports whether the guild defines the given role.
	RoleExists(ctx context.Context, guildID, roleID string) (bool, error)
}

// Error codes raised by providers.
const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeGuildNotFound    = "GUILD_NOT_FOUND"
	CodeUserNotFound     = "USER_NOT_FOUND"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeTimeout          = "TIMEOUT"
	CodeAPIError         = "API_ERROR"
)

// Error is a machine-readable provider failure. Retryable distinguishes
// transient upstream conditions (timeouts, 5xx, rate limits) from
// permanent ones (unknown guild or member, missing permissions).
type Error struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsRetryable reports whether err is a provider error marked retryable.
func IsRetryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// ErrorCode returns the provider error code, or "" for other errors.
func ErrorCode(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// intersect returns the members of required that appear in userRoles,
// preserving required order. Membership is order-independent.
func intersect(userRoles, required []string) []string {
	if len(userRoles) == 0 || len(required) == 0 {
		return nil
	}

	held := make(map[string]struct{}, len(userRoles))
	for _, r := range userRoles {
		held[r] = struct{}{}
	}

	var matching []string
	for _, r := range required {
		if _, ok := held[r]; ok {
			matching = append(matching, r)
		}
	}
	return matching
}

// buildResult derives a Result from a role snapshot.
func buildResult(userRoles, required []string) *Result {
	matching := intersect(userRoles, required)
	res := &Result{
		HasAccess:     len(matching) > 0,
		UserRoleIDs:   userRoles,
		MatchingRoles: matching,
		VerifiedAt:    time.Now().UTC(),
	}
	if !res.HasAccess {
		res.Reason = ReasonNoSubscription
	}
	return res
}

func validateVerifyArgs(requiredRoleIDs []string) error {
	if len(requiredRoleIDs) == 0 {
		return &Error{Code: CodeInvalidInput, Message: "required role set is empty", Retryable: false}
	}
	return nil
}
