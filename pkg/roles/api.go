package roles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Platform JSON error codes for missing resources.
const (
	platformCodeUnknownGuild  = 10004
	platformCodeUnknownMember = 10007
	platformCodeUnknownUser   = 10013
)

// DefaultRequestTimeout bounds a single platform API call. The gate's
// cache-miss budget assumes Verify completes within this at p95.
const DefaultRequestTimeout = 500 * time.Millisecond

// APIProvider verifies roles against the chat platform's REST API.
type APIProvider struct {
	baseURL    string
	botToken   string
	httpClient *http.Client
}

// APIOption configures an APIProvider.
type APIOption func(*APIProvider)

// WithHTTPClient overrides the HTTP client, primarily for tests.
func WithHTTPClient(client *http.Client) APIOption {
	return func(p *APIProvider) { p.httpClient = client }
}

// WithRequestTimeout overrides the per-request timeout.
func WithRequestTimeout(timeout time.Duration) APIOption {
	return func(p *APIProvider) { p.httpClient.Timeout = timeout }
}

// NewAPIProvider creates a live provider talking to the platform API at
// baseURL, authenticated with the bot token.
func NewAPIProvider(baseURL, botToken string, opts ...APIOption) *APIProvider {
	p := &APIProvider{
		baseURL:  strings.TrimRight(baseURL, "/"),
		botToken: botToken,
		httpClient: &http.Client{
			Timeout: DefaultRequestTimeout,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Verify fetches the member's roles and intersects them with the required
// set.
func (p *APIProvider) Verify(ctx context.Context, guildID, userID string, requiredRoleIDs []string) (*Result, error) {
	if err := validateVerifyArgs(requiredRoleIDs); err != nil {
		return nil, err
	}

	userRoles, err := p.ListRoles(ctx, guildID, userID)
	if err != nil {
		return nil, err
	}

	return buildResult(userRoles, requiredRoleIDs), nil
}

// ListRoles returns the member's role ids from the guild member endpoint.
func (p *APIProvider) ListRoles(ctx context.Context, guildID, userID string) ([]string, error) {
	var member struct {
		Roles []string `json:"roles"`
	}
	path := fmt.Sprintf("/guilds/%s/members/%s", guildID, userID)
	if err := p.getJSON(ctx, path, &member); err != nil {
		return nil, err
	}
	return member.Roles, nil
}

// RoleExists checks the guild role list for the given role id.
func (p *APIProvider) RoleExists(ctx context.Context, guildID, roleID string) (bool, error) {
	var guildRoles []struct {
		ID string `json:"id"`
	}
	path := fmt.Sprintf("/guilds/%s/roles", guildID)
	if err := p.getJSON(ctx, path, &guildRoles); err != nil {
		return false, err
	}
	for _, r := range guildRoles {
		if r.ID == roleID {
			return true, nil
		}
	}
	return false, nil
}

func (p *APIProvider) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return &Error{Code: CodeAPIError, Message: err.Error(), Retryable: false}
	}
	req.Header.Set("Authorization", "Bot "+p.botToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return mapTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return mapStatusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Code: CodeAPIError, Message: "malformed response body", Retryable: false}
	}
	return nil
}

// mapTransportError classifies network-level failures. Timeouts and
// cancellations are retryable; the upstream may well answer next time.
func mapTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: CodeTimeout, Message: "platform request timed out", Retryable: true}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return &Error{Code: CodeTimeout, Message: "platform request timed out", Retryable: true}
	}
	return &Error{Code: CodeAPIError, Message: "platform request failed", Retryable: true}
}

// mapStatusError classifies non-200 responses using the status code and,
// for 404s, the platform's JSON error code to tell a missing guild from a
// missing member.
func mapStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		var apiErr struct {
			Code int `json:"code"`
		}
		_ = json.Unmarshal(body, &apiErr)
		switch apiErr.Code {
		case platformCodeUnknownGuild:
			return &Error{Code: CodeGuildNotFound, Message: "guild not found", Retryable: false}
		case platformCodeUnknownMember, platformCodeUnknownUser:
			return &Error{Code: CodeUserNotFound, Message: "member not found", Retryable: false}
		default:
			return &Error{Code: CodeUserNotFound, Message: "member not found", Retryable: false}
		}
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return &Error{Code: CodePermissionDenied, Message: "bot lacks permission", Retryable: false}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &Error{Code: CodeAPIError, Message: "rate limited", Retryable: true}
	case resp.StatusCode >= 500:
		return &Error{Code: CodeAPIError, Message: fmt.Sprintf("platform error: HTTP %d", resp.StatusCode), Retryable: true}
	default:
		return &Error{Code: CodeAPIError, Message: fmt.Sprintf("unexpected status: HTTP %d", resp.StatusCode), Retryable: false}
	}
}
