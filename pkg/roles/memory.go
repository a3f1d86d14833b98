package roles

import (
	"context"
	"sync"
	"time"
)

// MemoryProvider is a deterministic in-memory Provider for tests. It
// mirrors the live provider's contract, including its error taxonomy, and
// adds error-injection and latency hooks.
type MemoryProvider struct {
	mu sync.RWMutex

	// guild -> user -> role ids
	members map[string]map[string][]string
	// guild -> defined role ids
	guildRoles map[string]map[string]struct{}

	nextErr    error
	persistErr error
	delay      time.Duration

	verifyCalls int
}

// NewMemoryProvider creates an empty test double.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		members:    make(map[string]map[string][]string),
		guildRoles: make(map[string]map[string]struct{}),
	}
}

// AddGuild registers a guild with its defined roles.
func (p *MemoryProvider) AddGuild(guildID string, roleIDs ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.members[guildID]; !ok {
		p.members[guildID] = make(map[string][]string)
	}
	if _, ok := p.guildRoles[guildID]; !ok {
		p.guildRoles[guildID] = make(map[string]struct{})
	}
	for _, r := range roleIDs {
		p.guildRoles[guildID][r] = struct{}{}
	}
}

// SetMemberRoles seeds a member's role snapshot. The guild is created if
// needed.
func (p *MemoryProvider) SetMemberRoles(guildID, userID string, roleIDs ...string) {
	p.AddGuild(guildID, roleIDs...)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.members[guildID][userID] = append([]string(nil), roleIDs...)
}

// FailNextWith makes the next call return err, then clears.
func (p *MemoryProvider) FailNextWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextErr = err
}

// FailWith makes every call return err until cleared.
func (p *MemoryProvider) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.persistErr = err
}

// ClearFailures removes injected errors.
func (p *MemoryProvider) ClearFailures() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextErr = nil
	p.persistErr = nil
}

// SetDelay makes every call block for d (or until the context ends),
// for timeout tests.
func (p *MemoryProvider) SetDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = d
}

// VerifyCalls returns the number of Verify invocations that reached the
// lookup path, for single-flight assertions.
func (p *MemoryProvider) VerifyCalls() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.verifyCalls
}

func (p *MemoryProvider) before(ctx context.Context) error {
	p.mu.Lock()
	delay := p.delay
	err := p.persistErr
	if p.nextErr != nil {
		err = p.nextErr
		p.nextErr = nil
	}
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return &Error{Code: CodeTimeout, Message: "platform request timed out", Retryable: true}
		}
	}
	return err
}

// Verify implements Provider.
func (p *MemoryProvider) Verify(ctx context.Context, guildID, userID string, requiredRoleIDs []string) (*Result, error) {
	if err := validateVerifyArgs(requiredRoleIDs); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.verifyCalls++
	p.mu.Unlock()

	if err := p.before(ctx); err != nil {
		return nil, err
	}

	userRoles, err := p.lookupRoles(guildID, userID)
	if err != nil {
		return nil, err
	}
	return buildResult(userRoles, requiredRoleIDs), nil
}

// ListRoles implements Provider.
func (p *MemoryProvider) ListRoles(ctx context.Context, guildID, userID string) ([]string, error) {
	if err := p.before(ctx); err != nil {
		return nil, err
	}
	return p.lookupRoles(guildID, userID)
}

// RoleExists implements Provider.
func (p *MemoryProvider) RoleExists(ctx context.Context, guildID, roleID string) (bool, error) {
	if err := p.before(ctx); err != nil {
		return false, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	defined, ok := p.guildRoles[guildID]
	if !ok {
		return false, &Error{Code: CodeGuildNotFound, Message: "guild not found", Retryable: false}
	}
	_, exists := defined[roleID]
	return exists, nil
}

func (p *MemoryProvider) lookupRoles(guildID, userID string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	guild, ok := p.members[guildID]
	if !ok {
		return nil, &Error{Code: CodeGuildNotFound, Message: "guild not found", Retryable: false}
	}
	memberRoles, ok := guild[userID]
	if !ok {
		return nil, &Error{Code: CodeUserNotFound, Message: "member not found", Retryable: false}
	}
	return append([]string(nil), memberRoles...), nil
}
