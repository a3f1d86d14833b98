package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/gate"
	"github.com/platinummonkey/gatekeeper/pkg/guildconfig"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/roles"
	"github.com/platinummonkey/gatekeeper/pkg/verifycache"
)

const (
	testGuildID = "123456789012345678"
	testUserID  = "876543210987654321"
	testRoleID  = "111111111111111111"
)

type fakeConfigService struct {
	configs map[string]*guildconfig.Config
}

func newFakeConfigService() *fakeConfigService {
	return &fakeConfigService{configs: make(map[string]*guildconfig.Config)}
}

func (f *fakeConfigService) Get(ctx context.Context, guildID string) (*guildconfig.Config, error) {
	return f.configs[guildID], nil
}

func (f *fakeConfigService) Create(ctx context.Context, guildID string, mode guildconfig.AccessMode, roleIDs []string, modifiedBy string) (*guildconfig.Config, error) {
	if _, ok := f.configs[guildID]; ok {
		return nil, guildconfig.ErrAlreadyExists
	}
	cfg := &guildconfig.Config{
		GuildID:         guildID,
		AccessMode:      mode,
		RequiredRoleIDs: roleIDs,
		IsActive:        true,
		ModifiedBy:      modifiedBy,
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
	f.configs[guildID] = cfg
	return cfg, nil
}

func (f *fakeConfigService) Update(ctx context.Context, guildID string, update guildconfig.Update, modifiedBy string) (*guildconfig.Config, error) {
	cfg, ok := f.configs[guildID]
	if !ok {
		return nil, guildconfig.ErrNotFound
	}
	if update.AccessMode != nil {
		cfg.AccessMode = *update.AccessMode
	}
	if update.RequiredRoleIDs != nil {
		cfg.RequiredRoleIDs = *update.RequiredRoleIDs
	}
	if update.IsActive != nil {
		cfg.IsActive = *update.IsActive
	}
	cfg.ModifiedBy = modifiedBy
	cfg.UpdatedAt = time.Now().UTC()
	return cfg, nil
}

func (f *fakeConfigService) Exists(ctx context.Context, guildID string) (bool, error) {
	_, ok := f.configs[guildID]
	return ok, nil
}

type fakeDenialStore struct {
	events []*audit.DenialEvent
	err    error
}

func (f *fakeDenialStore) Insert(ctx context.Context, event *audit.DenialEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeDenialStore) Query(ctx context.Context, filters *audit.Filters) ([]*audit.DenialEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*audit.DenialEvent
	for _, e := range f.events {
		if filters.GuildID != "" && e.GuildID != filters.GuildID {
			continue
		}
		if filters.UserID != "" && e.UserID != filters.UserID {
			continue
		}
		if filters.Reason != "" && e.Reason != filters.Reason {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

type serverHarness struct {
	server   *Server
	configs  *fakeConfigService
	provider *roles.MemoryProvider
	cache    *verifycache.Cache
	denials  *fakeDenialStore
}

func newServerHarness(t *testing.T) *serverHarness {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	cache := verifycache.New(client)

	configs := newFakeConfigService()
	provider := roles.NewMemoryProvider()
	denials := &fakeDenialStore{}
	logger := observability.NewLogger(observability.ErrorLevel, nil)

	g := gate.New(configs, provider, cache, denials, logger)

	return &serverHarness{
		server:   NewServer(g, configs, cache, denials, logger),
		configs:  configs,
		provider: provider,
		cache:    cache,
		denials:  denials,
	}
}

func (h *serverHarness) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.server.Routes().ServeHTTP(w, req)
	return w
}

func TestHandleCheckAccess(t *testing.T) {
	t.Run("denial is still a 200", func(t *testing.T) {
		h := newServerHarness(t)

		w := h.do(t, http.MethodPost, "/v1/access/check", checkAccessRequest{
			GuildID: testGuildID,
			UserID:  testUserID,
		})
		require.Equal(t, http.StatusOK, w.Code)

		var d gate.Decision
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
		assert.False(t, d.HasAccess)
		assert.Equal(t, gate.ReasonConfigNotFound, d.Reason)
	})

	t.Run("grant", func(t *testing.T) {
		h := newServerHarness(t)
		h.configs.configs[testGuildID] = &guildconfig.Config{
			GuildID:    testGuildID,
			AccessMode: guildconfig.AccessModeOpen,
			IsActive:   true,
		}

		w := h.do(t, http.MethodPost, "/v1/access/check", checkAccessRequest{
			GuildID: testGuildID,
			UserID:  testUserID,
		})
		require.Equal(t, http.StatusOK, w.Code)

		var d gate.Decision
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
		assert.True(t, d.HasAccess)
		assert.Equal(t, gate.ReasonOpenAccess, d.Reason)
	})

	t.Run("malformed body", func(t *testing.T) {
		h := newServerHarness(t)
		req := httptest.NewRequest(http.MethodPost, "/v1/access/check", bytes.NewReader([]byte("{")))
		w := httptest.NewRecorder()
		h.server.Routes().ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleConfigLifecycle(t *testing.T) {
	h := newServerHarness(t)
	path := "/v1/guilds/" + testGuildID + "/config"

	// Unconfigured guild
	w := h.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Create
	w = h.do(t, http.MethodPost, path, createConfigRequest{
		AccessMode:      guildconfig.AccessModeSubscription,
		RequiredRoleIDs: []string{testRoleID},
		ModifiedBy:      testUserID,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	// Duplicate create conflicts
	w = h.do(t, http.MethodPost, path, createConfigRequest{
		AccessMode:      guildconfig.AccessModeSubscription,
		RequiredRoleIDs: []string{testRoleID},
		ModifiedBy:      testUserID,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Read back
	w = h.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cfg guildconfig.Config
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	assert.Equal(t, guildconfig.AccessModeSubscription, cfg.AccessMode)

	// Update
	open := guildconfig.AccessModeOpen
	w = h.do(t, http.MethodPut, path, updateConfigRequest{
		AccessMode: &open,
		ModifiedBy: testUserID,
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	assert.Equal(t, guildconfig.AccessModeOpen, cfg.AccessMode)

	// Update of an unconfigured guild
	w = h.do(t, http.MethodPut, "/v1/guilds/999999999999999999/config", updateConfigRequest{
		AccessMode: &open,
		ModifiedBy: testUserID,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleUpdateConfigInvalidatesVerifications(t *testing.T) {
	h := newServerHarness(t)
	ctx := context.Background()

	h.configs.configs[testGuildID] = &guildconfig.Config{
		GuildID:         testGuildID,
		AccessMode:      guildconfig.AccessModeSubscription,
		RequiredRoleIDs: []string{testRoleID},
		IsActive:        true,
	}
	_, err := h.cache.Set(ctx, testGuildID, testUserID, true, nil)
	require.NoError(t, err)

	open := guildconfig.AccessModeOpen
	w := h.do(t, http.MethodPut, "/v1/guilds/"+testGuildID+"/config", updateConfigRequest{
		AccessMode: &open,
		ModifiedBy: testUserID,
	})
	require.Equal(t, http.StatusOK, w.Code)

	entry, err := h.cache.GetAny(ctx, testGuildID, testUserID)
	require.NoError(t, err)
	assert.Nil(t, entry, "cached verifications must be dropped on config change")
}

func TestHandleInvalidateVerification(t *testing.T) {
	h := newServerHarness(t)
	ctx := context.Background()

	_, err := h.cache.Set(ctx, testGuildID, testUserID, true, nil)
	require.NoError(t, err)

	w := h.do(t, http.MethodDelete, "/v1/guilds/"+testGuildID+"/members/"+testUserID+"/verification", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	entry, err := h.cache.GetAny(ctx, testGuildID, testUserID)
	require.NoError(t, err)
	assert.Nil(t, entry)

	// Malformed ids are rejected
	w = h.do(t, http.MethodDelete, "/v1/guilds/nope/members/"+testUserID+"/verification", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleDenials(t *testing.T) {
	h := newServerHarness(t)

	// Record a denial through the gate
	w := h.do(t, http.MethodPost, "/v1/denials", &audit.DenialEvent{
		GuildID:          testGuildID,
		UserID:           testUserID,
		CommandAttempted: "signals",
		Reason:           string(gate.ReasonNoSubscription),
		WasInformed:      true,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var stored audit.DenialEvent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stored))
	assert.NotEmpty(t, stored.ID)

	// Query it back
	w = h.do(t, http.MethodGet, "/v1/guilds/"+testGuildID+"/denials?reason=no_subscription", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var events []*audit.DenialEvent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "signals", events[0].CommandAttempted)

	// No matches is an empty list, not null
	w = h.do(t, http.MethodGet, "/v1/guilds/"+testGuildID+"/denials?reason=configuration_inactive", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	// Invalid reason enum on write
	w = h.do(t, http.MethodPost, "/v1/denials", &audit.DenialEvent{
		GuildID:          testGuildID,
		UserID:           testUserID,
		CommandAttempted: "signals",
		Reason:           "invented",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleDenialsStoreFailure(t *testing.T) {
	h := newServerHarness(t)
	h.denials.err = errors.New("disk full")

	w := h.do(t, http.MethodPost, "/v1/denials", &audit.DenialEvent{
		GuildID:          testGuildID,
		UserID:           testUserID,
		CommandAttempted: "signals",
		Reason:           string(gate.ReasonNoSubscription),
	})
	assert.Equal(t, http.StatusAccepted, w.Code)
}
