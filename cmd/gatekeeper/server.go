package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/gate"
	"github.com/platinummonkey/gatekeeper/pkg/guildconfig"
	"github.com/platinummonkey/gatekeeper/pkg/httputil"
	"github.com/platinummonkey/gatekeeper/pkg/identifier"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/verifycache"
)

// Server is the admin/debug HTTP surface around the gate. The bot's
// command path calls the gate in-process; this surface exists for
// operators and the guild-admin configuration flow.
type Server struct {
	gate    *gate.Gate
	configs guildconfig.Service
	cache   *verifycache.Cache
	denials audit.Store
	logger  *observability.Logger
}

// NewServer creates the admin HTTP server.
func NewServer(g *gate.Gate, configs guildconfig.Service, cache *verifycache.Cache, denials audit.Store, logger *observability.Logger) *Server {
	return &Server{
		gate:    g,
		configs: configs,
		cache:   cache,
		denials: denials,
		logger:  logger,
	}
}

// Routes builds the router with all endpoints and middleware.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(httputil.RequestIDMiddleware)
	r.Use(httputil.RecoveryMiddleware(s.logger))
	r.Use(httputil.LoggingMiddleware(s.logger))

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/access/check", s.handleCheckAccess).Methods(http.MethodPost)
	v1.HandleFunc("/guilds/{guildID}/config", s.handleGetConfig).Methods(http.MethodGet)
	v1.HandleFunc("/guilds/{guildID}/config", s.handleCreateConfig).Methods(http.MethodPost)
	v1.HandleFunc("/guilds/{guildID}/config", s.handleUpdateConfig).Methods(http.MethodPut)
	v1.HandleFunc("/guilds/{guildID}/members/{userID}/verification", s.handleInvalidateVerification).Methods(http.MethodDelete)
	v1.HandleFunc("/guilds/{guildID}/denials", s.handleQueryDenials).Methods(http.MethodGet)
	v1.HandleFunc("/denials", s.handleLogDenial).Methods(http.MethodPost)

	return r
}

type checkAccessRequest struct {
	GuildID string `json:"guild_id"`
	UserID  string `json:"user_id"`
}

// handleCheckAccess runs one access decision. The response is always 200
// with the decision body; denial is not an HTTP error.
func (s *Server) handleCheckAccess(w http.ResponseWriter, r *http.Request) {
	var req checkAccessRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	decision := s.gate.CheckAccess(r.Context(), req.GuildID, req.UserID)
	httputil.WriteSuccess(w, decision)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	guildID, ok := httputil.ParsePathStringOrError(w, r, "guildID")
	if !ok {
		return
	}

	cfg, err := s.configs.Get(r.Context(), guildID)
	if err != nil {
		s.logger.WithError(err).WithField("guild_id", guildID).Error("config read failed")
		httputil.WriteInternalError(w, err)
		return
	}
	if cfg == nil {
		httputil.WriteNotFoundError(w, "guild is not configured")
		return
	}
	httputil.WriteSuccess(w, cfg)
}

type createConfigRequest struct {
	AccessMode      guildconfig.AccessMode `json:"access_mode"`
	RequiredRoleIDs []string               `json:"required_role_ids"`
	ModifiedBy      string                 `json:"modified_by"`
}

func (s *Server) handleCreateConfig(w http.ResponseWriter, r *http.Request) {
	guildID, ok := httputil.ParsePathStringOrError(w, r, "guildID")
	if !ok {
		return
	}

	var req createConfigRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	cfg, err := s.configs.Create(r.Context(), guildID, req.AccessMode, req.RequiredRoleIDs, req.ModifiedBy)
	if err != nil {
		s.writeConfigError(w, guildID, err)
		return
	}
	httputil.WriteCreated(w, cfg)
}

type updateConfigRequest struct {
	AccessMode      *guildconfig.AccessMode `json:"access_mode"`
	RequiredRoleIDs *[]string               `json:"required_role_ids"`
	IsActive        *bool                   `json:"is_active"`
	ModifiedBy      string                  `json:"modified_by"`
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	guildID, ok := httputil.ParsePathStringOrError(w, r, "guildID")
	if !ok {
		return
	}

	var req updateConfigRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	cfg, err := s.configs.Update(r.Context(), guildID, guildconfig.Update{
		AccessMode:      req.AccessMode,
		RequiredRoleIDs: req.RequiredRoleIDs,
		IsActive:        req.IsActive,
	}, req.ModifiedBy)
	if err != nil {
		s.writeConfigError(w, guildID, err)
		return
	}

	// A changed gate must apply within the verification TTL; dropping the
	// guild's cached verifications makes it immediate.
	if removed, err := s.cache.InvalidateGuild(r.Context(), guildID); err != nil {
		s.logger.WithError(err).WithField("guild_id", guildID).Warn("verification invalidation failed after config update")
	} else if removed > 0 {
		s.logger.WithFields(map[string]interface{}{
			"guild_id": guildID,
			"removed":  removed,
		}).Info("dropped cached verifications after config update")
	}

	httputil.WriteSuccess(w, cfg)
}

func (s *Server) writeConfigError(w http.ResponseWriter, guildID string, err error) {
	switch {
	case identifier.IsInvalidInput(err):
		httputil.WriteValidationError(w, err.Error())
	case errors.Is(err, guildconfig.ErrAlreadyExists):
		httputil.WriteConflict(w, "guild is already configured")
	case errors.Is(err, guildconfig.ErrNotFound):
		httputil.WriteNotFoundError(w, "guild is not configured")
	case guildconfig.IsStoreError(err):
		s.logger.WithError(err).WithField("guild_id", guildID).Error("config write failed")
		httputil.WriteInternalError(w, err)
	default:
		httputil.WriteValidationError(w, err.Error())
	}
}

func (s *Server) handleInvalidateVerification(w http.ResponseWriter, r *http.Request) {
	guildID, ok := httputil.ParsePathStringOrError(w, r, "guildID")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathStringOrError(w, r, "userID")
	if !ok {
		return
	}

	if err := s.gate.InvalidateCache(r.Context(), guildID, userID); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleQueryDenials(w http.ResponseWriter, r *http.Request) {
	guildID, ok := httputil.ParsePathStringOrError(w, r, "guildID")
	if !ok {
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	filters := &audit.Filters{
		GuildID: guildID,
		UserID:  httputil.ParseQueryString(r, "user_id", ""),
		Reason:  httputil.ParseQueryString(r, "reason", ""),
		Limit:   limit,
	}
	if since := httputil.ParseQueryString(r, "since", ""); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			httputil.WriteValidationError(w, "since must be RFC 3339")
			return
		}
		filters.Since = t
	}

	events, err := s.denials.Query(r.Context(), filters)
	if err != nil {
		s.logger.WithError(err).WithField("guild_id", guildID).Error("denial query failed")
		httputil.WriteInternalError(w, err)
		return
	}
	if events == nil {
		events = []*audit.DenialEvent{}
	}
	httputil.WriteSuccess(w, events)
}

func (s *Server) handleLogDenial(w http.ResponseWriter, r *http.Request) {
	var event audit.DenialEvent
	if !httputil.ParseJSONOrError(w, r, &event) {
		return
	}

	stored, err := s.gate.LogDenialEvent(r.Context(), &event)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}
	if stored == nil {
		// The store rejected the write; auditing is best effort.
		w.WriteHeader(http.StatusAccepted)
		return
	}
	httputil.WriteCreated(w, stored)
}
