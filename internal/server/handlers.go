package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/Navneet-55/msmesolut/internal/agent"
	"github.com/Navneet-55/msmesolut/internal/requestctx"
	"github.com/Navneet-55/msmesolut/internal/secrets"
	"github.com/Navneet-55/msmesolut/internal/store"
	"github.com/Navneet-55/msmesolut/internal/tenant"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	dbStatus := "connected"
	if err := s.store.Ping(r.Context()); err != nil {
		log.Error().Err(err).Msg("health_database_unreachable")
		dbStatus = "disconnected"
	}
	latency := time.Since(start)

	status, code := "healthy", http.StatusOK
	if dbStatus != "connected" {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":      status,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"version":     s.version,
		"environment": s.environment,
		"uptime":      time.Since(s.startTime).String(),
		"checks": map[string]interface{}{
			"database": map[string]string{
				"status":  dbStatus,
				"latency": fmt.Sprintf("%dms", latency.Milliseconds()),
			},
		},
	})
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ready := s.store.Ping(r.Context()) == nil
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"ready":     ready,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":     s.version,
		"name":        "Lumina AI",
		"description": "Intelligent Business Operations, Illuminated",
		"environment": s.environment,
	})
}

type agentRunRequest struct {
	AgentType string         `json:"agentType"`
	Input     map[string]any `json:"input"`
	EntityID  string         `json:"entityId"`
}

func (s *Server) handleAgentRun(w http.ResponseWriter, r *http.Request) {
	var req agentRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	if req.Input == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "input is required")
		return
	}
	orgID := requestctx.OrganizationID(r.Context())
	userID := requestctx.UserID(r.Context())

	if s.tenantManager != nil {
		if err := s.tenantManager.CheckRunQuota(r.Context(), orgID); err != nil {
			if errors.Is(err, tenant.ErrDailyRunLimitExceeded) {
				w.Header().Set("Retry-After", "3600")
				writeError(w, http.StatusTooManyRequests, "run_quota_exceeded", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal", err.Error())
			return
		}
	}
	plan, err := s.plan(r.Context(), orgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), runTimeout)
	defer cancel()
	res, err := s.dispatcher.Run(ctx, agent.RunRequest{
		OrganizationID: orgID,
		Plan:           plan,
		UserID:         userID,
		AgentType:      req.AgentType,
		Input:          req.Input,
		EntityID:       req.EntityID,
	})
	if err != nil {
		writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// writeRunError maps dispatcher errors to status codes. Failures after the run
// record exists carry its id.
func writeRunError(w http.ResponseWriter, err error) {
	var execErr *agent.ExecutionError
	switch {
	case errors.Is(err, agent.ErrUnknownAgentType):
		writeError(w, http.StatusBadRequest, "unknown_agent_type", err.Error())
	case errors.Is(err, agent.ErrPolicyDenied):
		writeError(w, http.StatusForbidden, "policy_denied", err.Error())
	case errors.Is(err, agent.ErrCircuitOpen):
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusServiceUnavailable, "agent_unavailable", err.Error())
	case errors.As(err, &execErr):
		status, code := http.StatusBadRequest, "agent_execution_failed"
		var notFound *agent.NotFoundError
		if errors.As(err, &notFound) {
			status, code = http.StatusNotFound, "not_found"
		}
		writeJSON(w, status, map[string]string{
			"error":   code,
			"message": execErr.Error(),
			"run_id":  execErr.RunID,
		})
	default:
		log.Error().Err(err).Msg("agent_run_error")
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

// plan resolves the organization's plan for the access policy.
func (s *Server) plan(ctx context.Context, orgID string) (string, error) {
	if s.tenantManager != nil {
		return s.tenantManager.Plan(ctx, orgID)
	}
	org, err := s.store.GetOrganization(ctx, orgID)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return org.Plan, nil
}

func (s *Server) handleAgentsDescribe(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agents": s.dispatcher.Registry().Describe(),
	})
}

func (s *Server) handleRunsList(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	runs, err := s.dispatcher.ListRuns(r.Context(),
		requestctx.OrganizationID(r.Context()), r.URL.Query().Get("agentType"), limit)
	if err != nil {
		if errors.Is(err, agent.ErrUnknownAgentType) {
			writeError(w, http.StatusBadRequest, "unknown_agent_type", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRunGet(w http.ResponseWriter, r *http.Request) {
	run, err := s.dispatcher.GetRun(r.Context(), requestctx.OrganizationID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "not_found", "Agent run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.Dashboard(r.Context(), requestctx.OrganizationID(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	page, ok := queryInt(w, r, "page")
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	p, err := s.store.Activity(r.Context(), requestctx.OrganizationID(r.Context()), page, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleNotificationsList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	items, err := s.store.ListNotifications(ctx, requestctx.OrganizationID(ctx), requestctx.UserID(ctx))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleNotificationRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.store.MarkNotificationRead(r.Context(), requestctx.OrganizationID(r.Context()), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "Notification not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "read": true})
}

func (s *Server) handleIntegrationsList(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListIntegrations(r.Context(), requestctx.OrganizationID(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	for i := range items {
		items[i].Config = secrets.MaskConfig(items[i].Config)
	}
	writeJSON(w, http.StatusOK, items)
}

type integrationRequest struct {
	Name   string         `json:"name"`
	Type   string         `json:"type"`
	Status string         `json:"status"`
	Config map[string]any `json:"config"`
}

func (s *Server) handleIntegrationCreate(w http.ResponseWriter, r *http.Request) {
	var req integrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	if req.Name == "" || req.Type == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name and type are required")
		return
	}
	in := &store.Integration{
		OrganizationID: requestctx.OrganizationID(r.Context()),
		Name:           req.Name,
		Type:           req.Type,
		Status:         req.Status,
		Config:         req.Config,
	}
	if s.sealer != nil {
		sealed, err := s.sealer.SealConfig(req.Config)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error())
			return
		}
		in.Config = sealed
	}
	if err := s.store.CreateIntegration(r.Context(), in); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	in.Config = secrets.MaskConfig(in.Config)
	writeJSON(w, http.StatusCreated, in)
}

// queryInt parses an optional integer query parameter. Absent yields 0.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", name+" must be an integer")
		return 0, false
	}
	return n, true
}
