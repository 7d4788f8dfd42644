// Package handlers implements the HTTP handlers for the Stat Tracker
// API. All handlers resolve the agent from the auth-code path segment
// and answer 404 for credentials that do not resolve.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/blueherons/stattracker/internal/auth"
	"github.com/blueherons/stattracker/internal/engine"
	"github.com/blueherons/stattracker/internal/identity"
	"github.com/blueherons/stattracker/pkg/models"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Engine   *engine.Engine
	Resolver *identity.Resolver
	Auth     *auth.Chain
	Version  string
}

// New creates a Handlers instance with all dependencies.
func New(eng *engine.Engine, res *identity.Resolver, chain *auth.Chain, version string) *Handlers {
	return &Handlers{Engine: eng, Resolver: res, Auth: chain, Version: version}
}

// resolveView resolves the auth-code path segment to a request-scoped
// agent view. A nil return means the response has been written.
func (h *Handlers) resolveView(w http.ResponseWriter, r *http.Request) *engine.AgentView {
	agent, err := h.Resolver.ResolveByCredential(r.Context(), chi.URLParam(r, "authCode"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "agent resolution failed")
		return nil
	}
	if !agent.Valid() {
		respondError(w, http.StatusNotFound, "unknown agent")
		return nil
	}
	return h.Engine.View(agent)
}

// ── Agent profile ───────────────────────────────────────────

// agentProfile mirrors the publicly visible agent profile.
type agentProfile struct {
	Name         string          `json:"name"`
	Faction      models.Faction  `json:"faction"`
	Level        int             `json:"level"`
	AP           int64           `json:"ap"`
	HasSubmitted bool            `json:"has_submitted"`
	Updated      int64           `json:"updated"`
	Tokens       []string        `json:"tokens"`
}

func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	view := h.resolveView(w, r)
	if view == nil {
		return
	}
	ctx := r.Context()

	profile := agentProfile{Name: view.Agent.Name, Faction: view.Agent.Faction}

	var err error
	if profile.Level, err = view.Level(ctx, false); err != nil {
		respondViewError(w, r, err)
		return
	}
	if profile.AP, err = view.Stat(ctx, "ap", false); err != nil {
		respondViewError(w, r, err)
		return
	}
	if profile.HasSubmitted, err = view.HasSubmitted(ctx, false); err != nil {
		respondViewError(w, r, err)
		return
	}
	ts, err := view.UpdateTimestamp(ctx, false)
	if err != nil {
		respondViewError(w, r, err)
		return
	}
	if !ts.IsZero() {
		profile.Updated = ts.Unix()
	}
	if profile.Tokens, err = view.Tokens(ctx, false); err != nil {
		respondViewError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, profile)
}

// ── Badges ──────────────────────────────────────────────────

func (h *Handlers) GetBadges(w http.ResponseWriter, r *http.Request) {
	view := h.resolveView(w, r)
	if view == nil {
		return
	}

	what := chi.URLParam(r, "what")
	switch what {
	case "", "current":
		badges, err := view.Badges(r.Context(), false)
		if err != nil {
			respondViewError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, badges)
	case "upcoming":
		limit := engine.DefaultUpcomingLimit
		if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
			limit = v
		}
		upcoming, err := view.UpcomingBadges(r.Context(), limit, false)
		if err != nil {
			respondViewError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, upcoming)
	default:
		respondError(w, http.StatusBadRequest, "unknown badge view: "+what)
	}
}

// ── Ratios ──────────────────────────────────────────────────

func (h *Handlers) GetRatios(w http.ResponseWriter, r *http.Request) {
	view := h.resolveView(w, r)
	if view == nil {
		return
	}
	ratios, err := view.Ratios(r.Context(), false)
	if err != nil {
		respondViewError(w, r, err)
		return
	}
	if ratios == nil {
		ratios = []models.RatioPair{}
	}
	respondJSON(w, http.StatusOK, ratios)
}

// ── Per-stat views ──────────────────────────────────────────

func (h *Handlers) GetStatView(w http.ResponseWriter, r *http.Request) {
	view := h.resolveView(w, r)
	if view == nil {
		return
	}
	ctx := r.Context()
	stat := chi.URLParam(r, "stat")

	switch chi.URLParam(r, "view") {
	case "breakdown":
		daysBack, _ := strconv.Atoi(r.URL.Query().Get("days_back"))
		data, err := view.Breakdown(ctx, daysBack)
		if err != nil {
			respondViewError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, data)

	case "prediction":
		data, err := view.Prediction(ctx, stat)
		if err != nil {
			respondViewError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, data)

	case "graph":
		data, err := view.GraphData(ctx, stat)
		if err != nil {
			respondViewError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, data)

	case "trend":
		data, err := view.Trend(ctx, stat, chi.URLParam(r, "when"))
		if err != nil {
			respondViewError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, data)

	case "", "raw":
		value, err := view.Stat(ctx, stat, false)
		if err != nil {
			respondViewError(w, r, err)
			return
		}
		ts, err := view.UpdateTimestamp(ctx, false)
		if err != nil {
			respondViewError(w, r, err)
			return
		}
		var updated int64
		if !ts.IsZero() {
			updated = ts.Unix()
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"value":     value,
			"timestamp": updated,
		})

	default:
		respondError(w, http.StatusBadRequest, "unknown view")
	}
}

// ── Submission ──────────────────────────────────────────────

func (h *Handlers) SubmitStats(w http.ResponseWriter, r *http.Request) {
	view := h.resolveView(w, r)
	if view == nil {
		return
	}

	// Values arrive as JSON strings or numbers; decoding numbers as
	// json.Number keeps their decimal form (float64 would render large
	// values in scientific notation) before they coerce through the
	// engine's sanitizer.
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	allowLower, _ := strconv.ParseBool(r.URL.Query().Get("allow_lower"))

	values := make(map[string]string, len(body))
	for stat, v := range body {
		values[stat] = fmt.Sprint(v)
	}

	result, err := view.Submit(r.Context(), values, allowLower)
	if err != nil {
		respondViewError(w, r, err)
		return
	}
	if !result.OK {
		respondJSON(w, http.StatusConflict, result)
		return
	}

	log.Info().Str("agent", view.Agent.Name).Int("stats", len(values)).Msg("stats submitted")
	respondJSON(w, http.StatusOK, result)
}

// ── Tokens ──────────────────────────────────────────────────

func (h *Handlers) ListTokens(w http.ResponseWriter, r *http.Request) {
	view := h.resolveView(w, r)
	if view == nil {
		return
	}
	names, err := view.Tokens(r.Context(), true)
	if err != nil {
		respondViewError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	respondJSON(w, http.StatusOK, names)
}

func (h *Handlers) CreateToken(w http.ResponseWriter, r *http.Request) {
	view := h.resolveView(w, r)
	if view == nil {
		return
	}

	secret, created, err := h.Resolver.CreateToken(r.Context(), view.Agent.Name, chi.URLParam(r, "name"))
	if err != nil {
		respondViewError(w, r, err)
		return
	}
	if !created {
		respondError(w, http.StatusConflict, "token already exists")
		return
	}
	// The secret is returned exactly once.
	respondJSON(w, http.StatusCreated, map[string]string{"token": secret})
}

func (h *Handlers) RevokeToken(w http.ResponseWriter, r *http.Request) {
	view := h.resolveView(w, r)
	if view == nil {
		return
	}

	revoked, err := h.Resolver.RevokeToken(r.Context(), view.Agent.Name, chi.URLParam(r, "name"))
	if err != nil {
		respondViewError(w, r, err)
		return
	}
	if !revoked {
		respondError(w, http.StatusNotFound, "no such token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}

// ── Authentication ──────────────────────────────────────────

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	respondAuth(w, h.Auth.Login(r.Context(), r))
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	respondAuth(w, h.Auth.Logout(r.Context(), r))
}

func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	respondAuth(w, h.Auth.Callback(r.Context(), r, r.URL.Query().Get("provider")))
}

func respondAuth(w http.ResponseWriter, resp *auth.Response) {
	status := http.StatusOK
	if resp.Error {
		status = http.StatusBadGateway
	}
	respondJSON(w, status, resp)
}

// ── Response helpers ────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondViewError hides backend details from clients; the full error
// goes to the log.
func respondViewError(w http.ResponseWriter, r *http.Request, err error) {
	log.Error().Err(err).Str("path", r.URL.Path).Msg("view request failed")
	respondError(w, http.StatusInternalServerError, "computation failed")
}
