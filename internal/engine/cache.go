package engine

import (
	"context"
	"time"

	"github.com/blueherons/stattracker/pkg/models"
)

// viewKind identifies one independently cached derived view.
type viewKind string

const (
	viewLevel        viewKind = "level"
	viewStats        viewKind = "stats"
	viewBadges       viewKind = "badges"
	viewTokens       viewKind = "tokens"
	viewUpdateTime   viewKind = "update_time"
	viewHasSubmitted viewKind = "has_submitted"
	viewRatios       viewKind = "ratios"
	viewUpcoming     viewKind = "upcoming_badges"
)

// cacheEntry tags a cached value with its loaded state. A view kind
// with loaded=false (or absent) delegates to the backend on access.
type cacheEntry struct {
	loaded bool
	value  any
}

// AgentView is the request-scoped container for a resolved agent and
// its lazily cached derived views. Each view kind loads on first
// access, is refreshed on demand, and is replaced wholesale, never
// merged. AgentView is not shared between requests and is not safe
// for concurrent use; within one request all operations are
// sequential.
type AgentView struct {
	Agent models.Agent

	eng   *Engine
	cache map[viewKind]cacheEntry
}

// View creates a fresh AgentView for a resolved agent. A fresh
// resolution implies fresh (empty) caches.
func (e *Engine) View(agent models.Agent) *AgentView {
	return &AgentView{
		Agent: agent,
		eng:   e,
		cache: make(map[viewKind]cacheEntry),
	}
}

// InvalidateAll drops every cached view. Called after a successful
// submission, since level, stats, badges, and the update timestamp all
// depend on the write.
func (a *AgentView) InvalidateAll() {
	a.cache = make(map[viewKind]cacheEntry)
}

// cached returns the cached value for kind, loading it via load when
// it is missing, unloaded, or refresh is requested. The new value is
// stored before being returned, so a refresh fully replaces the prior
// value in one synchronous step.
func cached[T any](ctx context.Context, a *AgentView, kind viewKind, refresh bool, load func(ctx context.Context) (T, error)) (T, error) {
	if e, ok := a.cache[kind]; ok && e.loaded && !refresh {
		return e.value.(T), nil
	}

	v, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	a.cache[kind] = cacheEntry{loaded: true, value: v}
	return v, nil
}

// ── Cached accessors ────────────────────────────────────────

// Level returns the agent's current level.
func (a *AgentView) Level(ctx context.Context, refresh bool) (int, error) {
	return cached(ctx, a, viewLevel, refresh, func(ctx context.Context) (int, error) {
		return a.eng.level(ctx, a.Agent)
	})
}

// Stats returns the agent's latest stats snapshot. The 'ap' key is
// always present, zero when the agent has no data.
func (a *AgentView) Stats(ctx context.Context, refresh bool) (map[string]int64, error) {
	return cached(ctx, a, viewStats, refresh, func(ctx context.Context) (map[string]int64, error) {
		return a.eng.latestStats(ctx, a.Agent)
	})
}

// Stat returns a single stat value from the latest snapshot.
func (a *AgentView) Stat(ctx context.Context, stat string, refresh bool) (int64, error) {
	stats, err := a.Stats(ctx, refresh)
	if err != nil {
		return 0, err
	}
	return stats[stat], nil
}

// Badges returns the agent's earned badges.
func (a *AgentView) Badges(ctx context.Context, refresh bool) (models.BadgeSet, error) {
	return cached(ctx, a, viewBadges, refresh, func(ctx context.Context) (models.BadgeSet, error) {
		return a.eng.badges(ctx, a.Agent)
	})
}

// Tokens returns the names of the agent's non-revoked access tokens.
func (a *AgentView) Tokens(ctx context.Context, refresh bool) ([]string, error) {
	return cached(ctx, a, viewTokens, refresh, func(ctx context.Context) ([]string, error) {
		return a.eng.tokenNames(ctx, a.Agent)
	})
}

// UpdateTimestamp returns the time of the agent's most recent update,
// zero when the agent has never submitted.
func (a *AgentView) UpdateTimestamp(ctx context.Context, refresh bool) (time.Time, error) {
	return cached(ctx, a, viewUpdateTime, refresh, func(ctx context.Context) (time.Time, error) {
		ts, ok, err := a.eng.store.UpdateTimestamp(ctx, a.Agent.Name, nil)
		if err != nil || !ok {
			return time.Time{}, err
		}
		return ts, nil
	})
}

// HasSubmitted reports whether the agent has ever submitted stats.
func (a *AgentView) HasSubmitted(ctx context.Context, refresh bool) (bool, error) {
	return cached(ctx, a, viewHasSubmitted, refresh, func(ctx context.Context) (bool, error) {
		return a.eng.store.HasSubmitted(ctx, a.Agent.Name)
	})
}

// Ratios returns the agent's cross-stat ratios.
func (a *AgentView) Ratios(ctx context.Context, refresh bool) ([]models.RatioPair, error) {
	return cached(ctx, a, viewRatios, refresh, func(ctx context.Context) ([]models.RatioPair, error) {
		return a.eng.ratios(ctx, a.Agent)
	})
}

// UpcomingBadges returns the badges nearest to being earned, at most
// limit entries ordered by ascending days remaining.
func (a *AgentView) UpcomingBadges(ctx context.Context, limit int, refresh bool) ([]models.UpcomingBadge, error) {
	return cached(ctx, a, viewUpcoming, refresh, func(ctx context.Context) ([]models.UpcomingBadge, error) {
		return a.eng.upcomingBadges(ctx, a.Agent, limit)
	})
}

// ── Uncached pass-throughs ──────────────────────────────────
//
// Breakdown, prediction, graph, and trend views are computed fresh on
// every call; they are parameterized per request and were never part
// of the per-agent cache.

// Breakdown returns the AP breakdown over the given trailing window.
func (a *AgentView) Breakdown(ctx context.Context, daysBack int) (*models.Breakdown, error) {
	return a.eng.breakdown(ctx, a.Agent, daysBack)
}

// Prediction returns the badge prediction for one stat.
func (a *AgentView) Prediction(ctx context.Context, stat string) (*models.Prediction, error) {
	return a.eng.prediction(ctx, a.Agent, stat)
}

// GraphData returns the graph series for one stat, with its prediction.
func (a *AgentView) GraphData(ctx context.Context, stat string) (*models.GraphData, error) {
	return a.eng.graphData(ctx, a.Agent, stat)
}

// Trend returns the daily trend for a stat over "this-week" or
// "last-week".
func (a *AgentView) Trend(ctx context.Context, stat, when string) (*models.Trend, error) {
	return a.eng.trend(ctx, a.Agent, stat, when)
}

// Submit commits a batch of stat values for this agent and, on
// success, invalidates every cached view.
func (a *AgentView) Submit(ctx context.Context, values map[string]string, allowLower bool) (models.SubmitResult, error) {
	res, err := a.eng.Submit(ctx, a.Agent, values, allowLower)
	if err != nil {
		return res, err
	}
	if res.OK {
		a.InvalidateAll()
	}
	return res, nil
}
