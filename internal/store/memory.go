package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/blueherons/stattracker/pkg/models"
)

// MemoryStore is a thread-safe in-memory implementation of Store used
// by tests. Data points and tokens behave like the real tables; the
// aggregation operations return rows scripted by the test via the
// Set* helpers, and every backend call is counted so tests can assert
// on cache behavior.
type MemoryStore struct {
	mu sync.RWMutex

	agents map[string]agentRecord  // key: agent name
	emails map[string]string       // email → agent name
	tokens []*models.Token
	data   map[string]models.DataPoint // key: agent|date|stat

	// scripted aggregation rows
	breakdownRows  map[string][]models.BreakdownRow   // key: agent
	levels         map[string]int                     // key: agent|date
	badgeRows      map[string][]models.BadgeRow       // key: agent|date
	predictionRows map[string]*models.PredictionRow   // key: agent|stat
	ratioRows      map[string][]models.RatioRow       // key: agent
	upcomingRows   map[string][]models.UpcomingBadgeRow
	trendRows      map[string][]models.TrendRow // key: agent|stat
	graphRows      map[string]*models.GraphRows // key: agent|stat

	calls map[string]int
}

type agentRecord struct {
	name    string
	email   string
	faction models.Faction
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents:         make(map[string]agentRecord),
		emails:         make(map[string]string),
		data:           make(map[string]models.DataPoint),
		breakdownRows:  make(map[string][]models.BreakdownRow),
		levels:         make(map[string]int),
		badgeRows:      make(map[string][]models.BadgeRow),
		predictionRows: make(map[string]*models.PredictionRow),
		ratioRows:      make(map[string][]models.RatioRow),
		upcomingRows:   make(map[string][]models.UpcomingBadgeRow),
		trendRows:      make(map[string][]models.TrendRow),
		graphRows:      make(map[string]*models.GraphRows),
		calls:          make(map[string]int),
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
func (s *MemoryStore) Close() error               { return nil }
func (s *MemoryStore) Migrate(context.Context) error {
	return nil
}

func dpKey(agent string, date time.Time, stat string) string {
	return agent + "|" + models.DateOnly(date).Format("2006-01-02") + "|" + stat
}

func dateKey(agent string, date time.Time) string {
	return agent + "|" + models.DateOnly(date).Format("2006-01-02")
}

func (s *MemoryStore) count(op string) {
	s.calls[op]++
}

// CallCount returns how many times the named backend operation ran.
func (s *MemoryStore) CallCount(op string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[op]
}

// ── Agents ──────────────────────────────────────────────────

// AddAgent registers an agent for tests.
func (s *MemoryStore) AddAgent(name, email string, faction models.Faction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[name] = agentRecord{name: name, email: email, faction: faction}
	s.emails[email] = name
}

func (s *MemoryStore) GetAgentByEmail(_ context.Context, email string) (*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name, ok := s.emails[email]
	if !ok {
		return nil, &ErrNotFound{Entity: "agent", Key: email}
	}
	rec := s.agents[name]
	return &models.Agent{Name: rec.name, Faction: rec.faction}, nil
}

func (s *MemoryStore) GetAgentByToken(_ context.Context, secret string) (*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tokens {
		if t.Secret == secret && !t.Revoked {
			rec, ok := s.agents[t.Agent]
			if !ok {
				break
			}
			return &models.Agent{Name: rec.name, Faction: rec.faction, Token: secret}, nil
		}
	}
	return nil, &ErrNotFound{Entity: "agent", Key: "token"}
}

// ── Tokens ──────────────────────────────────────────────────

func (s *MemoryStore) ListTokens(_ context.Context, agent string) ([]models.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Token
	for _, t := range s.tokens {
		if t.Agent == agent && !t.Revoked {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) GetToken(_ context.Context, agent, name string) (*models.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tokens {
		if t.Agent == agent && t.Name == name && !t.Revoked {
			cp := *t
			return &cp, nil
		}
	}
	return nil, &ErrNotFound{Entity: "token", Key: agent + "/" + name}
}

func (s *MemoryStore) CreateToken(_ context.Context, token *models.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tokens {
		if t.Agent == token.Agent && t.Name == token.Name && !t.Revoked {
			return fmt.Errorf("token %s/%s already exists", token.Agent, token.Name)
		}
	}
	cp := *token
	if cp.Created.IsZero() {
		cp.Created = time.Now().UTC()
	}
	s.tokens = append(s.tokens, &cp)
	return nil
}

func (s *MemoryStore) RevokeToken(_ context.Context, agent, name, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tokens {
		if t.Agent == agent && t.Name == name && !t.Revoked {
			t.Revoked = true
			t.Name = newName
			return nil
		}
	}
	return &ErrNotFound{Entity: "token", Key: agent + "/" + name}
}

func (s *MemoryStore) TouchToken(_ context.Context, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tokens {
		if t.Secret == secret {
			t.LastUsed = time.Now().UTC()
			return nil
		}
	}
	return nil
}

// ── Data points ─────────────────────────────────────────────

func (s *MemoryStore) AnchorDate(_ context.Context, agent string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var min time.Time
	found := false
	for _, dp := range s.data {
		if dp.Agent != agent {
			continue
		}
		if !found || dp.Date.Before(min) {
			min = dp.Date
			found = true
		}
	}
	return min, found, nil
}

func (s *MemoryStore) LatestSubmissionDate(_ context.Context, agent string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest models.DataPoint
	found := false
	for _, dp := range s.data {
		if dp.Agent != agent {
			continue
		}
		if !found || dp.Updated.After(latest.Updated) {
			latest = dp
			found = true
		}
	}
	return latest.Date, found, nil
}

func (s *MemoryStore) UpdateTimestamp(_ context.Context, agent string, date *time.Time) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var max time.Time
	found := false
	for _, dp := range s.data {
		if dp.Agent != agent {
			continue
		}
		if date != nil && !dp.Date.Equal(models.DateOnly(*date)) {
			continue
		}
		if !found || dp.Updated.After(max) {
			max = dp.Updated
			found = true
		}
	}
	return max, found, nil
}

func (s *MemoryStore) HasSubmitted(_ context.Context, agent string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, dp := range s.data {
		if dp.Agent == agent && dp.Stat == "ap" {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) GetStats(_ context.Context, agent string, date time.Time) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int64)
	day := models.DateOnly(date)
	for _, dp := range s.data {
		if dp.Agent == agent && dp.Date.Equal(day) {
			stats[dp.Stat] = dp.Value
		}
	}
	return stats, nil
}

// GetDataPoint returns the stored data point for a key, for test
// assertions.
func (s *MemoryStore) GetDataPoint(agent string, date time.Time, stat string) (models.DataPoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dp, ok := s.data[dpKey(agent, date, stat)]
	return dp, ok
}

// SubmitTx stages all writes and applies them only when fn succeeds,
// mirroring the all-or-nothing transaction of the SQL store.
func (s *MemoryStore) SubmitTx(_ context.Context, fn func(tx DataTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memDataTx{store: s, pending: make(map[string]models.DataPoint)}
	if err := fn(tx); err != nil {
		return err
	}
	for k, dp := range tx.pending {
		s.data[k] = dp
	}
	return nil
}

type memDataTx struct {
	store   *MemoryStore
	pending map[string]models.DataPoint
}

func (t *memDataTx) CurrentValue(_ context.Context, agent string, date time.Time, stat string) (int64, bool, error) {
	key := dpKey(agent, date, stat)
	if dp, ok := t.pending[key]; ok {
		return dp.Value, true, nil
	}
	if dp, ok := t.store.data[key]; ok {
		return dp.Value, true, nil
	}
	return 0, false, nil
}

func (t *memDataTx) UpsertDataPoint(_ context.Context, dp models.DataPoint, guard bool) error {
	key := dpKey(dp.Agent, dp.Date, dp.Stat)
	if guard {
		if cur, ok, _ := t.CurrentValue(context.Background(), dp.Agent, dp.Date, dp.Stat); ok && cur > dp.Value {
			return ErrStaleWrite
		}
	}
	dp.Date = models.DateOnly(dp.Date)
	dp.Updated = time.Now().UTC()
	t.pending[key] = dp
	return nil
}

// ── Scripted aggregation backend ────────────────────────────

func (s *MemoryStore) SetBreakdown(agent string, rows []models.BreakdownRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakdownRows[agent] = rows
}

func (s *MemoryStore) SetLevel(agent string, date time.Time, level int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels[dateKey(agent, date)] = level
}

func (s *MemoryStore) SetBadges(agent string, date time.Time, rows []models.BadgeRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.badgeRows[dateKey(agent, date)] = rows
}

func (s *MemoryStore) SetPrediction(agent, stat string, row *models.PredictionRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.predictionRows[agent+"|"+stat] = row
}

func (s *MemoryStore) SetRatios(agent string, rows []models.RatioRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ratioRows[agent] = rows
}

func (s *MemoryStore) SetUpcomingBadges(agent string, rows []models.UpcomingBadgeRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upcomingRows[agent] = rows
}

func (s *MemoryStore) SetDailyTrend(agent, stat string, rows []models.TrendRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trendRows[agent+"|"+stat] = rows
}

func (s *MemoryStore) SetGraph(agent, stat string, rows *models.GraphRows) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graphRows[agent+"|"+stat] = rows
}

func (s *MemoryStore) APBreakdown(_ context.Context, agent string, _ int) ([]models.BreakdownRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("breakdown")
	return s.breakdownRows[agent], nil
}

func (s *MemoryStore) Level(_ context.Context, agent string, date time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("level")
	level, ok := s.levels[dateKey(agent, date)]
	if !ok {
		return 0, ErrNoResult
	}
	return level, nil
}

func (s *MemoryStore) Badges(_ context.Context, agent string, date time.Time) ([]models.BadgeRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("badges")
	return s.badgeRows[dateKey(agent, date)], nil
}

func (s *MemoryStore) BadgePrediction(_ context.Context, agent, stat string) (*models.PredictionRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("prediction")
	row, ok := s.predictionRows[agent+"|"+stat]
	if !ok {
		return nil, ErrNoResult
	}
	cp := *row
	return &cp, nil
}

func (s *MemoryStore) Ratios(_ context.Context, agent string) ([]models.RatioRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("ratios")

	// The SQL store filters null badges in the query; mirror that here.
	var out []models.RatioRow
	for _, r := range s.ratioRows[agent] {
		if r.Badge1 != "" && r.Badge2 != "" {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpcomingBadges(_ context.Context, agent string, limit int) ([]models.UpcomingBadgeRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("upcoming")

	rows := append([]models.UpcomingBadgeRow(nil), s.upcomingRows[agent]...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].DaysRemaining < rows[j].DaysRemaining })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *MemoryStore) DailyTrend(_ context.Context, agent, stat string, start, end time.Time) ([]models.TrendRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("trend")

	var out []models.TrendRow
	for _, r := range s.trendRows[agent+"|"+stat] {
		day := models.DateOnly(r.Date)
		if !day.Before(models.DateOnly(start)) && !day.After(models.DateOnly(end)) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) GraphForStat(_ context.Context, agent, stat string) (*models.GraphRows, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("graph")

	rows, ok := s.graphRows[agent+"|"+stat]
	if !ok {
		return &models.GraphRows{}, nil
	}
	return rows, nil
}
