// Package models defines the core data types for the Stat Tracker:
// agents, access tokens, data points, and the derived views produced
// by the aggregation backend.
package models

import (
	"strings"
	"time"
)

// ── Agent ────────────────────────────────────────────────────

// Faction is one of the two player factions.
type Faction string

const (
	FactionEnlightened Faction = "E"
	FactionResistance  Faction = "R"
)

// placeholderName is the name carried by the invalid-agent sentinel.
const placeholderName = "Agent"

// Agent is the tracked subject. Agents are never persisted as objects;
// they are re-resolved from a credential or email on every request.
type Agent struct {
	Name    string  `json:"name"`
	Faction Faction `json:"faction"`

	// Token is the credential the agent was resolved with. It is empty
	// on the invalid sentinel.
	Token string `json:"token,omitempty"`
}

// InvalidAgent returns the null-object sentinel for a failed resolution.
// Callers must check Valid() before using a resolved agent.
func InvalidAgent() Agent {
	return Agent{Name: placeholderName}
}

// Valid reports whether this agent was successfully resolved. An agent
// with the placeholder name or no credential is the invalid sentinel.
func (a Agent) Valid() bool {
	return a.Name != "" && a.Name != placeholderName && a.Token != ""
}

// ── Tokens ───────────────────────────────────────────────────

// TokenWeb is the reserved purpose label for the web session token.
// Revoking it immediately issues a replacement.
const TokenWeb = "WEBAPP"

// Token is a named access credential owned by an agent. At most one
// non-revoked token exists per (agent, name); revocation renames the
// token with a timestamp suffix so the name can be reused.
type Token struct {
	Agent    string    `json:"-"`
	Name     string    `json:"name"`
	Secret   string    `json:"-"`
	Revoked  bool      `json:"-"`
	LastUsed time.Time `json:"-"`
	Created  time.Time `json:"-"`
}

// ── Data points ──────────────────────────────────────────────

// DataPoint is one (agent, date, stat) measurement. Timepoint is the
// 1-based day offset from the agent's earliest recorded date.
type DataPoint struct {
	Agent     string    `json:"agent"`
	Date      time.Time `json:"date"`
	Stat      string    `json:"stat"`
	Value     int64     `json:"value"`
	Timepoint int       `json:"timepoint"`
	Updated   time.Time `json:"updated"`
}

// DateOnly normalizes t to midnight UTC so (agent, date, stat) keys
// compare by calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ── Submission results ───────────────────────────────────────

// MonotonicityViolation reports a rejected submission: the submitted
// value for Stat was lower than the committed value. The whole batch
// is rolled back when this occurs.
type MonotonicityViolation struct {
	Stat      string `json:"stat"`
	Submitted int64  `json:"submitted"`
	Current   int64  `json:"current"`
}

// SubmitResult is the outcome of a stat submission. Exactly one of
// OK or Violation is meaningful.
type SubmitResult struct {
	OK        bool                   `json:"ok"`
	Violation *MonotonicityViolation `json:"violation,omitempty"`
	Message   string                 `json:"message,omitempty"`
}

// ── Raw aggregation rows (backend contract) ──────────────────

// BreakdownRow is one row of the AP breakdown aggregation.
type BreakdownRow struct {
	Name     string
	APGained int64
	Grouping int
	Sequence int
}

// BadgeRow is one earned badge with its tier.
type BadgeRow struct {
	Badge string
	Level string
}

// PredictionRow is the single row returned by the badge prediction
// aggregation. The remaining fields are nullable: Remaining is set for
// ordinary stats, the tier fields only for the synthetic "level" stat.
type PredictionRow struct {
	Stat     string
	Name     string
	Unit     string
	Badge    string
	Current  string
	Next     string
	Rate     float64
	Progress float64
	Days     float64

	Remaining         *int64
	SilverRemaining   *int64
	GoldRemaining     *int64
	PlatinumRemaining *int64
	OnyxRemaining     *int64
}

// RatioRow is one row of the stat-ratio aggregation. Rows with a null
// badge on either side are filtered out at the query boundary.
type RatioRow struct {
	Stat1         string
	Stat1Name     string
	Stat1Nickname string
	Stat1Unit     string
	Badge1        string
	Badge1Level   string

	Stat2         string
	Stat2Name     string
	Stat2Nickname string
	Stat2Unit     string
	Badge2        string
	Badge2Level   string

	Ratio  float64
	Factor float64
}

// UpcomingBadgeRow is one row of the upcoming-badge aggregation.
type UpcomingBadgeRow struct {
	Badge         string
	Next          string
	Progress      float64
	DaysRemaining float64
}

// TrendRow is one day of the daily trend aggregation.
type TrendRow struct {
	Date   time.Time
	Target float64
	Value  float64
}

// GraphRows is the untyped result of the per-stat graph aggregation.
// Column identities come from the backend; the first row determines
// the series, and row order is the time axis.
type GraphRows struct {
	Columns []string
	Rows    [][]any
}

// ── Derived views (shaped for callers) ───────────────────────

// BreakdownSlice is one slice of the AP breakdown chart.
type BreakdownSlice struct {
	Name     string `json:"name"`
	APGained int64  `json:"ap_gained"`
}

// Breakdown groups AP sources into the agent's faction, the opposing
// faction, and a neutral group, with faction-relative slice colors.
type Breakdown struct {
	Data        []BreakdownSlice `json:"data"`
	SliceColors []string         `json:"slice_colors"`
}

// BadgeSet maps normalized badge identifiers to their lower-cased tier.
type BadgeSet map[string]string

// Prediction is the forward projection for one stat. AmountRemaining is
// present for ordinary stats; the four tier fields replace it for the
// "level" stat.
type Prediction struct {
	Stat            string  `json:"stat"`
	Name            string  `json:"name"`
	Unit            string  `json:"unit"`
	Badge           string  `json:"badge"`
	Current         string  `json:"current"`
	Next            string  `json:"next"`
	Rate            float64 `json:"rate"`
	Progress        float64 `json:"progress"`
	DaysRemaining   float64 `json:"days_remaining"`
	TargetDate      string  `json:"target_date"`
	TargetDateLocal string  `json:"target_date_local"`

	AmountRemaining   *int64 `json:"amount_remaining,omitempty"`
	SilverRemaining   *int64 `json:"silver_remaining,omitempty"`
	GoldRemaining     *int64 `json:"gold_remaining,omitempty"`
	PlatinumRemaining *int64 `json:"platinum_remaining,omitempty"`
	OnyxRemaining     *int64 `json:"onyx_remaining,omitempty"`
}

// RatioLeg is one side of a stat ratio pair.
type RatioLeg struct {
	Stat     string `json:"stat"`
	Badge    string `json:"badge"`
	Level    string `json:"level"`
	Name     string `json:"name"`
	Nickname string `json:"nickname"`
	Unit     string `json:"unit"`
}

// RatioPair relates two stats by their ratio. Step is the factor the
// ratio moves per unit of the first stat.
type RatioPair struct {
	Stat1 RatioLeg `json:"stat1"`
	Stat2 RatioLeg `json:"stat2"`
	Ratio float64  `json:"ratio"`
	Step  float64  `json:"step"`
}

// UpcomingBadge is a badge the agent is predicted to earn soon.
type UpcomingBadge struct {
	Name            string  `json:"name"`
	Level           string  `json:"level"`
	Progress        float64 `json:"progress"`
	DaysRemaining   float64 `json:"days_remaining"`
	TargetDate      string  `json:"target_date"`
	TargetDateLocal string  `json:"target_date_local"`
}

// Trend holds the per-day target and actual values for a period,
// column-wise to match the charting client.
type Trend struct {
	Dates  []string  `json:"dates"`
	Target []float64 `json:"target"`
	Value  []float64 `json:"value"`
}

// Series is one named line of a stat graph.
type Series struct {
	Name string `json:"name"`
	Data []any  `json:"data"`
}

// GraphData is the per-stat graph plus the matching prediction.
type GraphData struct {
	Data       []Series    `json:"data"`
	Prediction *Prediction `json:"prediction"`
}

// NormalizeBadgeName turns a display badge name into a stable
// identifier: spaces become underscores, letters are lower-cased.
func NormalizeBadgeName(badge string) string {
	return strings.ToLower(strings.ReplaceAll(badge, " ", "_"))
}
