package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/blueherons/stattracker/internal/store"
	"github.com/blueherons/stattracker/pkg/models"
)

// Faction palette. Breakdown groups are colored relative to the
// agent's own faction, not the literal faction label.
const (
	enlGreen    = "#03DC03"
	resBlue     = "#0492D0"
	neutralGray = "#999"
)

func ownColor(f models.Faction) string {
	if f == models.FactionResistance {
		return resBlue
	}
	return enlGreen
}

func opposingColor(f models.Faction) string {
	if f == models.FactionResistance {
		return enlGreen
	}
	return resBlue
}

// level asks the backend for the agent's level as of today. A missing
// row is a computation fault, not "no data".
func (e *Engine) level(ctx context.Context, agent models.Agent) (int, error) {
	level, err := e.store.Level(ctx, agent.Name, e.today())
	if err != nil {
		return 0, fmt.Errorf("level for %s: %w", agent.Name, err)
	}
	return level, nil
}

// latestStats returns the stat snapshot for the agent's latest
// submission date. The 'ap' key is always present.
func (e *Engine) latestStats(ctx context.Context, agent models.Agent) (map[string]int64, error) {
	stats := map[string]int64{"ap": 0}

	date, ok, err := e.store.LatestSubmissionDate(ctx, agent.Name)
	if err != nil {
		return nil, fmt.Errorf("latest stats for %s: %w", agent.Name, err)
	}
	if !ok {
		return stats, nil
	}

	values, err := e.store.GetStats(ctx, agent.Name, date)
	if err != nil {
		return nil, fmt.Errorf("latest stats for %s: %w", agent.Name, err)
	}
	for stat, value := range values {
		stats[stat] = value
	}
	return stats, nil
}

// badges returns the agent's earned badges as of today. When today
// yields no rows the lookup retries once with the agent's latest
// submission date, which covers agents who have not submitted today;
// the retry never recurses, so truly empty data yields an empty set.
func (e *Engine) badges(ctx context.Context, agent models.Agent) (models.BadgeSet, error) {
	rows, err := e.store.Badges(ctx, agent.Name, e.today())
	if err != nil {
		return nil, fmt.Errorf("badges for %s: %w", agent.Name, err)
	}

	if len(rows) == 0 {
		latest, ok, err := e.store.LatestSubmissionDate(ctx, agent.Name)
		if err != nil {
			return nil, fmt.Errorf("badges for %s: %w", agent.Name, err)
		}
		if ok {
			rows, err = e.store.Badges(ctx, agent.Name, latest)
			if err != nil {
				return nil, fmt.Errorf("badges for %s: %w", agent.Name, err)
			}
		}
	}

	set := make(models.BadgeSet, len(rows))
	for _, r := range rows {
		set[models.NormalizeBadgeName(r.Badge)] = strings.ToLower(r.Level)
	}
	return set, nil
}

func (e *Engine) tokenNames(ctx context.Context, agent models.Agent) ([]string, error) {
	tokens, err := e.store.ListTokens(ctx, agent.Name)
	if err != nil {
		return nil, fmt.Errorf("tokens for %s: %w", agent.Name, err)
	}
	names := make([]string, 0, len(tokens))
	for _, t := range tokens {
		names = append(names, t.Name)
	}
	return names, nil
}

// breakdown shapes the AP breakdown rows into chart slices. Grouping 1
// is AP earned against the opposing faction, grouping 3 is AP earned
// for the agent's own faction, everything else is neutral.
func (e *Engine) breakdown(ctx context.Context, agent models.Agent, daysBack int) (*models.Breakdown, error) {
	rows, err := e.store.APBreakdown(ctx, agent.Name, daysBack)
	if err != nil {
		return nil, fmt.Errorf("breakdown for %s: %w", agent.Name, err)
	}

	out := &models.Breakdown{
		Data:        make([]models.BreakdownSlice, 0, len(rows)),
		SliceColors: make([]string, 0, len(rows)),
	}
	for _, r := range rows {
		out.Data = append(out.Data, models.BreakdownSlice{Name: r.Name, APGained: r.APGained})

		var color string
		switch r.Grouping {
		case 1:
			color = opposingColor(agent.Faction)
		case 3:
			color = ownColor(agent.Faction)
		default:
			color = neutralGray
		}
		out.SliceColors = append(out.SliceColors, color)
	}
	return out, nil
}

// prediction shapes the single prediction row for a stat. The "level"
// stat reports per-tier remaining amounts instead of a single one.
func (e *Engine) prediction(ctx context.Context, agent models.Agent, stat string) (*models.Prediction, error) {
	row, err := e.store.BadgePrediction(ctx, agent.Name, stat)
	if err != nil {
		return nil, fmt.Errorf("prediction for %s/%s: %w", agent.Name, stat, err)
	}

	days := int(math.Round(row.Days))
	target := e.now().AddDate(0, 0, days)

	localFmt := "January 2"
	if row.Days >= 365 {
		localFmt = "January 2, 2006"
	}

	p := &models.Prediction{
		Stat:            row.Stat,
		Name:            row.Name,
		Unit:            row.Unit,
		Badge:           row.Badge,
		Current:         row.Current,
		Next:            row.Next,
		Rate:            row.Rate,
		Progress:        row.Progress,
		DaysRemaining:   row.Days,
		TargetDate:      target.Format("2006-01-02"),
		TargetDateLocal: target.Format(localFmt),
	}

	if stat == "level" {
		p.SilverRemaining = orZero(row.SilverRemaining)
		p.GoldRemaining = orZero(row.GoldRemaining)
		p.PlatinumRemaining = orZero(row.PlatinumRemaining)
		p.OnyxRemaining = orZero(row.OnyxRemaining)
	} else {
		p.AmountRemaining = orZero(row.Remaining)
	}
	return p, nil
}

func orZero(v *int64) *int64 {
	if v != nil {
		return v
	}
	zero := int64(0)
	return &zero
}

// ratios shapes ratio rows, normalizing badge identifiers the same way
// badges are.
func (e *Engine) ratios(ctx context.Context, agent models.Agent) ([]models.RatioPair, error) {
	rows, err := e.store.Ratios(ctx, agent.Name)
	if err != nil {
		return nil, fmt.Errorf("ratios for %s: %w", agent.Name, err)
	}

	pairs := make([]models.RatioPair, 0, len(rows))
	for _, r := range rows {
		pairs = append(pairs, models.RatioPair{
			Stat1: models.RatioLeg{
				Stat:     r.Stat1,
				Badge:    models.NormalizeBadgeName(r.Badge1),
				Level:    strings.ToLower(r.Badge1Level),
				Name:     r.Stat1Name,
				Nickname: r.Stat1Nickname,
				Unit:     r.Stat1Unit,
			},
			Stat2: models.RatioLeg{
				Stat:     r.Stat2,
				Badge:    models.NormalizeBadgeName(r.Badge2),
				Level:    strings.ToLower(r.Badge2Level),
				Name:     r.Stat2Name,
				Nickname: r.Stat2Nickname,
				Unit:     r.Stat2Unit,
			},
			Ratio: r.Ratio,
			Step:  r.Factor,
		})
	}
	return pairs, nil
}

// DefaultUpcomingLimit bounds upcoming-badge lists when the caller
// does not supply a limit.
const DefaultUpcomingLimit = 4

func (e *Engine) upcomingBadges(ctx context.Context, agent models.Agent, limit int) ([]models.UpcomingBadge, error) {
	if limit <= 0 {
		limit = DefaultUpcomingLimit
	}

	rows, err := e.store.UpcomingBadges(ctx, agent.Name, limit)
	if err != nil {
		return nil, fmt.Errorf("upcoming badges for %s: %w", agent.Name, err)
	}

	out := make([]models.UpcomingBadge, 0, len(rows))
	for _, r := range rows {
		days := int(math.Round(r.DaysRemaining))
		target := e.now().AddDate(0, 0, days)

		out = append(out, models.UpcomingBadge{
			Name:            r.Badge,
			Level:           titleCase(r.Next),
			Progress:        r.Progress,
			DaysRemaining:   r.DaysRemaining,
			TargetDate:      target.Format("2006-01-02"),
			TargetDateLocal: target.Format("January 2"),
		})
	}
	return out, nil
}

// titleCase upper-cases the first letter only, matching badge tier
// display ("silver" → "Silver").
func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// trend buckets daily values into the requested calendar week
// (Monday through Sunday) relative to today.
func (e *Engine) trend(ctx context.Context, agent models.Agent, stat, when string) (*models.Trend, error) {
	start, end := weekBounds(e.now(), when)

	rows, err := e.store.DailyTrend(ctx, agent.Name, stat, start, end)
	if err != nil {
		return nil, fmt.Errorf("trend for %s/%s: %w", agent.Name, stat, err)
	}

	t := &models.Trend{
		Dates:  make([]string, 0, len(rows)),
		Target: make([]float64, 0, len(rows)),
		Value:  make([]float64, 0, len(rows)),
	}
	for _, r := range rows {
		t.Dates = append(t.Dates, r.Date.Format("2006-01-02"))
		t.Target = append(t.Target, r.Target)
		t.Value = append(t.Value, r.Value)
	}
	return t, nil
}

// graphData turns the backend's untyped graph rows into one series per
// column, preserving row order as the time axis, and attaches the
// matching prediction.
func (e *Engine) graphData(ctx context.Context, agent models.Agent, stat string) (*models.GraphData, error) {
	raw, err := e.store.GraphForStat(ctx, agent.Name, stat)
	if err != nil {
		return nil, fmt.Errorf("graph for %s/%s: %w", agent.Name, stat, err)
	}

	out := &models.GraphData{Data: []models.Series{}}
	if len(raw.Rows) > 0 {
		out.Data = make([]models.Series, len(raw.Columns))
		for i, col := range raw.Columns {
			out.Data[i] = models.Series{Name: col, Data: make([]any, 0, len(raw.Rows))}
		}
		for _, row := range raw.Rows {
			for i, v := range row {
				if i < len(out.Data) {
					out.Data[i].Data = append(out.Data[i].Data, v)
				}
			}
		}
	}

	pred, err := e.prediction(ctx, agent, stat)
	if err != nil {
		// No prediction is a computation fault for stats that have
		// one; graphs for stats without badges still render.
		if !errors.Is(err, store.ErrNoResult) {
			return nil, err
		}
	} else {
		out.Prediction = pred
	}
	return out, nil
}
