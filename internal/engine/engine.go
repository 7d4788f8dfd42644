// Package engine implements the agent stat engine: the update
// transaction that enforces monotonic stat progression, the lazy
// per-view caching discipline, and the shaping of aggregation rows
// into typed derived views.
package engine

import (
	"strconv"
	"strings"
	"time"

	"github.com/blueherons/stattracker/internal/store"
	"github.com/blueherons/stattracker/pkg/models"
)

// Engine orchestrates calls against the store and computation backend.
// It is stateless; per-request state lives in AgentView.
type Engine struct {
	store store.Store
	now   func() time.Time
}

// New creates an engine over the given store.
func New(s store.Store) *Engine {
	return &Engine{store: s, now: time.Now}
}

// WithClock overrides the engine's clock, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) today() time.Time {
	return models.DateOnly(e.now())
}

// weekBounds returns the Monday and Sunday of the requested period
// relative to now: "last-week" is the previous calendar week, anything
// else means the current one.
func weekBounds(now time.Time, when string) (start, end time.Time) {
	day := models.DateOnly(now)
	offset := (int(day.Weekday()) + 6) % 7 // days since Monday
	monday := day.AddDate(0, 0, -offset)

	if when == "last-week" {
		return monday.AddDate(0, 0, -7), monday.AddDate(0, 0, -1)
	}
	return monday, monday.AddDate(0, 0, 6)
}

// sanitizeValue coerces a raw submitted value to a non-negative
// integer. Non-digit characters are stripped and anything that still
// fails to parse, or is negative, becomes zero. Permissive by design:
// a malformed value must not reject the whole batch.
func sanitizeValue(raw string) int64 {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '-' || r == '+' {
			b.WriteRune(r)
		}
	}
	v, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// formatNumber renders n with thousands separators for human-facing
// messages.
func formatNumber(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
