// Package store provides the storage interface and implementations for
// the Stat Tracker. The interface covers two concerns: the durable
// DataPoint/Token tables, and the aggregation operations delegated to
// the computation backend. Handlers and the engine depend only on the
// interface, making it easy to swap between in-memory (tests) and
// PostgreSQL (production) implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/blueherons/stattracker/pkg/models"
)

// Store is the primary storage interface for the stat engine.
type Store interface {
	AgentStore
	TokenStore
	DataPointStore
	AggregationBackend

	// Ping checks if the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error

	// Migrate creates the durable tables if they do not exist. The
	// aggregation functions ship with the deployment schema and are
	// not managed here.
	Migrate(ctx context.Context) error
}

// ── Agent Store ─────────────────────────────────────────────

// AgentStore resolves registered agents. Lookups are case-sensitive on
// the stored value.
type AgentStore interface {
	// GetAgentByEmail returns the agent registered under an email.
	GetAgentByEmail(ctx context.Context, email string) (*models.Agent, error)

	// GetAgentByToken returns the agent owning a non-revoked token
	// with the given secret.
	GetAgentByToken(ctx context.Context, secret string) (*models.Agent, error)
}

// ── Token Store ─────────────────────────────────────────────

type TokenStore interface {
	// ListTokens returns the agent's non-revoked tokens.
	ListTokens(ctx context.Context, agent string) ([]models.Token, error)

	// GetToken returns the non-revoked token with the given name.
	GetToken(ctx context.Context, agent, name string) (*models.Token, error)

	// CreateToken persists a new token.
	CreateToken(ctx context.Context, token *models.Token) error

	// RevokeToken marks the named token revoked and renames it to
	// newName so the original name can be reused.
	RevokeToken(ctx context.Context, agent, name, newName string) error

	// TouchToken updates the last-used timestamp of the token with
	// the given secret.
	TouchToken(ctx context.Context, secret string) error
}

// ── DataPoint Store ─────────────────────────────────────────

// DataPointStore reads and writes individual (agent, date, stat)
// measurements.
type DataPointStore interface {
	// AnchorDate returns the earliest submission date for the agent.
	// ok is false when the agent has no data points.
	AnchorDate(ctx context.Context, agent string) (date time.Time, ok bool, err error)

	// LatestSubmissionDate returns the date of the most recently
	// updated data point.
	LatestSubmissionDate(ctx context.Context, agent string) (date time.Time, ok bool, err error)

	// UpdateTimestamp returns the last-updated time across the
	// agent's data points, optionally restricted to one date.
	UpdateTimestamp(ctx context.Context, agent string, date *time.Time) (ts time.Time, ok bool, err error)

	// HasSubmitted reports whether the agent has ever submitted an
	// 'ap' data point.
	HasSubmitted(ctx context.Context, agent string) (bool, error)

	// GetStats returns all stat values recorded for the agent on date.
	GetStats(ctx context.Context, agent string, date time.Time) (map[string]int64, error)

	// SubmitTx runs fn inside a transaction. If fn returns an error
	// the transaction is rolled back in full; otherwise it commits.
	SubmitTx(ctx context.Context, fn func(tx DataTx) error) error
}

// DataTx is the transactional view used by the update engine. All
// writes through a DataTx become visible only on commit.
type DataTx interface {
	// CurrentValue returns the committed value for (agent, date, stat)
	// as seen by this transaction. ok is false when no value exists.
	CurrentValue(ctx context.Context, agent string, date time.Time, stat string) (value int64, ok bool, err error)

	// UpsertDataPoint inserts the data point or overwrites the value
	// for its (agent, date, stat) key. When guard is true the write is
	// conditional: it only applies if the committed value is not
	// greater than the new value, and ErrStaleWrite is returned
	// otherwise. The guard closes the race between CurrentValue and
	// the write under concurrent submitters.
	UpsertDataPoint(ctx context.Context, dp models.DataPoint, guard bool) error
}

// ── Aggregation Backend ─────────────────────────────────────

// AggregationBackend is the call contract with the external
// computation backend. Each operation maps one named aggregation to an
// explicit row type; missing or renamed backend columns fail here, at
// the mapping boundary, rather than producing silent null fields.
type AggregationBackend interface {
	APBreakdown(ctx context.Context, agent string, daysBack int) ([]models.BreakdownRow, error)

	// Level returns the agent's level on the given date. Exactly one
	// row is expected; ErrNoResult reports a computation fault.
	Level(ctx context.Context, agent string, date time.Time) (int, error)

	Badges(ctx context.Context, agent string, date time.Time) ([]models.BadgeRow, error)

	// BadgePrediction returns the single prediction row for a stat.
	// ErrNoResult reports a computation fault.
	BadgePrediction(ctx context.Context, agent, stat string) (*models.PredictionRow, error)

	// Ratios returns ratio rows, filtered to rows where both badges
	// are non-null.
	Ratios(ctx context.Context, agent string) ([]models.RatioRow, error)

	// UpcomingBadges returns predicted badges ordered by ascending
	// estimated days remaining, at most limit rows.
	UpcomingBadges(ctx context.Context, agent string, limit int) ([]models.UpcomingBadgeRow, error)

	DailyTrend(ctx context.Context, agent, stat string, start, end time.Time) ([]models.TrendRow, error)

	// GraphForStat returns the raw graph rows; the first row's columns
	// determine the series identities.
	GraphForStat(ctx context.Context, agent, stat string) (*models.GraphRows, error)
}

// ── Errors ──────────────────────────────────────────────────

// ErrNoResult is returned when an aggregation that must yield exactly
// one row yields none. It is a computation fault, distinct from "agent
// has no data", which is represented by zeroed or empty views.
var ErrNoResult = errors.New("aggregation returned no result")

// ErrStaleWrite is returned by a guarded upsert whose committed value
// changed to something greater between read and write.
var ErrStaleWrite = errors.New("stale conditional write")

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// IsNotFound reports whether err is an ErrNotFound.
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}
