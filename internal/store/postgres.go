package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/blueherons/stattracker/pkg/models"
)

// PostgresStore implements Store against PostgreSQL. The durable
// tables (agent, tokens, data) are managed here; the aggregation
// operations call set-returning functions provisioned with the
// deployment schema (get_ap_breakdown, get_level, get_badges,
// get_badge_prediction, get_ratios, get_upcoming_badges,
// get_daily_trend, get_graph_for_stat).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL and verifies the connection.
func NewPostgresStore(ctx context.Context, connURL string, maxConns int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	log.Info().Msg("postgres store initialized")
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Migrate creates the durable tables. The partial unique index on
// tokens enforces at most one non-revoked token per (agent, name).
func (s *PostgresStore) Migrate(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS agent (
			agent   TEXT PRIMARY KEY,
			email   TEXT NOT NULL UNIQUE,
			faction TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS tokens (
			agent     TEXT NOT NULL REFERENCES agent (agent),
			name      TEXT NOT NULL,
			token     TEXT NOT NULL UNIQUE,
			revoked   BOOLEAN NOT NULL DEFAULT FALSE,
			last_used TIMESTAMPTZ,
			created   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_tokens_active
			ON tokens (agent, name) WHERE NOT revoked;

		CREATE TABLE IF NOT EXISTS data (
			agent     TEXT NOT NULL,
			date      DATE NOT NULL,
			stat      TEXT NOT NULL,
			value     BIGINT NOT NULL,
			timepoint INTEGER NOT NULL,
			updated   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (agent, date, stat)
		);

		CREATE INDEX IF NOT EXISTS idx_data_agent_updated ON data (agent, updated);
	`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

// ── Agent resolution ────────────────────────────────────────

func (s *PostgresStore) GetAgentByEmail(ctx context.Context, email string) (*models.Agent, error) {
	var agent models.Agent
	err := s.pool.QueryRow(ctx,
		`SELECT agent, faction FROM agent WHERE email = $1`, email).
		Scan(&agent.Name, &agent.Faction)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "agent", Key: email}
	}
	if err != nil {
		return nil, fmt.Errorf("agent by email: %w", err)
	}
	return &agent, nil
}

func (s *PostgresStore) GetAgentByToken(ctx context.Context, secret string) (*models.Agent, error) {
	var agent models.Agent
	err := s.pool.QueryRow(ctx,
		`SELECT a.agent, a.faction
		   FROM agent a JOIN tokens t ON t.agent = a.agent
		  WHERE t.token = $1 AND NOT t.revoked`, secret).
		Scan(&agent.Name, &agent.Faction)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "agent", Key: "token"}
	}
	if err != nil {
		return nil, fmt.Errorf("agent by token: %w", err)
	}
	agent.Token = secret
	return &agent, nil
}

// ── Tokens ──────────────────────────────────────────────────

func (s *PostgresStore) ListTokens(ctx context.Context, agent string) ([]models.Token, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT agent, name, token, revoked, COALESCE(last_used, 'epoch'), created
		   FROM tokens WHERE agent = $1 AND NOT revoked ORDER BY name`, agent)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []models.Token
	for rows.Next() {
		var t models.Token
		if err := rows.Scan(&t.Agent, &t.Name, &t.Secret, &t.Revoked, &t.LastUsed, &t.Created); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (s *PostgresStore) GetToken(ctx context.Context, agent, name string) (*models.Token, error) {
	var t models.Token
	err := s.pool.QueryRow(ctx,
		`SELECT agent, name, token, revoked, COALESCE(last_used, 'epoch'), created
		   FROM tokens WHERE agent = $1 AND name = $2 AND NOT revoked`, agent, name).
		Scan(&t.Agent, &t.Name, &t.Secret, &t.Revoked, &t.LastUsed, &t.Created)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "token", Key: agent + "/" + name}
	}
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) CreateToken(ctx context.Context, token *models.Token) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tokens (agent, name, token, revoked, created)
		 VALUES ($1, $2, $3, FALSE, NOW())`,
		token.Agent, token.Name, token.Secret)
	if err != nil {
		return fmt.Errorf("create token: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeToken(ctx context.Context, agent, name, newName string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tokens SET revoked = TRUE, name = $3
		  WHERE agent = $1 AND name = $2 AND NOT revoked`,
		agent, name, newName)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "token", Key: agent + "/" + name}
	}
	return nil
}

func (s *PostgresStore) TouchToken(ctx context.Context, secret string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tokens SET last_used = NOW() WHERE token = $1`, secret)
	return err
}

// ── Data points ─────────────────────────────────────────────

func (s *PostgresStore) AnchorDate(ctx context.Context, agent string) (time.Time, bool, error) {
	var date *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT MIN(date) FROM data WHERE agent = $1`, agent).Scan(&date)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("anchor date: %w", err)
	}
	if date == nil {
		return time.Time{}, false, nil
	}
	return models.DateOnly(*date), true, nil
}

func (s *PostgresStore) LatestSubmissionDate(ctx context.Context, agent string) (time.Time, bool, error) {
	var date time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT date FROM data WHERE agent = $1 ORDER BY updated DESC LIMIT 1`, agent).
		Scan(&date)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("latest submission date: %w", err)
	}
	return models.DateOnly(date), true, nil
}

func (s *PostgresStore) UpdateTimestamp(ctx context.Context, agent string, date *time.Time) (time.Time, bool, error) {
	var ts *time.Time
	var err error
	if date == nil {
		err = s.pool.QueryRow(ctx,
			`SELECT MAX(updated) FROM data WHERE agent = $1`, agent).Scan(&ts)
	} else {
		err = s.pool.QueryRow(ctx,
			`SELECT MAX(updated) FROM data WHERE agent = $1 AND date = $2`, agent, *date).Scan(&ts)
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("update timestamp: %w", err)
	}
	if ts == nil {
		return time.Time{}, false, nil
	}
	return *ts, true, nil
}

func (s *PostgresStore) HasSubmitted(ctx context.Context, agent string) (bool, error) {
	var submitted bool
	err := s.pool.QueryRow(ctx,
		`SELECT count(stat) > 0 FROM data WHERE stat = 'ap' AND agent = $1`, agent).
		Scan(&submitted)
	if err != nil {
		return false, fmt.Errorf("has submitted: %w", err)
	}
	return submitted, nil
}

func (s *PostgresStore) GetStats(ctx context.Context, agent string, date time.Time) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT stat, value FROM data WHERE agent = $1 AND date = $2 ORDER BY stat ASC`,
		agent, models.DateOnly(date))
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int64)
	for rows.Next() {
		var stat string
		var value int64
		if err := rows.Scan(&stat, &value); err != nil {
			return nil, fmt.Errorf("scan stat: %w", err)
		}
		stats[stat] = value
	}
	return stats, rows.Err()
}

// SubmitTx wraps fn in a single transaction; rollback is guaranteed on
// every non-commit exit path.
func (s *PostgresStore) SubmitTx(ctx context.Context, fn func(tx DataTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgxDataTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgxDataTx struct {
	tx pgx.Tx
}

func (t *pgxDataTx) CurrentValue(ctx context.Context, agent string, date time.Time, stat string) (int64, bool, error) {
	var value int64
	err := t.tx.QueryRow(ctx,
		`SELECT value FROM data WHERE agent = $1 AND date = $2 AND stat = $3`,
		agent, models.DateOnly(date), stat).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("current value: %w", err)
	}
	return value, true, nil
}

func (t *pgxDataTx) UpsertDataPoint(ctx context.Context, dp models.DataPoint, guard bool) error {
	query := `
		INSERT INTO data (agent, date, stat, value, timepoint, updated)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (agent, date, stat) DO UPDATE
		SET value = EXCLUDED.value, timepoint = EXCLUDED.timepoint, updated = NOW()`
	if guard {
		query += ` WHERE data.value <= EXCLUDED.value`
	}

	tag, err := t.tx.Exec(ctx, query,
		dp.Agent, models.DateOnly(dp.Date), dp.Stat, dp.Value, dp.Timepoint)
	if err != nil {
		return fmt.Errorf("upsert data point: %w", err)
	}
	if guard && tag.RowsAffected() == 0 {
		return ErrStaleWrite
	}
	return nil
}

// ── Aggregation operations ──────────────────────────────────
//
// Each operation maps the backend's documented columns to an explicit
// row struct. A missing or renamed column fails the Scan here rather
// than surfacing as a silent zero downstream.

func (s *PostgresStore) APBreakdown(ctx context.Context, agent string, daysBack int) ([]models.BreakdownRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, ap_gained, grouping, sequence
		   FROM get_ap_breakdown($1, $2)
		  ORDER BY grouping, sequence ASC`, agent, daysBack)
	if err != nil {
		return nil, fmt.Errorf("ap breakdown: %w", err)
	}
	defer rows.Close()

	var out []models.BreakdownRow
	for rows.Next() {
		var r models.BreakdownRow
		if err := rows.Scan(&r.Name, &r.APGained, &r.Grouping, &r.Sequence); err != nil {
			return nil, fmt.Errorf("scan breakdown row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Level(ctx context.Context, agent string, date time.Time) (int, error) {
	var level int
	err := s.pool.QueryRow(ctx,
		`SELECT level FROM get_level($1, $2)`, agent, models.DateOnly(date)).
		Scan(&level)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNoResult
	}
	if err != nil {
		return 0, fmt.Errorf("level: %w", err)
	}
	return level, nil
}

func (s *PostgresStore) Badges(ctx context.Context, agent string, date time.Time) ([]models.BadgeRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT badge, level FROM get_badges($1, $2)`, agent, models.DateOnly(date))
	if err != nil {
		return nil, fmt.Errorf("badges: %w", err)
	}
	defer rows.Close()

	var out []models.BadgeRow
	for rows.Next() {
		var r models.BadgeRow
		if err := rows.Scan(&r.Badge, &r.Level); err != nil {
			return nil, fmt.Errorf("scan badge row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) BadgePrediction(ctx context.Context, agent, stat string) (*models.PredictionRow, error) {
	var r models.PredictionRow
	err := s.pool.QueryRow(ctx,
		`SELECT stat, name, unit, badge, current, next, rate, progress, days,
		        remaining, silver_remaining, gold_remaining, platinum_remaining, onyx_remaining
		   FROM get_badge_prediction($1, $2)`, agent, stat).
		Scan(&r.Stat, &r.Name, &r.Unit, &r.Badge, &r.Current, &r.Next,
			&r.Rate, &r.Progress, &r.Days,
			&r.Remaining, &r.SilverRemaining, &r.GoldRemaining,
			&r.PlatinumRemaining, &r.OnyxRemaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoResult
	}
	if err != nil {
		return nil, fmt.Errorf("badge prediction: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) Ratios(ctx context.Context, agent string) ([]models.RatioRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT stat_1, stat_1_name, stat_1_nickname, stat_1_unit, badge_1, badge_1_level,
		        stat_2, stat_2_name, stat_2_nickname, stat_2_unit, badge_2, badge_2_level,
		        ratio, factor
		   FROM get_ratios($1)
		  WHERE badge_1 IS NOT NULL AND badge_2 IS NOT NULL`, agent)
	if err != nil {
		return nil, fmt.Errorf("ratios: %w", err)
	}
	defer rows.Close()

	var out []models.RatioRow
	for rows.Next() {
		var r models.RatioRow
		if err := rows.Scan(&r.Stat1, &r.Stat1Name, &r.Stat1Nickname, &r.Stat1Unit,
			&r.Badge1, &r.Badge1Level,
			&r.Stat2, &r.Stat2Name, &r.Stat2Nickname, &r.Stat2Unit,
			&r.Badge2, &r.Badge2Level,
			&r.Ratio, &r.Factor); err != nil {
			return nil, fmt.Errorf("scan ratio row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpcomingBadges(ctx context.Context, agent string, limit int) ([]models.UpcomingBadgeRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT badge, next, progress, days_remaining
		   FROM get_upcoming_badges($1)
		  ORDER BY days_remaining ASC LIMIT $2`, agent, limit)
	if err != nil {
		return nil, fmt.Errorf("upcoming badges: %w", err)
	}
	defer rows.Close()

	var out []models.UpcomingBadgeRow
	for rows.Next() {
		var r models.UpcomingBadgeRow
		if err := rows.Scan(&r.Badge, &r.Next, &r.Progress, &r.DaysRemaining); err != nil {
			return nil, fmt.Errorf("scan upcoming badge row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DailyTrend(ctx context.Context, agent, stat string, start, end time.Time) ([]models.TrendRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT date, target, value
		   FROM get_daily_trend($1, $2, $3, $4)
		  ORDER BY date ASC`,
		agent, stat, models.DateOnly(start), models.DateOnly(end))
	if err != nil {
		return nil, fmt.Errorf("daily trend: %w", err)
	}
	defer rows.Close()

	var out []models.TrendRow
	for rows.Next() {
		var r models.TrendRow
		if err := rows.Scan(&r.Date, &r.Target, &r.Value); err != nil {
			return nil, fmt.Errorf("scan trend row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GraphForStat is the one aggregation with backend-defined columns:
// the column set varies per stat, so rows pass through untyped and the
// shaping layer turns each column into a series.
func (s *PostgresStore) GraphForStat(ctx context.Context, agent, stat string) (*models.GraphRows, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT * FROM get_graph_for_stat($1, $2)`, agent, stat)
	if err != nil {
		return nil, fmt.Errorf("graph for stat: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	out := &models.GraphRows{Columns: columns}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("graph row values: %w", err)
		}
		out.Rows = append(out.Rows, values)
	}
	return out, rows.Err()
}
