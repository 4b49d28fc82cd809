package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/sokoprice/internal/db"
	"github.com/sells-group/sokoprice/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS crops (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name         TEXT NOT NULL UNIQUE,
	name_swahili TEXT NOT NULL DEFAULT '',
	unit         TEXT NOT NULL DEFAULT '',
	category     TEXT NOT NULL DEFAULT 'other',
	position     INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS markets (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name       TEXT NOT NULL UNIQUE,
	county     TEXT NOT NULL DEFAULT '',
	region     TEXT NOT NULL DEFAULT '',
	active     BOOLEAN NOT NULL DEFAULT true,
	position   INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sources (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name               TEXT NOT NULL,
	phone_number       TEXT NOT NULL UNIQUE,
	role               TEXT NOT NULL DEFAULT 'Trader',
	reliability_score  DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	status             TEXT NOT NULL DEFAULT 'active',
	submission_count   INTEGER NOT NULL DEFAULT 0,
	last_submission_at TIMESTAMPTZ,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS price_reports (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	crop_id    TEXT NOT NULL REFERENCES crops(id),
	market_id  TEXT NOT NULL REFERENCES markets(id),
	source_id  TEXT NOT NULL,
	price      DOUBLE PRECISION NOT NULL CHECK (price > 0),
	date       TIMESTAMPTZ NOT NULL DEFAULT now(),
	approved   BOOLEAN NOT NULL DEFAULT false,
	notes      TEXT NOT NULL DEFAULT '',
	channel    TEXT NOT NULL DEFAULT 'web',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_price_reports_pair_date ON price_reports(crop_id, market_id, date DESC);
CREATE INDEX IF NOT EXISTS idx_price_reports_source_date ON price_reports(source_id, date);
CREATE INDEX IF NOT EXISTS idx_price_reports_approved ON price_reports(approved);

CREATE TABLE IF NOT EXISTS alerts (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	phone_number      TEXT NOT NULL,
	crop_id           TEXT NOT NULL REFERENCES crops(id),
	market_id         TEXT NOT NULL REFERENCES markets(id),
	target_price      DOUBLE PRECISION NOT NULL CHECK (target_price >= 0),
	direction         TEXT NOT NULL DEFAULT 'above',
	active            BOOLEAN NOT NULL DEFAULT true,
	last_triggered_at TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_alerts_active ON alerts(active);
CREATE INDEX IF NOT EXISTS idx_alerts_phone ON alerts(phone_number);

CREATE TABLE IF NOT EXISTS ussd_sessions (
	phone_number TEXT PRIMARY KEY,
	language     TEXT NOT NULL DEFAULT 'en',
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const (
	cropColumns   = `id, name, name_swahili, unit, category, position, created_at`
	marketColumns = `id, name, county, region, active, position, created_at`
	sourceColumns = `id, name, phone_number, role, reliability_score, status, submission_count, last_submission_at, created_at, updated_at`
	priceColumns  = `id, crop_id, market_id, source_id, price, date, approved, notes, channel, created_at, updated_at`
	alertColumns  = `id, phone_number, crop_id, market_id, target_price, direction, active, last_triggered_at, created_at, updated_at`
)

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Catalog ---

func (s *PostgresStore) ListCrops(ctx context.Context) ([]model.Crop, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+cropColumns+` FROM crops ORDER BY position, name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list crops")
	}
	defer rows.Close()

	var crops []model.Crop
	for rows.Next() {
		c, err := scanCrop(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan crop")
		}
		crops = append(crops, *c)
	}
	return crops, eris.Wrap(rows.Err(), "postgres: list crops iterate")
}

func (s *PostgresStore) ListMarkets(ctx context.Context, activeOnly bool) ([]model.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY position, name`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list markets")
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan market")
		}
		markets = append(markets, *m)
	}
	return markets, eris.Wrap(rows.Err(), "postgres: list markets iterate")
}

func (s *PostgresStore) GetCrop(ctx context.Context, id string) (*model.Crop, error) {
	c, err := scanCrop(s.pool.QueryRow(ctx, `SELECT `+cropColumns+` FROM crops WHERE id = $1`, id))
	return pgOptional(c, err, "postgres: get crop")
}

func (s *PostgresStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	m, err := scanMarket(s.pool.QueryRow(ctx, `SELECT `+marketColumns+` FROM markets WHERE id = $1`, id))
	return pgOptional(m, err, "postgres: get market")
}

func (s *PostgresStore) FindCropByName(ctx context.Context, name string) (*model.Crop, error) {
	c, err := scanCrop(s.pool.QueryRow(ctx,
		`SELECT `+cropColumns+` FROM crops WHERE lower(name) = lower($1) OR lower(name_swahili) = lower($1) ORDER BY position LIMIT 1`,
		strings.TrimSpace(name),
	))
	return pgOptional(c, err, "postgres: find crop by name")
}

func (s *PostgresStore) FindMarketByName(ctx context.Context, name string) (*model.Market, error) {
	m, err := scanMarket(s.pool.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE lower(name) = lower($1) ORDER BY position LIMIT 1`,
		strings.TrimSpace(name),
	))
	return pgOptional(m, err, "postgres: find market by name")
}

// SeedCatalog merges crops and markets by name in one transaction, so a
// re-seed keeps existing ids.
func (s *PostgresStore) SeedCatalog(ctx context.Context, crops []model.Crop, markets []model.Market) error {
	now := time.Now().UTC()

	cropRows := make([][]any, 0, len(crops))
	for _, c := range crops {
		cropRows = append(cropRows, []any{newID(c.ID), c.Name, c.NameSwahili, c.Unit, string(c.Category), c.Position, now})
	}
	marketRows := make([][]any, 0, len(markets))
	for _, m := range markets {
		marketRows = append(marketRows, []any{newID(m.ID), m.Name, m.County, m.Region, m.Active, m.Position, now})
	}

	return db.InTx(ctx, s.pool, "seed catalog", func(tx pgx.Tx) error {
		if _, err := db.Merge(ctx, tx, cropMerge, cropRows); err != nil {
			return eris.Wrap(err, "postgres: seed crops")
		}
		if _, err := db.Merge(ctx, tx, marketMerge, marketRows); err != nil {
			return eris.Wrap(err, "postgres: seed markets")
		}
		return nil
	})
}

var (
	cropMerge = db.MergeSpec{
		Table:   "crops",
		Columns: []string{"id", "name", "name_swahili", "unit", "category", "position", "created_at"},
		Key:     []string{"name"},
		Update:  []string{"name_swahili", "unit", "category", "position"},
	}
	marketMerge = db.MergeSpec{
		Table:   "markets",
		Columns: []string{"id", "name", "county", "region", "active", "position", "created_at"},
		Key:     []string{"name"},
		Update:  []string{"county", "region", "active", "position"},
	}
)

// --- Sources ---

func (s *PostgresStore) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY created_at, name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sources")
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan source")
		}
		sources = append(sources, *src)
	}
	return sources, eris.Wrap(rows.Err(), "postgres: list sources iterate")
}

func (s *PostgresStore) GetSource(ctx context.Context, id string) (*model.Source, error) {
	src, err := scanSource(s.pool.QueryRow(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id))
	return pgOptional(src, err, "postgres: get source")
}

func (s *PostgresStore) GetSourceByPhone(ctx context.Context, phone string) (*model.Source, error) {
	src, err := scanSource(s.pool.QueryRow(ctx, `SELECT `+sourceColumns+` FROM sources WHERE phone_number = $1`, phone))
	return pgOptional(src, err, "postgres: get source by phone")
}

func (s *PostgresStore) FindSourceByName(ctx context.Context, name string) (*model.Source, error) {
	src, err := scanSource(s.pool.QueryRow(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE lower(name) = lower($1) ORDER BY created_at LIMIT 1`,
		strings.TrimSpace(name),
	))
	return pgOptional(src, err, "postgres: find source by name")
}

func (s *PostgresStore) FindOrCreateSource(ctx context.Context, src model.Source) (*model.Source, bool, error) {
	now := time.Now().UTC()
	if src.Role == "" {
		src.Role = model.SourceRoleTrader
	}
	if src.Status == "" {
		src.Status = model.SourceStatusActive
	}
	if src.ReliabilityScore <= 0 {
		src.ReliabilityScore = model.DefaultReliability
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO sources (id, name, phone_number, role, reliability_score, status, submission_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $7)
		 ON CONFLICT (phone_number) DO NOTHING`,
		newID(src.ID), src.Name, src.PhoneNumber, string(src.Role), src.ReliabilityScore, string(src.Status), now,
	)
	if err != nil {
		return nil, false, eris.Wrapf(err, "postgres: insert source %s", src.PhoneNumber)
	}

	stored, err := s.GetSourceByPhone(ctx, src.PhoneNumber)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, eris.Errorf("postgres: source %s vanished after insert", src.PhoneNumber)
	}
	return stored, tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) IncrementSourceSubmissions(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sources SET submission_count = submission_count + 1, last_submission_at = $1, updated_at = $2 WHERE id = $3`,
		at.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment submissions %s", id)
	}
	return pgCheckAffected(tag.RowsAffected())
}

func (s *PostgresStore) UpdateSourceReliability(ctx context.Context, id string, score float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sources SET reliability_score = $1, updated_at = $2 WHERE id = $3`,
		score, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update reliability %s", id)
	}
	return pgCheckAffected(tag.RowsAffected())
}

func (s *PostgresStore) ListSourceIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM sources ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list source ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: list source ids iterate")
}

// --- Prices ---

func (s *PostgresStore) CreatePrice(ctx context.Context, p model.PriceReport) (*model.PriceReport, error) {
	now := time.Now().UTC()
	p.ID = newID(p.ID)
	if p.Date.IsZero() {
		p.Date = now
	}
	if p.Channel == "" {
		p.Channel = model.ChannelWeb
	}
	p.Date = p.Date.UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO price_reports (`+priceColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.CropID, p.MarketID, p.SourceID, p.Price, p.Date, p.Approved, p.Notes, string(p.Channel), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert price")
	}
	return &p, nil
}

func (s *PostgresStore) GetPrice(ctx context.Context, id string) (*model.PriceReport, error) {
	p, err := scanPrice(s.pool.QueryRow(ctx, `SELECT `+priceColumns+` FROM price_reports WHERE id = $1`, id))
	return pgOptional(p, err, "postgres: get price")
}

func (s *PostgresStore) ListPrices(ctx context.Context, filter model.PriceFilter) ([]model.PriceReport, int, error) {
	where, args := pgPriceWhere(filter)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM price_reports`+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "postgres: count prices")
	}

	query := `SELECT ` + priceColumns + ` FROM price_reports` + where +
		fmt.Sprintf(` ORDER BY date DESC, created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, clampLimit(filter.Limit), max(filter.Offset, 0))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "postgres: list prices")
	}
	defer rows.Close()

	prices, err := collectPrices(rows)
	if err != nil {
		return nil, 0, eris.Wrap(err, "postgres: list prices")
	}
	return prices, total, nil
}

func pgPriceWhere(filter model.PriceFilter) (string, []any) {
	var conds []string
	var args []any
	if filter.CropID != "" {
		args = append(args, filter.CropID)
		conds = append(conds, fmt.Sprintf("crop_id = $%d", len(args)))
	}
	if filter.MarketID != "" {
		args = append(args, filter.MarketID)
		conds = append(conds, fmt.Sprintf("market_id = $%d", len(args)))
	}
	if filter.Approved != nil {
		args = append(args, *filter.Approved)
		conds = append(conds, fmt.Sprintf("approved = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *PostgresStore) LatestApprovedPrice(ctx context.Context, cropID, marketID string) (*model.PriceReport, error) {
	p, err := scanPrice(s.pool.QueryRow(ctx,
		`SELECT `+priceColumns+` FROM price_reports
		 WHERE crop_id = $1 AND market_id = $2 AND approved
		 ORDER BY date DESC, created_at DESC LIMIT 1`,
		cropID, marketID,
	))
	return pgOptional(p, err, "postgres: latest approved price")
}

func (s *PostgresStore) RecentObservations(ctx context.Context, cropID, marketID string, since time.Time) ([]model.Observation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.price, s.reliability_score FROM price_reports p
		 LEFT JOIN sources s ON s.id = p.source_id
		 WHERE p.crop_id = $1 AND p.market_id = $2 AND p.date >= $3`,
		cropID, marketID, since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent observations")
	}
	defer rows.Close()

	var obs []model.Observation
	for rows.Next() {
		var o model.Observation
		if err := rows.Scan(&o.Price, &o.Reliability); err != nil {
			return nil, eris.Wrap(err, "postgres: scan observation")
		}
		obs = append(obs, o)
	}
	return obs, eris.Wrap(rows.Err(), "postgres: recent observations iterate")
}

func (s *PostgresStore) SourceApprovalStats(ctx context.Context, sourceID string, since time.Time) (model.ApprovalStats, error) {
	var stats model.ApprovalStats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE approved), COUNT(*) FROM price_reports WHERE source_id = $1 AND date >= $2`,
		sourceID, since.UTC(),
	).Scan(&stats.Approved, &stats.Total)
	return stats, eris.Wrapf(err, "postgres: approval stats %s", sourceID)
}

func (s *PostgresStore) ApprovePrice(ctx context.Context, id string) (*model.PriceReport, error) {
	p, err := scanPrice(s.pool.QueryRow(ctx,
		`UPDATE price_reports SET approved = true, updated_at = $1 WHERE id = $2 RETURNING `+priceColumns,
		time.Now().UTC(), id,
	))
	return pgRequired(p, err, "postgres: approve price")
}

func (s *PostgresStore) DeletePrice(ctx context.Context, id string) (*model.PriceReport, error) {
	p, err := scanPrice(s.pool.QueryRow(ctx,
		`DELETE FROM price_reports WHERE id = $1 RETURNING `+priceColumns,
		id,
	))
	return pgRequired(p, err, "postgres: delete price")
}

func (s *PostgresStore) PriceHistory(ctx context.Context, cropID, marketID string, since time.Time) ([]model.PriceReport, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+priceColumns+` FROM price_reports
		 WHERE crop_id = $1 AND market_id = $2 AND approved AND date >= $3
		 ORDER BY date ASC`,
		cropID, marketID, since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: price history")
	}
	defer rows.Close()

	prices, err := collectPrices(rows)
	return prices, eris.Wrap(err, "postgres: price history")
}

func (s *PostgresStore) PriceTrends(ctx context.Context, filter model.TrendFilter) ([]model.TrendPoint, error) {
	args := []any{filter.Since.UTC()}
	query := `SELECT to_char(p.date AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
		p.crop_id, c.name, p.market_id, m.name,
		AVG(p.price), MIN(p.price), MAX(p.price), COUNT(*)
		FROM price_reports p
		JOIN crops c ON c.id = p.crop_id
		JOIN markets m ON m.id = p.market_id
		WHERE p.approved AND p.date >= $1`
	if filter.CropID != "" {
		args = append(args, filter.CropID)
		query += fmt.Sprintf(` AND p.crop_id = $%d`, len(args))
	}
	if filter.MarketID != "" {
		args = append(args, filter.MarketID)
		query += fmt.Sprintf(` AND p.market_id = $%d`, len(args))
	}
	query += ` GROUP BY day, p.crop_id, c.name, p.market_id, m.name ORDER BY day, c.name, m.name`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: price trends")
	}
	defer rows.Close()

	var points []model.TrendPoint
	for rows.Next() {
		var tp model.TrendPoint
		if err := rows.Scan(&tp.Date, &tp.CropID, &tp.Crop, &tp.MarketID, &tp.Market,
			&tp.AvgPrice, &tp.MinPrice, &tp.MaxPrice, &tp.Submissions); err != nil {
			return nil, eris.Wrap(err, "postgres: scan trend")
		}
		tp.AvgPrice = math.Round(tp.AvgPrice)
		points = append(points, tp)
	}
	return points, eris.Wrap(rows.Err(), "postgres: price trends iterate")
}

// ImportPrices bulk-loads historical reports with COPY.
func (s *PostgresStore) ImportPrices(ctx context.Context, prices []model.PriceReport) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(prices))
	for _, p := range prices {
		channel := p.Channel
		if channel == "" {
			channel = model.ChannelWeb
		}
		date := p.Date
		if date.IsZero() {
			date = now
		}
		rows = append(rows, []any{
			newID(p.ID), p.CropID, p.MarketID, p.SourceID, p.Price, date.UTC(),
			p.Approved, p.Notes, string(channel), now, now,
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{"price_reports"}, strings.Split(priceColumns, ", "), pgx.CopyFromRows(rows))
	return n, eris.Wrap(err, "postgres: import prices")
}

// --- Alerts ---

func (s *PostgresStore) CreateAlert(ctx context.Context, a model.Alert) (*model.Alert, error) {
	now := time.Now().UTC()
	a.ID = newID(a.ID)
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO alerts (`+alertColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.PhoneNumber, a.CropID, a.MarketID, a.TargetPrice, string(a.Direction), a.Active, a.LastTriggeredAt, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert alert")
	}
	return &a, nil
}

func (s *PostgresStore) GetAlert(ctx context.Context, id string) (*model.Alert, error) {
	a, err := scanAlert(s.pool.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id))
	return pgOptional(a, err, "postgres: get alert")
}

func (s *PostgresStore) ListAlerts(ctx context.Context, filter model.AlertFilter) ([]model.Alert, error) {
	var conds []string
	var args []any
	if filter.PhoneNumber != "" {
		args = append(args, filter.PhoneNumber)
		conds = append(conds, fmt.Sprintf("phone_number = $%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		conds = append(conds, fmt.Sprintf("active = $%d", len(args)))
	}
	query := `SELECT ` + alertColumns + ` FROM alerts`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list alerts")
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan alert")
		}
		alerts = append(alerts, *a)
	}
	return alerts, eris.Wrap(rows.Err(), "postgres: list alerts iterate")
}

func (s *PostgresStore) DeactivateAlert(ctx context.Context, id string) (*model.Alert, error) {
	a, err := scanAlert(s.pool.QueryRow(ctx,
		`UPDATE alerts SET active = false, updated_at = $1 WHERE id = $2 RETURNING `+alertColumns,
		time.Now().UTC(), id,
	))
	return pgRequired(a, err, "postgres: deactivate alert")
}

func (s *PostgresStore) DeleteAlert(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM alerts WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete alert %s", id)
	}
	return pgCheckAffected(tag.RowsAffected())
}

func (s *PostgresStore) MarkAlertTriggered(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE alerts SET last_triggered_at = $1, updated_at = $1 WHERE id = $2`,
		at.UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark alert triggered %s", id)
	}
	return pgCheckAffected(tag.RowsAffected())
}

// --- USSD sessions ---

func (s *PostgresStore) GetSessionLanguage(ctx context.Context, phone string) (model.Language, bool, error) {
	var lang string
	err := s.pool.QueryRow(ctx, `SELECT language FROM ussd_sessions WHERE phone_number = $1`, phone).Scan(&lang)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DefaultLanguage, false, nil
	}
	if err != nil {
		return model.DefaultLanguage, false, eris.Wrap(err, "postgres: get session language")
	}
	return model.ParseLanguage(lang), true, nil
}

func (s *PostgresStore) SetSessionLanguage(ctx context.Context, phone string, lang model.Language) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ussd_sessions (phone_number, language, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (phone_number) DO UPDATE SET language = EXCLUDED.language, updated_at = EXCLUDED.updated_at`,
		phone, string(lang), time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: set session language")
}

// --- Analytics ---

func (s *PostgresStore) Overview(ctx context.Context, dayStart time.Time) (*model.Overview, error) {
	var o model.Overview
	err := s.pool.QueryRow(ctx, overviewQuery("active", "NOT approved", "$1"), dayStart.UTC()).Scan(
		&o.ActiveMarkets, &o.PricesToday, &o.PendingApprovals, &o.TotalCrops, &o.ActiveSources, &o.ActiveAlerts,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: overview")
	}
	o.CollectedAt = time.Now().UTC()
	return &o, nil
}

func overviewQuery(activeCond, pendingCond, sinceParam string) string {
	return `SELECT
		(SELECT COUNT(*) FROM markets WHERE ` + activeCond + `),
		(SELECT COUNT(*) FROM price_reports WHERE date >= ` + sinceParam + `),
		(SELECT COUNT(*) FROM price_reports WHERE ` + pendingCond + `),
		(SELECT COUNT(*) FROM crops),
		(SELECT COUNT(*) FROM sources WHERE status = 'active'),
		(SELECT COUNT(*) FROM alerts WHERE ` + activeCond + `)`
}

// --- helpers ---

func pgOptional[T any](v *T, err error, op string) (*T, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, op)
	}
	return v, nil
}

func pgRequired[T any](v *T, err error, op string) (*T, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, op)
	}
	return v, nil
}

func pgCheckAffected(n int64) error {
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func collectPrices(rows pgx.Rows) ([]model.PriceReport, error) {
	var prices []model.PriceReport
	for rows.Next() {
		p, err := scanPrice(rows)
		if err != nil {
			return nil, err
		}
		prices = append(prices, *p)
	}
	return prices, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCrop(row scannable) (*model.Crop, error) {
	var c model.Crop
	if err := row.Scan(&c.ID, &c.Name, &c.NameSwahili, &c.Unit, &c.Category, &c.Position, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanMarket(row scannable) (*model.Market, error) {
	var m model.Market
	if err := row.Scan(&m.ID, &m.Name, &m.County, &m.Region, &m.Active, &m.Position, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func scanSource(row scannable) (*model.Source, error) {
	var src model.Source
	err := row.Scan(&src.ID, &src.Name, &src.PhoneNumber, &src.Role, &src.ReliabilityScore, &src.Status,
		&src.SubmissionCount, &src.LastSubmissionAt, &src.CreatedAt, &src.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &src, nil
}

func scanPrice(row scannable) (*model.PriceReport, error) {
	var p model.PriceReport
	err := row.Scan(&p.ID, &p.CropID, &p.MarketID, &p.SourceID, &p.Price, &p.Date, &p.Approved,
		&p.Notes, &p.Channel, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanAlert(row scannable) (*model.Alert, error) {
	var a model.Alert
	err := row.Scan(&a.ID, &a.PhoneNumber, &a.CropID, &a.MarketID, &a.TargetPrice, &a.Direction, &a.Active,
		&a.LastTriggeredAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
