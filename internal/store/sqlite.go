package store

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/sokoprice/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// A single connection keeps pragmas in effect and serializes writers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Timestamps are stored as fixed-width UTC text so that range predicates
// and ORDER BY compare correctly as strings.
const sqliteTimeFormat = "2006-01-02 15:04:05.000000000"

func tsText(t time.Time) string {
	return t.UTC().Format(sqliteTimeFormat)
}

func nullTSText(t *time.Time) any {
	if t == nil {
		return nil
	}
	return tsText(*t)
}

func parseTS(s string) (time.Time, error) {
	t, err := time.ParseInLocation(sqliteTimeFormat, s, time.UTC)
	return t, eris.Wrapf(err, "sqlite: parse timestamp %q", s)
}

func parseNullTS(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTS(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS crops (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL UNIQUE,
	name_swahili TEXT NOT NULL DEFAULT '',
	unit         TEXT NOT NULL DEFAULT '',
	category     TEXT NOT NULL DEFAULT 'other',
	position     INTEGER NOT NULL DEFAULT 0,
	created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS markets (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	county     TEXT NOT NULL DEFAULT '',
	region     TEXT NOT NULL DEFAULT '',
	active     INTEGER NOT NULL DEFAULT 1,
	position   INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sources (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	phone_number       TEXT NOT NULL UNIQUE,
	role               TEXT NOT NULL DEFAULT 'Trader',
	reliability_score  REAL NOT NULL DEFAULT 0.5,
	status             TEXT NOT NULL DEFAULT 'active',
	submission_count   INTEGER NOT NULL DEFAULT 0,
	last_submission_at TEXT,
	created_at         TEXT NOT NULL,
	updated_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS price_reports (
	id         TEXT PRIMARY KEY,
	crop_id    TEXT NOT NULL REFERENCES crops(id),
	market_id  TEXT NOT NULL REFERENCES markets(id),
	source_id  TEXT NOT NULL,
	price      REAL NOT NULL CHECK (price > 0),
	date       TEXT NOT NULL,
	approved   INTEGER NOT NULL DEFAULT 0,
	notes      TEXT NOT NULL DEFAULT '',
	channel    TEXT NOT NULL DEFAULT 'web',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_price_reports_pair_date ON price_reports(crop_id, market_id, date);
CREATE INDEX IF NOT EXISTS idx_price_reports_source_date ON price_reports(source_id, date);
CREATE INDEX IF NOT EXISTS idx_price_reports_approved ON price_reports(approved);

CREATE TABLE IF NOT EXISTS alerts (
	id                TEXT PRIMARY KEY,
	phone_number      TEXT NOT NULL,
	crop_id           TEXT NOT NULL REFERENCES crops(id),
	market_id         TEXT NOT NULL REFERENCES markets(id),
	target_price      REAL NOT NULL CHECK (target_price >= 0),
	direction         TEXT NOT NULL DEFAULT 'above',
	active            INTEGER NOT NULL DEFAULT 1,
	last_triggered_at TEXT,
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_active ON alerts(active);
CREATE INDEX IF NOT EXISTS idx_alerts_phone ON alerts(phone_number);

CREATE TABLE IF NOT EXISTS ussd_sessions (
	phone_number TEXT PRIMARY KEY,
	language     TEXT NOT NULL DEFAULT 'en',
	updated_at   TEXT NOT NULL
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Catalog ---

func (s *SQLiteStore) ListCrops(ctx context.Context) ([]model.Crop, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+cropColumns+` FROM crops ORDER BY position, name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list crops")
	}
	defer rows.Close() //nolint:errcheck

	var crops []model.Crop
	for rows.Next() {
		c, err := liteScanCrop(rows)
		if err != nil {
			return nil, err
		}
		crops = append(crops, *c)
	}
	return crops, eris.Wrap(rows.Err(), "sqlite: list crops iterate")
}

func (s *SQLiteStore) ListMarkets(ctx context.Context, activeOnly bool) ([]model.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY position, name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list markets")
	}
	defer rows.Close() //nolint:errcheck

	var markets []model.Market
	for rows.Next() {
		m, err := liteScanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	return markets, eris.Wrap(rows.Err(), "sqlite: list markets iterate")
}

func (s *SQLiteStore) GetCrop(ctx context.Context, id string) (*model.Crop, error) {
	return liteOptional(liteScanCrop(s.db.QueryRowContext(ctx, `SELECT `+cropColumns+` FROM crops WHERE id = ?`, id)))
}

func (s *SQLiteStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	return liteOptional(liteScanMarket(s.db.QueryRowContext(ctx, `SELECT `+marketColumns+` FROM markets WHERE id = ?`, id)))
}

func (s *SQLiteStore) FindCropByName(ctx context.Context, name string) (*model.Crop, error) {
	name = strings.TrimSpace(name)
	return liteOptional(liteScanCrop(s.db.QueryRowContext(ctx,
		`SELECT `+cropColumns+` FROM crops WHERE lower(name) = lower(?) OR lower(name_swahili) = lower(?) ORDER BY position LIMIT 1`,
		name, name,
	)))
}

func (s *SQLiteStore) FindMarketByName(ctx context.Context, name string) (*model.Market, error) {
	return liteOptional(liteScanMarket(s.db.QueryRowContext(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE lower(name) = lower(?) ORDER BY position LIMIT 1`,
		strings.TrimSpace(name),
	)))
}

func (s *SQLiteStore) SeedCatalog(ctx context.Context, crops []model.Crop, markets []model.Market) error {
	now := tsText(time.Now())
	return s.inTx(ctx, "seed catalog", func(tx *sql.Tx) error {
		for _, c := range crops {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO crops (`+cropColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT(name) DO UPDATE SET name_swahili = excluded.name_swahili, unit = excluded.unit,
				 category = excluded.category, position = excluded.position`,
				newID(c.ID), c.Name, c.NameSwahili, c.Unit, string(c.Category), c.Position, now,
			); err != nil {
				return eris.Wrapf(err, "sqlite: seed crop %s", c.Name)
			}
		}
		for _, m := range markets {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO markets (`+marketColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT(name) DO UPDATE SET county = excluded.county, region = excluded.region,
				 active = excluded.active, position = excluded.position`,
				newID(m.ID), m.Name, m.County, m.Region, m.Active, m.Position, now,
			); err != nil {
				return eris.Wrapf(err, "sqlite: seed market %s", m.Name)
			}
		}
		return nil
	})
}

// --- Sources ---

func (s *SQLiteStore) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY created_at, name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sources")
	}
	defer rows.Close() //nolint:errcheck

	var sources []model.Source
	for rows.Next() {
		src, err := liteScanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *src)
	}
	return sources, eris.Wrap(rows.Err(), "sqlite: list sources iterate")
}

func (s *SQLiteStore) GetSource(ctx context.Context, id string) (*model.Source, error) {
	return liteOptional(liteScanSource(s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)))
}

func (s *SQLiteStore) GetSourceByPhone(ctx context.Context, phone string) (*model.Source, error) {
	return liteOptional(liteScanSource(s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE phone_number = ?`, phone)))
}

func (s *SQLiteStore) FindSourceByName(ctx context.Context, name string) (*model.Source, error) {
	return liteOptional(liteScanSource(s.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE lower(name) = lower(?) ORDER BY created_at LIMIT 1`,
		strings.TrimSpace(name),
	)))
}

func (s *SQLiteStore) FindOrCreateSource(ctx context.Context, src model.Source) (*model.Source, bool, error) {
	now := tsText(time.Now())
	if src.Role == "" {
		src.Role = model.SourceRoleTrader
	}
	if src.Status == "" {
		src.Status = model.SourceStatusActive
	}
	if src.ReliabilityScore <= 0 {
		src.ReliabilityScore = model.DefaultReliability
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (id, name, phone_number, role, reliability_score, status, submission_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT(phone_number) DO NOTHING`,
		newID(src.ID), src.Name, src.PhoneNumber, string(src.Role), src.ReliabilityScore, string(src.Status), now, now,
	)
	if err != nil {
		return nil, false, eris.Wrapf(err, "sqlite: insert source %s", src.PhoneNumber)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: rows affected")
	}

	stored, err := s.GetSourceByPhone(ctx, src.PhoneNumber)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, eris.Errorf("sqlite: source %s vanished after insert", src.PhoneNumber)
	}
	return stored, n == 1, nil
}

func (s *SQLiteStore) IncrementSourceSubmissions(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sources SET submission_count = submission_count + 1, last_submission_at = ?, updated_at = ? WHERE id = ?`,
		tsText(at), tsText(time.Now()), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment submissions %s", id)
	}
	return checkRowsAffected(res)
}

func (s *SQLiteStore) UpdateSourceReliability(ctx context.Context, id string, score float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sources SET reliability_score = ?, updated_at = ? WHERE id = ?`,
		score, tsText(time.Now()), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update reliability %s", id)
	}
	return checkRowsAffected(res)
}

func (s *SQLiteStore) ListSourceIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sources ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list source ids")
	}
	defer rows.Close() //nolint:errcheck

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: list source ids iterate")
}

// --- Prices ---

func (s *SQLiteStore) CreatePrice(ctx context.Context, p model.PriceReport) (*model.PriceReport, error) {
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

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO price_reports (`+priceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.CropID, p.MarketID, p.SourceID, p.Price, tsText(p.Date), p.Approved, p.Notes, string(p.Channel),
		tsText(p.CreatedAt), tsText(p.UpdatedAt),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert price")
	}
	return &p, nil
}

func (s *SQLiteStore) GetPrice(ctx context.Context, id string) (*model.PriceReport, error) {
	return liteOptional(liteScanPrice(s.db.QueryRowContext(ctx, `SELECT `+priceColumns+` FROM price_reports WHERE id = ?`, id)))
}

func (s *SQLiteStore) ListPrices(ctx context.Context, filter model.PriceFilter) ([]model.PriceReport, int, error) {
	var conds []string
	var args []any
	if filter.CropID != "" {
		conds = append(conds, "crop_id = ?")
		args = append(args, filter.CropID)
	}
	if filter.MarketID != "" {
		conds = append(conds, "market_id = ?")
		args = append(args, filter.MarketID)
	}
	if filter.Approved != nil {
		conds = append(conds, "approved = ?")
		args = append(args, *filter.Approved)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM price_reports`+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: count prices")
	}

	query := `SELECT ` + priceColumns + ` FROM price_reports` + where + ` ORDER BY date DESC, created_at DESC LIMIT ? OFFSET ?`
	args = append(args, clampLimit(filter.Limit), max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: list prices")
	}
	defer rows.Close() //nolint:errcheck

	prices, err := liteCollectPrices(rows)
	if err != nil {
		return nil, 0, err
	}
	return prices, total, nil
}

func (s *SQLiteStore) LatestApprovedPrice(ctx context.Context, cropID, marketID string) (*model.PriceReport, error) {
	return liteOptional(liteScanPrice(s.db.QueryRowContext(ctx,
		`SELECT `+priceColumns+` FROM price_reports
		 WHERE crop_id = ? AND market_id = ? AND approved
		 ORDER BY date DESC, created_at DESC LIMIT 1`,
		cropID, marketID,
	)))
}

func (s *SQLiteStore) RecentObservations(ctx context.Context, cropID, marketID string, since time.Time) ([]model.Observation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.price, s.reliability_score FROM price_reports p
		 LEFT JOIN sources s ON s.id = p.source_id
		 WHERE p.crop_id = ? AND p.market_id = ? AND p.date >= ?`,
		cropID, marketID, tsText(since),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent observations")
	}
	defer rows.Close() //nolint:errcheck

	var obs []model.Observation
	for rows.Next() {
		var o model.Observation
		var rel sql.NullFloat64
		if err := rows.Scan(&o.Price, &rel); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan observation")
		}
		if rel.Valid {
			o.Reliability = &rel.Float64
		}
		obs = append(obs, o)
	}
	return obs, eris.Wrap(rows.Err(), "sqlite: recent observations iterate")
}

func (s *SQLiteStore) SourceApprovalStats(ctx context.Context, sourceID string, since time.Time) (model.ApprovalStats, error) {
	var stats model.ApprovalStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN approved THEN 1 ELSE 0 END), 0), COUNT(*)
		 FROM price_reports WHERE source_id = ? AND date >= ?`,
		sourceID, tsText(since),
	).Scan(&stats.Approved, &stats.Total)
	return stats, eris.Wrapf(err, "sqlite: approval stats %s", sourceID)
}

func (s *SQLiteStore) ApprovePrice(ctx context.Context, id string) (*model.PriceReport, error) {
	return liteRequired(liteScanPrice(s.db.QueryRowContext(ctx,
		`UPDATE price_reports SET approved = 1, updated_at = ? WHERE id = ? RETURNING `+priceColumns,
		tsText(time.Now()), id,
	)))
}

func (s *SQLiteStore) DeletePrice(ctx context.Context, id string) (*model.PriceReport, error) {
	return liteRequired(liteScanPrice(s.db.QueryRowContext(ctx,
		`DELETE FROM price_reports WHERE id = ? RETURNING `+priceColumns,
		id,
	)))
}

func (s *SQLiteStore) PriceHistory(ctx context.Context, cropID, marketID string, since time.Time) ([]model.PriceReport, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+priceColumns+` FROM price_reports
		 WHERE crop_id = ? AND market_id = ? AND approved AND date >= ?
		 ORDER BY date ASC`,
		cropID, marketID, tsText(since),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: price history")
	}
	defer rows.Close() //nolint:errcheck
	return liteCollectPrices(rows)
}

func (s *SQLiteStore) PriceTrends(ctx context.Context, filter model.TrendFilter) ([]model.TrendPoint, error) {
	args := []any{tsText(filter.Since)}
	query := `SELECT substr(p.date, 1, 10) AS day,
		p.crop_id, c.name, p.market_id, m.name,
		AVG(p.price), MIN(p.price), MAX(p.price), COUNT(*)
		FROM price_reports p
		JOIN crops c ON c.id = p.crop_id
		JOIN markets m ON m.id = p.market_id
		WHERE p.approved AND p.date >= ?`
	if filter.CropID != "" {
		query += ` AND p.crop_id = ?`
		args = append(args, filter.CropID)
	}
	if filter.MarketID != "" {
		query += ` AND p.market_id = ?`
		args = append(args, filter.MarketID)
	}
	query += ` GROUP BY day, p.crop_id, c.name, p.market_id, m.name ORDER BY day, c.name, m.name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: price trends")
	}
	defer rows.Close() //nolint:errcheck

	var points []model.TrendPoint
	for rows.Next() {
		var tp model.TrendPoint
		if err := rows.Scan(&tp.Date, &tp.CropID, &tp.Crop, &tp.MarketID, &tp.Market,
			&tp.AvgPrice, &tp.MinPrice, &tp.MaxPrice, &tp.Submissions); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan trend")
		}
		tp.AvgPrice = math.Round(tp.AvgPrice)
		points = append(points, tp)
	}
	return points, eris.Wrap(rows.Err(), "sqlite: price trends iterate")
}

func (s *SQLiteStore) ImportPrices(ctx context.Context, prices []model.PriceReport) (int64, error) {
	if len(prices) == 0 {
		return 0, nil
	}
	now := tsText(time.Now())
	var n int64
	err := s.inTx(ctx, "import prices", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO price_reports (`+priceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare import")
		}
		defer stmt.Close() //nolint:errcheck

		for _, p := range prices {
			channel := p.Channel
			if channel == "" {
				channel = model.ChannelWeb
			}
			date := now
			if !p.Date.IsZero() {
				date = tsText(p.Date)
			}
			if _, err := stmt.ExecContext(ctx, newID(p.ID), p.CropID, p.MarketID, p.SourceID, p.Price, date,
				p.Approved, p.Notes, string(channel), now, now); err != nil {
				return eris.Wrap(err, "sqlite: import price")
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// --- Alerts ---

func (s *SQLiteStore) CreateAlert(ctx context.Context, a model.Alert) (*model.Alert, error) {
	now := time.Now().UTC()
	a.ID = newID(a.ID)
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (`+alertColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.PhoneNumber, a.CropID, a.MarketID, a.TargetPrice, string(a.Direction), a.Active,
		nullTSText(a.LastTriggeredAt), tsText(a.CreatedAt), tsText(a.UpdatedAt),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert alert")
	}
	return &a, nil
}

func (s *SQLiteStore) GetAlert(ctx context.Context, id string) (*model.Alert, error) {
	return liteOptional(liteScanAlert(s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)))
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, filter model.AlertFilter) ([]model.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE 1=1`
	var args []any
	if filter.PhoneNumber != "" {
		query += ` AND phone_number = ?`
		args = append(args, filter.PhoneNumber)
	}
	if filter.Active != nil {
		query += ` AND active = ?`
		args = append(args, *filter.Active)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list alerts")
	}
	defer rows.Close() //nolint:errcheck

	var alerts []model.Alert
	for rows.Next() {
		a, err := liteScanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *a)
	}
	return alerts, eris.Wrap(rows.Err(), "sqlite: list alerts iterate")
}

func (s *SQLiteStore) DeactivateAlert(ctx context.Context, id string) (*model.Alert, error) {
	return liteRequired(liteScanAlert(s.db.QueryRowContext(ctx,
		`UPDATE alerts SET active = 0, updated_at = ? WHERE id = ? RETURNING `+alertColumns,
		tsText(time.Now()), id,
	)))
}

func (s *SQLiteStore) DeleteAlert(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete alert %s", id)
	}
	return checkRowsAffected(res)
}

func (s *SQLiteStore) MarkAlertTriggered(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET last_triggered_at = ?, updated_at = ? WHERE id = ?`,
		tsText(at), tsText(at), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark alert triggered %s", id)
	}
	return checkRowsAffected(res)
}

// --- USSD sessions ---

func (s *SQLiteStore) GetSessionLanguage(ctx context.Context, phone string) (model.Language, bool, error) {
	var lang string
	err := s.db.QueryRowContext(ctx, `SELECT language FROM ussd_sessions WHERE phone_number = ?`, phone).Scan(&lang)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultLanguage, false, nil
	}
	if err != nil {
		return model.DefaultLanguage, false, eris.Wrap(err, "sqlite: get session language")
	}
	return model.ParseLanguage(lang), true, nil
}

func (s *SQLiteStore) SetSessionLanguage(ctx context.Context, phone string, lang model.Language) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ussd_sessions (phone_number, language, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(phone_number) DO UPDATE SET language = excluded.language, updated_at = excluded.updated_at`,
		phone, string(lang), tsText(time.Now()),
	)
	return eris.Wrap(err, "sqlite: set session language")
}

// --- Analytics ---

func (s *SQLiteStore) Overview(ctx context.Context, dayStart time.Time) (*model.Overview, error) {
	var o model.Overview
	err := s.db.QueryRowContext(ctx, overviewQuery("active", "NOT approved", "?"), tsText(dayStart)).Scan(
		&o.ActiveMarkets, &o.PricesToday, &o.PendingApprovals, &o.TotalCrops, &o.ActiveSources, &o.ActiveAlerts,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: overview")
	}
	o.CollectedAt = time.Now().UTC()
	return &o, nil
}

// --- helpers ---

func (s *SQLiteStore) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "sqlite: begin %s", op)
	}
	if err := fn(tx); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	return eris.Wrapf(tx.Commit(), "sqlite: commit %s", op)
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func liteOptional[T any](v *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func liteRequired[T any](v *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func liteCollectPrices(rows *sql.Rows) ([]model.PriceReport, error) {
	var prices []model.PriceReport
	for rows.Next() {
		p, err := liteScanPrice(rows)
		if err != nil {
			return nil, err
		}
		prices = append(prices, *p)
	}
	return prices, eris.Wrap(rows.Err(), "sqlite: iterate prices")
}

func liteScanCrop(row scannable) (*model.Crop, error) {
	var c model.Crop
	var created string
	if err := row.Scan(&c.ID, &c.Name, &c.NameSwahili, &c.Unit, &c.Category, &c.Position, &created); err != nil {
		return nil, liteScanErr(err, "crop")
	}
	var err error
	if c.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	return &c, nil
}

func liteScanMarket(row scannable) (*model.Market, error) {
	var m model.Market
	var created string
	if err := row.Scan(&m.ID, &m.Name, &m.County, &m.Region, &m.Active, &m.Position, &created); err != nil {
		return nil, liteScanErr(err, "market")
	}
	var err error
	if m.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	return &m, nil
}

func liteScanSource(row scannable) (*model.Source, error) {
	var src model.Source
	var last sql.NullString
	var created, updated string
	err := row.Scan(&src.ID, &src.Name, &src.PhoneNumber, &src.Role, &src.ReliabilityScore, &src.Status,
		&src.SubmissionCount, &last, &created, &updated)
	if err != nil {
		return nil, liteScanErr(err, "source")
	}
	if src.LastSubmissionAt, err = parseNullTS(last); err != nil {
		return nil, err
	}
	if src.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	if src.UpdatedAt, err = parseTS(updated); err != nil {
		return nil, err
	}
	return &src, nil
}

func liteScanPrice(row scannable) (*model.PriceReport, error) {
	var p model.PriceReport
	var date, created, updated string
	err := row.Scan(&p.ID, &p.CropID, &p.MarketID, &p.SourceID, &p.Price, &date, &p.Approved,
		&p.Notes, &p.Channel, &created, &updated)
	if err != nil {
		return nil, liteScanErr(err, "price")
	}
	if p.Date, err = parseTS(date); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTS(updated); err != nil {
		return nil, err
	}
	return &p, nil
}

func liteScanAlert(row scannable) (*model.Alert, error) {
	var a model.Alert
	var last sql.NullString
	var created, updated string
	err := row.Scan(&a.ID, &a.PhoneNumber, &a.CropID, &a.MarketID, &a.TargetPrice, &a.Direction, &a.Active,
		&last, &created, &updated)
	if err != nil {
		return nil, liteScanErr(err, "alert")
	}
	if a.LastTriggeredAt, err = parseNullTS(last); err != nil {
		return nil, err
	}
	if a.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTS(updated); err != nil {
		return nil, err
	}
	return &a, nil
}

// liteScanErr keeps sql.ErrNoRows matchable for the optional/required helpers.
func liteScanErr(err error, entity string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return err
	}
	return eris.Wrapf(err, "sqlite: scan %s", entity)
}
