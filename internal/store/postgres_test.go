package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sokoprice/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func ptr[T any](v T) *T { return &v }

var sourceCols = strings.Split(sourceColumns, ", ")

func TestPostgresStore_GetSource_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM sources WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	src, err := s.GetSource(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, src)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindOrCreateSource_Created(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO sources .+ ON CONFLICT \(phone_number\) DO NOTHING`).
		WithArgs(pgxmock.AnyArg(), "USSD User 0001", "+254711000001", "Trader", model.DefaultReliability, "active", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT .+ FROM sources WHERE phone_number = \$1`).
		WithArgs("+254711000001").
		WillReturnRows(pgxmock.NewRows(sourceCols).
			AddRow("src-1", "USSD User 0001", "+254711000001", "Trader", 0.5, "active", 0, nil, now, now))

	src, created, err := s.FindOrCreateSource(context.Background(), model.Source{Name: "USSD User 0001", PhoneNumber: "+254711000001"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "src-1", src.ID)
	assert.Equal(t, model.SourceRoleTrader, src.Role)
	assert.Nil(t, src.LastSubmissionAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindOrCreateSource_Conflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	last := now.Add(-time.Hour)

	mock.ExpectExec(`INSERT INTO sources`).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery(`SELECT .+ FROM sources WHERE phone_number = \$1`).
		WithArgs("+254711000001").
		WillReturnRows(pgxmock.NewRows(sourceCols).
			AddRow("src-existing", "John Kamau", "+254711000001", "Trader", 0.85, "active", 12, &last, now, now))

	src, created, err := s.FindOrCreateSource(context.Background(), model.Source{Name: "USSD User 0001", PhoneNumber: "+254711000001"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "src-existing", src.ID)
	assert.Equal(t, 12, src.SubmissionCount)
	require.NotNil(t, src.LastSubmissionAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_IncrementSourceSubmissions_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE sources SET submission_count = submission_count \+ 1`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.IncrementSourceSubmissions(context.Background(), "missing", time.Now())
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateSourceReliability(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE sources SET reliability_score = \$1`).
		WithArgs(0.91, pgxmock.AnyArg(), "src-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.UpdateSourceReliability(context.Background(), "src-1", 0.91))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestApprovedPrice_None(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM price_reports\s+WHERE crop_id = \$1 AND market_id = \$2 AND approved`).
		WithArgs("crop-maize", "mkt-wakulima").
		WillReturnError(pgx.ErrNoRows)

	p, err := s.LatestApprovedPrice(context.Background(), "crop-maize", "mkt-wakulima")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApprovePrice_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`UPDATE price_reports SET approved = true`).
		WithArgs(pgxmock.AnyArg(), "missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.ApprovePrice(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeletePrice(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`DELETE FROM price_reports WHERE id = \$1 RETURNING`).
		WithArgs("p-1").
		WillReturnRows(pgxmock.NewRows(strings.Split(priceColumns, ", ")).
			AddRow("p-1", "crop-maize", "mkt-wakulima", "src-1", 3500.0, now, false, "", "ussd", now, now))

	p, err := s.DeletePrice(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "src-1", p.SourceID)
	assert.Equal(t, model.ChannelUSSD, p.Channel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecentObservations(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	since := time.Now().Add(-48 * time.Hour)

	mock.ExpectQuery(`SELECT p.price, s.reliability_score FROM price_reports p\s+LEFT JOIN sources s`).
		WithArgs("crop-maize", "mkt-wakulima", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"price", "reliability_score"}).
			AddRow(3500.0, ptr(0.8)).
			AddRow(3600.0, nil))

	obs, err := s.RecentObservations(context.Background(), "crop-maize", "mkt-wakulima", since)
	require.NoError(t, err)
	require.Len(t, obs, 2)
	require.NotNil(t, obs[0].Reliability)
	assert.InDelta(t, 0.8, *obs[0].Reliability, 1e-9)
	assert.Nil(t, obs[1].Reliability)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SourceApprovalStats(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FILTER \(WHERE approved\), COUNT\(\*\) FROM price_reports`).
		WithArgs("src-1", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"approved", "total"}).AddRow(3, 4))

	stats, err := s.SourceApprovalStats(context.Background(), "src-1", time.Now().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalStats{Approved: 3, Total: 4}, stats)
	assert.InDelta(t, 0.75, stats.Rate(), 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListPrices_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	approved := false

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM price_reports WHERE crop_id = \$1 AND approved = \$2`).
		WithArgs("crop-maize", false).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`FROM price_reports WHERE crop_id = \$1 AND approved = \$2 ORDER BY date DESC, created_at DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("crop-maize", false, defaultListLimit, 0).
		WillReturnRows(pgxmock.NewRows(strings.Split(priceColumns, ", ")))

	prices, total, err := s.ListPrices(context.Background(), model.PriceFilter{CropID: "crop-maize", Approved: &approved})
	require.NoError(t, err)
	assert.Empty(t, prices)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ImportPrices_UsesCopy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"price_reports"}, strings.Split(priceColumns, ", ")).
		WillReturnResult(2)

	n, err := s.ImportPrices(context.Background(), []model.PriceReport{
		{CropID: "crop-maize", MarketID: "mkt-wakulima", SourceID: "src-1", Price: 3500, Approved: true},
		{CropID: "crop-beans", MarketID: "mkt-wakulima", SourceID: "src-1", Price: 8000},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ImportPrices_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	n, err := s.ImportPrices(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SeedCatalog_SingleTransaction(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "stage_crops"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"stage_crops"}, cropMerge.Columns).WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "crops" .+ ON CONFLICT \("name"\) DO UPDATE`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`CREATE TEMP TABLE "stage_markets"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"stage_markets"}, marketMerge.Columns).WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "markets"`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.SeedCatalog(context.Background(),
		[]model.Crop{{Name: "Maize", NameSwahili: "Mahindi", Unit: "90kg bag", Category: model.CropCategoryCereals}},
		[]model.Market{{Name: "Wakulima", County: "Nairobi", Region: "Central", Active: true}},
	)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SeedCatalog_RollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "stage_crops"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"stage_crops"}, cropMerge.Columns).WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "crops"`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`CREATE TEMP TABLE "stage_markets"`).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := s.SeedCatalog(context.Background(),
		[]model.Crop{{Name: "Maize", Unit: "90kg bag"}},
		[]model.Market{{Name: "Wakulima"}},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: seed markets")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkAlertTriggered_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE alerts SET last_triggered_at = \$1`).
		WithArgs(pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.MarkAlertTriggered(context.Background(), "missing", time.Now())
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSessionLanguage_Missing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT language FROM ussd_sessions WHERE phone_number = \$1`).
		WithArgs("+254711000001").
		WillReturnError(pgx.ErrNoRows)

	lang, ok, err := s.GetSessionLanguage(context.Background(), "+254711000001")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, model.DefaultLanguage, lang)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetSessionLanguage_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT \(phone_number\) DO UPDATE`).
		WithArgs("+254711000001", "sw", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SetSessionLanguage(context.Background(), "+254711000001", model.LanguageSwahili))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Overview(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT\s+\(SELECT COUNT\(\*\) FROM markets WHERE active\)`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"m", "p", "pa", "c", "s", "a"}).AddRow(5, 12, 3, 6, 4, 2))

	o, err := s.Overview(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 5, o.ActiveMarkets)
	assert.Equal(t, 12, o.PricesToday)
	assert.Equal(t, 3, o.PendingApprovals)
	assert.Equal(t, 6, o.TotalCrops)
	assert.Equal(t, 4, o.ActiveSources)
	assert.Equal(t, 2, o.ActiveAlerts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS crops`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
