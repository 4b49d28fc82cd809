// Package storetest builds seeded SQLite stores for service tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/sokoprice/internal/model"
	"github.com/sells-group/sokoprice/internal/store"
)

// Catalog ids used by Seeded.
const (
	Maize    = "crop-maize"
	Beans    = "crop-beans"
	Wakulima = "mkt-wakulima"
	Eldoret  = "mkt-eldoret"
	Closed   = "mkt-closed"
)

var (
	Crops = []model.Crop{
		{ID: Maize, Name: "Maize", NameSwahili: "Mahindi", Unit: "90kg bag", Category: model.CropCategoryCereals, Position: 1},
		{ID: Beans, Name: "Beans", NameSwahili: "Maharage", Unit: "90kg bag", Category: model.CropCategoryLegumes, Position: 2},
	}
	Markets = []model.Market{
		{ID: Wakulima, Name: "Wakulima Market", County: "Nairobi", Region: "Central", Active: true, Position: 1},
		{ID: Eldoret, Name: "Eldoret Market", County: "Uasin Gishu", Region: "Rift Valley", Active: true, Position: 2},
		{ID: Closed, Name: "Closed Market", County: "Nakuru", Region: "Rift Valley", Active: false, Position: 3},
	}
)

// New opens a migrated, empty SQLite store under t.TempDir.
func New(t testing.TB) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "sokoprice.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// Seeded opens a store holding Crops and Markets.
func Seeded(t testing.TB) *store.SQLiteStore {
	t.Helper()
	st := New(t)
	require.NoError(t, st.SeedCatalog(context.Background(), Crops, Markets))
	return st
}

// Source registers a source with the given phone number and reliability.
func Source(t testing.TB, st store.Store, phone string, reliability float64) *model.Source {
	t.Helper()
	src, _, err := st.FindOrCreateSource(context.Background(), model.Source{
		Name:             "Reporter " + phone,
		PhoneNumber:      phone,
		Role:             model.SourceRoleTrader,
		ReliabilityScore: reliability,
	})
	require.NoError(t, err)
	return src
}

// Price stores a report and approves it when approved is set.
func Price(t testing.TB, st store.Store, p model.PriceReport, approved bool) *model.PriceReport {
	t.Helper()
	ctx := context.Background()
	created, err := st.CreatePrice(ctx, p)
	require.NoError(t, err)
	if approved {
		created, err = st.ApprovePrice(ctx, created.ID)
		require.NoError(t, err)
	}
	return created
}
