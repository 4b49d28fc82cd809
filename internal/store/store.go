// Package store persists the catalog, sources, price reports, alerts and
// USSD language preferences.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/sokoprice/internal/model"
)

// Store is the persistence interface shared by the Postgres and SQLite
// backends. Lookups return (nil, nil) when the record does not exist;
// mutations addressed to a missing record return model.ErrNotFound.
type Store interface {
	// Catalog
	ListCrops(ctx context.Context) ([]model.Crop, error)
	ListMarkets(ctx context.Context, activeOnly bool) ([]model.Market, error)
	GetCrop(ctx context.Context, id string) (*model.Crop, error)
	GetMarket(ctx context.Context, id string) (*model.Market, error)
	FindCropByName(ctx context.Context, name string) (*model.Crop, error)
	FindMarketByName(ctx context.Context, name string) (*model.Market, error)
	SeedCatalog(ctx context.Context, crops []model.Crop, markets []model.Market) error

	// Sources
	ListSources(ctx context.Context) ([]model.Source, error)
	GetSource(ctx context.Context, id string) (*model.Source, error)
	GetSourceByPhone(ctx context.Context, phone string) (*model.Source, error)
	FindSourceByName(ctx context.Context, name string) (*model.Source, error)
	// FindOrCreateSource inserts src unless a source with the same phone
	// number exists, and returns the stored record. created is false when
	// the phone number was already registered.
	FindOrCreateSource(ctx context.Context, src model.Source) (stored *model.Source, created bool, err error)
	IncrementSourceSubmissions(ctx context.Context, id string, at time.Time) error
	UpdateSourceReliability(ctx context.Context, id string, score float64) error
	ListSourceIDs(ctx context.Context) ([]string, error)

	// Prices
	CreatePrice(ctx context.Context, p model.PriceReport) (*model.PriceReport, error)
	GetPrice(ctx context.Context, id string) (*model.PriceReport, error)
	ListPrices(ctx context.Context, filter model.PriceFilter) ([]model.PriceReport, int, error)
	LatestApprovedPrice(ctx context.Context, cropID, marketID string) (*model.PriceReport, error)
	RecentObservations(ctx context.Context, cropID, marketID string, since time.Time) ([]model.Observation, error)
	SourceApprovalStats(ctx context.Context, sourceID string, since time.Time) (model.ApprovalStats, error)
	ApprovePrice(ctx context.Context, id string) (*model.PriceReport, error)
	DeletePrice(ctx context.Context, id string) (*model.PriceReport, error)
	PriceHistory(ctx context.Context, cropID, marketID string, since time.Time) ([]model.PriceReport, error)
	PriceTrends(ctx context.Context, filter model.TrendFilter) ([]model.TrendPoint, error)
	ImportPrices(ctx context.Context, prices []model.PriceReport) (int64, error)

	// Alerts
	CreateAlert(ctx context.Context, a model.Alert) (*model.Alert, error)
	GetAlert(ctx context.Context, id string) (*model.Alert, error)
	ListAlerts(ctx context.Context, filter model.AlertFilter) ([]model.Alert, error)
	DeactivateAlert(ctx context.Context, id string) (*model.Alert, error)
	DeleteAlert(ctx context.Context, id string) error
	MarkAlertTriggered(ctx context.Context, id string, at time.Time) error

	// USSD sessions
	GetSessionLanguage(ctx context.Context, phone string) (model.Language, bool, error)
	SetSessionLanguage(ctx context.Context, phone string, lang model.Language) error

	// Analytics
	Overview(ctx context.Context, dayStart time.Time) (*model.Overview, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// newID returns a fresh record id unless one is already set.
func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.New().String()
}
