// Package analytics aggregates approved prices for the dashboard.
package analytics

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/sokoprice/internal/catalog"
	"github.com/sells-group/sokoprice/internal/confidence"
	"github.com/sells-group/sokoprice/internal/model"
	"github.com/sells-group/sokoprice/internal/prices"
)

const (
	defaultTrendDays = 30
	maxTrendDays     = 365

	// comparisonConcurrency bounds parallel per-market lookups.
	comparisonConcurrency = 4
)

// Store is the slice of the store the collector reads.
type Store interface {
	Overview(ctx context.Context, dayStart time.Time) (*model.Overview, error)
	PriceTrends(ctx context.Context, filter model.TrendFilter) ([]model.TrendPoint, error)
}

// Quoter returns the latest approved price with confidence.
type Quoter interface {
	Latest(ctx context.Context, cropID, marketID string) (*prices.Quote, error)
}

// Catalog supplies the crops and active markets.
type Catalog interface {
	Snapshot(ctx context.Context) (*catalog.Snapshot, error)
}

// Collector answers dashboard queries.
type Collector struct {
	store   Store
	quoter  Quoter
	catalog Catalog
	loc     *time.Location

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewCollector creates a Collector. Day boundaries are taken in loc.
func NewCollector(st Store, q Quoter, cat Catalog, loc *time.Location) *Collector {
	if loc == nil {
		loc = time.UTC
	}
	return &Collector{store: st, quoter: q, catalog: cat, loc: loc, nowFunc: time.Now}
}

// Overview returns headline counts; "today" starts at local midnight.
func (c *Collector) Overview(ctx context.Context) (*model.Overview, error) {
	now := c.nowFunc().In(c.loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.loc)
	o, err := c.store.Overview(ctx, dayStart)
	if err != nil {
		return nil, eris.Wrap(err, "analytics: overview")
	}
	return o, nil
}

// TrendsRequest selects daily aggregates over the trailing Days.
type TrendsRequest struct {
	Days     int
	CropID   string
	MarketID string
}

// Trends returns daily avg/min/max/count of approved prices per crop and
// market.
func (c *Collector) Trends(ctx context.Context, req TrendsRequest) ([]model.TrendPoint, error) {
	days := req.Days
	if days <= 0 {
		days = defaultTrendDays
	}
	if days > maxTrendDays {
		days = maxTrendDays
	}
	points, err := c.store.PriceTrends(ctx, model.TrendFilter{
		Since:    c.nowFunc().AddDate(0, 0, -days),
		CropID:   req.CropID,
		MarketID: req.MarketID,
	})
	if err != nil {
		return nil, eris.Wrap(err, "analytics: trends")
	}
	return points, nil
}

// ComparisonRow is one market's latest approved price for a crop.
type ComparisonRow struct {
	MarketID   string          `json:"market_id"`
	Market     string          `json:"market"`
	Region     string          `json:"region"`
	HasData    bool            `json:"has_data"`
	Price      float64         `json:"price,omitempty"`
	Date       *time.Time      `json:"date,omitempty"`
	Confidence float64         `json:"confidence"`
	Tier       confidence.Tier `json:"tier,omitempty"`
}

// Comparison lines up a crop's latest price across active markets.
type Comparison struct {
	CropID  string          `json:"crop_id"`
	Crop    string          `json:"crop"`
	Unit    string          `json:"unit"`
	Rows    []ComparisonRow `json:"rows"`
	Min     float64         `json:"min"`
	Max     float64         `json:"max"`
	Average float64         `json:"average"`
	Spread  float64         `json:"spread"`
}

// Comparison returns nil when the crop is unknown.
func (c *Collector) Comparison(ctx context.Context, cropID string) (*Comparison, error) {
	snap, err := c.catalog.Snapshot(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "analytics: catalog")
	}
	crop, ok := snap.Crop(cropID)
	if !ok {
		return nil, nil
	}

	rows := make([]ComparisonRow, len(snap.Markets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(comparisonConcurrency)
	for i, m := range snap.Markets {
		rows[i] = ComparisonRow{MarketID: m.ID, Market: m.Name, Region: m.Region}
		g.Go(func() error {
			q, err := c.quoter.Latest(gctx, crop.ID, m.ID)
			if err != nil {
				return err
			}
			if q == nil {
				return nil
			}
			date := q.Report.Date
			rows[i].HasData = true
			rows[i].Price = q.Report.Price
			rows[i].Date = &date
			rows[i].Confidence = q.Confidence.Score
			rows[i].Tier = q.Tier
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrapf(err, "analytics: comparison for %s", cropID)
	}

	out := &Comparison{CropID: crop.ID, Crop: crop.Name, Unit: crop.Unit, Rows: rows}
	summarize(out)
	return out, nil
}

func summarize(c *Comparison) {
	var sum float64
	n := 0
	c.Min = math.Inf(1)
	c.Max = math.Inf(-1)
	for _, r := range c.Rows {
		if !r.HasData {
			continue
		}
		n++
		sum += r.Price
		c.Min = math.Min(c.Min, r.Price)
		c.Max = math.Max(c.Max, r.Price)
	}
	if n == 0 {
		c.Min, c.Max = 0, 0
		return
	}
	c.Average = math.Round(sum / float64(n))
	c.Spread = c.Max - c.Min
}
