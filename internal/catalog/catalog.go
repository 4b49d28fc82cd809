// Package catalog serves the ordered crop and market lists that back the
// USSD menus. Lists are loaded from the store and cached until they expire
// or are invalidated.
package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/sokoprice/internal/model"
)

// DefaultTTL bounds how long a loaded catalog is served before reloading.
const DefaultTTL = 5 * time.Minute

// Lister reads the catalog from storage.
type Lister interface {
	ListCrops(ctx context.Context) ([]model.Crop, error)
	ListMarkets(ctx context.Context, activeOnly bool) ([]model.Market, error)
}

// Snapshot is an immutable view of the catalog. Markets holds active markets
// only.
type Snapshot struct {
	Crops   []model.Crop
	Markets []model.Market

	cropByID   map[string]*model.Crop
	marketByID map[string]*model.Market
	loadedAt   time.Time
}

func newSnapshot(crops []model.Crop, markets []model.Market, at time.Time) *Snapshot {
	s := &Snapshot{
		Crops:      crops,
		Markets:    markets,
		cropByID:   make(map[string]*model.Crop, len(crops)),
		marketByID: make(map[string]*model.Market, len(markets)),
		loadedAt:   at,
	}
	for i := range s.Crops {
		s.cropByID[s.Crops[i].ID] = &s.Crops[i]
	}
	for i := range s.Markets {
		s.marketByID[s.Markets[i].ID] = &s.Markets[i]
	}
	return s
}

// CropAt returns the crop at a 1-based menu position.
func (s *Snapshot) CropAt(n int) (model.Crop, bool) {
	if n < 1 || n > len(s.Crops) {
		return model.Crop{}, false
	}
	return s.Crops[n-1], true
}

// MarketAt returns the market at a 1-based menu position.
func (s *Snapshot) MarketAt(n int) (model.Market, bool) {
	if n < 1 || n > len(s.Markets) {
		return model.Market{}, false
	}
	return s.Markets[n-1], true
}

// Crop looks up a crop by id.
func (s *Snapshot) Crop(id string) (model.Crop, bool) {
	c, ok := s.cropByID[id]
	if !ok {
		return model.Crop{}, false
	}
	return *c, true
}

// Market looks up an active market by id.
func (s *Snapshot) Market(id string) (model.Market, bool) {
	m, ok := s.marketByID[id]
	if !ok {
		return model.Market{}, false
	}
	return *m, true
}

// CropNames lists crop display names in menu order.
func (s *Snapshot) CropNames(lang model.Language) []string {
	out := make([]string, len(s.Crops))
	for i, c := range s.Crops {
		out[i] = c.DisplayName(lang)
	}
	return out
}

// MarketNames lists market names in menu order.
func (s *Snapshot) MarketNames() []string {
	out := make([]string, len(s.Markets))
	for i, m := range s.Markets {
		out[i] = m.Name
	}
	return out
}

// Catalog caches catalog snapshots. Concurrent reloads collapse into one
// store round trip.
type Catalog struct {
	src Lister
	ttl time.Duration

	mu   sync.RWMutex
	snap *Snapshot
	gen  uint64

	group   singleflight.Group
	nowFunc func() time.Time
}

// New creates a Catalog over src. A non-positive ttl uses DefaultTTL.
func New(src Lister, ttl time.Duration) *Catalog {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Catalog{src: src, ttl: ttl, nowFunc: time.Now}
}

// Snapshot returns the cached catalog, reloading it when stale.
func (c *Catalog) Snapshot(ctx context.Context) (*Snapshot, error) {
	c.mu.RLock()
	snap, gen := c.snap, c.gen
	c.mu.RUnlock()

	if snap != nil && c.nowFunc().Sub(snap.loadedAt) < c.ttl {
		return snap, nil
	}

	v, err, _ := c.group.Do("catalog", func() (any, error) {
		return c.load(ctx, gen)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// Invalidate drops the cached snapshot so the next read reloads.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.snap = nil
	c.gen++
	c.mu.Unlock()
}

func (c *Catalog) load(ctx context.Context, gen uint64) (*Snapshot, error) {
	var (
		crops   []model.Crop
		markets []model.Market
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		crops, err = c.src.ListCrops(gctx)
		return eris.Wrap(err, "catalog: list crops")
	})
	g.Go(func() error {
		var err error
		markets, err = c.src.ListMarkets(gctx, true)
		return eris.Wrap(err, "catalog: list markets")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := newSnapshot(crops, markets, c.nowFunc())

	c.mu.Lock()
	// A reload that raced with Invalidate is returned to its callers but
	// not cached.
	if c.gen == gen {
		c.snap = snap
	}
	c.mu.Unlock()

	zap.L().Debug("catalog: loaded",
		zap.Int("crops", len(crops)),
		zap.Int("markets", len(markets)),
	)
	return snap, nil
}
