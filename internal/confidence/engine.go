package confidence

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sokoprice/internal/config"
	"github.com/sells-group/sokoprice/internal/model"
)

// Repository is the slice of the store the engine reads and writes.
type Repository interface {
	RecentObservations(ctx context.Context, cropID, marketID string, since time.Time) ([]model.Observation, error)
	SourceApprovalStats(ctx context.Context, sourceID string, since time.Time) (model.ApprovalStats, error)
	GetSource(ctx context.Context, id string) (*model.Source, error)
	UpdateSourceReliability(ctx context.Context, id string, score float64) error
}

// Engine computes confidence on demand and owns reliability updates.
type Engine struct {
	repo              Repository
	window            time.Duration
	reliabilityWindow time.Duration
	thresholds        Thresholds
	locks             keyedMutex

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewEngine creates an Engine from configuration.
func NewEngine(repo Repository, cfg config.ConfidenceConfig) *Engine {
	window := time.Duration(cfg.WindowHours) * time.Hour
	if window <= 0 {
		window = 48 * time.Hour
	}
	relWindow := time.Duration(cfg.ReliabilityWindowDays) * 24 * time.Hour
	if relWindow <= 0 {
		relWindow = 30 * 24 * time.Hour
	}
	th := Thresholds{High: cfg.HighThreshold, Medium: cfg.MediumThreshold}
	if th.Validate() != nil {
		th = DefaultThresholds()
	}
	return &Engine{
		repo:              repo,
		window:            window,
		reliabilityWindow: relWindow,
		thresholds:        th,
		nowFunc:           time.Now,
	}
}

// Thresholds returns the shared tier table.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// Window returns the default scoring window.
func (e *Engine) Window() time.Duration {
	return e.window
}

// Compute scores the (crop, market) pair over the default window.
func (e *Engine) Compute(ctx context.Context, cropID, marketID string) (model.Confidence, error) {
	return e.ComputeWindow(ctx, cropID, marketID, e.window)
}

// ComputeWindow scores every report for the pair dated within window,
// approved or not.
func (e *Engine) ComputeWindow(ctx context.Context, cropID, marketID string, window time.Duration) (model.Confidence, error) {
	if window <= 0 {
		window = e.window
	}
	obs, err := e.repo.RecentObservations(ctx, cropID, marketID, e.nowFunc().Add(-window))
	if err != nil {
		return model.Confidence{}, eris.Wrapf(err, "confidence: observations for %s/%s", cropID, marketID)
	}
	return Score(obs), nil
}

// ReliabilityUpdate describes the outcome of UpdateSourceReliability.
type ReliabilityUpdate struct {
	SourceID string              `json:"source_id"`
	Previous float64             `json:"previous"`
	Current  float64             `json:"current"`
	Stats    model.ApprovalStats `json:"stats"`
	Applied  bool                `json:"applied"`
}

// UpdateSourceReliability blends the source's score toward its approval rate
// over the reliability window. It is a no-op when the source is unknown or
// has no reports in the window. Calls for the same source are serialized.
func (e *Engine) UpdateSourceReliability(ctx context.Context, sourceID string) (ReliabilityUpdate, error) {
	unlock := e.locks.Lock(sourceID)
	defer unlock()

	res := ReliabilityUpdate{SourceID: sourceID}

	src, err := e.repo.GetSource(ctx, sourceID)
	if err != nil {
		return res, eris.Wrapf(err, "confidence: get source %s", sourceID)
	}
	if src == nil {
		return res, nil
	}
	res.Previous = src.ReliabilityScore
	res.Current = src.ReliabilityScore

	stats, err := e.repo.SourceApprovalStats(ctx, sourceID, e.nowFunc().Add(-e.reliabilityWindow))
	if err != nil {
		return res, eris.Wrapf(err, "confidence: approval stats %s", sourceID)
	}
	res.Stats = stats
	if stats.Total == 0 {
		return res, nil
	}

	next := Blend(src.ReliabilityScore, stats.Rate())
	if err := e.repo.UpdateSourceReliability(ctx, sourceID, next); err != nil {
		if eris.Is(err, model.ErrNotFound) {
			return res, nil
		}
		return res, eris.Wrapf(err, "confidence: persist reliability %s", sourceID)
	}
	res.Current = next
	res.Applied = true

	zap.L().Debug("source reliability updated",
		zap.String("component", "confidence"),
		zap.String("source_id", sourceID),
		zap.Float64("previous", res.Previous),
		zap.Float64("current", next),
		zap.Int("approved", stats.Approved),
		zap.Int("total", stats.Total),
	)
	return res, nil
}

// keyedMutex hands out one mutex per key and drops it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
