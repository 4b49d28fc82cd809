// Package prices handles price report intake, review and lookup.
package prices

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sokoprice/internal/confidence"
	"github.com/sells-group/sokoprice/internal/metrics"
	"github.com/sells-group/sokoprice/internal/model"
	"github.com/sells-group/sokoprice/internal/phone"
	"github.com/sells-group/sokoprice/internal/store"
)

// Service coordinates the store and the confidence engine.
type Service struct {
	store  store.Store
	engine *confidence.Engine

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewService creates a price service.
func NewService(st store.Store, engine *confidence.Engine) *Service {
	return &Service{store: st, engine: engine, nowFunc: time.Now}
}

// SubmitRequest is a web price submission. Each reference may be given by
// id or by name; names match case-insensitively and unresolved references
// fall back to the first available record.
type SubmitRequest struct {
	CropID     string     `json:"crop_id"`
	CropName   string     `json:"crop_name"`
	MarketID   string     `json:"market_id"`
	MarketName string     `json:"market_name"`
	SourceID   string     `json:"source_id"`
	SourceName string     `json:"source_name"`
	Price      float64    `json:"price"`
	Date       *time.Time `json:"date,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

// Submit records a pending report from the web channel.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*model.PriceReport, error) {
	if err := validatePrice(req.Price); err != nil {
		return nil, err
	}

	crop, err := s.resolveCrop(ctx, req.CropID, req.CropName)
	if err != nil {
		return nil, err
	}
	market, err := s.resolveMarket(ctx, req.MarketID, req.MarketName)
	if err != nil {
		return nil, err
	}
	src, err := s.resolveSource(ctx, req.SourceID, req.SourceName)
	if err != nil {
		return nil, err
	}

	date := s.nowFunc()
	if req.Date != nil && !req.Date.IsZero() {
		date = *req.Date
	}

	return s.create(ctx, model.PriceReport{
		CropID:   crop.ID,
		MarketID: market.ID,
		SourceID: src.ID,
		Price:    req.Price,
		Date:     date,
		Notes:    strings.TrimSpace(req.Notes),
		Channel:  model.ChannelWeb,
	})
}

// SubmitFromPhone records a pending report from a USSD caller, registering
// the caller as a Trader source on first use. phoneNumber must already be
// normalized.
func (s *Service) SubmitFromPhone(ctx context.Context, phoneNumber, cropID, marketID string, price float64) (*model.PriceReport, error) {
	if err := validatePrice(price); err != nil {
		return nil, err
	}
	if phoneNumber == "" {
		return nil, model.Invalid("phone_number", "is required")
	}

	src, created, err := s.store.FindOrCreateSource(ctx, model.Source{
		Name:             phone.Mask(phoneNumber),
		PhoneNumber:      phoneNumber,
		Role:             model.SourceRoleTrader,
		ReliabilityScore: model.DefaultReliability,
		Status:           model.SourceStatusActive,
	})
	if err != nil {
		return nil, eris.Wrap(err, "prices: find or create source")
	}
	if created {
		zap.L().Info("prices: registered ussd source",
			zap.String("source_id", src.ID),
			zap.String("name", src.Name),
		)
	}

	return s.create(ctx, model.PriceReport{
		CropID:   cropID,
		MarketID: marketID,
		SourceID: src.ID,
		Price:    price,
		Date:     s.nowFunc(),
		Channel:  model.ChannelUSSD,
	})
}

func (s *Service) create(ctx context.Context, p model.PriceReport) (*model.PriceReport, error) {
	p.Approved = false
	created, err := s.store.CreatePrice(ctx, p)
	if err != nil {
		return nil, eris.Wrap(err, "prices: create")
	}
	if err := s.store.IncrementSourceSubmissions(ctx, p.SourceID, s.nowFunc()); err != nil {
		// The report stands even if the counter write fails.
		zap.L().Warn("prices: increment source submissions",
			zap.String("source_id", p.SourceID),
			zap.Error(err),
		)
	}
	metrics.PriceSubmissions.WithLabelValues(string(p.Channel)).Inc()

	zap.L().Info("prices: report submitted",
		zap.String("price_id", created.ID),
		zap.String("crop_id", created.CropID),
		zap.String("market_id", created.MarketID),
		zap.String("source_id", created.SourceID),
		zap.Float64("price", created.Price),
		zap.String("channel", string(created.Channel)),
	)
	return created, nil
}

// Approve marks a report approved and recomputes its source's reliability.
func (s *Service) Approve(ctx context.Context, id string) (*model.PriceReport, error) {
	p, err := s.store.ApprovePrice(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "prices: approve %s", id)
	}
	metrics.PriceReviews.WithLabelValues("approve").Inc()
	s.recomputeReliability(ctx, p.SourceID)
	return p, nil
}

// Reject deletes a report and recomputes its source's reliability.
func (s *Service) Reject(ctx context.Context, id string) (*model.PriceReport, error) {
	p, err := s.store.DeletePrice(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "prices: reject %s", id)
	}
	metrics.PriceReviews.WithLabelValues("reject").Inc()
	s.recomputeReliability(ctx, p.SourceID)
	return p, nil
}

func (s *Service) recomputeReliability(ctx context.Context, sourceID string) {
	res, err := s.engine.UpdateSourceReliability(ctx, sourceID)
	switch {
	case err != nil:
		metrics.ReliabilityUpdates.WithLabelValues("error").Inc()
		zap.L().Warn("prices: reliability update failed",
			zap.String("source_id", sourceID),
			zap.Error(err),
		)
	case res.Applied:
		metrics.ReliabilityUpdates.WithLabelValues("applied").Inc()
	default:
		metrics.ReliabilityUpdates.WithLabelValues("noop").Inc()
	}
}

// Quote is the latest approved price for a pair with its on-demand
// confidence.
type Quote struct {
	Report     model.PriceReport `json:"report"`
	Confidence model.Confidence  `json:"confidence"`
	Tier       confidence.Tier   `json:"tier"`
}

// Latest returns the newest approved report for the pair, or nil when none
// exists.
func (s *Service) Latest(ctx context.Context, cropID, marketID string) (*Quote, error) {
	p, err := s.store.LatestApprovedPrice(ctx, cropID, marketID)
	if err != nil {
		return nil, eris.Wrap(err, "prices: latest")
	}
	if p == nil {
		return nil, nil
	}
	conf, err := s.engine.Compute(ctx, cropID, marketID)
	if err != nil {
		return nil, err
	}
	p.ConfidenceScore = conf.Score
	return &Quote{
		Report:     *p,
		Confidence: conf,
		Tier:       s.engine.Thresholds().Tier(conf.Score),
	}, nil
}

// History returns approved reports for the pair over the trailing days,
// oldest first.
func (s *Service) History(ctx context.Context, cropID, marketID string, days int) ([]model.PriceReport, error) {
	if days <= 0 {
		days = 30
	}
	since := s.nowFunc().AddDate(0, 0, -days)
	out, err := s.store.PriceHistory(ctx, cropID, marketID, since)
	if err != nil {
		return nil, eris.Wrap(err, "prices: history")
	}
	return out, nil
}

// List pages through reports and fills in each report's confidence.
func (s *Service) List(ctx context.Context, filter model.PriceFilter) ([]model.PriceReport, int, error) {
	reports, total, err := s.store.ListPrices(ctx, filter)
	if err != nil {
		return nil, 0, eris.Wrap(err, "prices: list")
	}

	type pair struct{ crop, market string }
	scores := make(map[pair]float64)
	for i := range reports {
		k := pair{reports[i].CropID, reports[i].MarketID}
		score, ok := scores[k]
		if !ok {
			conf, err := s.engine.Compute(ctx, k.crop, k.market)
			if err != nil {
				return nil, 0, err
			}
			score = conf.Score
			scores[k] = score
		}
		reports[i].ConfidenceScore = score
	}
	return reports, total, nil
}

func validatePrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return model.Invalid("price", "must be a positive number")
	}
	return nil
}

func (s *Service) resolveCrop(ctx context.Context, id, name string) (*model.Crop, error) {
	if id != "" {
		c, err := s.store.GetCrop(ctx, id)
		if err != nil {
			return nil, eris.Wrap(err, "prices: get crop")
		}
		if c != nil {
			return c, nil
		}
	}
	if name = strings.TrimSpace(name); name != "" {
		c, err := s.store.FindCropByName(ctx, name)
		if err != nil {
			return nil, eris.Wrap(err, "prices: find crop")
		}
		if c != nil {
			return c, nil
		}
	}
	crops, err := s.store.ListCrops(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "prices: list crops")
	}
	if len(crops) == 0 {
		return nil, model.Invalid("crop", "no crops available")
	}
	return &crops[0], nil
}

func (s *Service) resolveMarket(ctx context.Context, id, name string) (*model.Market, error) {
	if id != "" {
		m, err := s.store.GetMarket(ctx, id)
		if err != nil {
			return nil, eris.Wrap(err, "prices: get market")
		}
		if m != nil {
			return m, nil
		}
	}
	if name = strings.TrimSpace(name); name != "" {
		m, err := s.store.FindMarketByName(ctx, name)
		if err != nil {
			return nil, eris.Wrap(err, "prices: find market")
		}
		if m != nil {
			return m, nil
		}
	}
	markets, err := s.store.ListMarkets(ctx, true)
	if err != nil {
		return nil, eris.Wrap(err, "prices: list markets")
	}
	if len(markets) == 0 {
		return nil, model.Invalid("market", "no markets available")
	}
	return &markets[0], nil
}

func (s *Service) resolveSource(ctx context.Context, id, name string) (*model.Source, error) {
	if id != "" {
		src, err := s.store.GetSource(ctx, id)
		if err != nil {
			return nil, eris.Wrap(err, "prices: get source")
		}
		if src != nil {
			return src, nil
		}
	}
	if name = strings.TrimSpace(name); name != "" {
		src, err := s.store.FindSourceByName(ctx, name)
		if err != nil {
			return nil, eris.Wrap(err, "prices: find source")
		}
		if src != nil {
			return src, nil
		}
	}
	sources, err := s.store.ListSources(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "prices: list sources")
	}
	if len(sources) == 0 {
		return nil, model.Invalid("source", "no sources registered")
	}
	return &sources[0], nil
}
