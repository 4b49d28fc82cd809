package alerts

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sokoprice/internal/config"
	"github.com/sells-group/sokoprice/internal/i18n"
	"github.com/sells-group/sokoprice/internal/metrics"
	"github.com/sells-group/sokoprice/internal/model"
	"github.com/sells-group/sokoprice/internal/sms"
	"github.com/sells-group/sokoprice/internal/store"
)

const (
	defaultCooldown        = 60 * time.Minute
	defaultSummaryMaxLines = 5
)

// Evaluator fires alert notifications and daily summaries.
type Evaluator struct {
	store    store.Store
	sender   sms.Sender
	cooldown time.Duration
	maxLines int

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewEvaluator creates an Evaluator from configuration.
func NewEvaluator(st store.Store, sender sms.Sender, cfg config.AlertsConfig) *Evaluator {
	cooldown := time.Duration(cfg.CooldownMins) * time.Minute
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	maxLines := cfg.SummaryMaxLines
	if maxLines <= 0 {
		maxLines = defaultSummaryMaxLines
	}
	return &Evaluator{
		store:    st,
		sender:   sender,
		cooldown: cooldown,
		maxLines: maxLines,
		nowFunc:  time.Now,
	}
}

// CheckResult tallies one CheckAlerts run.
type CheckResult struct {
	Evaluated int `json:"evaluated"`
	Fired     int `json:"fired"`
	NoPrice   int `json:"no_price"`
	Failed    int `json:"failed"`
}

// CheckAlerts notifies every active alert whose latest approved price has
// crossed its target, unless it fired within the cooldown. A failure on one
// alert never stops the rest.
func (e *Evaluator) CheckAlerts(ctx context.Context) (CheckResult, error) {
	var res CheckResult
	log := zap.L().With(zap.String("component", "alerts.evaluator"))

	active := true
	alerts, err := e.store.ListAlerts(ctx, model.AlertFilter{Active: &active})
	if err != nil {
		return res, eris.Wrap(err, "alerts: list active")
	}

	names := newNameCache(e.store)
	for _, a := range alerts {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Evaluated++
		alog := log.With(zap.String("alert_id", a.ID))

		latest, err := e.store.LatestApprovedPrice(ctx, a.CropID, a.MarketID)
		if err != nil {
			alog.Error("alerts: latest price lookup failed", zap.Error(err))
			res.Failed++
			continue
		}
		if latest == nil {
			res.NoPrice++
			continue
		}

		now := e.nowFunc()
		if !a.Triggered(latest.Price) || a.CoolingDown(now, e.cooldown) {
			continue
		}

		crop, market, err := names.lookup(ctx, a.CropID, a.MarketID)
		if err != nil {
			alog.Error("alerts: catalog lookup failed", zap.Error(err))
			res.Failed++
			continue
		}
		if crop == nil || market == nil {
			alog.Warn("alerts: crop or market no longer exists")
			continue
		}

		msg := i18n.PriceSMS(crop.Name, market.Name, latest.Price, crop.Unit, i18n.AlertLabel)
		if sent := e.sender.Send(ctx, a.PhoneNumber, msg); !sent.Success {
			// Left untriggered so the next run retries.
			alog.Warn("alerts: notification not delivered", zap.String("error", sent.Error))
			res.Failed++
			continue
		}
		metrics.AlertsFired.Inc()
		res.Fired++

		if err := e.store.MarkAlertTriggered(ctx, a.ID, now); err != nil {
			alog.Error("alerts: mark triggered failed", zap.Error(err))
			res.Failed++
		}
	}

	log.Info("alerts: check complete",
		zap.Int("evaluated", res.Evaluated),
		zap.Int("fired", res.Fired),
		zap.Int("no_price", res.NoPrice),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// SummaryResult tallies one SendDailySummaries run.
type SummaryResult struct {
	Phones int `json:"phones"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// SendDailySummaries sends each subscribed phone number one message listing
// the latest prices of up to maxLines of its active alerts. Lines without
// catalog or price data are left out.
func (e *Evaluator) SendDailySummaries(ctx context.Context) (SummaryResult, error) {
	var res SummaryResult
	log := zap.L().With(zap.String("component", "alerts.summary"))

	active := true
	alerts, err := e.store.ListAlerts(ctx, model.AlertFilter{Active: &active})
	if err != nil {
		return res, eris.Wrap(err, "alerts: list active")
	}

	var phones []string
	byPhone := make(map[string][]model.Alert)
	for _, a := range alerts {
		if _, ok := byPhone[a.PhoneNumber]; !ok {
			phones = append(phones, a.PhoneNumber)
		}
		byPhone[a.PhoneNumber] = append(byPhone[a.PhoneNumber], a)
	}
	res.Phones = len(phones)

	names := newNameCache(e.store)
	for _, ph := range phones {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		subs := byPhone[ph]
		if len(subs) > e.maxLines {
			subs = subs[:e.maxLines]
		}

		lines := []string{i18n.SummaryHeader}
		for _, a := range subs {
			if line, ok := e.summaryLine(ctx, names, a); ok {
				lines = append(lines, line)
			}
		}

		if sent := e.sender.Send(ctx, ph, strings.Join(lines, "\n")); !sent.Success {
			log.Warn("alerts: summary not delivered", zap.String("phone", ph), zap.String("error", sent.Error))
			res.Failed++
			continue
		}
		res.Sent++
	}

	log.Info("alerts: daily summaries sent",
		zap.Int("phones", res.Phones),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (e *Evaluator) summaryLine(ctx context.Context, names *nameCache, a model.Alert) (string, bool) {
	crop, market, err := names.lookup(ctx, a.CropID, a.MarketID)
	if err != nil || crop == nil || market == nil {
		return "", false
	}
	latest, err := e.store.LatestApprovedPrice(ctx, a.CropID, a.MarketID)
	if err != nil || latest == nil {
		return "", false
	}
	return i18n.SummaryLine(crop.Name, market.Name, latest.Price, crop.Unit), true
}

// nameCache memoizes catalog lookups for one run.
type nameCache struct {
	store   store.Store
	crops   map[string]*model.Crop
	markets map[string]*model.Market
}

func newNameCache(st store.Store) *nameCache {
	return &nameCache{
		store:   st,
		crops:   make(map[string]*model.Crop),
		markets: make(map[string]*model.Market),
	}
}

func (n *nameCache) lookup(ctx context.Context, cropID, marketID string) (*model.Crop, *model.Market, error) {
	crop, ok := n.crops[cropID]
	if !ok {
		var err error
		if crop, err = n.store.GetCrop(ctx, cropID); err != nil {
			return nil, nil, eris.Wrap(err, "alerts: get crop")
		}
		n.crops[cropID] = crop
	}
	market, ok := n.markets[marketID]
	if !ok {
		var err error
		if market, err = n.store.GetMarket(ctx, marketID); err != nil {
			return nil, nil, eris.Wrap(err, "alerts: get market")
		}
		n.markets[marketID] = market
	}
	return crop, market, nil
}
