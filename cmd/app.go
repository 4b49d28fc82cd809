package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/sokoprice/internal/alerts"
	"github.com/sells-group/sokoprice/internal/analytics"
	"github.com/sells-group/sokoprice/internal/catalog"
	"github.com/sells-group/sokoprice/internal/confidence"
	"github.com/sells-group/sokoprice/internal/prices"
	"github.com/sells-group/sokoprice/internal/sms"
	"github.com/sells-group/sokoprice/internal/store"
	"github.com/sells-group/sokoprice/internal/ussd"
)

// appEnv holds the services shared by serve and the one-shot commands.
type appEnv struct {
	Store     store.Store
	Catalog   *catalog.Catalog
	Engine    *confidence.Engine
	Prices    *prices.Service
	Sender    sms.Sender
	Alerts    *alerts.Service
	Evaluator *alerts.Evaluator
	Analytics *analytics.Collector
	USSD      *ussd.Handler
	Location  *time.Location
}

// Close waits for in-flight price SMS, then releases the store.
func (a *appEnv) Close() {
	if a.USSD != nil {
		a.USSD.Wait()
	}
	if a.Store != nil {
		_ = a.Store.Close()
	}
}

// initApp opens the store and wires every service. Callers should defer
// env.Close().
func initApp(ctx context.Context) (*appEnv, error) {
	loc, err := cfg.Alerts.Location()
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	engine := confidence.NewEngine(st, cfg.Confidence)
	cat := catalog.New(st, time.Duration(cfg.USSD.CatalogTTLSecs)*time.Second)
	priceSvc := prices.NewService(st, engine)
	sender := sms.New(cfg.SMS)
	langs := ussd.NewLanguageCache(st, cfg.USSD.LanguageCacheSize, time.Duration(cfg.USSD.LanguageCacheTTLMins)*time.Minute)

	if cfg.SMS.APIKey == "" {
		zap.L().Warn("SOKOPRICE_SMS_API_KEY not set, SMS delivery is simulated")
	}

	return &appEnv{
		Store:     st,
		Catalog:   cat,
		Engine:    engine,
		Prices:    priceSvc,
		Sender:    sender,
		Alerts:    alerts.NewService(st, cfg.USSD.CountryCode),
		Evaluator: alerts.NewEvaluator(st, sender, cfg.Alerts),
		Analytics: analytics.NewCollector(st, priceSvc, cat, loc),
		USSD: ussd.NewHandler(priceSvc, cat, langs, sender, ussd.Options{
			CountryCode: cfg.USSD.CountryCode,
			Thresholds:  engine.Thresholds(),
			Location:    loc,
			SMSTimeout:  time.Duration(cfg.USSD.SMSTimeoutSecs) * time.Second,
		}),
		Location: loc,
	}, nil
}
