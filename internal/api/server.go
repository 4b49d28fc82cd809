// Package api exposes the dashboard REST API and the USSD webhook.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/sells-group/sokoprice/internal/alerts"
	"github.com/sells-group/sokoprice/internal/analytics"
	"github.com/sells-group/sokoprice/internal/config"
	"github.com/sells-group/sokoprice/internal/prices"
	"github.com/sells-group/sokoprice/internal/store"
	"github.com/sells-group/sokoprice/internal/ussd"
)

// Deps are the services the API routes to.
type Deps struct {
	Store     store.Store
	Prices    *prices.Service
	Alerts    *alerts.Service
	Analytics *analytics.Collector
	USSD      *ussd.Handler

	// CountryCode is used to normalize phone numbers in source routes.
	CountryCode string
}

// Server holds the router and its dependencies.
type Server struct {
	deps        Deps
	cfg         config.ServerConfig
	ussdLimiter *rate.Limiter
	router      chi.Router
}

// NewServer builds the router. A zero USSDRatePerSec disables webhook rate
// limiting.
func NewServer(deps Deps, cfg config.ServerConfig) *Server {
	s := &Server{deps: deps, cfg: cfg}
	if cfg.USSDRatePerSec > 0 {
		burst := cfg.USSDBurst
		if burst <= 0 {
			burst = 1
		}
		s.ussdLimiter = rate.NewLimiter(rate.Limit(cfg.USSDRatePerSec), burst)
	}
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.health)
		r.With(s.limitUSSD).Post("/ussd", s.handleUSSD)

		r.Get("/crops", s.listCrops)
		r.Get("/markets", s.listMarkets)

		r.Route("/prices", func(r chi.Router) {
			r.Get("/", s.listPrices)
			r.Post("/", s.submitPrice)
			r.Get("/latest/{cropID}/{marketID}", s.latestPrice)
			r.Get("/history/{cropID}/{marketID}", s.priceHistory)
			r.Patch("/{id}/approve", s.approvePrice)
			r.Patch("/{id}/reject", s.rejectPrice)
		})

		r.Route("/sources", func(r chi.Router) {
			r.Get("/", s.listSources)
			r.Post("/", s.registerSource)
			r.Get("/phone/{phone}", s.sourceByPhone)
			r.Get("/{id}", s.getSource)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", s.listAlerts)
			r.Post("/", s.createAlert)
			r.Patch("/{id}/deactivate", s.deactivateAlert)
			r.Delete("/{id}", s.deleteAlert)
		})

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/overview", s.overview)
			r.Get("/trends", s.trends)
			r.Get("/comparison", s.comparison)
		})
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) listCrops(w http.ResponseWriter, r *http.Request) {
	crops, err := s.deps.Store.ListCrops(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, crops)
}

func (s *Server) listMarkets(w http.ResponseWriter, r *http.Request) {
	active, err := queryBool(r, "active")
	if err != nil {
		writeError(w, r, err)
		return
	}
	markets, err := s.deps.Store.ListMarkets(r.Context(), active != nil && *active)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, markets)
}
