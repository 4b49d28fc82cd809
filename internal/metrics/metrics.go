// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// USSDRequests counts USSD webhook calls by top-level flow and response
	// kind (con, end, error).
	USSDRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sokoprice_ussd_requests_total",
			Help: "USSD requests by flow and outcome",
		},
		[]string{"flow", "outcome"},
	)

	// PriceSubmissions counts new price reports by intake channel.
	PriceSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sokoprice_price_submissions_total",
			Help: "Price reports submitted by channel",
		},
		[]string{"channel"},
	)

	// PriceReviews counts approve and reject transitions.
	PriceReviews = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sokoprice_price_reviews_total",
			Help: "Price report reviews by action",
		},
		[]string{"action"},
	)

	// ReliabilityUpdates counts reliability recomputations by result
	// (applied, noop, error).
	ReliabilityUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sokoprice_reliability_updates_total",
			Help: "Source reliability recomputations by result",
		},
		[]string{"result"},
	)

	AlertsFired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sokoprice_alerts_fired_total",
			Help: "Price alerts that sent a notification",
		},
	)

	// SMSSent counts outbound SMS by status (sent, failed, simulated).
	SMSSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sokoprice_sms_sent_total",
			Help: "Outbound SMS by delivery status",
		},
		[]string{"status"},
	)

	// JobRuns counts scheduled job runs by job and outcome (ok, error,
	// skipped).
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sokoprice_job_runs_total",
			Help: "Scheduled job runs by job and outcome",
		},
		[]string{"job", "outcome"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sokoprice_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"route", "method", "status"},
	)
)
