package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersAreLabelled(t *testing.T) {
	before := testutil.ToFloat64(USSDRequests.WithLabelValues("check", "con"))
	USSDRequests.WithLabelValues("check", "con").Inc()
	assert.InDelta(t, before+1, testutil.ToFloat64(USSDRequests.WithLabelValues("check", "con")), 1e-9)

	before = testutil.ToFloat64(JobRuns.WithLabelValues("check_alerts", "skipped"))
	JobRuns.WithLabelValues("check_alerts", "skipped").Inc()
	assert.InDelta(t, before+1, testutil.ToFloat64(JobRuns.WithLabelValues("check_alerts", "skipped")), 1e-9)
}

func TestHistogramRegistered(t *testing.T) {
	HTTPRequestDuration.WithLabelValues("/api/health", "GET", "200").Observe(0.002)
	assert.Positive(t, testutil.CollectAndCount(HTTPRequestDuration))
}
