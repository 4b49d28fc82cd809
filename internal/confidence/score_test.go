package confidence

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/sokoprice/internal/model"
)

func rel(v float64) *float64 { return &v }

func obsAt(prices ...float64) []model.Observation {
	out := make([]model.Observation, len(prices))
	for i, p := range prices {
		out[i] = model.Observation{Price: p, Reliability: rel(0.8)}
	}
	return out
}

func TestScore_Empty(t *testing.T) {
	assert.Equal(t, model.Confidence{}, Score(nil))
}

func TestScore_SingleReport(t *testing.T) {
	c := Score([]model.Observation{{Price: 3500, Reliability: rel(0.85)}})
	// volume 0.06 + reliability 0.34 + dispersion 0.3
	assert.InDelta(t, 0.70, c.Score, 1e-9)
	assert.InDelta(t, 3500, c.WeightedAverage, 1e-9)
	assert.Equal(t, 1, c.SubmissionCount)
}

func TestScore_NilReliabilityDefaults(t *testing.T) {
	c := Score([]model.Observation{{Price: 1000}, {Price: 1000}})
	// volume 0.12 + reliability 0.2 + dispersion 0.3
	assert.InDelta(t, 0.62, c.Score, 1e-9)
	assert.InDelta(t, 1000, c.WeightedAverage, 1e-9)
}

func TestScore_ZeroReliabilityIsKept(t *testing.T) {
	// A source whose reports were all rejected adds nothing to the score.
	c := Score([]model.Observation{
		{Price: 1000, Reliability: rel(0)},
		{Price: 1000, Reliability: rel(0)},
	})
	// volume 0.12 + reliability 0 + dispersion 0.3
	assert.InDelta(t, 0.42, c.Score, 1e-9)
}

func TestScore_VolumeSaturates(t *testing.T) {
	five := Score(obsAt(100, 100, 100, 100, 100))
	nine := Score(obsAt(100, 100, 100, 100, 100, 100, 100, 100, 100))
	assert.InDelta(t, five.Score, nine.Score, 1e-9)
	// 0.3 + 0.32 + 0.3
	assert.InDelta(t, 0.92, five.Score, 1e-9)
}

func TestScore_DispersionFloorsAtZero(t *testing.T) {
	// cv > 1 for a wildly spread sample.
	c := Score([]model.Observation{
		{Price: 1, Reliability: rel(1)},
		{Price: 1, Reliability: rel(1)},
		{Price: 1, Reliability: rel(1)},
		{Price: 1000, Reliability: rel(1)},
	})
	// volume 0.24 + reliability 0.4 + dispersion 0
	assert.InDelta(t, 0.64, c.Score, 1e-9)
}

func TestScore_DispersionUsesPopulationVariance(t *testing.T) {
	c := Score([]model.Observation{{Price: 90, Reliability: rel(0.5)}, {Price: 110, Reliability: rel(0.5)}})
	// mean 100, population sd 10, cv 0.1 ⇒ dispersion 0.27
	assert.InDelta(t, 0.12+0.2+0.27, c.Score, 1e-9)
}

func TestScore_WeightedAverage(t *testing.T) {
	c := Score([]model.Observation{
		{Price: 3000, Reliability: rel(0.9)},
		{Price: 4000, Reliability: rel(0.1)},
	})
	assert.InDelta(t, 3100, c.WeightedAverage, 1e-9)
}

func TestScore_WeightedAverageFallsBackToMean(t *testing.T) {
	c := Score([]model.Observation{
		{Price: 3000, Reliability: rel(0)},
		{Price: 4001, Reliability: rel(0)},
	})
	assert.InDelta(t, 3501, c.WeightedAverage, 1e-9)
}

func TestScore_Bounds(t *testing.T) {
	samples := [][]model.Observation{
		obsAt(1),
		obsAt(1, 2, 3, 4, 5, 6, 7),
		obsAt(3500, 3500, 3500, 3500, 3500, 3500),
		{{Price: 10, Reliability: rel(1)}, {Price: 10, Reliability: rel(1)}, {Price: 10, Reliability: rel(1)},
			{Price: 10, Reliability: rel(1)}, {Price: 10, Reliability: rel(1)}},
		{{Price: 5, Reliability: rel(0)}},
	}
	for _, s := range samples {
		c := Score(s)
		assert.GreaterOrEqual(t, c.Score, 0.0)
		assert.LessOrEqual(t, c.Score, 1.0)
		assert.Greater(t, c.Score, 0.0, "non-empty windows never score zero")
		assert.Equal(t, c.Score, math.Round(c.Score*100)/100)
	}
}

func TestBlend(t *testing.T) {
	assert.InDelta(t, 0.85, Blend(0.5, 1.0), 1e-9)
	assert.InDelta(t, 0.15, Blend(0.5, 0.0), 1e-9)
	// Fixed point when the rate equals the score.
	assert.InDelta(t, 0.75, Blend(0.75, 0.75), 1e-9)
}

func TestBlend_ConvergesTowardRate(t *testing.T) {
	score := 0.5
	for i := 0; i < 10; i++ {
		next := Blend(score, 1.0)
		assert.GreaterOrEqual(t, next, score)
		score = next
	}
	assert.InDelta(t, 1.0, score, 0.01)
}

func TestThresholds_Tier(t *testing.T) {
	th := DefaultThresholds()
	assert.Equal(t, TierHigh, th.Tier(0.7))
	assert.Equal(t, TierHigh, th.Tier(1))
	assert.Equal(t, TierMedium, th.Tier(0.69))
	assert.Equal(t, TierMedium, th.Tier(0.4))
	assert.Equal(t, TierLow, th.Tier(0.39))
	assert.Equal(t, TierLow, th.Tier(0))
}

func TestThresholds_Validate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())
	assert.Error(t, Thresholds{High: 0.4, Medium: 0.7}.Validate())
	assert.Error(t, Thresholds{High: 1.2, Medium: 0.5}.Validate())
	assert.Error(t, Thresholds{High: 0.8, Medium: 0}.Validate())
}
