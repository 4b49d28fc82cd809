// Package confidence scores how far recent price reports for a crop and
// market can be trusted, and maintains each source's reliability score.
package confidence

import (
	"math"

	"github.com/sells-group/sokoprice/internal/model"
)

// Factor weights. Each factor is bounded by its weight before summing.
const (
	VolumeWeight      = 0.3
	ReliabilityWeight = 0.4
	DispersionWeight  = 0.3

	// VolumeSaturation is the report count at which the volume factor maxes out.
	VolumeSaturation = 5
)

// Score computes the confidence for a set of in-window observations. An
// observation without a reliability counts as model.DefaultReliability; a
// stored reliability of zero stays zero.
func Score(obs []model.Observation) model.Confidence {
	n := len(obs)
	if n == 0 {
		return model.Confidence{}
	}

	var priceSum, relSum, weightedSum float64
	for _, o := range obs {
		r := reliabilityOf(o)
		priceSum += o.Price
		relSum += r
		weightedSum += o.Price * r
	}
	mean := priceSum / float64(n)

	volume := math.Min(float64(n)/VolumeSaturation, 1) * VolumeWeight
	reliability := (relSum / float64(n)) * ReliabilityWeight
	dispersion := math.Max(1-coefficientOfVariation(obs, mean), 0) * DispersionWeight

	avg := mean
	if relSum > 0 {
		avg = weightedSum / relSum
	}

	return model.Confidence{
		Score:           round2(math.Min(volume+reliability+dispersion, 1)),
		WeightedAverage: math.Round(avg),
		SubmissionCount: n,
	}
}

// coefficientOfVariation uses the population variance.
func coefficientOfVariation(obs []model.Observation, mean float64) float64 {
	if mean <= 0 {
		return 1
	}
	var sq float64
	for _, o := range obs {
		d := o.Price - mean
		sq += d * d
	}
	return math.Sqrt(sq/float64(len(obs))) / mean
}

func reliabilityOf(o model.Observation) float64 {
	if o.Reliability == nil {
		return model.DefaultReliability
	}
	return *o.Reliability
}

// Blend smooths a source's reliability toward its recent approval rate.
func Blend(old, approvalRate float64) float64 {
	return round2(old*0.3 + approvalRate*0.7)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
