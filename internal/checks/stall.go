package checks

import (
	"math"
	"sort"
)

// StallType classifies how a stalled price presents itself.
type StallType string

const (
	StallNone  StallType = ""
	StallExact StallType = "exact"
	StallNoisy StallType = "noisy"
)

// StallDetectionResult is the derived verdict for one analysis pass.
// Recomputed on every call, never persisted.
type StallDetectionResult struct {
	IsStalled      bool
	StallType      StallType
	BasePrice      float64
	NoiseMagnitude float64
	Duration       float64 // seconds
	Confidence     float64 // 0..1
}

// StallDetector distinguishes a frozen price from normal market
// quiescence. Two independent detections run in order:
//
//  1. Exact: the two most recent updates are bit-identical and further
//     apart than StallTimeLimit.
//  2. Noisy: every sample in the window stays within NoiseThreshold
//     relative deviation of the window median. Genuine market prices
//     almost never hold a 0.01% band for a full window; a feed doing so
//     is very likely adding cosmetic jitter on top of a frozen base
//     price to defeat naive equality checks.
type StallDetector struct {
	StallTimeLimit  float64 // seconds before a repeat counts as a stall
	NoiseThreshold  float64 // max relative noise, e.g. 1e-4 for 0.01%
	MinNoiseSamples int     // samples required for the noisy detection
}

// Detector defaults, applied when the corresponding field is zero.
const (
	DefaultNoiseThreshold  = 1e-4
	DefaultMinNoiseSamples = 5
)

// AnalyzeUpdates inspects an ordered window of price updates, the
// latest of which is the just-observed one.
func (d *StallDetector) AnalyzeUpdates(updates []PriceUpdate) StallDetectionResult {
	if len(updates) < 2 {
		return StallDetectionResult{}
	}

	noiseThreshold := d.NoiseThreshold
	if noiseThreshold == 0 {
		noiseThreshold = DefaultNoiseThreshold
	}
	minNoiseSamples := d.MinNoiseSamples
	if minNoiseSamples == 0 {
		minNoiseSamples = DefaultMinNoiseSamples
	}

	// The latest two updates are sufficient to judge an exact stall.
	prev, last := updates[len(updates)-2], updates[len(updates)-1]
	duration := float64(last.Timestamp - prev.Timestamp)

	if duration <= d.StallTimeLimit {
		// Not enough elapsed time to judge.
		return StallDetectionResult{}
	}
	if last.Price == prev.Price {
		return StallDetectionResult{
			IsStalled:  true,
			StallType:  StallExact,
			BasePrice:  last.Price,
			Duration:   duration,
			Confidence: 1.0,
		}
	}

	// Noisy stall: all variations within a tiny band around the median.
	basePrice := medianPrice(updates)
	if basePrice == 0 {
		return StallDetectionResult{}
	}

	var maxRelativeDeviation float64
	for _, u := range updates {
		rel := math.Abs(u.Price-basePrice) / math.Abs(basePrice)
		if rel > maxRelativeDeviation {
			maxRelativeDeviation = rel
		}
	}

	if len(updates) < minNoiseSamples {
		// Too few samples to call noise, pass until we have enough.
		return StallDetectionResult{}
	}

	if maxRelativeDeviation <= noiseThreshold {
		return StallDetectionResult{
			IsStalled:      true,
			StallType:      StallNoisy,
			BasePrice:      basePrice,
			NoiseMagnitude: maxRelativeDeviation * basePrice,
			Duration:       duration,
			Confidence:     1.0 - maxRelativeDeviation/noiseThreshold,
		}
	}

	return StallDetectionResult{
		BasePrice:      basePrice,
		NoiseMagnitude: maxRelativeDeviation * basePrice,
		Duration:       duration,
	}
}

func medianPrice(updates []PriceUpdate) float64 {
	prices := make([]float64, len(updates))
	for i, u := range updates {
		prices[i] = u.Price
	}
	sort.Float64s(prices)

	mid := len(prices) / 2
	if len(prices)%2 == 0 {
		return (prices[mid-1] + prices[mid]) / 2
	}
	return prices[mid]
}
