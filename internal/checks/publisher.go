package checks

import (
	"fmt"
	"math"
	"time"
)

// PublisherAggregateCheck fails when the publisher price sits too many
// aggregate confidence intervals away from the aggregate price.
type PublisherAggregateCheck struct {
	state               PublisherState
	maxIntervalDistance float64
}

func NewPublisherAggregateCheck(state PublisherState, cfg Config, _ *Env) Check {
	return &PublisherAggregateCheck{
		state:               state,
		maxIntervalDistance: cfg.Float("max_interval_distance"),
	}
}

func (c *PublisherAggregateCheck) Name() string      { return "PublisherAggregateCheck" }
func (c *PublisherAggregateCheck) Symbol() string    { return c.state.Symbol }
func (c *PublisherAggregateCheck) Publisher() string { return c.state.PublisherName }

func (c *PublisherAggregateCheck) Run() bool {
	if c.state.Status != StatusTrading || c.state.AggregateStatus != StatusTrading {
		return true
	}
	if c.state.ConfidenceInterval == 0 || c.state.ConfidenceIntervalAggregate == 0 {
		return true
	}
	// The aggregation already ignores publishers this far behind.
	if slotDistance(c.state.Slot, c.state.AggregateSlot) > slotExclusionDistance {
		return true
	}

	intervalsAway := math.Abs(c.state.Price-c.state.PriceAggregate) / c.state.ConfidenceIntervalAggregate

	return intervalsAway < c.maxIntervalDistance
}

func (c *PublisherAggregateCheck) Details() Fields {
	intervalsAway := 0.0
	if c.state.ConfidenceIntervalAggregate != 0 {
		intervalsAway = math.Abs(c.state.Price-c.state.PriceAggregate) / c.state.ConfidenceIntervalAggregate
	}
	return Fields{
		"msg":                  fmt.Sprintf("%s price is too far from %s aggregate", c.state.PublisherName, c.state.Symbol),
		"type":                 c.Name(),
		"symbol":               c.state.Symbol,
		"publisher":            c.state.PublisherName,
		"price":                c.state.Price,
		"confidence_interval":  c.state.ConfidenceInterval,
		"aggregate_price":      c.state.PriceAggregate,
		"aggregate_confidence": c.state.ConfidenceIntervalAggregate,
		"intervals_away":       intervalsAway,
	}
}

// PublisherConfidenceIntervalCheck fails when a trading publisher
// reports a zero or degenerate confidence interval.
type PublisherConfidenceIntervalCheck struct {
	state                 PublisherState
	minConfidenceInterval float64
}

func NewPublisherConfidenceIntervalCheck(state PublisherState, cfg Config, _ *Env) Check {
	return &PublisherConfidenceIntervalCheck{
		state:                 state,
		minConfidenceInterval: cfg.Float("min_confidence_interval"),
	}
}

func (c *PublisherConfidenceIntervalCheck) Name() string {
	return "PublisherConfidenceIntervalCheck"
}
func (c *PublisherConfidenceIntervalCheck) Symbol() string    { return c.state.Symbol }
func (c *PublisherConfidenceIntervalCheck) Publisher() string { return c.state.PublisherName }

func (c *PublisherConfidenceIntervalCheck) Run() bool {
	if c.state.Status != StatusTrading {
		return true
	}
	if slotDistance(c.state.Slot, c.state.AggregateSlot) > slotExclusionDistance {
		return true
	}
	return c.state.ConfidenceInterval > c.minConfidenceInterval
}

func (c *PublisherConfidenceIntervalCheck) Details() Fields {
	return Fields{
		"msg":                 fmt.Sprintf("%s confidence interval is too tight on %s", c.state.PublisherName, c.state.Symbol),
		"type":                c.Name(),
		"symbol":              c.state.Symbol,
		"publisher":           c.state.PublisherName,
		"price":               c.state.Price,
		"confidence_interval": c.state.ConfidenceInterval,
	}
}

// PublisherOfflineCheck fails when the publisher has stopped publishing
// but has not yet been offline long enough to be considered abandoned.
// Same dead-zone shape as the price-feed offline check.
type PublisherOfflineCheck struct {
	state                 PublisherState
	env                   *Env
	maxSlotDistance       uint64
	abandonedSlotDistance uint64
}

func NewPublisherOfflineCheck(state PublisherState, cfg Config, env *Env) Check {
	return &PublisherOfflineCheck{
		state:                 state,
		env:                   env,
		maxSlotDistance:       uint64(cfg.Int("max_slot_distance")),
		abandonedSlotDistance: uint64(cfg.Int("abandoned_slot_distance")),
	}
}

func (c *PublisherOfflineCheck) Name() string      { return "PublisherOfflineCheck" }
func (c *PublisherOfflineCheck) Symbol() string    { return c.state.Symbol }
func (c *PublisherOfflineCheck) Publisher() string { return c.state.PublisherName }

func (c *PublisherOfflineCheck) Run() bool {
	if !c.env.marketOpen(c.state.AssetType) {
		return true
	}

	distance := slotDistance(c.state.LatestBlockSlot, c.state.Slot)

	if distance <= c.maxSlotDistance {
		return true
	}
	if distance >= c.abandonedSlotDistance {
		return true
	}

	return false
}

func (c *PublisherOfflineCheck) Details() Fields {
	return Fields{
		"msg":            fmt.Sprintf("%s hasn't published %s recently", c.state.PublisherName, c.state.Symbol),
		"type":           c.Name(),
		"symbol":         c.state.Symbol,
		"publisher":      c.state.PublisherName,
		"publisher_slot": c.state.Slot,
		"block_slot":     c.state.LatestBlockSlot,
		"slot_distance":  slotDistance(c.state.LatestBlockSlot, c.state.Slot),
	}
}

// PublisherPriceCheck fails when the published price deviates from the
// aggregate by more than `max_aggregate_distance` percent, after
// discounting the publisher's own confidence band: the aggregate may
// sit anywhere inside that band for free.
type PublisherPriceCheck struct {
	state                PublisherState
	maxAggregateDistance float64 // percent
	maxSlotDistance      uint64
}

func NewPublisherPriceCheck(state PublisherState, cfg Config, _ *Env) Check {
	return &PublisherPriceCheck{
		state:                state,
		maxAggregateDistance: cfg.Float("max_aggregate_distance"),
		maxSlotDistance:      uint64(cfg.Int("max_slot_distance")),
	}
}

func (c *PublisherPriceCheck) Name() string      { return "PublisherPriceCheck" }
func (c *PublisherPriceCheck) Symbol() string    { return c.state.Symbol }
func (c *PublisherPriceCheck) Publisher() string { return c.state.PublisherName }

func (c *PublisherPriceCheck) Run() bool {
	if c.state.Status != StatusTrading || c.state.AggregateStatus != StatusTrading {
		return true
	}
	if slotDistance(c.state.Slot, c.state.AggregateSlot) > c.maxSlotDistance {
		return true
	}
	if c.state.Price == 0 || c.state.PriceAggregate == 0 {
		return true
	}

	return c.ciAdjustedDistance() <= c.maxAggregateDistance
}

// ciAdjustedDistance is the deviation from the aggregate in percent,
// after subtracting the publisher confidence interval (floored at 0).
func (c *PublisherPriceCheck) ciAdjustedDistance() float64 {
	diff := math.Max(math.Abs(c.state.Price-c.state.PriceAggregate)-c.state.ConfidenceInterval, 0)
	return diff / c.state.PriceAggregate * 100
}

func (c *PublisherPriceCheck) Details() Fields {
	return Fields{
		"msg":                 fmt.Sprintf("%s price is too far from %s aggregate", c.state.PublisherName, c.state.Symbol),
		"type":                c.Name(),
		"symbol":              c.state.Symbol,
		"publisher":           c.state.PublisherName,
		"price":               c.state.Price,
		"confidence_interval": c.state.ConfidenceInterval,
		"aggregate_price":     c.state.PriceAggregate,
		"distance_pct":        c.ciAdjustedDistance(),
	}
}

// PublisherStalledCheck detects a publisher whose price has stopped
// reflecting the market, either as an exact repeat or as a frozen base
// price dressed up with sub-threshold noise. As a side effect it feeds
// the shared price history for its (publisher, symbol) key.
type PublisherStalledCheck struct {
	state              PublisherState
	env                *Env
	maxSlotDistance    uint64
	abandonedTimeLimit float64 // seconds
	detector           *StallDetector

	result StallDetectionResult
}

func NewPublisherStalledCheck(state PublisherState, cfg Config, env *Env) Check {
	return &PublisherStalledCheck{
		state:              state,
		env:                env,
		maxSlotDistance:    uint64(cfg.Int("max_slot_distance")),
		abandonedTimeLimit: cfg.Float("abandoned_time_limit"),
		detector: &StallDetector{
			StallTimeLimit:  cfg.Float("stall_time_limit"),
			NoiseThreshold:  cfg.Float("noise_threshold"),
			MinNoiseSamples: int(cfg.Int("min_noise_samples")),
		},
	}
}

func (c *PublisherStalledCheck) Name() string      { return "PublisherStalledCheck" }
func (c *PublisherStalledCheck) Symbol() string    { return c.state.Symbol }
func (c *PublisherStalledCheck) Publisher() string { return c.state.PublisherName }

func (c *PublisherStalledCheck) Run() bool {
	if !c.env.marketOpen(c.state.AssetType) {
		return true
	}
	// Redemption-rate feeds are static by design.
	if c.state.AssetType == AssetCryptoRedemptionRate {
		return true
	}
	// An offline publisher is the offline check's problem.
	if slotDistance(c.state.LatestBlockSlot, c.state.Slot) > c.maxSlotDistance {
		return true
	}

	now := c.env.now()
	update := PriceUpdate{Timestamp: now.Unix(), Price: c.state.Price}
	key := HistoryKey{Publisher: c.state.PublisherName, Symbol: c.state.Symbol}

	c.env.History.Add(key, update)
	updates := c.env.History.Updates(key)

	// Exact repeats are not stored, but the detector must still see the
	// just-observed update to measure how long the price has sat still.
	if n := len(updates); n == 0 || updates[n-1].Timestamp != update.Timestamp {
		updates = append(updates, update)
	}

	c.result = c.detector.AnalyzeUpdates(updates)

	if c.result.IsStalled && c.result.Duration >= c.abandonedTimeLimit {
		// Everyone already knows this feed is dead.
		return true
	}

	return !c.result.IsStalled
}

func (c *PublisherStalledCheck) Details() Fields {
	return Fields{
		"msg":             fmt.Sprintf("%s price for %s appears stalled (%s)", c.state.PublisherName, c.state.Symbol, c.result.StallType),
		"type":            c.Name(),
		"symbol":          c.state.Symbol,
		"publisher":       c.state.PublisherName,
		"price":           c.state.Price,
		"stall_type":      string(c.result.StallType),
		"base_price":      c.result.BasePrice,
		"noise_magnitude": c.result.NoiseMagnitude,
		"duration":        time.Duration(c.result.Duration * float64(time.Second)).String(),
		"confidence":      c.result.Confidence,
	}
}
