package checks

import (
	"fmt"
	"math"
)

// PriceFeedOfflineCheck fails when the aggregate has stopped updating
// but the feed is not yet old enough to be considered abandoned. Both
// sides of the band pass: small lag is acceptable, and a feed that is
// long dead is not worth re-alerting on every cycle.
type PriceFeedOfflineCheck struct {
	state                 PriceFeedState
	env                   *Env
	maxSlotDistance       uint64
	abandonedSlotDistance uint64
}

func NewPriceFeedOfflineCheck(state PriceFeedState, cfg Config, env *Env) Check {
	return &PriceFeedOfflineCheck{
		state:                 state,
		env:                   env,
		maxSlotDistance:       uint64(cfg.Int("max_slot_distance")),
		abandonedSlotDistance: uint64(cfg.Int("abandoned_slot_distance")),
	}
}

func (c *PriceFeedOfflineCheck) Name() string   { return "PriceFeedOfflineCheck" }
func (c *PriceFeedOfflineCheck) Symbol() string { return c.state.Symbol }

func (c *PriceFeedOfflineCheck) Run() bool {
	if !c.env.marketOpen(c.state.AssetType) {
		return true
	}

	distance := slotDistance(c.state.LatestBlockSlot, c.state.LatestTradingSlot)

	if distance <= c.maxSlotDistance {
		return true
	}
	// Abandoned feeds are not actionable.
	if distance >= c.abandonedSlotDistance {
		return true
	}

	return false
}

func (c *PriceFeedOfflineCheck) Details() Fields {
	distance := slotDistance(c.state.LatestBlockSlot, c.state.LatestTradingSlot)
	return Fields{
		"msg":                 fmt.Sprintf("%s is offline (non-trading or stale), not updated for %d slots", c.state.Symbol, distance),
		"type":                c.Name(),
		"symbol":              c.state.Symbol,
		"latest_trading_slot": c.state.LatestTradingSlot,
		"block_slot":          c.state.LatestBlockSlot,
		"slot_distance":       distance,
	}
}

// PriceFeedConfidenceIntervalCheck fails when the aggregate confidence
// interval collapses to or below the configured minimum while trading.
type PriceFeedConfidenceIntervalCheck struct {
	state                 PriceFeedState
	minConfidenceInterval float64
}

func NewPriceFeedConfidenceIntervalCheck(state PriceFeedState, cfg Config, _ *Env) Check {
	return &PriceFeedConfidenceIntervalCheck{
		state:                 state,
		minConfidenceInterval: cfg.Float("min_confidence_interval"),
	}
}

func (c *PriceFeedConfidenceIntervalCheck) Name() string   { return "PriceFeedConfidenceIntervalCheck" }
func (c *PriceFeedConfidenceIntervalCheck) Symbol() string { return c.state.Symbol }

func (c *PriceFeedConfidenceIntervalCheck) Run() bool {
	if c.state.Status != StatusTrading {
		return true
	}
	return c.state.ConfidenceIntervalAggregate > c.minConfidenceInterval
}

func (c *PriceFeedConfidenceIntervalCheck) Details() Fields {
	return Fields{
		"msg":                 fmt.Sprintf("%s confidence interval is too low", c.state.Symbol),
		"type":                c.Name(),
		"symbol":              c.state.Symbol,
		"confidence_interval": c.state.ConfidenceIntervalAggregate,
	}
}

// PriceFeedReferenceDeviationCheck compares the aggregate against the
// secondary market-data source's reference price.
type PriceFeedReferenceDeviationCheck struct {
	state        PriceFeedState
	env          *Env
	maxDeviation float64
	maxStaleness int64
}

func NewPriceFeedReferenceDeviationCheck(state PriceFeedState, cfg Config, env *Env) Check {
	return &PriceFeedReferenceDeviationCheck{
		state:        state,
		env:          env,
		maxDeviation: cfg.Float("max_deviation"),
		maxStaleness: cfg.Int("max_staleness"),
	}
}

func (c *PriceFeedReferenceDeviationCheck) Name() string   { return "PriceFeedReferenceDeviationCheck" }
func (c *PriceFeedReferenceDeviationCheck) Symbol() string { return c.state.Symbol }

func (c *PriceFeedReferenceDeviationCheck) Run() bool {
	if c.state.ReferencePrice == nil || *c.state.ReferencePrice == 0 {
		return true
	}
	if c.state.ReferenceUpdate+c.maxStaleness < c.env.now().Unix() {
		return true
	}
	if c.state.Status != StatusTrading {
		return true
	}

	deviation := math.Abs(c.state.PriceAggregate-*c.state.ReferencePrice) / *c.state.ReferencePrice

	return deviation < c.maxDeviation
}

func (c *PriceFeedReferenceDeviationCheck) Details() Fields {
	var ref float64
	if c.state.ReferencePrice != nil {
		ref = *c.state.ReferencePrice
	}
	return Fields{
		"msg":             fmt.Sprintf("%s is too far from the reference price", c.state.Symbol),
		"type":            c.Name(),
		"symbol":          c.state.Symbol,
		"price":           c.state.PriceAggregate,
		"reference_price": ref,
	}
}

// PriceFeedCrossChainOnlineCheck fails when the cross-chain price
// service has not republished the feed within `max_staleness` seconds.
// Staleness is judged against the snapshot time, not the wall clock, so
// the decision is stable for a fixed input.
type PriceFeedCrossChainOnlineCheck struct {
	state        PriceFeedState
	env          *Env
	maxStaleness int64
}

func NewPriceFeedCrossChainOnlineCheck(state PriceFeedState, cfg Config, env *Env) Check {
	return &PriceFeedCrossChainOnlineCheck{
		state:        state,
		env:          env,
		maxStaleness: cfg.Int("max_staleness"),
	}
}

func (c *PriceFeedCrossChainOnlineCheck) Name() string   { return "PriceFeedCrossChainOnlineCheck" }
func (c *PriceFeedCrossChainOnlineCheck) Symbol() string { return c.state.Symbol }

func (c *PriceFeedCrossChainOnlineCheck) Run() bool {
	if c.state.Status != StatusTrading {
		return true
	}
	cc := c.state.CrosschainPrice
	if cc == nil || cc.PublishTime == 0 {
		return true
	}
	if !c.env.marketOpen(c.state.AssetType) {
		return true
	}

	staleness := cc.SnapshotTime - cc.PublishTime

	return staleness < c.maxStaleness
}

func (c *PriceFeedCrossChainOnlineCheck) Details() Fields {
	fields := Fields{
		"msg":    fmt.Sprintf("%s is not online at the price service", c.state.Symbol),
		"type":   c.Name(),
		"symbol": c.state.Symbol,
	}
	if cc := c.state.CrosschainPrice; cc != nil {
		fields["publish_time"] = cc.PublishTime
		fields["staleness"] = cc.SnapshotTime - cc.PublishTime
	}
	return fields
}

// PriceFeedCrossChainDeviationCheck compares the aggregate against the
// cross-chain price service's copy of the feed.
type PriceFeedCrossChainDeviationCheck struct {
	state        PriceFeedState
	env          *Env
	maxDeviation float64 // percent
	maxStaleness int64
}

func NewPriceFeedCrossChainDeviationCheck(state PriceFeedState, cfg Config, env *Env) Check {
	return &PriceFeedCrossChainDeviationCheck{
		state:        state,
		env:          env,
		maxDeviation: cfg.Float("max_deviation"),
		maxStaleness: cfg.Int("max_staleness"),
	}
}

func (c *PriceFeedCrossChainDeviationCheck) Name() string   { return "PriceFeedCrossChainDeviationCheck" }
func (c *PriceFeedCrossChainDeviationCheck) Symbol() string { return c.state.Symbol }

func (c *PriceFeedCrossChainDeviationCheck) Run() bool {
	if c.state.Status != StatusTrading {
		return true
	}
	cc := c.state.CrosschainPrice
	if cc == nil || cc.PublishTime == 0 {
		return true
	}
	if !c.env.marketOpen(c.state.AssetType) {
		return true
	}
	// A stale cross-chain price is the online check's problem.
	if cc.SnapshotTime-cc.PublishTime > c.maxStaleness {
		return true
	}
	if c.state.PriceAggregate == 0 {
		return true
	}

	deviation := math.Abs(cc.Price-c.state.PriceAggregate) / c.state.PriceAggregate * 100

	return deviation < c.maxDeviation
}

func (c *PriceFeedCrossChainDeviationCheck) Details() Fields {
	fields := Fields{
		"msg":    fmt.Sprintf("%s is too far from the price service's price", c.state.Symbol),
		"type":   c.Name(),
		"symbol": c.state.Symbol,
		"price":  c.state.PriceAggregate,
	}
	if cc := c.state.CrosschainPrice; cc != nil {
		fields["crosschain_price"] = cc.Price
		if c.state.PriceAggregate != 0 {
			fields["deviation_pct"] = math.Abs(cc.Price-c.state.PriceAggregate) / c.state.PriceAggregate * 100
		}
	}
	return fields
}
