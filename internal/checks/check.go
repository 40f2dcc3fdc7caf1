package checks

import (
	"fmt"
	"time"

	"github.com/spf13/cast"
)

// Publisher slots further than this from the aggregate slot are already
// ignored by the aggregation, so price-shape checks skip them.
const slotExclusionDistance = 25

// Config is the resolved configuration for a single check invocation:
// the global entry for the check type, shallow-merged with the
// per-symbol override. Values are YAML scalars.
type Config map[string]any

// Enabled reports the `enable` flag.
func (c Config) Enabled() bool { return cast.ToBool(c["enable"]) }

// Int reads an integral threshold.
func (c Config) Int(key string) int64 { return cast.ToInt64(c[key]) }

// Float reads a numeric threshold.
func (c Config) Float(key string) float64 { return cast.ToFloat64(c[key]) }

// Has reports whether a key is present, used by startup validation.
func (c Config) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// Fields is the structured payload of a failed check. Every check emits
// at least "msg", "type" and "symbol" plus the metric values that drove
// the decision, so downstream channels can render consistently.
type Fields map[string]any

// Msg returns the human-readable summary line.
func (f Fields) Msg() string { return cast.ToString(f["msg"]) }

// Type returns the check type name.
func (f Fields) Type() string { return cast.ToString(f["type"]) }

// Symbol returns the symbol the check ran against.
func (f Fields) Symbol() string { return cast.ToString(f["symbol"]) }

// Calendar answers whether the market for an asset type is open at a
// given instant. Provided by the trading-schedule collaborator.
type Calendar interface {
	IsMarketOpen(assetType string, t time.Time) bool
}

// Env carries the shared collaborators a check may need: the wall
// clock, the market calendar and the publisher price history. Owned by
// the evaluator and passed by reference into check constructors.
type Env struct {
	Now      func() time.Time
	Calendar Calendar
	History  *HistoryCache
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Env) marketOpen(assetType string) bool {
	if e.Calendar == nil {
		return true
	}
	return e.Calendar.IsMarketOpen(assetType, e.now())
}

// Check scores one immutable state snapshot against a resolved config.
// Run is pure and deterministic given state, config, wall clock and
// calendar; Details reports why the last decision failed.
type Check interface {
	Name() string
	Symbol() string
	Run() bool
	Details() Fields
}

// PublisherNamed is implemented by publisher checks, whose alert
// identifier additionally carries the publisher display name.
type PublisherNamed interface {
	Publisher() string
}

// Identifier derives the stable alert key for a check. The same logical
// issue maps to the same identifier across cycles and restarts.
func Identifier(c Check) string {
	id := fmt.Sprintf("%s-%s", c.Name(), c.Symbol())
	if p, ok := c.(PublisherNamed); ok {
		id += "-" + p.Publisher()
	}
	return id
}

// PriceFeedCheckFunc constructs a price-feed check for one snapshot.
type PriceFeedCheckFunc func(state PriceFeedState, cfg Config, env *Env) Check

// PublisherCheckFunc constructs a publisher check for one snapshot.
type PublisherCheckFunc func(state PublisherState, cfg Config, env *Env) Check

// PriceFeedCheckEntry pairs a check type name with its constructor.
type PriceFeedCheckEntry struct {
	Name string
	New  PriceFeedCheckFunc
}

// PublisherCheckEntry pairs a check type name with its constructor.
type PublisherCheckEntry struct {
	Name string
	New  PublisherCheckFunc
}

// PriceFeedChecks is the ordered, closed set of price-feed rules.
var PriceFeedChecks = []PriceFeedCheckEntry{
	{"PriceFeedOfflineCheck", NewPriceFeedOfflineCheck},
	{"PriceFeedConfidenceIntervalCheck", NewPriceFeedConfidenceIntervalCheck},
	{"PriceFeedReferenceDeviationCheck", NewPriceFeedReferenceDeviationCheck},
	{"PriceFeedCrossChainOnlineCheck", NewPriceFeedCrossChainOnlineCheck},
	{"PriceFeedCrossChainDeviationCheck", NewPriceFeedCrossChainDeviationCheck},
}

// PublisherChecks is the ordered, closed set of publisher rules.
var PublisherChecks = []PublisherCheckEntry{
	{"PublisherAggregateCheck", NewPublisherAggregateCheck},
	{"PublisherConfidenceIntervalCheck", NewPublisherConfidenceIntervalCheck},
	{"PublisherOfflineCheck", NewPublisherOfflineCheck},
	{"PublisherPriceCheck", NewPublisherPriceCheck},
	{"PublisherStalledCheck", NewPublisherStalledCheck},
}

// RequiredKeys lists the threshold keys each check type must carry in
// its resolved configuration. Missing keys are a startup-time fatal.
var RequiredKeys = map[string][]string{
	"PriceFeedOfflineCheck":             {"max_slot_distance", "abandoned_slot_distance"},
	"PriceFeedConfidenceIntervalCheck":  {"min_confidence_interval"},
	"PriceFeedReferenceDeviationCheck":  {"max_deviation", "max_staleness"},
	"PriceFeedCrossChainOnlineCheck":    {"max_staleness"},
	"PriceFeedCrossChainDeviationCheck": {"max_deviation", "max_staleness"},
	"PublisherAggregateCheck":           {"max_interval_distance"},
	"PublisherConfidenceIntervalCheck":  {"min_confidence_interval"},
	"PublisherOfflineCheck":             {"max_slot_distance", "abandoned_slot_distance"},
	"PublisherPriceCheck":               {"max_aggregate_distance", "max_slot_distance"},
	"PublisherStalledCheck":             {"stall_time_limit", "abandoned_time_limit", "max_slot_distance", "noise_threshold", "min_noise_samples"},
}

func slotDistance(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
