package checks

// TradingStatus mirrors the status field reported by the price program.
type TradingStatus string

const (
	StatusTrading TradingStatus = "trading"
	StatusHalted  TradingStatus = "halted"
	StatusUnknown TradingStatus = "unknown"
	StatusAuction TradingStatus = "auction"
)

// Asset types as reported by the product metadata. Redemption-rate feeds
// are expected to be static and are excluded from stall detection.
const (
	AssetCrypto               = "Crypto"
	AssetEquity               = "Equity"
	AssetFX                   = "FX"
	AssetMetal                = "Metal"
	AssetCryptoRedemptionRate = "Crypto Redemption Rate"
)

// CrosschainPrice is the record served by the cross-chain price service.
type CrosschainPrice struct {
	Price              float64 `json:"price"`
	ConfidenceInterval float64 `json:"confidence_interval"`
	PublishTime        int64   `json:"publish_time"`  // unix seconds
	SnapshotTime       int64   `json:"snapshot_time"` // unix seconds, when the record was fetched
}

// PriceFeedState is an immutable snapshot of one on-chain price account,
// produced once per cycle by the fetch collaborator and discarded after
// evaluation.
type PriceFeedState struct {
	Symbol                      string        `json:"symbol"`
	AssetType                   string        `json:"asset_type"`
	PublicKey                   string        `json:"public_key"`
	Status                      TradingStatus `json:"status"`
	LatestBlockSlot             uint64        `json:"latest_block_slot"`
	LatestTradingSlot           uint64        `json:"latest_trading_slot"`
	PriceAggregate              float64       `json:"price_aggregate"`
	ConfidenceIntervalAggregate float64       `json:"confidence_interval_aggregate"`

	// Reference price from the secondary market-data source, if any.
	ReferencePrice  *float64 `json:"reference_price,omitempty"`
	ReferenceUpdate int64    `json:"reference_update,omitempty"` // unix seconds, zero when unknown

	CrosschainPrice *CrosschainPrice `json:"crosschain_price,omitempty"`
}

// PublisherState is an immutable snapshot of one publisher's component
// price on one price account. Same lifecycle as PriceFeedState.
type PublisherState struct {
	PublisherName               string        `json:"publisher_name"`
	Symbol                      string        `json:"symbol"`
	AssetType                   string        `json:"asset_type"`
	PublicKey                   string        `json:"public_key"`
	Status                      TradingStatus `json:"status"`
	AggregateStatus             TradingStatus `json:"aggregate_status"`
	Slot                        uint64        `json:"slot"`
	AggregateSlot               uint64        `json:"aggregate_slot"`
	LatestBlockSlot             uint64        `json:"latest_block_slot"`
	Price                       float64       `json:"price"`
	PriceAggregate              float64       `json:"price_aggregate"`
	ConfidenceInterval          float64       `json:"confidence_interval"`
	ConfidenceIntervalAggregate float64       `json:"confidence_interval_aggregate"`
}
