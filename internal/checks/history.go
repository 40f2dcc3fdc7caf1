package checks

// PriceUpdate is one observed (timestamp, price) pair.
type PriceUpdate struct {
	Timestamp int64 // unix seconds
	Price     float64
}

// HistoryKey identifies one publisher's history for one symbol.
type HistoryKey struct {
	Publisher string
	Symbol    string
}

// HistoryCache holds a bounded window of recent price updates per
// (publisher, symbol) key. It is owned by the evaluator and touched
// only by the single cycle goroutine. Consecutive identical prices are
// not appended, so the window captures the real update cadence instead
// of being dominated by repeats; staleness remains visible to the stall
// detector through the timestamp gap.
type HistoryCache struct {
	capacity int
	windows  map[HistoryKey][]PriceUpdate
}

// DefaultHistoryCapacity bounds each window when no capacity is given.
const DefaultHistoryCapacity = 16

// NewHistoryCache constructs a cache with the given per-key capacity.
func NewHistoryCache(capacity int) *HistoryCache {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &HistoryCache{
		capacity: capacity,
		windows:  make(map[HistoryKey][]PriceUpdate),
	}
}

// Add appends an update to the key's window, evicting the oldest entry
// when full. Updates repeating the previous price exactly are dropped.
func (h *HistoryCache) Add(key HistoryKey, update PriceUpdate) {
	window := h.windows[key]

	if n := len(window); n > 0 && window[n-1].Price == update.Price {
		return
	}

	window = append(window, update)
	if len(window) > h.capacity {
		window = window[len(window)-h.capacity:]
	}
	h.windows[key] = window
}

// Updates returns a copy of the key's window, oldest first.
func (h *HistoryCache) Updates(key HistoryKey) []PriceUpdate {
	window := h.windows[key]
	out := make([]PriceUpdate, len(window))
	copy(out, window)
	return out
}

// Len reports the number of stored updates for a key.
func (h *HistoryCache) Len(key HistoryKey) int {
	return len(h.windows[key])
}
