package checks

import "testing"

func TestHistoryCacheDedupes(t *testing.T) {
	h := NewHistoryCache(8)
	key := HistoryKey{Publisher: "acme", Symbol: "Crypto.BTC/USD"}

	h.Add(key, PriceUpdate{Timestamp: 1, Price: 100})
	h.Add(key, PriceUpdate{Timestamp: 2, Price: 100})
	h.Add(key, PriceUpdate{Timestamp: 3, Price: 101})
	h.Add(key, PriceUpdate{Timestamp: 4, Price: 100})

	updates := h.Updates(key)
	if len(updates) != 3 {
		t.Fatalf("expected 3 stored updates, got %d", len(updates))
	}
	if updates[0].Timestamp != 1 || updates[1].Timestamp != 3 || updates[2].Timestamp != 4 {
		t.Fatalf("unexpected window: %+v", updates)
	}
}

func TestHistoryCacheEvicts(t *testing.T) {
	h := NewHistoryCache(3)
	key := HistoryKey{Publisher: "acme", Symbol: "Crypto.ETH/USD"}

	for i := 0; i < 5; i++ {
		h.Add(key, PriceUpdate{Timestamp: int64(i), Price: float64(i)})
	}

	updates := h.Updates(key)
	if len(updates) != 3 {
		t.Fatalf("expected capacity-bounded window of 3, got %d", len(updates))
	}
	if updates[0].Timestamp != 2 {
		t.Fatalf("oldest entries should be evicted first: %+v", updates)
	}
}

func TestHistoryCacheKeysAreIndependent(t *testing.T) {
	h := NewHistoryCache(8)
	a := HistoryKey{Publisher: "acme", Symbol: "Crypto.BTC/USD"}
	b := HistoryKey{Publisher: "other", Symbol: "Crypto.BTC/USD"}

	h.Add(a, PriceUpdate{Timestamp: 1, Price: 100})
	if h.Len(b) != 0 {
		t.Fatal("windows must be isolated per (publisher, symbol)")
	}

	// Mutating the returned copy must not touch the stored window.
	updates := h.Updates(a)
	updates[0].Price = 999
	if h.Updates(a)[0].Price != 100 {
		t.Fatal("Updates should return a copy")
	}
}
