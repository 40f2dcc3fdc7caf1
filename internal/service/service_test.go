package service

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"price-feed-observer/internal/alerting"
	"price-feed-observer/internal/checks"
	"price-feed-observer/internal/dispatch"
	"price-feed-observer/internal/evaluator"
	"price-feed-observer/internal/storage"
)

type stubSource struct {
	snapshots Snapshots
	err       error
}

func (s stubSource) Fetch(context.Context) (Snapshots, error) { return s.snapshots, s.err }

type stubStore struct {
	saved int
	last  storage.AlertState
}

func (s *stubStore) Load(context.Context) (storage.AlertState, error) { return storage.AlertState{}, nil }
func (s *stubStore) Save(_ context.Context, state storage.AlertState) error {
	s.saved++
	s.last = state.Clone()
	return nil
}
func (s *stubStore) Close() error { return nil }

func testResolver(t *testing.T) *evaluator.Resolver {
	t.Helper()
	global := map[string]any{}
	for _, entry := range checks.PriceFeedChecks {
		global[strings.ToLower(entry.Name)] = map[string]any{"enable": false}
	}
	for _, entry := range checks.PublisherChecks {
		global[strings.ToLower(entry.Name)] = map[string]any{"enable": false}
	}
	global["pricefeedconfidenceintervalcheck"] = map[string]any{
		"enable": true, "min_confidence_interval": 0,
	}

	r, err := evaluator.NewResolver(map[string]any{"global": global})
	if err != nil {
		t.Fatalf("build resolver: %v", err)
	}
	return r
}

func newTestService(t *testing.T, source Source, store storage.AlertStateStore) (*Service, *dispatch.Dispatcher) {
	t.Helper()
	resolver := testResolver(t)
	env := &checks.Env{
		Now:     func() time.Time { return time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC) },
		History: checks.NewHistoryCache(checks.DefaultHistoryCapacity),
	}
	eval := evaluator.New(resolver, env, zerolog.Nop())
	disp := dispatch.New(dispatch.Options{}, resolver, nil, nil, store, alerting.Context{Network: "mainnet"}, zerolog.Nop())
	return New(nil, source, eval, disp, store, nil, zerolog.Nop()), disp
}

func TestCycleRecordsFailures(t *testing.T) {
	source := stubSource{snapshots: Snapshots{
		PriceFeeds: []checks.PriceFeedState{
			{Symbol: "Crypto.BTC/USD", Status: checks.StatusTrading}, // zero CI: fails
			{Symbol: "Crypto.ETH/USD", Status: checks.StatusTrading, ConfidenceIntervalAggregate: 1},
		},
	}}
	store := &stubStore{}
	svc, disp := newTestService(t, source, store)

	if err := svc.Cycle(context.Background(), time.Now()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	if store.saved != 1 {
		t.Fatalf("state must persist once per cycle, got %d", store.saved)
	}
	rec, ok := disp.Records()["PriceFeedConfidenceIntervalCheck-Crypto.BTC/USD"]
	if !ok || rec.Failures != 1 {
		t.Fatalf("expected one counted failure, got %+v", disp.Records())
	}
	if _, ok := store.last["PriceFeedConfidenceIntervalCheck-Crypto.BTC/USD"]; !ok {
		t.Fatal("persisted state must contain the open record")
	}
}

func TestCycleIsolatesMalformedSnapshots(t *testing.T) {
	source := stubSource{snapshots: Snapshots{
		PriceFeeds: []checks.PriceFeedState{
			{Status: checks.StatusTrading}, // missing symbol
			{Symbol: "Crypto.BTC/USD", Status: checks.StatusTrading},
		},
	}}
	store := &stubStore{}
	svc, disp := newTestService(t, source, store)

	if err := svc.Cycle(context.Background(), time.Now()); err != nil {
		t.Fatalf("a malformed snapshot must not fail the cycle: %v", err)
	}
	if _, ok := disp.Records()["PriceFeedConfidenceIntervalCheck-Crypto.BTC/USD"]; !ok {
		t.Fatal("healthy snapshots must still be evaluated")
	}
}

func TestPublisherNameNormalization(t *testing.T) {
	svc, _ := newTestService(t, stubSource{}, &stubStore{})
	svc.UsePublisherDirectory(map[string]string{"6umkqk4xPubKeyFull": "acme trading"})

	state := svc.normalizePublisher(checks.PublisherState{PublicKey: "6umkqk4xPubKeyFull"})
	if state.PublisherName != "acme trading" {
		t.Fatalf("directory name should be applied: %+v", state)
	}

	state = svc.normalizePublisher(checks.PublisherState{PublicKey: "AbCdEfGhUnknownKey"})
	if state.PublisherName != "AbCdEfGh" {
		t.Fatalf("unknown keys abbreviate to 8 chars: %+v", state)
	}

	state = svc.normalizePublisher(checks.PublisherState{PublisherName: "kept", PublicKey: "x"})
	if state.PublisherName != "kept" {
		t.Fatalf("existing names are preserved: %+v", state)
	}
}

func TestCycleFetchError(t *testing.T) {
	svc, _ := newTestService(t, stubSource{err: errors.New("collector down")}, &stubStore{})

	if err := svc.Cycle(context.Background(), time.Now()); err == nil {
		t.Fatal("fetch errors must fail the cycle")
	}
}

func TestFileSourceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/snapshots.json"
	doc := `{"price_feeds":[{"symbol":"Crypto.BTC/USD","asset_type":"Crypto","status":"trading","price_aggregate":64000}],"publishers":[]}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	source := NewFileSource(path)
	snaps, err := source.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(snaps.PriceFeeds) != 1 || snaps.PriceFeeds[0].Symbol != "Crypto.BTC/USD" {
		t.Fatalf("unexpected snapshots: %+v", snaps)
	}

	if _, err := NewFileSource(dir + "/missing.json").Fetch(context.Background()); err == nil {
		t.Fatal("missing snapshot document must error")
	}
}
