package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"price-feed-observer/internal/alerting"
	"price-feed-observer/internal/checks"
	"price-feed-observer/internal/storage"
)

type stubSender struct {
	name string
	fail bool

	mu     sync.Mutex
	events []alerting.Event
}

func (s *stubSender) Name() string { return s.name }

func (s *stubSender) Send(_ context.Context, event alerting.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("boom")
	}
	s.events = append(s.events, event)
	return nil
}

func (s *stubSender) sent() []alerting.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]alerting.Event, len(s.events))
	copy(out, s.events)
	return out
}

type stubStore struct {
	saved []storage.AlertState
}

func (s *stubStore) Load(context.Context) (storage.AlertState, error) { return storage.AlertState{}, nil }
func (s *stubStore) Save(_ context.Context, state storage.AlertState) error {
	s.saved = append(s.saved, state.Clone())
	return nil
}
func (s *stubStore) Close() error { return nil }

type stubThresholds struct{ cfg checks.Config }

func (s stubThresholds) Resolve(string, string) (checks.Config, bool) {
	return s.cfg, s.cfg != nil
}

type failingCheck struct {
	name   string
	symbol string
}

func (c failingCheck) Name() string   { return c.name }
func (c failingCheck) Symbol() string { return c.symbol }
func (c failingCheck) Run() bool      { return false }
func (c failingCheck) Details() checks.Fields {
	return checks.Fields{"msg": c.symbol + " is broken", "type": c.name, "symbol": c.symbol}
}

func newTestDispatcher(gated *stubSender, thresholds ThresholdSource) (*Dispatcher, *stubStore, *time.Time) {
	store := &stubStore{}
	var senders []alerting.Sender
	if gated != nil {
		senders = append(senders, gated)
	}
	d := New(Options{}, thresholds, nil, senders, store, alerting.Context{Network: "mainnet"}, zerolog.Nop())

	now := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	d.Now = func() time.Time { return now }
	return d, store, &now
}

func runFailures(t *testing.T, d *Dispatcher, times int, check checks.Check) {
	t.Helper()
	for i := 0; i < times; i++ {
		if err := d.Run(context.Background(), []checks.Check{check}); err != nil {
			t.Fatalf("dispatch run failed: %v", err)
		}
	}
}

func TestWindowRollsBeforeCounting(t *testing.T) {
	d, _, now := newTestDispatcher(nil, nil)
	check := failingCheck{name: "PriceFeedOfflineCheck", symbol: "Crypto.BTC/USD"}
	id := "PriceFeedOfflineCheck-Crypto.BTC/USD"

	runFailures(t, d, 4, check)

	rec := d.Records()[id]
	if rec.Failures != 4 || rec.LastWindowFailures != nil {
		t.Fatalf("expected 4 failures in an unrolled window: %+v", rec)
	}

	*now = now.Add(DefaultWindowInterval)
	runFailures(t, d, 1, check)

	rec = d.Records()[id]
	if rec.Failures != 1 {
		t.Fatalf("the boundary-crossing failure must count in the new window: %+v", rec)
	}
	if rec.LastWindowFailures == nil || *rec.LastWindowFailures != 4 {
		t.Fatalf("previous window count must be preserved: %+v", rec)
	}
	if !rec.WindowStart.Equal(*now) {
		t.Fatalf("window start should advance to the rolling instant: %+v", rec)
	}
}

func TestRaiseAfterThreshold(t *testing.T) {
	gated := &stubSender{name: "telegram"}
	d, _, _ := newTestDispatcher(gated, nil)
	check := failingCheck{name: "PublisherPriceCheck", symbol: "Crypto.BTC/USD"}

	runFailures(t, d, 4, check)
	if len(gated.sent()) != 0 {
		t.Fatal("below the alert threshold nothing should be sent")
	}

	runFailures(t, d, 1, check)
	events := gated.sent()
	if len(events) != 1 {
		t.Fatalf("expected exactly one alert at the threshold, got %d", len(events))
	}
	if events[0].Resolved || events[0].Context.Network != "mainnet" {
		t.Fatalf("unexpected event: %+v", events[0])
	}

	rec := d.Records()["PublisherPriceCheck-Crypto.BTC/USD"]
	if !rec.Sent || rec.LastAlert == nil {
		t.Fatalf("record should carry delivery state: %+v", rec)
	}

	// Still failing, but inside the re-alert cadence.
	runFailures(t, d, 5, check)
	if len(gated.sent()) != 1 {
		t.Fatal("re-alert cadence should suppress repeats")
	}
}

func TestReAlertAfterCadence(t *testing.T) {
	gated := &stubSender{name: "telegram"}
	d, _, now := newTestDispatcher(gated, nil)
	check := failingCheck{name: "PublisherPriceCheck", symbol: "Crypto.BTC/USD"}

	runFailures(t, d, 5, check)
	if len(gated.sent()) != 1 {
		t.Fatalf("expected the initial alert, got %d", len(gated.sent()))
	}

	// Keep the failure rate high across the cadence boundary.
	for i := 0; i < 13; i++ {
		*now = now.Add(5 * time.Minute)
		runFailures(t, d, 5, check)
	}

	if len(gated.sent()) != 2 {
		t.Fatalf("expected one re-alert after the cadence elapsed, got %d", len(gated.sent()))
	}
}

func TestResolveAfterQuietWindows(t *testing.T) {
	gated := &stubSender{name: "telegram"}
	d, _, now := newTestDispatcher(gated, nil)
	check := failingCheck{name: "PriceFeedOfflineCheck", symbol: "Crypto.BTC/USD"}
	id := "PriceFeedOfflineCheck-Crypto.BTC/USD"

	runFailures(t, d, 5, check)
	if len(gated.sent()) != 1 {
		t.Fatalf("expected an alert first, got %d", len(gated.sent()))
	}

	// First quiet window: 5 failures roll into LastWindowFailures,
	// which is still above the resolution threshold.
	*now = now.Add(DefaultWindowInterval)
	if err := d.Run(context.Background(), nil); err != nil {
		t.Fatalf("quiet run failed: %v", err)
	}
	if _, ok := d.Records()[id]; !ok {
		t.Fatal("record must survive one quiet window")
	}

	// Second quiet window rolls a zero count: resolution.
	*now = now.Add(DefaultWindowInterval)
	if err := d.Run(context.Background(), nil); err != nil {
		t.Fatalf("quiet run failed: %v", err)
	}
	if _, ok := d.Records()[id]; ok {
		t.Fatal("record should be deleted after resolution")
	}

	events := gated.sent()
	if len(events) != 2 {
		t.Fatalf("expected alert + resolution, got %d", len(events))
	}
	last := events[len(events)-1]
	if !last.Resolved || !strings.HasSuffix(last.Fields.Msg(), "[resolved]") {
		t.Fatalf("final event should be a resolution: %+v", last)
	}
}

func TestFailedResolutionDeliveryKeepsRecord(t *testing.T) {
	gated := &stubSender{name: "telegram", fail: true}
	d, _, _ := newTestDispatcher(gated, nil)
	id := "PriceFeedOfflineCheck-Crypto.BTC/USD"

	zero := 0
	d.Restore(storage.AlertState{id: {
		CheckType:          "PriceFeedOfflineCheck",
		WindowStart:        d.Now(),
		LastWindowFailures: &zero,
		Sent:               true,
	}})

	if err := d.Run(context.Background(), nil); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if _, ok := d.Records()[id]; !ok {
		t.Fatal("record must stay open while the resolution cannot be delivered")
	}

	gated.fail = false
	if err := d.Run(context.Background(), nil); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if _, ok := d.Records()[id]; ok {
		t.Fatal("record should resolve once delivery succeeds")
	}
}

func TestUnsentRecordResolvesSilently(t *testing.T) {
	gated := &stubSender{name: "telegram"}
	d, _, _ := newTestDispatcher(gated, nil)
	id := "PriceFeedOfflineCheck-Crypto.BTC/USD"

	zero := 0
	d.Restore(storage.AlertState{id: {
		CheckType:          "PriceFeedOfflineCheck",
		WindowStart:        d.Now(),
		LastWindowFailures: &zero,
	}})

	if err := d.Run(context.Background(), nil); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if _, ok := d.Records()[id]; ok {
		t.Fatal("unsent record should be dropped")
	}
	if len(gated.sent()) != 0 {
		t.Fatal("no notification was ever raised, none should be resolved")
	}
}

func TestImmediateFanOutEveryFailingCycle(t *testing.T) {
	immediate := &stubSender{name: "log"}
	store := &stubStore{}
	d := New(Options{}, nil, []alerting.Sender{immediate}, nil, store, alerting.Context{}, zerolog.Nop())

	check := failingCheck{name: "PublisherOfflineCheck", symbol: "FX.EUR/USD"}
	runFailures(t, d, 3, check)

	if len(immediate.sent()) != 3 {
		t.Fatalf("immediate channels fire every failing cycle, got %d", len(immediate.sent()))
	}
	if len(store.saved) != 3 {
		t.Fatalf("state must persist after every cycle, got %d saves", len(store.saved))
	}
}

func TestThresholdsFromCheckConfig(t *testing.T) {
	gated := &stubSender{name: "telegram"}
	thresholds := stubThresholds{cfg: checks.Config{"alert_threshold": 2, "resolution_threshold": 0}}
	d, _, _ := newTestDispatcher(gated, thresholds)
	check := failingCheck{name: "PublisherPriceCheck", symbol: "Crypto.BTC/USD"}

	runFailures(t, d, 2, check)
	if len(gated.sent()) != 1 {
		t.Fatalf("configured threshold of 2 should raise after 2 failures, got %d", len(gated.sent()))
	}
}
