// Package dispatch turns raw per-cycle check failures into
// deduplicated, hysteresis-controlled alerts with durable state.
package dispatch

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"price-feed-observer/internal/alerting"
	"price-feed-observer/internal/checks"
	"price-feed-observer/internal/metrics"
	"price-feed-observer/internal/storage"
)

// ThresholdSource resolves per-check-type configuration; satisfied by
// the evaluator's resolver.
type ThresholdSource interface {
	Resolve(checkName, symbol string) (checks.Config, bool)
}

// Options tune the state machine.
type Options struct {
	// WindowInterval is how long one failure-counting window stays
	// open before rolling.
	WindowInterval time.Duration
	// ReAlertInterval is the minimum gap between notifications for the
	// same open identifier.
	ReAlertInterval time.Duration
	// Defaults applied when a check type carries no explicit threshold.
	AlertThreshold      int
	ResolutionThreshold int
}

// Default thresholds and cadences.
const (
	DefaultWindowInterval      = 5 * time.Minute
	DefaultReAlertInterval     = time.Hour
	DefaultAlertThreshold      = 5
	DefaultResolutionThreshold = 3
)

func (o Options) withDefaults() Options {
	if o.WindowInterval <= 0 {
		o.WindowInterval = DefaultWindowInterval
	}
	if o.ReAlertInterval <= 0 {
		o.ReAlertInterval = DefaultReAlertInterval
	}
	if o.AlertThreshold <= 0 {
		o.AlertThreshold = DefaultAlertThreshold
	}
	if o.ResolutionThreshold <= 0 {
		o.ResolutionThreshold = DefaultResolutionThreshold
	}
	return o
}

// Dispatcher owns the durable alert map and the pending gated events.
// Touched only by the single cycle goroutine.
type Dispatcher struct {
	opts       Options
	thresholds ThresholdSource
	immediate  []alerting.Sender
	gated      []alerting.Sender
	store      storage.AlertStateStore
	context    alerting.Context
	logger     zerolog.Logger

	// Now is swapped out in tests.
	Now func() time.Time

	records storage.AlertState
	pending map[string]alerting.Event
}

// New constructs a dispatcher with an empty alert map; call Restore to
// load persisted state before the first cycle.
func New(opts Options, thresholds ThresholdSource, immediate, gated []alerting.Sender, store storage.AlertStateStore, alertCtx alerting.Context, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		opts:       opts.withDefaults(),
		thresholds: thresholds,
		immediate:  immediate,
		gated:      gated,
		store:      store,
		context:    alertCtx,
		logger:     logger.With().Str("component", "dispatch").Logger(),
		Now:        time.Now,
		records:    storage.AlertState{},
		pending:    map[string]alerting.Event{},
	}
}

// Restore installs the alert map read from the store at startup.
func (d *Dispatcher) Restore(state storage.AlertState) {
	if state == nil {
		state = storage.AlertState{}
	}
	d.records = state
	metrics.OpenAlerts.Set(float64(len(state)))
}

// Records exposes a copy of the open alerts, for tests and inspection.
func (d *Dispatcher) Records() storage.AlertState { return d.records.Clone() }

// Run processes one cycle's failed checks: window accounting, immediate
// fan-out, pending-event capture, the resolution pass over every open
// record, and finally persistence of the whole map.
func (d *Dispatcher) Run(ctx context.Context, failed []checks.Check) error {
	now := d.Now()

	var events []alerting.Event
	for _, check := range failed {
		id := checks.Identifier(check)
		d.recordFailure(id, check.Name(), now)

		event := alerting.Event{
			Identifier: id,
			Fields:     check.Details(),
			Context:    d.context,
		}
		events = append(events, event)

		// Latest failure detail wins for the eventual gated send.
		if len(d.gated) > 0 {
			d.pending[id] = event
		}
	}

	d.fanOut(ctx, events)
	d.resolutionPass(ctx, now)

	return d.persist(ctx)
}

// recordFailure looks up or creates the identifier's record, rolls the
// window if due, then counts the failure. Rolling before incrementing
// means no cycle's failure is lost to a window boundary.
func (d *Dispatcher) recordFailure(id, checkType string, now time.Time) {
	rec, ok := d.records[id]
	if !ok {
		rec = storage.AlertRecord{CheckType: checkType, WindowStart: now}
	}
	d.rollWindow(&rec, now)
	rec.Failures++
	d.records[id] = rec
}

func (d *Dispatcher) rollWindow(rec *storage.AlertRecord, now time.Time) {
	if now.Sub(rec.WindowStart) < d.opts.WindowInterval {
		return
	}
	last := rec.Failures
	rec.LastWindowFailures = &last
	rec.Failures = 0
	rec.WindowStart = now
}

// fanOut dispatches this cycle's immediate sends concurrently and waits
// for all of them, so the resolution pass sees their outcome.
func (d *Dispatcher) fanOut(ctx context.Context, events []alerting.Event) {
	if len(d.immediate) == 0 || len(events) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, sender := range d.immediate {
		for _, event := range events {
			wg.Add(1)
			go func(sender alerting.Sender, event alerting.Event) {
				defer wg.Done()
				d.send(ctx, sender, event)
			}(sender, event)
		}
	}
	wg.Wait()
}

// resolutionPass walks every open record, not just ones that failed
// this cycle, so recovery is detected without a fresh failure.
func (d *Dispatcher) resolutionPass(ctx context.Context, now time.Time) {
	ids := make([]string, 0, len(d.records))
	for id := range d.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		rec := d.records[id]
		d.rollWindow(&rec, now)
		d.records[id] = rec

		alertThreshold, resolutionThreshold := d.checkThresholds(rec.CheckType)

		switch {
		case rec.LastWindowFailures != nil && *rec.LastWindowFailures <= resolutionThreshold:
			d.resolve(ctx, id, rec)
		case rec.Failures >= alertThreshold:
			d.raise(ctx, id, rec, now)
		}
	}

	metrics.OpenAlerts.Set(float64(len(d.records)))
}

// resolve deletes the record, first delivering a resolution event when
// an alert had been sent. Failed delivery leaves the record open so
// resolution is retried next cycle.
func (d *Dispatcher) resolve(ctx context.Context, id string, rec storage.AlertRecord) {
	if rec.Sent {
		event := d.resolutionEvent(id, rec)
		for _, sender := range d.gated {
			if !d.send(ctx, sender, event) {
				return
			}
		}
	}

	delete(d.records, id)
	delete(d.pending, id)
	metrics.AlertsResolved.WithLabelValues(rec.CheckType).Inc()

	d.logger.Info().Str("identifier", id).Msg("alert resolved")
}

// raise delivers the pending gated event, subject to the re-alert
// cadence. Sent and LastAlert update when at least one channel took the
// event, so one broken channel cannot suppress resolution tracking.
func (d *Dispatcher) raise(ctx context.Context, id string, rec storage.AlertRecord, now time.Time) {
	if rec.LastAlert != nil && now.Sub(*rec.LastAlert) < d.opts.ReAlertInterval {
		return
	}

	event, ok := d.pending[id]
	if !ok {
		// Nothing buffered (restart since the last failure); the next
		// failing cycle will repopulate it.
		return
	}

	delivered := false
	for _, sender := range d.gated {
		if d.send(ctx, sender, event) {
			delivered = true
		}
	}
	if !delivered {
		return
	}

	rec.Sent = true
	rec.LastAlert = &now
	d.records[id] = rec
	metrics.AlertsRaised.WithLabelValues(rec.CheckType).Inc()

	d.logger.Info().Str("identifier", id).Int("failures", rec.Failures).Msg("alert raised")
}

func (d *Dispatcher) resolutionEvent(id string, rec storage.AlertRecord) alerting.Event {
	event, ok := d.pending[id]
	if !ok {
		// Restored record without a buffered failure; reconstruct the
		// minimum the channels need.
		symbol := strings.TrimPrefix(id, rec.CheckType+"-")
		event = alerting.Event{
			Identifier: id,
			Context:    d.context,
			Fields: checks.Fields{
				"msg":    id + " has recovered",
				"type":   rec.CheckType,
				"symbol": symbol,
			},
		}
	}
	event.Resolved = true
	event.Fields = resolvedFields(event.Fields)
	return event
}

func resolvedFields(fields checks.Fields) checks.Fields {
	out := make(checks.Fields, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	out["msg"] = fields.Msg() + " [resolved]"
	return out
}

// send runs one delivery, containing any failure to a log line and a
// metric. Transport errors never abort the cycle.
func (d *Dispatcher) send(ctx context.Context, sender alerting.Sender, event alerting.Event) bool {
	if err := sender.Send(ctx, event); err != nil {
		metrics.SendsTotal.WithLabelValues(sender.Name(), "error").Inc()
		d.logger.Error().
			Err(err).
			Str("channel", sender.Name()).
			Str("identifier", event.Identifier).
			Msg("notification send failed")
		return false
	}
	metrics.SendsTotal.WithLabelValues(sender.Name(), "ok").Inc()
	return true
}

// checkThresholds reads alert/resolution thresholds from the check
// type's global configuration, falling back to the dispatcher defaults.
func (d *Dispatcher) checkThresholds(checkType string) (alert, resolution int) {
	alert = d.opts.AlertThreshold
	resolution = d.opts.ResolutionThreshold

	if d.thresholds == nil {
		return alert, resolution
	}
	cfg, ok := d.thresholds.Resolve(checkType, "")
	if !ok {
		return alert, resolution
	}
	if cfg.Has("alert_threshold") {
		alert = int(cfg.Int("alert_threshold"))
	}
	if cfg.Has("resolution_threshold") {
		resolution = int(cfg.Int("resolution_threshold"))
	}
	return alert, resolution
}

// persist writes the whole map synchronously before the cycle advances.
func (d *Dispatcher) persist(ctx context.Context) error {
	if d.store == nil {
		return nil
	}
	if err := d.store.Save(ctx, d.records); err != nil {
		metrics.StateSaves.WithLabelValues("error").Inc()
		return err
	}
	metrics.StateSaves.WithLabelValues("ok").Inc()
	return nil
}
