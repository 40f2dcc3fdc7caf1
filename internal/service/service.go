// Package service is the cycle driver: once per interval it obtains
// state snapshots, evaluates them, dispatches failures, and persists
// alert state.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"price-feed-observer/internal/checks"
	"price-feed-observer/internal/dispatch"
	"price-feed-observer/internal/evaluator"
	"price-feed-observer/internal/metrics"
	"price-feed-observer/internal/scheduler"
	"price-feed-observer/internal/storage"
)

// Snapshots is one cycle's worth of immutable state: at most one
// PriceFeedState per symbol, zero or more PublisherState per symbol.
type Snapshots struct {
	PriceFeeds []checks.PriceFeedState `json:"price_feeds"`
	Publishers []checks.PublisherState `json:"publishers"`
}

// Source is the fetch collaborator producing snapshots each cycle.
type Source interface {
	Fetch(ctx context.Context) (Snapshots, error)
}

// Service orchestrates fetching, evaluation, dispatch and persistence.
type Service struct {
	scheduler  *scheduler.Scheduler
	source     Source
	evaluator  *evaluator.Evaluator
	dispatcher *dispatch.Dispatcher
	store      storage.AlertStateStore
	ready      func(bool)
	logger     zerolog.Logger

	// publishers maps public keys to display names for snapshots that
	// arrive without one.
	publishers map[string]string
}

// UsePublisherDirectory installs the key-to-name mapping applied while
// normalizing publisher snapshots.
func (s *Service) UsePublisherDirectory(publishers map[string]string) {
	s.publishers = publishers
}

// New constructs the observer service. The ready callback reflects
// cycle health into the readiness endpoint; nil disables it.
func New(sched *scheduler.Scheduler, source Source, eval *evaluator.Evaluator, disp *dispatch.Dispatcher, store storage.AlertStateStore, ready func(bool), logger zerolog.Logger) *Service {
	if ready == nil {
		ready = func(bool) {}
	}
	return &Service{
		scheduler:  sched,
		source:     source,
		evaluator:  eval,
		dispatcher: disp,
		store:      store,
		ready:      ready,
		logger:     logger.With().Str("component", "service").Logger(),
	}
}

// Run restores persisted alert state and begins the cycle loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}

	if s.store != nil {
		state, err := s.store.Load(ctx)
		if err != nil {
			return fmt.Errorf("load alert state: %w", err)
		}
		s.dispatcher.Restore(state)
		s.logger.Info().Int("open_alerts", len(state)).Msg("alert state restored")
	}

	return s.scheduler.Run(ctx, s.Cycle)
}

// Cycle executes one fetch/evaluate/dispatch pass. Any failure,
// including a panic, is contained here: the loop must keep running, so
// crash-loop avoidance takes priority over failing fast.
func (s *Service) Cycle(ctx context.Context, _ time.Time) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panicked: %v", r)
		}
		metrics.CycleDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.CyclesTotal.WithLabelValues("error").Inc()
			s.ready(false)
		} else {
			metrics.CyclesTotal.WithLabelValues("ok").Inc()
			s.ready(true)
		}
	}()

	snapshots, err := s.source.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch snapshots: %w", err)
	}

	failed := s.evaluate(snapshots)

	if err := s.dispatcher.Run(ctx, failed); err != nil {
		return fmt.Errorf("dispatch failures: %w", err)
	}

	s.logger.Info().
		Int("price_feeds", len(snapshots.PriceFeeds)).
		Int("publishers", len(snapshots.Publishers)).
		Int("failed_checks", len(failed)).
		Dur("elapsed", time.Since(start)).
		Msg("cycle complete")
	return nil
}

// evaluate scores every snapshot, isolating evaluation errors to the
// snapshot that caused them.
func (s *Service) evaluate(snapshots Snapshots) []checks.Check {
	var failed []checks.Check

	for _, state := range snapshots.PriceFeeds {
		checksFailed, err := s.evaluator.EvaluatePriceFeed(state)
		if err != nil {
			metrics.SnapshotsEvaluated.WithLabelValues("price_feed", "error").Inc()
			s.logger.Error().Err(err).Str("symbol", state.Symbol).Msg("price feed snapshot skipped")
			continue
		}
		metrics.SnapshotsEvaluated.WithLabelValues("price_feed", "ok").Inc()
		failed = append(failed, checksFailed...)
	}

	for _, state := range snapshots.Publishers {
		state = s.normalizePublisher(state)
		checksFailed, err := s.evaluator.EvaluatePublisher(state)
		if err != nil {
			metrics.SnapshotsEvaluated.WithLabelValues("publisher", "error").Inc()
			s.logger.Error().Err(err).
				Str("symbol", state.Symbol).
				Str("publisher", state.PublisherName).
				Msg("publisher snapshot skipped")
			continue
		}
		metrics.SnapshotsEvaluated.WithLabelValues("publisher", "ok").Inc()
		failed = append(failed, checksFailed...)
	}

	return failed
}

// normalizePublisher fills in the display name from the directory, or
// falls back to an abbreviated public key so identifiers stay stable.
func (s *Service) normalizePublisher(state checks.PublisherState) checks.PublisherState {
	if state.PublisherName != "" {
		return state
	}
	if name, ok := s.publishers[state.PublicKey]; ok {
		state.PublisherName = name
		return state
	}
	if len(state.PublicKey) > 8 {
		state.PublisherName = state.PublicKey[:8]
	} else {
		state.PublisherName = state.PublicKey
	}
	return state
}
