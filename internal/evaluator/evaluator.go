// Package evaluator runs the enabled checks of the matching family
// against every incoming state snapshot.
package evaluator

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"price-feed-observer/internal/checks"
	"price-feed-observer/internal/metrics"
)

// ErrMalformedSnapshot marks a snapshot the fetch collaborator produced
// with missing required fields. Fatal to that snapshot only.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// Evaluator scores snapshots and collects the failing checks.
type Evaluator struct {
	resolver *Resolver
	env      *checks.Env
	logger   zerolog.Logger
}

// New constructs an evaluator owning the shared check environment.
func New(resolver *Resolver, env *checks.Env, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		resolver: resolver,
		env:      env,
		logger:   logger.With().Str("component", "evaluator").Logger(),
	}
}

// Env exposes the shared check environment for wiring and tests.
func (e *Evaluator) Env() *checks.Env { return e.env }

// EvaluatePriceFeed runs all enabled price-feed checks against one
// snapshot and returns the failing ones.
func (e *Evaluator) EvaluatePriceFeed(state checks.PriceFeedState) ([]checks.Check, error) {
	if state.Symbol == "" || state.Status == "" {
		return nil, fmt.Errorf("%w: price feed snapshot missing symbol or status", ErrMalformedSnapshot)
	}

	var failed []checks.Check
	for _, entry := range checks.PriceFeedChecks {
		cfg, ok := e.resolver.Resolve(entry.Name, state.Symbol)
		if !ok || !cfg.Enabled() {
			continue
		}
		failed = e.collect(failed, entry.New(state, cfg, e.env))
	}
	return failed, nil
}

// EvaluatePublisher runs all enabled publisher checks against one
// snapshot and returns the failing ones.
func (e *Evaluator) EvaluatePublisher(state checks.PublisherState) ([]checks.Check, error) {
	if state.Symbol == "" || state.Status == "" || state.AggregateStatus == "" {
		return nil, fmt.Errorf("%w: publisher snapshot missing symbol or status", ErrMalformedSnapshot)
	}

	var failed []checks.Check
	for _, entry := range checks.PublisherChecks {
		cfg, ok := e.resolver.Resolve(entry.Name, state.Symbol)
		if !ok || !cfg.Enabled() {
			continue
		}
		failed = e.collect(failed, entry.New(state, cfg, e.env))
	}
	return failed, nil
}

func (e *Evaluator) collect(failed []checks.Check, check checks.Check) []checks.Check {
	if check.Run() {
		metrics.ChecksTotal.WithLabelValues(check.Name(), "pass").Inc()
		return failed
	}

	metrics.ChecksTotal.WithLabelValues(check.Name(), "fail").Inc()
	metrics.CheckFailures.WithLabelValues(check.Name(), check.Symbol()).Inc()

	e.logger.Debug().
		Str("check", check.Name()).
		Str("symbol", check.Symbol()).
		Msg("check failed")

	return append(failed, check)
}
