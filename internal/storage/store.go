// Package storage persists the open-alert map across restarts. Every
// backend implements the same contract: read the whole document once at
// startup, replace the whole document atomically after every cycle.
package storage

import (
	"context"
	"errors"
)

// ErrNotConfigured indicates the store backend was not initialised.
var ErrNotConfigured = errors.New("storage: store not configured")

// AlertStateStore is the durable key-value contract for alert state.
type AlertStateStore interface {
	// Load reads the full alert map. A missing document yields an
	// empty, non-nil map.
	Load(ctx context.Context) (AlertState, error)
	// Save atomically replaces the full alert map.
	Save(ctx context.Context, state AlertState) error
	Close() error
}
