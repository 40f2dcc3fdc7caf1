// Package alerting defines the notification contract and the concrete
// delivery channels. The dispatcher only decides whether and when to
// send; each channel owns its formatting and transport.
package alerting

import (
	"context"

	"price-feed-observer/internal/checks"
)

// Context is shared metadata every channel may render.
type Context struct {
	Network string
}

// Event is one notification to deliver: a check failure or, with
// Resolved set, the all-clear for a previously raised alert.
type Event struct {
	Identifier string
	Fields     checks.Fields
	Resolved   bool
	Context    Context
}

// Sender delivers events to one channel. Implementations must treat
// failures as recoverable: the dispatcher logs and retries next cycle,
// it never aborts.
type Sender interface {
	Name() string
	Send(ctx context.Context, event Event) error
}

// Gated channels are held back by the alert state machine's hysteresis
// thresholds; everything else fires on every failing cycle.
var gatedChannels = map[string]bool{
	"telegram": true,
	"zenduty":  true,
}

// IsGated reports whether a channel waits for the alert threshold.
func IsGated(channel string) bool { return gatedChannels[channel] }
