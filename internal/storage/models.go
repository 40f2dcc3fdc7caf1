package storage

import "time"

// AlertRecord is the durable state of one open alert, keyed by the
// alert identifier `<CheckType>-<symbol>[-<publisherName>]`. At most
// one record exists per identifier at any time.
type AlertRecord struct {
	CheckType string `json:"check_type"`
	// WindowStart anchors the current 5-minute failure window.
	WindowStart time.Time `json:"window_start"`
	// Failures counts failing cycles in the current window.
	Failures int `json:"failures"`
	// LastWindowFailures holds the previous window's count, nil until
	// the first rollover.
	LastWindowFailures *int `json:"last_window_failures"`
	// Sent records whether a notification has ever been dispatched for
	// this identifier while unresolved.
	Sent bool `json:"sent"`
	// LastAlert is when the most recent notification went out.
	LastAlert *time.Time `json:"last_alert"`
}

// AlertState is the full durable map, read once at startup and
// rewritten whole after every cycle.
type AlertState map[string]AlertRecord

// Clone deep-copies the map so a store can serialize it while the next
// cycle mutates the original.
func (s AlertState) Clone() AlertState {
	out := make(AlertState, len(s))
	for id, rec := range s {
		if rec.LastWindowFailures != nil {
			v := *rec.LastWindowFailures
			rec.LastWindowFailures = &v
		}
		if rec.LastAlert != nil {
			t := *rec.LastAlert
			rec.LastAlert = &t
		}
		out[id] = rec
	}
	return out
}
