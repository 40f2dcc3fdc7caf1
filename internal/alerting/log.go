package alerting

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSender emits events as structured log lines. Immediate channel.
type LogSender struct {
	logger zerolog.Logger
}

// NewLogSender constructs the plain-log channel.
func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "alert_log").Logger()}
}

func (s *LogSender) Name() string { return "log" }

// Send never fails; it writes one warning (or info on resolve) with the
// full structured detail so operators can grep by any field.
func (s *LogSender) Send(_ context.Context, event Event) error {
	entry := s.logger.Warn()
	if event.Resolved {
		entry = s.logger.Info()
	}

	entry = entry.
		Str("identifier", event.Identifier).
		Str("network", event.Context.Network).
		Bool("resolved", event.Resolved)

	for key, value := range event.Fields {
		if key == "msg" {
			continue
		}
		entry = entry.Interface(key, value)
	}

	entry.Msg(event.Fields.Msg())
	return nil
}

var _ Sender = (*LogSender)(nil)
