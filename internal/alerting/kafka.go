package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"price-feed-observer/internal/checks"
)

// kafkaWriter is the slice of kafka.Writer the sender uses; tests
// substitute a recorder.
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSender publishes every check failure as a structured event to a
// topic, feeding downstream time-series tooling. Immediate channel.
type KafkaSender struct {
	writer kafkaWriter
	logger zerolog.Logger
}

// KafkaOptions tune the underlying writer.
type KafkaOptions struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
	MaxAttempts  int
}

// NewKafkaSender constructs the event-stream channel.
func NewKafkaSender(opts KafkaOptions, logger zerolog.Logger) (*KafkaSender, error) {
	if len(opts.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker is required")
	}
	if opts.Topic == "" {
		return nil, fmt.Errorf("kafka: topic is required")
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(opts.Brokers...),
		Topic:        opts.Topic,
		Balancer:     &kafka.Hash{}, // partition by alert identifier
		WriteTimeout: opts.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  opts.MaxAttempts,
	}

	return &KafkaSender{
		writer: writer,
		logger: logger.With().Str("component", "alert_kafka").Logger(),
	}, nil
}

func (s *KafkaSender) Name() string { return "kafka" }

type kafkaEvent struct {
	Identifier string        `json:"identifier"`
	Network    string        `json:"network"`
	Resolved   bool          `json:"resolved"`
	Fields     checks.Fields `json:"fields"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Send serializes the event and writes it keyed by alert identifier, so
// one logical issue lands on one partition in order.
func (s *KafkaSender) Send(ctx context.Context, event Event) error {
	data, err := json.Marshal(kafkaEvent{
		Identifier: event.Identifier,
		Network:    event.Context.Network,
		Resolved:   event.Resolved,
		Fields:     event.Fields,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal kafka event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Identifier),
		Value: data,
		Headers: []kafka.Header{
			{Key: "check", Value: []byte(event.Fields.Type())},
			{Key: "symbol", Value: []byte(event.Fields.Symbol())},
		},
	}

	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write kafka event: %w", err)
	}

	s.logger.Debug().
		Str("identifier", event.Identifier).
		Int("bytes", len(data)).
		Msg("event published")
	return nil
}

// Close flushes and closes the underlying writer.
func (s *KafkaSender) Close() error { return s.writer.Close() }

var _ Sender = (*KafkaSender)(nil)
