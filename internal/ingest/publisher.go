package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/conductor-io/conductor/internal/config"
	"github.com/conductor-io/conductor/internal/dataset"
	"github.com/conductor-io/conductor/internal/service"
)

// Publisher writes events to Kafka using one shared writer; the topic is set
// per message so a single Publisher serves every dataset.
type Publisher struct {
	writer *kafka.Writer
	logger *slog.Logger
	now    func() time.Time
}

// Publisher implements the event publishing collaborator interface.
var _ service.EventPublisher = (*Publisher)(nil)

// NewPublisher creates a Kafka-backed event publisher.
func NewPublisher(cfg *Config) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			BatchTimeout:           cfg.BatchTimeout,
			WriteTimeout:           cfg.WriteTimeout,
			AllowAutoTopicCreation: true,
		},
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
		now: time.Now,
	}
}

// Publish implements service.EventPublisher. Each event is enveloped with the
// arrival timestamp before it is written; a non-object event is rejected as
// invalid input before anything reaches the topic.
func (p *Publisher) Publish(ctx context.Context, topic, key string, events []json.RawMessage) error {
	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(events))
	arrivedAt := p.now()

	for i, event := range events {
		value, err := Envelope(event, arrivedAt)
		if err != nil {
			return dataset.InvalidInput(dataset.CodeInvalidInput,
				"event %d is not a JSON object: %v", i, err)
		}

		messages = append(messages, kafka.Message{
			Topic: topic,
			Key:   []byte(key),
			Value: value,
		})
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return dataset.Upstream(dataset.CodeCommandFailed, err,
			"writing %d events to topic %s", len(messages), topic)
	}

	p.logger.Debug("Events published",
		slog.String("topic", topic),
		slog.Int("count", len(messages)),
	)

	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Envelope stamps the arrival timestamp into the event's meta object,
// creating it when absent. Existing meta fields are preserved; an existing
// syncts value is overwritten, the stamp is authoritative.
func Envelope(event json.RawMessage, arrivedAt time.Time) (json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(event, &obj); err != nil {
		return nil, fmt.Errorf("decoding event: %w", err)
	}

	meta := map[string]json.RawMessage{}

	if raw, ok := obj["meta"]; ok {
		// Malformed meta is replaced rather than rejected.
		_ = json.Unmarshal(raw, &meta)
	}

	syncts, err := json.Marshal(arrivedAt.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("encoding arrival timestamp: %w", err)
	}

	meta["syncts"] = syncts

	encodedMeta, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encoding event meta: %w", err)
	}

	obj["meta"] = encodedMeta

	return json.Marshal(obj)
}
