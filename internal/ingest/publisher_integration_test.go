package ingest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

func TestPublisher_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tckafka.Run(ctx,
		"confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("conductor-test"),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	publisher := NewPublisher(&Config{
		Brokers:      brokers,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
	})

	t.Cleanup(func() {
		_ = publisher.Close()
	})

	events := []json.RawMessage{
		json.RawMessage(`{"eid":"IMPRESSION","ets":1}`),
		json.RawMessage(`{"eid":"INTERACT","ets":2}`),
	}

	require.NoError(t, publisher.Publish(ctx, "telemetry-events", "telemetry", events))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    "telemetry-events",
		GroupID:  "conductor-test-reader",
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})

	t.Cleanup(func() {
		_ = reader.Close()
	})

	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	seen := make(map[string]int64)

	for range events {
		msg, err := reader.ReadMessage(readCtx)
		require.NoError(t, err)
		assert.Equal(t, "telemetry", string(msg.Key))

		var decoded struct {
			EID  string `json:"eid"`
			Meta struct {
				Syncts int64 `json:"syncts"`
			} `json:"meta"`
		}

		require.NoError(t, json.Unmarshal(msg.Value, &decoded))
		seen[decoded.EID] = decoded.Meta.Syncts
	}

	require.Len(t, seen, 2)

	for eid, syncts := range seen {
		assert.Positive(t, syncts, "event %s missing arrival stamp", eid)
	}
}
