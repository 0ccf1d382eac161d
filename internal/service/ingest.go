package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/conductor-io/conductor/internal/dataset"
)

// IngestEvents publishes a batch of raw events onto the live dataset's router
// topic, keyed by dataset id so one dataset's events stay ordered within a
// partition. Only Live datasets accept events.
func (s *Service) IngestEvents(ctx context.Context, id string, events []json.RawMessage) error {
	if len(events) == 0 {
		return dataset.InvalidInput(dataset.CodeInvalidInput, "event batch is empty")
	}

	live, err := s.store.GetLive(ctx, id)
	if err != nil {
		return err
	}

	if live.Status != dataset.StatusLive {
		return dataset.Conflict(dataset.CodeInvalidTransition,
			"dataset %s is %s and does not accept events", id, live.Status)
	}

	if live.RouterConfig == nil || live.RouterConfig.Topic == "" {
		return dataset.Internal(nil, "dataset %s has no router topic configured", id)
	}

	if err := s.publisher.Publish(ctx, live.RouterConfig.Topic, id, events); err != nil {
		return err
	}

	s.logger.Debug("Events published",
		slog.String("dataset_id", id),
		slog.String("topic", live.RouterConfig.Topic),
		slog.Int("count", len(events)),
	)

	return nil
}
