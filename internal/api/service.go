package api

import (
	"context"
	"encoding/json"

	"github.com/conductor-io/conductor/internal/dataset"
	"github.com/conductor-io/conductor/internal/service"
)

type (
	// DatasetService is the control plane surface the HTTP handlers call.
	// Implemented by service.Service; tests substitute a mock.
	DatasetService interface {
		Create(ctx context.Context, req *service.CreateRequest) (*dataset.Dataset, error)
		Update(ctx context.Context, req *service.UpdateRequest) (*dataset.Dataset, error)
		GetDraft(ctx context.Context, id string) (*dataset.Dataset, error)
		GetLive(ctx context.Context, id string) (*dataset.Dataset, error)
		List(ctx context.Context, statuses []dataset.Status) ([]*dataset.Dataset, error)
		ListTransformations(ctx context.Context, id string) ([]dataset.TransformationConfig, error)
		Transition(ctx context.Context, id string, t dataset.Transition) error
		IngestEvents(ctx context.Context, id string, events []json.RawMessage) error
	}

	// HealthChecker reports readiness of the storage backend.
	HealthChecker interface {
		HealthCheck(ctx context.Context) error
	}
)

var _ DatasetService = (*service.Service)(nil)
