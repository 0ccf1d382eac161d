package service

import (
	"context"
	"encoding/json"
)

// Orchestrator is the pipeline command collaborator. Calls happen outside the
// local transaction of a transition; a failure after local commits is
// surfaced to the caller, who retries the transition.
type Orchestrator interface {
	// PublishDataset asks the pipeline to start serving the dataset.
	PublishDataset(ctx context.Context, datasetID string) error

	// RestartPipeline asks the pipeline to restart after a retirement.
	RestartPipeline(ctx context.Context, datasetID string) error
}

// SupervisorAdmin terminates running ingestion supervisors. Used best-effort
// during retirement; failures are logged, never fatal.
type SupervisorAdmin interface {
	TerminateSupervisor(ctx context.Context, datasourceRef string) error
}

// EventPublisher writes accepted events onto a dataset's router topic. Keyed
// by dataset id so one dataset's events stay ordered within a partition.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, events []json.RawMessage) error
}
