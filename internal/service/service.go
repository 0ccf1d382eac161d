package service

import (
	"context"
	"log/slog"
	"os"

	"github.com/conductor-io/conductor/internal/config"
	"github.com/conductor-io/conductor/internal/dataset"
	"github.com/conductor-io/conductor/internal/tablespec"
)

// Service is the dataset control plane. All HTTP handlers and the lifecycle
// state machine go through it; it owns validation, merge semantics and the
// transition command executor.
type Service struct {
	store       Store
	compiler    *tablespec.Compiler
	orch        Orchestrator
	supervisors SupervisorAdmin
	publisher   EventPublisher
	logger      *slog.Logger
}

// New wires a Service. The spec compiler resolves denorm masters through the
// same store the service runs against.
func New(
	store Store,
	defaults *tablespec.Defaults,
	orch Orchestrator,
	supervisors SupervisorAdmin,
	publisher EventPublisher,
) *Service {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	}))

	return &Service{
		store:       store,
		compiler:    tablespec.NewCompiler(&masterResolver{store: store}, defaults, logger),
		orch:        orch,
		supervisors: supervisors,
		publisher:   publisher,
		logger:      logger,
	}
}

// masterResolver resolves denorm masters against the live dataset table.
type masterResolver struct {
	store Store
}

var _ tablespec.MasterResolver = (*masterResolver)(nil)

// LiveMaster returns the live record of a master dataset. A missing or
// non-master record fails with a Conflict: the referencing dataset cannot go
// live until its masters are.
func (r *masterResolver) LiveMaster(ctx context.Context, datasetID string) (*dataset.Dataset, error) {
	master, err := r.store.GetLive(ctx, datasetID)
	if err != nil {
		if dataset.KindOf(err) == dataset.KindNotFound {
			return nil, dataset.Conflict(dataset.CodeMasterNotLive,
				"dependent master dataset %s is not live", datasetID)
		}

		return nil, err
	}

	if master.Type != dataset.TypeMaster {
		return nil, dataset.Conflict(dataset.CodeMasterNotLive,
			"dataset %s is not a master dataset", datasetID)
	}

	return master, nil
}

// CreateRequest is a dataset create payload: the dataset definition plus its
// initial transformations.
type CreateRequest struct {
	Dataset         *dataset.Dataset
	Transformations []dataset.TransformationConfig
}

// Create validates and persists a new draft dataset. Defaults are seeded into
// unset sub-configs; nothing is persisted when validation fails.
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*dataset.Dataset, error) {
	d := req.Dataset
	d.ApplyDefaults()

	if err := dataset.ValidateNew(d); err != nil {
		return nil, err
	}

	if dup := duplicateTransformationKeys(req.Transformations); len(dup) > 0 {
		return nil, dataset.InvalidInput(dataset.CodeDuplicateFieldKey,
			"create request contains duplicate transformation field keys: %v", dup)
	}

	d.Status = dataset.StatusDraft
	d.VersionKey = dataset.NewVersionKey()

	err := s.store.InTx(ctx, func(tx Store) error {
		if err := tx.CreateDraft(ctx, d); err != nil {
			return err
		}

		return tx.ReplaceDraftTransformations(ctx, d.ID, req.Transformations)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Dataset created",
		slog.String("dataset_id", d.ID),
		slog.String("type", string(d.Type)),
	)

	return d, nil
}

// GetDraft returns the editable draft of a dataset. When no draft exists but
// a live record does, a fresh draft is derived from the live copy, so editing
// a live dataset never mutates the published record.
func (s *Service) GetDraft(ctx context.Context, id string) (*dataset.Dataset, error) {
	draft, err := s.store.GetDraft(ctx, id)
	if err == nil {
		return draft, nil
	}

	if dataset.KindOf(err) != dataset.KindNotFound {
		return nil, err
	}

	live, liveErr := s.store.GetLive(ctx, id)
	if liveErr != nil {
		return nil, err
	}

	return s.reopenFromLive(ctx, live)
}

// reopenFromLive creates a new draft from a live record, including copies of
// the live transformation and source-config children, so a subsequent
// publish does not silently drop them.
func (s *Service) reopenFromLive(ctx context.Context, live *dataset.Dataset) (*dataset.Dataset, error) {
	draft := *live
	draft.Status = dataset.StatusDraft
	draft.VersionKey = dataset.NewVersionKey()
	draft.PublishedAt = live.PublishedAt

	err := s.store.InTx(ctx, func(tx Store) error {
		if err := tx.CreateDraft(ctx, &draft); err != nil {
			return err
		}

		tfs, err := tx.ListLiveTransformations(ctx, live.ID)
		if err != nil {
			return err
		}

		if len(tfs) > 0 {
			for i := range tfs {
				tfs[i].Status = dataset.StatusDraft
			}

			if err := tx.ReplaceDraftTransformations(ctx, live.ID, tfs); err != nil {
				return err
			}
		}

		configs, err := tx.ListLiveSourceConfigs(ctx, live.ID)
		if err != nil {
			return err
		}

		if len(configs) > 0 {
			for i := range configs {
				configs[i].Status = dataset.StatusDraft
			}

			return tx.ReplaceDraftSourceConfigs(ctx, live.ID, configs)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Draft reopened from live record", slog.String("dataset_id", draft.ID))

	return &draft, nil
}

// GetLive returns the published record of a dataset.
func (s *Service) GetLive(ctx context.Context, id string) (*dataset.Dataset, error) {
	return s.store.GetLive(ctx, id)
}

// List returns all datasets, the live record preferred when a dataset has
// both a live and a draft copy. Statuses filter both tables.
func (s *Service) List(ctx context.Context, statuses []dataset.Status) ([]*dataset.Dataset, error) {
	live, err := s.store.ListLive(ctx, statuses)
	if err != nil {
		return nil, err
	}

	drafts, err := s.store.ListDrafts(ctx, statuses)
	if err != nil {
		return nil, err
	}

	published := make(map[string]struct{}, len(live))
	for _, d := range live {
		published[d.ID] = struct{}{}
	}

	out := live

	for _, d := range drafts {
		if _, ok := published[d.ID]; ok {
			continue
		}

		out = append(out, d)
	}

	return out, nil
}

// ListTransformations returns the draft transformations of a dataset.
func (s *Service) ListTransformations(ctx context.Context, id string) ([]dataset.TransformationConfig, error) {
	if _, err := s.store.GetDraft(ctx, id); err != nil {
		return nil, err
	}

	return s.store.ListDraftTransformations(ctx, id)
}

func duplicateTransformationKeys(tfs []dataset.TransformationConfig) []string {
	seen := make(map[string]int)

	var duplicates []string

	for _, tf := range tfs {
		seen[tf.FieldKey]++
		if seen[tf.FieldKey] == 2 {
			duplicates = append(duplicates, tf.FieldKey)
		}
	}

	return duplicates
}
