package service

import (
	"context"
	"log/slog"

	"github.com/conductor-io/conductor/internal/dataset"
	"github.com/conductor-io/conductor/internal/schema"
)

// UpdateRequest is a partial edit of a draft dataset. Scalar configs replace
// wholesale when non-nil; list-valued configs are reconciled change by change.
// VersionKey must match the stored draft's token or the update conflicts.
type UpdateRequest struct {
	DatasetID  string `json:"dataset_id"`
	VersionKey string `json:"version_key"`

	Name             *string                   `json:"name,omitempty"`
	DataSchema       *schema.Node              `json:"data_schema,omitempty"`
	ValidationConfig *dataset.ValidationConfig `json:"validation_config,omitempty"`
	ExtractionConfig *dataset.ExtractionConfig `json:"extraction_config,omitempty"`
	DedupConfig      *dataset.DedupConfig      `json:"dedup_config,omitempty"`
	RouterConfig     *dataset.RouterConfig     `json:"router_config,omitempty"`
	KeysConfig       *dataset.KeysConfig       `json:"keys_config,omitempty"`
	CacheConfig      *dataset.CacheConfig      `json:"cache_config,omitempty"`

	DenormFields    []dataset.Change[dataset.DenormField]          `json:"denorm_fields,omitempty"`
	Transformations []dataset.Change[dataset.TransformationConfig] `json:"transformations,omitempty"`
	Connectors      []dataset.Change[dataset.ConnectorConfig]      `json:"connectors,omitempty"`
	SourceConfigs   []dataset.Change[dataset.SourceConfig]         `json:"source_configs,omitempty"`
	Tags            []dataset.Change[string]                       `json:"tags,omitempty"`
}

// validateChanges rejects change sets with duplicate upsert keys or unknown
// actions before any read or mutation happens.
func (r *UpdateRequest) validateChanges() error {
	if err := validateActions(r.DenormFields); err != nil {
		return err
	}

	if err := validateActions(r.Transformations); err != nil {
		return err
	}

	if err := validateActions(r.Connectors); err != nil {
		return err
	}

	if err := validateActions(r.SourceConfigs); err != nil {
		return err
	}

	if err := validateActions(r.Tags); err != nil {
		return err
	}

	if dup := dataset.DuplicateUpsertKeys(r.DenormFields, dataset.DenormFieldKey); len(dup) > 0 {
		return dataset.InvalidInput(dataset.CodeDuplicateDenormKey,
			"duplicate denorm output fields in update request: %v", dup)
	}

	if dup := dataset.DuplicateUpsertKeys(r.Transformations, dataset.TransformationKey); len(dup) > 0 {
		return dataset.InvalidInput(dataset.CodeDuplicateFieldKey,
			"duplicate transformation field keys in update request: %v", dup)
	}

	if dup := dataset.DuplicateUpsertKeys(r.Connectors, dataset.ConnectorKey); len(dup) > 0 {
		return dataset.InvalidInput(dataset.CodeDuplicateConnector,
			"duplicate connector ids in update request: %v", dup)
	}

	if dup := dataset.DuplicateUpsertKeys(r.SourceConfigs, dataset.SourceConfigKey); len(dup) > 0 {
		return dataset.InvalidInput(dataset.CodeInvalidInput,
			"duplicate source config ids in update request: %v", dup)
	}

	if dup := dataset.DuplicateUpsertKeys(r.Tags, dataset.TagKey); len(dup) > 0 {
		return dataset.InvalidInput(dataset.CodeInvalidInput,
			"duplicate tags in update request: %v", dup)
	}

	return nil
}

func validateActions[T any](changes []dataset.Change[T]) error {
	for _, c := range changes {
		if !c.Action.IsValid() {
			return dataset.InvalidInput(dataset.CodeInvalidInput,
				"unknown change action %q", c.Action)
		}
	}

	return nil
}

// Update applies a partial edit to a draft dataset. Invalid change sets are
// rejected before anything is read or written; the write itself is guarded by
// the version-key compare-and-swap, so a concurrent edit surfaces as a
// Conflict and the caller re-reads and retries.
func (s *Service) Update(ctx context.Context, req *UpdateRequest) (*dataset.Dataset, error) {
	if req.DatasetID == "" {
		return nil, dataset.InvalidInput(dataset.CodeInvalidInput, "dataset_id is required")
	}

	if req.VersionKey == "" {
		return nil, dataset.InvalidInput(dataset.CodeInvalidInput, "version_key is required")
	}

	if err := req.validateChanges(); err != nil {
		return nil, err
	}

	draft, err := s.store.GetDraft(ctx, req.DatasetID)
	if err != nil {
		return nil, err
	}

	if draft.Status != dataset.StatusDraft && draft.Status != dataset.StatusReadyToPublish {
		return nil, dataset.Conflict(dataset.CodeDatasetNotDraft,
			"dataset %s is %s and cannot be edited", draft.ID, draft.Status)
	}

	applyScalars(draft, req)

	draft.DenormConfig = mergeDenorms(draft.DenormConfig, req.DenormFields)
	draft.ConnectorsConfig = dataset.Reconcile(draft.ConnectorsConfig, req.Connectors, dataset.ConnectorKey)
	draft.Tags = dataset.Reconcile(draft.Tags, req.Tags, dataset.TagKey)

	if err := dataset.ValidateDenormConfig(draft); err != nil {
		return nil, err
	}

	transformations, err := s.mergedTransformations(ctx, draft.ID, req.Transformations)
	if err != nil {
		return nil, err
	}

	sourceConfigs, err := s.mergedSourceConfigs(ctx, draft.ID, req.SourceConfigs)
	if err != nil {
		return nil, err
	}

	err = s.store.InTx(ctx, func(tx Store) error {
		if err := tx.UpdateDraft(ctx, draft, req.VersionKey); err != nil {
			return err
		}

		if req.Transformations != nil {
			if err := tx.ReplaceDraftTransformations(ctx, draft.ID, transformations); err != nil {
				return err
			}
		}

		if req.SourceConfigs != nil {
			if err := tx.ReplaceDraftSourceConfigs(ctx, draft.ID, sourceConfigs); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Dataset updated",
		slog.String("dataset_id", draft.ID),
		slog.String("version_key", draft.VersionKey),
	)

	return draft, nil
}

func applyScalars(draft *dataset.Dataset, req *UpdateRequest) {
	if req.Name != nil {
		draft.Name = *req.Name
	}

	if req.DataSchema != nil {
		draft.DataSchema = req.DataSchema
	}

	if req.ValidationConfig != nil {
		draft.ValidationConfig = req.ValidationConfig
	}

	if req.ExtractionConfig != nil {
		draft.ExtractionConfig = req.ExtractionConfig
	}

	if req.DedupConfig != nil {
		draft.DedupConfig = req.DedupConfig
	}

	if req.RouterConfig != nil {
		draft.RouterConfig = req.RouterConfig
	}

	if req.KeysConfig != nil {
		draft.KeysConfig = req.KeysConfig
	}

	if req.CacheConfig != nil {
		draft.CacheConfig = req.CacheConfig
	}
}

// mergeDenorms reconciles denorm field changes into the denorm config,
// materializing the config when the first field is added and dropping it when
// the last one is removed.
func mergeDenorms(current *dataset.DenormConfig, changes []dataset.Change[dataset.DenormField]) *dataset.DenormConfig {
	if len(changes) == 0 {
		return current
	}

	var fields []dataset.DenormField
	if current != nil {
		fields = current.DenormFields
	}

	merged := dataset.Reconcile(fields, changes, dataset.DenormFieldKey)
	if len(merged) == 0 {
		return nil
	}

	return &dataset.DenormConfig{DenormFields: merged}
}

func (s *Service) mergedTransformations(
	ctx context.Context,
	datasetID string,
	changes []dataset.Change[dataset.TransformationConfig],
) ([]dataset.TransformationConfig, error) {
	if changes == nil {
		return nil, nil
	}

	current, err := s.store.ListDraftTransformations(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	return dataset.Reconcile(current, changes, dataset.TransformationKey), nil
}

func (s *Service) mergedSourceConfigs(
	ctx context.Context,
	datasetID string,
	changes []dataset.Change[dataset.SourceConfig],
) ([]dataset.SourceConfig, error) {
	if changes == nil {
		return nil, nil
	}

	current, err := s.store.ListDraftSourceConfigs(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	return dataset.Reconcile(current, changes, dataset.SourceConfigKey), nil
}
