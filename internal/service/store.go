// Package service implements the dataset control plane: create and update of
// draft datasets with optimistic concurrency, merge-based config edits, and
// the lifecycle state machine executing transition command plans against the
// store and the external orchestration collaborators.
package service

import (
	"context"

	"github.com/conductor-io/conductor/internal/dataset"
)

// Store is the persistence surface the control plane runs against. It is
// implemented by the PostgreSQL storage layer; tests substitute fakes.
//
// Methods called from inside an InTx callback run on the transaction; the
// same method set is available in both scopes.
type Store interface {
	// CreateDraft inserts a new draft dataset. Fails with a Conflict error
	// when a draft with the same id already exists. A live record with the
	// same id is allowed; that is how a published dataset is reopened.
	CreateDraft(ctx context.Context, d *dataset.Dataset) error

	// GetDraft returns the draft record, or a NotFound error.
	GetDraft(ctx context.Context, id string) (*dataset.Dataset, error)

	// GetLive returns the live record, or a NotFound error.
	GetLive(ctx context.Context, id string) (*dataset.Dataset, error)

	// ListDrafts returns all draft records, optionally filtered by status.
	ListDrafts(ctx context.Context, statuses []dataset.Status) ([]*dataset.Dataset, error)

	// ListLive returns all live records, optionally filtered by status.
	ListLive(ctx context.Context, statuses []dataset.Status) ([]*dataset.Dataset, error)

	// UpdateDraft persists d if the stored version key still equals
	// expectedVersionKey, regenerating the key on success (compare-and-swap).
	// A stale key fails with a Conflict error, a missing draft with NotFound.
	UpdateDraft(ctx context.Context, d *dataset.Dataset, expectedVersionKey string) error

	// SaveDraft persists d unconditionally, bypassing the version-key check.
	// Reserved for transition commands that enrich a draft they already hold
	// under a status compare-and-swap.
	SaveDraft(ctx context.Context, d *dataset.Dataset) error

	// SetDraftStatus flips the draft status from from to to as a single
	// conditional update. A concurrent transition that already moved the row
	// makes the update match zero rows, which fails with a Conflict error;
	// this is the per-row mutual exclusion between concurrent transitions.
	SetDraftStatus(ctx context.Context, id string, from, to dataset.Status) error

	// DeleteDraftCascade removes the draft dataset and all of its draft
	// child records.
	DeleteDraftCascade(ctx context.Context, id string) error

	// PromoteDraftToLive copies the draft record and its child records into
	// the live tables, incrementing the live data version and stamping the
	// publication time. The draft rows are left in place; the publish flow
	// removes them afterwards via DeleteDraftCascade.
	PromoteDraftToLive(ctx context.Context, id string) error

	// SetRetired marks the live dataset and all of its live child records
	// Retired. The dataset update is conditional on the record still being
	// Live; a concurrent retire fails with a Conflict error.
	SetRetired(ctx context.Context, id string) error

	// NextCachePartition allocates the next cache partition index for a
	// master dataset.
	NextCachePartition(ctx context.Context) (int, error)

	// DenormReferencers returns the ids of datasets (draft or live) whose
	// denorm config references masterID.
	DenormReferencers(ctx context.Context, masterID string) ([]string, error)

	// ListDraftTransformations returns the draft transformation child
	// records of a dataset.
	ListDraftTransformations(ctx context.Context, datasetID string) ([]dataset.TransformationConfig, error)

	// ListLiveTransformations returns the live transformation child records
	// of a dataset, used when a draft is rederived from the live record.
	ListLiveTransformations(ctx context.Context, datasetID string) ([]dataset.TransformationConfig, error)

	// ReplaceDraftTransformations replaces the draft transformation child
	// records of a dataset with the given set.
	ReplaceDraftTransformations(ctx context.Context, datasetID string, tfs []dataset.TransformationConfig) error

	// ListDraftSourceConfigs returns the draft source-config child records
	// of a dataset.
	ListDraftSourceConfigs(ctx context.Context, datasetID string) ([]dataset.SourceConfig, error)

	// ListLiveSourceConfigs returns the live source-config child records of
	// a dataset.
	ListLiveSourceConfigs(ctx context.Context, datasetID string) ([]dataset.SourceConfig, error)

	// ReplaceDraftSourceConfigs replaces the draft source-config child
	// records of a dataset with the given set.
	ReplaceDraftSourceConfigs(ctx context.Context, datasetID string, configs []dataset.SourceConfig) error

	// GetDraftDatasource returns the draft datasource of a dataset, or nil
	// when none was compiled yet.
	GetDraftDatasource(ctx context.Context, datasetID string) (*dataset.Datasource, error)

	// GetLiveDatasource returns the live datasource of a dataset, or nil.
	GetLiveDatasource(ctx context.Context, datasetID string) (*dataset.Datasource, error)

	// UpsertDraftDatasource inserts or replaces the draft datasource record.
	UpsertDraftDatasource(ctx context.Context, ds *dataset.Datasource) error

	// InTx runs fn against a transaction-scoped copy of the store, committing
	// when fn returns nil and rolling back otherwise. Not reentrant.
	InTx(ctx context.Context, fn func(Store) error) error
}
