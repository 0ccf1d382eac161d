// Package dataset provides the core domain model for the Conductor control
// plane: draft and live dataset records, their list-valued sub-configurations,
// the lifecycle state machine and the generic config merge engine.
package dataset

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/conductor-io/conductor/internal/schema"
)

// Status is the lifecycle status of a dataset or one of its child records.
type Status string

// Dataset lifecycle statuses. Transitions between them are validated by
// ValidateTransition; there is no path back to an earlier status other than
// re-editing a Live dataset, which creates a fresh Draft record.
const (
	StatusDraft          Status = "Draft"
	StatusReadyToPublish Status = "ReadyToPublish"
	StatusLive           Status = "Live"
	StatusRetired        Status = "Retired"
)

// IsValid reports whether s is a known lifecycle status.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusReadyToPublish, StatusLive, StatusRetired:
		return true
	}

	return false
}

// Type distinguishes event streams from master (lookup) datasets.
type Type string

// Dataset types. Master datasets serve as denormalization sources; only Live
// master datasets may be referenced by an event dataset's denorm config.
const (
	TypeEvent  Type = "event"
	TypeMaster Type = "master"
)

// IsValid reports whether t is a known dataset type.
func (t Type) IsValid() bool {
	return t == TypeEvent || t == TypeMaster
}

type (
	// Dataset is a configured data pipeline definition. The same shape backs
	// both the draft (editable) and live (published) records; DataVersion and
	// PublishedAt are only meaningful on the live copy.
	Dataset struct {
		ID               string                 `json:"id"`
		Name             string                 `json:"name"`
		Type             Type                   `json:"type"`
		Status           Status                 `json:"status"`
		DataSchema       *schema.Node           `json:"data_schema"`
		ValidationConfig *ValidationConfig      `json:"validation_config,omitempty"`
		ExtractionConfig *ExtractionConfig      `json:"extraction_config,omitempty"`
		DedupConfig      *DedupConfig           `json:"dedup_config,omitempty"`
		DenormConfig     *DenormConfig          `json:"denorm_config,omitempty"`
		ConnectorsConfig []ConnectorConfig      `json:"connectors_config,omitempty"`
		RouterConfig     *RouterConfig          `json:"router_config,omitempty"`
		KeysConfig       *KeysConfig            `json:"keys_config,omitempty"`
		CacheConfig      *CacheConfig           `json:"cache_config,omitempty"`
		Tags             []string               `json:"tags,omitempty"`
		VersionKey       string                 `json:"version_key"`
		DataVersion      int                    `json:"data_version,omitempty"`
		CreatedAt        time.Time              `json:"created_at,omitzero"`
		UpdatedAt        time.Time              `json:"updated_at,omitzero"`
		PublishedAt      time.Time              `json:"published_at,omitzero"`
	}

	// ValidationConfig controls schema validation of incoming events.
	ValidationConfig struct {
		Validate bool   `json:"validate"`
		Mode     string `json:"mode,omitempty"`
	}

	// ExtractionConfig controls batch-event extraction.
	ExtractionConfig struct {
		IsBatchEvent  bool         `json:"is_batch_event"`
		ExtractionKey string       `json:"extraction_key,omitempty"`
		DedupConfig   *DedupConfig `json:"dedup_config,omitempty"`
	}

	// DedupConfig controls duplicate-event dropping.
	DedupConfig struct {
		DropDuplicates bool   `json:"drop_duplicates"`
		DedupKey       string `json:"dedup_key,omitempty"`
		DedupPeriod    int    `json:"dedup_period,omitempty"`
	}

	// DenormConfig lists the master-dataset joins applied at ingest time.
	DenormConfig struct {
		DenormFields []DenormField `json:"denorm_fields"`
	}

	// DenormField enriches an event record by joining against a master
	// dataset. PartitionIndex is filled from the master's cache config when
	// the referencing dataset goes Live.
	DenormField struct {
		DenormKey      string `json:"denorm_key"`
		DenormOutField string `json:"denorm_out_field"`
		DatasetID      string `json:"dataset_id"`
		PartitionIndex int    `json:"partition_index,omitempty"`
	}

	// ConnectorConfig binds an ingestion connector instance to the dataset.
	ConnectorConfig struct {
		ConnectorID     string          `json:"connector_id"`
		ConnectorConfig json.RawMessage `json:"connector_config,omitempty"`
		Version         string          `json:"version,omitempty"`
	}

	// RouterConfig names the streaming topic events are routed onto.
	RouterConfig struct {
		Topic string `json:"topic"`
	}

	// KeysConfig names the designated key fields of the dataset.
	KeysConfig struct {
		DataKey      string `json:"data_key,omitempty"`
		PartitionKey string `json:"partition_key,omitempty"`
		TimestampKey string `json:"timestamp_key"`
	}

	// CacheConfig holds the cache placement for master datasets.
	// PartitionIndex is allocated from a database sequence the first time a
	// master dataset goes Live.
	CacheConfig struct {
		Host           string `json:"host,omitempty"`
		Port           int    `json:"port,omitempty"`
		PartitionIndex int    `json:"partition_index,omitempty"`
	}

	// TransformationConfig is a per-field transformation, a child record of
	// the dataset keyed by (dataset_id, field_key).
	TransformationConfig struct {
		FieldKey      string        `json:"field_key"`
		TransformSpec TransformSpec `json:"transform_spec"`
		Mode          string        `json:"mode,omitempty"`
		Status        Status        `json:"status,omitempty"`
	}

	// TransformSpec describes the transformation applied to a field and the
	// datatype of its output.
	TransformSpec struct {
		Type     string `json:"type"`
		Expr     string `json:"expr,omitempty"`
		Datatype string `json:"datatype"`
		Category string `json:"category,omitempty"`
	}

	// SourceConfig is a connector-instance child record keyed by
	// (dataset_id, id).
	SourceConfig struct {
		ID              string          `json:"id"`
		ConnectorType   string          `json:"connector_type"`
		ConnectorConfig json.RawMessage `json:"connector_config,omitempty"`
		Status          Status          `json:"status,omitempty"`
	}

	// Datasource is the compiled artifact generated during the Live
	// transition: the streaming ingestion spec and the stable-indexed table
	// spec, one row per dataset, in draft and live variants like the dataset.
	Datasource struct {
		ID            string          `json:"id"`
		DatasetID     string          `json:"dataset_id"`
		DatasourceRef string          `json:"datasource_ref"`
		Type          string          `json:"type"`
		IngestionSpec json.RawMessage `json:"ingestion_spec,omitempty"`
		TableSpec     json.RawMessage `json:"table_spec,omitempty"`
		Status        Status          `json:"status,omitempty"`
	}
)

// NewVersionKey returns a fresh opaque version token for optimistic
// concurrency control on draft updates. A random UUID is used instead of the
// wall-clock millisecond token of earlier revisions, which collided under
// rapid sequential updates.
func NewVersionKey() string {
	return uuid.NewString()
}

// DatasourceRef derives the physical datasource reference for a dataset.
func DatasourceRef(datasetID string) string {
	return datasetID + "_events"
}

// TimestampKey returns the configured timestamp key or the empty string when
// keys are not configured yet.
func (d *Dataset) TimestampKey() string {
	if d.KeysConfig == nil {
		return ""
	}

	return d.KeysConfig.TimestampKey
}

// DenormFields returns the dataset's denorm fields, never nil.
func (d *Dataset) DenormFields() []DenormField {
	if d.DenormConfig == nil {
		return nil
	}

	return d.DenormConfig.DenormFields
}
