package dataset

// Default sub-configurations seeded into sparse create requests. Values match
// what the ingestion pipeline assumes when a dataset owner configures nothing.

// DefaultTimestampKey is the arrival-time field used when a dataset declares
// no timestamp key of its own. The ingest surface stamps this field onto every
// event it accepts.
const DefaultTimestampKey = "meta.syncts"

// DefaultValidationConfig validates events in strict mode.
func DefaultValidationConfig() *ValidationConfig {
	return &ValidationConfig{Validate: true, Mode: "Strict"}
}

// DefaultExtractionConfig treats events as single records.
func DefaultExtractionConfig() *ExtractionConfig {
	return &ExtractionConfig{
		IsBatchEvent: false,
		DedupConfig:  &DedupConfig{DropDuplicates: false},
	}
}

// DefaultDedupConfig keeps duplicates.
func DefaultDedupConfig() *DedupConfig {
	return &DedupConfig{DropDuplicates: false}
}

// ApplyDefaults fills the zero-valued parts of a new draft with defaults.
// Explicitly provided configs are never overridden.
func (d *Dataset) ApplyDefaults() {
	if d.ValidationConfig == nil {
		d.ValidationConfig = DefaultValidationConfig()
	}

	if !d.ValidationConfig.Validate && d.ValidationConfig.Mode == "" {
		d.ValidationConfig.Mode = DefaultValidationConfig().Mode
	}

	if d.ExtractionConfig == nil {
		d.ExtractionConfig = DefaultExtractionConfig()
	}

	if d.DedupConfig == nil {
		d.DedupConfig = DefaultDedupConfig()
	}

	if d.KeysConfig == nil {
		d.KeysConfig = &KeysConfig{TimestampKey: DefaultTimestampKey}
	}

	if d.KeysConfig.TimestampKey == "" {
		d.KeysConfig.TimestampKey = DefaultTimestampKey
	}

	if d.Type == TypeMaster && d.CacheConfig == nil {
		d.CacheConfig = &CacheConfig{}
	}
}
