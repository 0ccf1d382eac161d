// Package tablespec compiles a dataset's flattened schema, its denormalized
// fields and its field transformations into the two physical ingestion-spec
// dialects: the streaming (druid-style) ingestion spec and the lakehouse
// table spec with stable column indices.
package tablespec

type (
	// IngestionSpec is the compiled streaming ingestion specification.
	IngestionSpec struct {
		Type string   `json:"type"`
		Spec SpecBody `json:"spec"`
	}

	// SpecBody carries the three sections of a streaming ingestion spec.
	SpecBody struct {
		DataSchema   DataSchema   `json:"dataSchema"`
		TuningConfig TuningConfig `json:"tuningConfig"`
		IOConfig     IOConfig     `json:"ioConfig"`
	}

	// DataSchema describes parsing and typing of incoming records.
	DataSchema struct {
		DataSource      string          `json:"dataSource"`
		DimensionsSpec  DimensionsSpec  `json:"dimensionsSpec"`
		TimestampSpec   TimestampSpec   `json:"timestampSpec"`
		MetricsSpec     []Metric        `json:"metricsSpec"`
		GranularitySpec GranularitySpec `json:"granularitySpec"`
	}

	// DimensionsSpec lists the typed dimensions of the datasource.
	DimensionsSpec struct {
		Dimensions []Dimension `json:"dimensions"`
	}

	// Dimension is one typed column of the streaming datasource.
	Dimension struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}

	// Metric is one aggregated column of the streaming datasource.
	Metric struct {
		Type      string `json:"type"`
		Name      string `json:"name"`
		FieldName string `json:"fieldName,omitempty"`
	}

	// TimestampSpec designates the event-time column.
	TimestampSpec struct {
		Column string `json:"column"`
		Format string `json:"format"`
	}

	// GranularitySpec controls segmenting of the streaming datasource.
	GranularitySpec struct {
		Type               string `json:"type"`
		SegmentGranularity string `json:"segmentGranularity"`
		QueryGranularity   string `json:"queryGranularity"`
		Rollup             bool   `json:"rollup"`
	}

	// TuningConfig carries ingestion tuning knobs.
	TuningConfig struct {
		Type               string `json:"type"`
		MaxBytesInMemory   int64  `json:"maxBytesInMemory"`
		MaxRowsPerSegment  int    `json:"maxRowsPerSegment"`
		LogParseExceptions bool   `json:"logParseExceptions"`
	}

	// IOConfig binds the spec to its source topic.
	IOConfig struct {
		Type               string            `json:"type"`
		Topic              string            `json:"topic"`
		ConsumerProperties map[string]string `json:"consumerProperties"`
		TaskCount          int               `json:"taskCount"`
		Replicas           int               `json:"replicas"`
		TaskDuration       string            `json:"taskDuration"`
		UseEarliestOffset  bool              `json:"useEarliestOffset"`
		CompletionTimeout  string            `json:"completionTimeout"`
		InputFormat        InputFormat       `json:"inputFormat"`
		AppendToExisting   bool              `json:"appendToExisting"`
	}

	// InputFormat describes record parsing and field extraction.
	InputFormat struct {
		Type        string      `json:"type"`
		FlattenSpec FlattenSpec `json:"flattenSpec"`
	}

	// FlattenSpec lists the path-extraction rules of the input format.
	FlattenSpec struct {
		UseFieldDiscovery bool          `json:"useFieldDiscovery"`
		Fields            []FlattenRule `json:"fields"`
	}

	// FlattenRule extracts one output field via a path expression.
	FlattenRule struct {
		Type string `json:"type"`
		Expr string `json:"expr"`
		Name string `json:"name"`
	}

	// TableSpec is the compiled lakehouse table specification. Column indices
	// are stable across recompilations: existing columns never change name or
	// index, new columns are appended past the previous maximum.
	TableSpec struct {
		Dataset     string      `json:"dataset"`
		Schema      TableSchema `json:"schema"`
		InputFormat InputFormat `json:"inputFormat"`
	}

	// TableSchema is the physical column layout of a lakehouse table.
	TableSchema struct {
		Table           string   `json:"table"`
		PartitionColumn string   `json:"partitionColumn"`
		TimestampColumn string   `json:"timestampColumn"`
		PrimaryKey      string   `json:"primaryKey"`
		ColumnSpec      []Column `json:"columnSpec"`
	}

	// Column is one physical column with its stable, never-reused index.
	Column struct {
		Name  string `json:"name"`
		Type  string `json:"type"`
		Index int    `json:"index"`
	}
)
