package tablespec

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/conductor-io/conductor/internal/dataset"
	"github.com/conductor-io/conductor/internal/schema"
)

// BuildIngestionSpec compiles the streaming ingestion spec for a dataset.
// The compiled dimension list puts the partition key first, omits the
// timestamp column (carried by timestampSpec), and maps declared field types
// onto engine column types.
func (c *Compiler) BuildIngestionSpec(
	ctx context.Context,
	d *dataset.Dataset,
	datasourceRef string,
	transformations []dataset.TransformationConfig,
) (*IngestionSpec, error) {
	fields, err := c.AllFields(ctx, d, transformations)
	if err != nil {
		return nil, err
	}

	timestampKey := d.TimestampKey()
	if timestampKey == "" {
		timestampKey = c.defaults.ArrivalTimeField
	}

	if _, ok := schema.FindByName(fields, timestampKey); !ok {
		return nil, dataset.InvalidInput(dataset.CodeTimestampNotFound,
			"dataset %q: timestamp field %q not found in schema", d.ID, timestampKey)
	}

	spec := &IngestionSpec{
		Type: "kafka",
		Spec: SpecBody{
			DataSchema: DataSchema{
				DataSource: datasourceRef,
				DimensionsSpec: DimensionsSpec{
					Dimensions: c.dimensions(d, fields, timestampKey),
				},
				TimestampSpec: TimestampSpec{Column: timestampKey, Format: "auto"},
				MetricsSpec:   []Metric{},
				GranularitySpec: GranularitySpec{
					Type:               "uniform",
					SegmentGranularity: c.defaults.SegmentGranularity,
					QueryGranularity:   c.defaults.QueryGranularity,
					Rollup:             false,
				},
			},
			TuningConfig: TuningConfig{
				Type:               "kafka",
				MaxBytesInMemory:   c.defaults.MaxBytesInMemory,
				MaxRowsPerSegment:  c.defaults.MaxRowsPerSegment,
				LogParseExceptions: true,
			},
			IOConfig: IOConfig{
				Type:  "kafka",
				Topic: topicOf(d),
				ConsumerProperties: map[string]string{
					"bootstrap.servers": c.defaults.BootstrapServers,
				},
				TaskCount:         c.defaults.TaskCount,
				Replicas:          c.defaults.Replicas,
				TaskDuration:      c.defaults.TaskDuration,
				UseEarliestOffset: c.defaults.UseEarliestOffset,
				CompletionTimeout: c.defaults.CompletionTimeout,
				InputFormat: InputFormat{
					Type: "json",
					FlattenSpec: FlattenSpec{
						UseFieldDiscovery: true,
						Fields:            flattenRules(fields),
					},
				},
				AppendToExisting: false,
			},
		},
	}

	return spec, nil
}

// MarshalIngestionSpec compiles and serializes the ingestion spec for
// persistence on the datasource record.
func (c *Compiler) MarshalIngestionSpec(
	ctx context.Context,
	d *dataset.Dataset,
	datasourceRef string,
	transformations []dataset.TransformationConfig,
) (json.RawMessage, error) {
	spec, err := c.BuildIngestionSpec(ctx, d, datasourceRef, transformations)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("marshaling ingestion spec for dataset %q: %w", d.ID, err)
	}

	return raw, nil
}

// dimensions orders and types the dimension list: partition key first, the
// timestamp column excluded, everything else in field order.
func (c *Compiler) dimensions(d *dataset.Dataset, fields []schema.Field, timestampKey string) []Dimension {
	partitionKey := ""
	if d.KeysConfig != nil {
		partitionKey = d.KeysConfig.PartitionKey
	}

	dims := make([]Dimension, 0, len(fields))

	if partitionKey != "" && partitionKey != timestampKey {
		if f, ok := schema.FindByName(fields, partitionKey); ok {
			dims = append(dims, Dimension{Type: dimensionType(f), Name: f.Name})
		}
	}

	for _, f := range fields {
		if f.Name == timestampKey || f.Name == partitionKey {
			continue
		}

		dims = append(dims, Dimension{Type: dimensionType(f), Name: f.Name})
	}

	return dims
}

// dimensionType maps a declared field type onto an engine column type.
// Unrecognized declared types pass through unchanged.
func dimensionType(f schema.Field) string {
	if f.IsArray {
		return "json"
	}

	switch f.DataType {
	case "number":
		return "double"
	case "integer":
		return "long"
	case "object", "array", "json":
		return "json"
	case "boolean":
		return "string"
	default:
		return f.DataType
	}
}

func flattenRules(fields []schema.Field) []FlattenRule {
	rules := make([]FlattenRule, 0, len(fields))

	for _, f := range fields {
		rules = append(rules, FlattenRule{Type: "path", Expr: f.Expr, Name: f.Name})
	}

	return rules
}

func topicOf(d *dataset.Dataset) string {
	if d.RouterConfig != nil && d.RouterConfig.Topic != "" {
		return d.RouterConfig.Topic
	}

	return d.ID
}
