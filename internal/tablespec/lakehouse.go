package tablespec

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/conductor-io/conductor/internal/dataset"
	"github.com/conductor-io/conductor/internal/schema"
)

// stripPathChars removes the bracketing characters of a path expression,
// leaving the plain dotted path the lakehouse writer expects.
var stripPathChars = regexp.MustCompile(`[\[\]'*]`)

// BuildTableSpec compiles a fresh lakehouse table spec for a dataset. Column
// indices are assigned in flattened-field order starting at 1; the primary
// key, partition and timestamp columns are excluded from the generic column
// list and carried as named schema properties instead.
//
// Callers recompiling against an existing spec must pass the result through
// EvolveTableSpec so historical column indices survive.
func (c *Compiler) BuildTableSpec(
	ctx context.Context,
	d *dataset.Dataset,
	datasourceRef string,
	transformations []dataset.TransformationConfig,
) (*TableSpec, error) {
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

	primaryKey := ""
	partitionKey := timestampKey

	if d.KeysConfig != nil {
		primaryKey = d.KeysConfig.DataKey
		if d.KeysConfig.PartitionKey != "" {
			partitionKey = d.KeysConfig.PartitionKey
		}
	}

	spec := &TableSpec{
		Dataset: d.ID,
		Schema: TableSchema{
			Table:           strings.ReplaceAll(datasourceRef, "-", "_"),
			PartitionColumn: columnName(partitionKey),
			TimestampColumn: columnName(timestampKey),
			PrimaryKey:      columnName(primaryKey),
			ColumnSpec:      columnSpec(fields, primaryKey, partitionKey, timestampKey),
		},
		InputFormat: InputFormat{
			Type: "json",
			FlattenSpec: FlattenSpec{
				Fields: tableFlattenRules(fields),
			},
		},
	}

	return spec, nil
}

// EvolveTableSpec merges a freshly compiled spec with the existing persisted
// one. Every existing column keeps its name and index; columns new in fresh
// are appended with indices continuing from max(existing index) + 1; columns
// absent from fresh are retained, never renumbered or dropped.
func EvolveTableSpec(existing, fresh *TableSpec) *TableSpec {
	if existing == nil || len(existing.Schema.ColumnSpec) == 0 {
		return fresh
	}

	known := make(map[string]struct{}, len(existing.Schema.ColumnSpec))
	next := 0

	for _, col := range existing.Schema.ColumnSpec {
		known[col.Name] = struct{}{}

		if col.Index > next {
			next = col.Index
		}
	}

	merged := make([]Column, len(existing.Schema.ColumnSpec))
	copy(merged, existing.Schema.ColumnSpec)

	for _, col := range fresh.Schema.ColumnSpec {
		if _, ok := known[col.Name]; ok {
			continue
		}

		next++
		merged = append(merged, Column{Name: col.Name, Type: col.Type, Index: next})
	}

	out := *fresh
	out.Schema.ColumnSpec = merged

	return &out
}

// MarshalTableSpec compiles the table spec, evolves it against the persisted
// one when present, and serializes it for the datasource record.
func (c *Compiler) MarshalTableSpec(
	ctx context.Context,
	d *dataset.Dataset,
	datasourceRef string,
	transformations []dataset.TransformationConfig,
	existingRaw json.RawMessage,
) (json.RawMessage, error) {
	fresh, err := c.BuildTableSpec(ctx, d, datasourceRef, transformations)
	if err != nil {
		return nil, err
	}

	if len(existingRaw) > 0 {
		var existing TableSpec
		if err := json.Unmarshal(existingRaw, &existing); err != nil {
			return nil, fmt.Errorf("parsing persisted table spec for dataset %q: %w", d.ID, err)
		}

		fresh = EvolveTableSpec(&existing, fresh)
	}

	raw, err := json.Marshal(fresh)
	if err != nil {
		return nil, fmt.Errorf("marshaling table spec for dataset %q: %w", d.ID, err)
	}

	return raw, nil
}

func columnSpec(fields []schema.Field, primaryKey, partitionKey, timestampKey string) []Column {
	cols := make([]Column, 0, len(fields))
	index := 1

	for _, f := range fields {
		if f.Name == primaryKey || f.Name == partitionKey || f.Name == timestampKey {
			continue
		}

		cols = append(cols, Column{Name: f.Name, Type: columnType(f), Index: index})
		index++
	}

	return cols
}

// columnType maps a field's declared type and arrival format onto a physical
// lakehouse column type.
func columnType(f schema.Field) string {
	if f.DataType == "array" || f.IsArray {
		switch f.DataType {
		case "string", "array":
			return "array<string>"
		case "number":
			return "array<double>"
		case "integer":
			return "array<int>"
		case "boolean":
			return "array<boolean>"
		default:
			return "array<object>"
		}
	}

	switch f.DataType {
	case "number":
		return "double"
	case "integer":
		return "int"
	case "epoch":
		return "epoch"
	case "bigdecimal":
		return "bigdecimal"
	case "float":
		return "float"
	case "long":
		return "long"
	case "boolean":
		return "boolean"
	case "object", "json":
		return "string"
	default:
		return "string"
	}
}

func columnName(key string) string {
	return strings.ReplaceAll(key, ".", "_")
}

func tableFlattenRules(fields []schema.Field) []FlattenRule {
	rules := make([]FlattenRule, 0, len(fields))

	for _, f := range fields {
		rules = append(rules, FlattenRule{
			Type: "path",
			Expr: stripPathChars.ReplaceAllString(f.Expr, ""),
			Name: f.Name,
		})
	}

	return rules
}
