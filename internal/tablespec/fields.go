package tablespec

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/conductor-io/conductor/internal/dataset"
	"github.com/conductor-io/conductor/internal/schema"
)

// MasterResolver looks up the live record of a master dataset referenced by a
// denorm field. The compiler uses it to graft the master's flattened fields
// into the referencing dataset's field list.
type MasterResolver interface {
	LiveMaster(ctx context.Context, datasetID string) (*dataset.Dataset, error)
}

// Compiler turns a dataset definition into its compiled ingestion artifacts.
type Compiler struct {
	resolver MasterResolver
	defaults *Defaults
	logger   *slog.Logger
}

// NewCompiler creates a Compiler. The resolver may be nil for datasets that
// never carry denorm fields (compilation fails if one is encountered).
func NewCompiler(resolver MasterResolver, defaults *Defaults, logger *slog.Logger) *Compiler {
	if defaults == nil {
		defaults = NewDefaults()
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Compiler{resolver: resolver, defaults: defaults, logger: logger}
}

// AllFields produces the complete, ordered field list of a dataset:
//
//  1. the dataset's own schema, flattened in document order
//  2. each denorm master's flattened schema, namespaced under the denorm
//     output field, in denorm-config order
//  3. transformation outputs, replacing same-named fields in place or
//     appended when the field is new
//  4. the arrival-time envelope field, always last
//
// The order is deterministic for an unchanged dataset, which downstream
// column-index assignment relies on.
func (c *Compiler) AllFields(
	ctx context.Context,
	d *dataset.Dataset,
	transformations []dataset.TransformationConfig,
) ([]schema.Field, error) {
	fields := schema.Flatten(d.DataSchema)

	for _, denorm := range d.DenormFields() {
		if c.resolver == nil {
			return nil, dataset.Internal(nil,
				"dataset %q: no master resolver configured for denorm field %q",
				d.ID, denorm.DenormOutField)
		}

		master, err := c.resolver.LiveMaster(ctx, denorm.DatasetID)
		if err != nil {
			return nil, fmt.Errorf("resolving denorm master %q: %w", denorm.DatasetID, err)
		}

		fields = append(fields, schema.PrefixFields(schema.Flatten(master.DataSchema), denorm.DenormOutField)...)
	}

	fields = applyTransformations(fields, transformations)

	fields = append(fields, schema.Field{
		Name:          c.defaults.ArrivalTimeField,
		Expr:          pathExpr(c.defaults.ArrivalTimeField),
		DataType:      "date",
		ArrivalFormat: "text",
	})

	return fields, nil
}

// applyTransformations overlays transformation outputs on the field list. A
// transformation targeting an existing field replaces it in place, preserving
// its position; one targeting a new field is appended.
func applyTransformations(fields []schema.Field, transformations []dataset.TransformationConfig) []schema.Field {
	for _, tf := range transformations {
		produced := schema.Field{
			Name:          tf.FieldKey,
			Expr:          pathExpr(tf.FieldKey),
			DataType:      tf.TransformSpec.Datatype,
			ArrivalFormat: "text",
		}

		if produced.DataType == "" {
			produced.DataType = "string"
		}

		replaced := false

		for i := range fields {
			if fields[i].Name == tf.FieldKey {
				fields[i] = produced
				replaced = true

				break
			}
		}

		if !replaced {
			fields = append(fields, produced)
		}
	}

	return fields
}

// pathExpr builds the bracketed path expression for a dot-notation name:
// "a.b.c" becomes "$.['a'].['b'].['c']".
func pathExpr(name string) string {
	var b strings.Builder

	b.WriteString("$")

	for _, part := range strings.Split(name, ".") {
		b.WriteString(".['")
		b.WriteString(part)
		b.WriteString("']")
	}

	return b.String()
}
