package schema

import "strings"

// Field is one flattened leaf of a schema document. Name uses dot notation
// (a.b.c); Expr is the path expression the ingestion engine uses to extract
// the field at read time ($.['a'].['b'].['c'], with [*] at array boundaries).
type Field struct {
	Name          string `json:"name"`
	Expr          string `json:"expr"`
	DataType      string `json:"data_type"`
	ArrivalFormat string `json:"arrival_format,omitempty"`
	IsArray       bool   `json:"is_array,omitempty"`
}

// Flatten walks a schema document depth-first in property-insertion order and
// returns one Field per leaf. The output order is derived solely from the
// traversal order, so repeated runs on an unchanged document produce the same
// list; downstream column-index assignment depends on that.
//
// Nodes flagged is_deleted are excluded together with all their descendants.
func Flatten(root *Node) []Field {
	if root == nil {
		return nil
	}

	var fields []Field

	flattenInto(&fields, root.Properties, "", "$", false)

	return fields
}

func flattenInto(fields *[]Field, props Properties, prevName, prevExpr string, inArray bool) {
	for _, prop := range props {
		node := prop.Node
		if node == nil || node.IsDeleted {
			continue
		}

		name := joinName(prevName, prop.Key)
		expr := prevExpr + ".['" + prop.Key + "']"

		switch {
		case node.Type == "object" && len(node.Properties) > 0:
			flattenInto(fields, node.Properties, name, expr, inArray)

		case node.Type == "array":
			if node.Items != nil && node.Items.Type == "object" && len(node.Items.Properties) > 0 {
				flattenInto(fields, node.Items.Properties, name, expr+"[*]", true)

				continue
			}

			*fields = append(*fields, Field{
				Name:          name,
				Expr:          expr + "[*]",
				DataType:      arrayItemType(node),
				ArrivalFormat: node.ArrivalFormat,
				IsArray:       true,
			})

		default:
			// Primitive leaves, and objects without declared properties which
			// pass through as opaque json.
			*fields = append(*fields, Field{
				Name:          name,
				Expr:          expr,
				DataType:      declaredType(node),
				ArrivalFormat: node.ArrivalFormat,
				IsArray:       inArray,
			})
		}
	}
}

// FindByName returns the field with the given dot-notation name, if present.
func FindByName(fields []Field, name string) (Field, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}

	return Field{}, false
}

// PrefixFields returns a copy of fields namespaced under out: names gain the
// "out." prefix and path expressions are re-rooted at $.out. Used to graft a
// denormalized master dataset's fields into the referencing dataset.
func PrefixFields(fields []Field, out string) []Field {
	prefixed := make([]Field, len(fields))

	for i, f := range fields {
		f.Name = out + "." + f.Name
		f.Expr = "$.['" + out + "']" + strings.TrimPrefix(f.Expr, "$")
		prefixed[i] = f
	}

	return prefixed
}

func joinName(prev, key string) string {
	if prev == "" {
		return key
	}

	return prev + "." + key
}

func declaredType(node *Node) string {
	if node.DataType != "" {
		return node.DataType
	}

	return node.Type
}

func arrayItemType(node *Node) string {
	if node.Items != nil && node.Items.Type != "" {
		return node.Items.Type
	}

	if node.DataType != "" && node.DataType != "array" {
		return node.DataType
	}

	return "string"
}
