package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const telemetrySchema = `{
	"type": "object",
	"properties": {
		"eid": {"type": "string"},
		"ets": {"type": "integer", "arrival_format": "number", "data_type": "epoch"},
		"actor": {
			"type": "object",
			"properties": {
				"id": {"type": "string"},
				"type": {"type": "string"}
			}
		},
		"edata": {
			"type": "object",
			"properties": {
				"items": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"id": {"type": "string"},
							"qty": {"type": "integer"}
						}
					}
				},
				"scores": {
					"type": "array",
					"items": {"type": "number"}
				}
			}
		}
	}
}`

func mustParse(t *testing.T, doc string) *Node {
	t.Helper()

	node := &Node{}
	require.NoError(t, json.Unmarshal([]byte(doc), node))

	return node
}

func TestFlatten_NestedDocument(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	fields := Flatten(mustParse(t, telemetrySchema))

	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Name)
	}

	// Depth-first, in document order.
	assert.Equal(t, []string{
		"eid",
		"ets",
		"actor.id",
		"actor.type",
		"edata.items.id",
		"edata.items.qty",
		"edata.scores",
	}, names)

	ets, ok := FindByName(fields, "ets")
	require.True(t, ok)
	assert.Equal(t, "$.['ets']", ets.Expr)
	assert.Equal(t, "epoch", ets.DataType)
	assert.Equal(t, "number", ets.ArrivalFormat)

	itemID, ok := FindByName(fields, "edata.items.id")
	require.True(t, ok)
	assert.Equal(t, "$.['edata'].['items'][*].['id']", itemID.Expr)
	assert.True(t, itemID.IsArray)

	scores, ok := FindByName(fields, "edata.scores")
	require.True(t, ok)
	assert.Equal(t, "$.['edata'].['scores'][*]", scores.Expr)
	assert.Equal(t, "number", scores.DataType)
	assert.True(t, scores.IsArray)
}

func TestFlatten_Deterministic(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	first := Flatten(mustParse(t, telemetrySchema))

	// Same document parsed again must produce the identical field list.
	for range 10 {
		assert.Equal(t, first, Flatten(mustParse(t, telemetrySchema)))
	}
}

func TestFlatten_SkipsDeletedSubtrees(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	doc := `{
		"type": "object",
		"properties": {
			"keep": {"type": "string"},
			"drop": {"type": "string", "is_deleted": true},
			"nested": {
				"type": "object",
				"is_deleted": true,
				"properties": {
					"inner": {"type": "string"}
				}
			}
		}
	}`

	fields := Flatten(mustParse(t, doc))

	require.Len(t, fields, 1)
	assert.Equal(t, "keep", fields[0].Name)
}

func TestFlatten_NilRoot(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.Nil(t, Flatten(nil))
}

func TestPrefixFields(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	fields := []Field{
		{Name: "id", Expr: "$.['id']", DataType: "string"},
		{Name: "profile.age", Expr: "$.['profile'].['age']", DataType: "integer"},
	}

	prefixed := PrefixFields(fields, "user_info")

	assert.Equal(t, "user_info.id", prefixed[0].Name)
	assert.Equal(t, "$.['user_info'].['id']", prefixed[0].Expr)
	assert.Equal(t, "user_info.profile.age", prefixed[1].Name)
	assert.Equal(t, "$.['user_info'].['profile'].['age']", prefixed[1].Expr)

	// Originals are untouched.
	assert.Equal(t, "id", fields[0].Name)
}

func TestNode_RoundTripPreservesPropertyOrder(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	node := mustParse(t, telemetrySchema)

	encoded, err := json.Marshal(node)
	require.NoError(t, err)

	reparsed := &Node{}
	require.NoError(t, json.Unmarshal(encoded, reparsed))

	assert.Equal(t, Flatten(node), Flatten(reparsed))

	keys := make([]string, 0, len(reparsed.Properties))
	for _, prop := range reparsed.Properties {
		keys = append(keys, prop.Key)
	}

	assert.Equal(t, []string{"eid", "ets", "actor", "edata"}, keys)
}

func TestNode_UnmarshalIgnoresUnknownKeys(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	doc := `{
		"type": "object",
		"additionalProperties": false,
		"required": ["eid"],
		"properties": {
			"eid": {"type": "string"}
		}
	}`

	node := mustParse(t, doc)

	require.Len(t, node.Properties, 1)
	assert.Equal(t, "eid", node.Properties[0].Key)
}

func TestNode_UnmarshalRejectsNonObject(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	node := &Node{}
	err := json.Unmarshal([]byte(`["not", "an", "object"]`), node)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotAnObject)
}
