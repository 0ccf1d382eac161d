package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile_UpsertAndRemove(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	current := []DenormField{
		{DenormKey: "actor.id", DenormOutField: "user_info", DatasetID: "user-master"},
		{DenormKey: "device.id", DenormOutField: "device_info", DatasetID: "device-master"},
	}

	changes := []Change[DenormField]{
		{Action: ChangeUpsert, Value: DenormField{DenormKey: "actor.id", DenormOutField: "user_info", DatasetID: "user-master-v2"}},
		{Action: ChangeRemove, Value: DenormField{DenormOutField: "device_info"}},
		{Action: ChangeUpsert, Value: DenormField{DenormKey: "content.id", DenormOutField: "content_info", DatasetID: "content-master"}},
	}

	merged := Reconcile(current, changes, DenormFieldKey)

	require.Len(t, merged, 2)
	assert.Equal(t, "user_info", merged[0].DenormOutField)
	assert.Equal(t, "user-master-v2", merged[0].DatasetID)
	assert.Equal(t, "content_info", merged[1].DenormOutField)
}

func TestReconcile_LaterUpsertOfSameKeyWins(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	changes := []Change[string]{
		{Action: ChangeUpsert, Value: "a"},
		{Action: ChangeUpsert, Value: "b"},
		{Action: ChangeUpsert, Value: "a"},
	}

	merged := Reconcile(nil, changes, TagKey)

	assert.Equal(t, []string{"a", "b"}, merged)
}

func TestReconcile_RemoveUnknownKeyIsNoop(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	current := []string{"pii", "telemetry"}

	changes := []Change[string]{
		{Action: ChangeRemove, Value: "absent"},
		{Action: ChangeRemove, Value: "absent"},
	}

	assert.Equal(t, current, Reconcile(current, changes, TagKey))
}

func TestReconcile_Idempotent(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	current := []TransformationConfig{
		{FieldKey: "edata.score", TransformSpec: TransformSpec{Type: "jsonata", Datatype: "number"}},
	}

	changes := []Change[TransformationConfig]{
		{Action: ChangeUpsert, Value: TransformationConfig{FieldKey: "eid", TransformSpec: TransformSpec{Type: "mask", Datatype: "string"}}},
		{Action: ChangeRemove, Value: TransformationConfig{FieldKey: "edata.score"}},
	}

	once := Reconcile(current, changes, TransformationKey)
	twice := Reconcile(once, changes, TransformationKey)

	assert.Equal(t, once, twice)
	assert.Equal(t, once, Reconcile(once, nil, TransformationKey))
}

func TestReconcile_EmptyCurrent(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	changes := []Change[ConnectorConfig]{
		{Action: ChangeUpsert, Value: ConnectorConfig{ConnectorID: "kafka-1"}},
	}

	merged := Reconcile(nil, changes, ConnectorKey)

	require.Len(t, merged, 1)
	assert.Equal(t, "kafka-1", merged[0].ConnectorID)
}

func TestDuplicateUpsertKeys(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	changes := []Change[DenormField]{
		{Action: ChangeUpsert, Value: DenormField{DenormOutField: "user_info"}},
		{Action: ChangeUpsert, Value: DenormField{DenormOutField: "user_info"}},
		{Action: ChangeRemove, Value: DenormField{DenormOutField: "user_info"}},
		{Action: ChangeUpsert, Value: DenormField{DenormOutField: "device_info"}},
		{Action: ChangeUpsert, Value: DenormField{DenormOutField: "device_info"}},
		{Action: ChangeUpsert, Value: DenormField{DenormOutField: "device_info"}},
	}

	assert.Equal(t, []string{"user_info", "device_info"}, DuplicateUpsertKeys(changes, DenormFieldKey))
	assert.Nil(t, DuplicateUpsertKeys(nil, DenormFieldKey))
}
