package dataset

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-io/conductor/internal/schema"
)

func minimalSchema(t *testing.T) *schema.Node {
	t.Helper()

	node := &schema.Node{}
	require.NoError(t, json.Unmarshal([]byte(`{
		"type": "object",
		"properties": {"eid": {"type": "string"}}
	}`), node))

	return node
}

func TestValidateNew(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	valid := func(t *testing.T) *Dataset {
		return &Dataset{ID: "telemetry", Type: TypeEvent, DataSchema: minimalSchema(t)}
	}

	t.Run("accepts a minimal dataset", func(t *testing.T) {
		assert.NoError(t, ValidateNew(valid(t)))
	})

	t.Run("rejects missing id", func(t *testing.T) {
		d := valid(t)
		d.ID = "  "

		err := ValidateNew(d)
		require.Error(t, err)
		assert.Equal(t, KindInvalidInput, KindOf(err))
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		d := valid(t)
		d.Type = "stream"

		assert.Error(t, ValidateNew(d))
	})

	t.Run("rejects missing schema", func(t *testing.T) {
		d := valid(t)
		d.DataSchema = nil

		assert.Error(t, ValidateNew(d))
	})

	t.Run("rejects duplicate connector ids", func(t *testing.T) {
		d := valid(t)
		d.ConnectorsConfig = []ConnectorConfig{
			{ConnectorID: "kafka-1"},
			{ConnectorID: "kafka-1"},
		}

		err := ValidateNew(d)
		require.Error(t, err)
		assert.Equal(t, CodeDuplicateConnector, CodeOf(err))
	})

	t.Run("rejects duplicate tags", func(t *testing.T) {
		d := valid(t)
		d.Tags = []string{"pii", "pii"}

		assert.Error(t, ValidateNew(d))
	})
}

func TestValidateDenormConfig(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("rejects self reference", func(t *testing.T) {
		d := &Dataset{
			ID:   "user-master",
			Type: TypeMaster,
			DenormConfig: &DenormConfig{DenormFields: []DenormField{
				{DenormKey: "id", DenormOutField: "self", DatasetID: "user-master"},
			}},
		}

		err := ValidateDenormConfig(d)
		require.Error(t, err)
		assert.Equal(t, KindConflict, KindOf(err))
		assert.Equal(t, CodeSelfReferencingMaster, CodeOf(err))
	})

	t.Run("rejects duplicate out fields", func(t *testing.T) {
		d := &Dataset{
			ID: "telemetry",
			DenormConfig: &DenormConfig{DenormFields: []DenormField{
				{DenormKey: "actor.id", DenormOutField: "user_info", DatasetID: "user-master"},
				{DenormKey: "owner.id", DenormOutField: "user_info", DatasetID: "user-master"},
			}},
		}

		err := ValidateDenormConfig(d)
		require.Error(t, err)
		assert.Equal(t, CodeDuplicateDenormKey, CodeOf(err))
	})

	t.Run("accepts empty config", func(t *testing.T) {
		assert.NoError(t, ValidateDenormConfig(&Dataset{ID: "telemetry"}))
	})
}

func TestValidateReady(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ready := func(t *testing.T) *Dataset {
		return &Dataset{
			ID:           "telemetry",
			Type:         TypeEvent,
			DataSchema:   minimalSchema(t),
			KeysConfig:   &KeysConfig{TimestampKey: "ets"},
			RouterConfig: &RouterConfig{Topic: "telemetry"},
		}
	}

	t.Run("accepts a complete draft", func(t *testing.T) {
		assert.NoError(t, ValidateReady(ready(t), nil))
	})

	t.Run("rejects missing timestamp key", func(t *testing.T) {
		d := ready(t)
		d.KeysConfig = nil

		err := ValidateReady(d, nil)
		require.Error(t, err)
		assert.Equal(t, CodeConfigsInvalid, CodeOf(err))
	})

	t.Run("rejects missing router topic", func(t *testing.T) {
		d := ready(t)
		d.RouterConfig = &RouterConfig{}

		assert.Error(t, ValidateReady(d, nil))
	})

	t.Run("rejects master without data key", func(t *testing.T) {
		d := ready(t)
		d.Type = TypeMaster

		err := ValidateReady(d, nil)
		require.Error(t, err)
		assert.Equal(t, CodeConfigsInvalid, CodeOf(err))

		d.KeysConfig.DataKey = "id"
		assert.NoError(t, ValidateReady(d, nil))
	})

	t.Run("rejects duplicate transformation field keys", func(t *testing.T) {
		transformations := []TransformationConfig{
			{FieldKey: "eid"},
			{FieldKey: "eid"},
		}

		err := ValidateReady(ready(t), transformations)
		require.Error(t, err)
		assert.Equal(t, CodeDuplicateFieldKey, CodeOf(err))
	})
}

func TestApplyDefaults(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("fills sparse event dataset", func(t *testing.T) {
		d := &Dataset{ID: "telemetry", Type: TypeEvent}
		d.ApplyDefaults()

		require.NotNil(t, d.ValidationConfig)
		assert.True(t, d.ValidationConfig.Validate)
		assert.Equal(t, "Strict", d.ValidationConfig.Mode)
		require.NotNil(t, d.ExtractionConfig)
		assert.False(t, d.ExtractionConfig.IsBatchEvent)
		require.NotNil(t, d.DedupConfig)
		assert.Equal(t, DefaultTimestampKey, d.KeysConfig.TimestampKey)
		assert.Nil(t, d.CacheConfig)
	})

	t.Run("leaves router config unset", func(t *testing.T) {
		// A missing router topic must surface in the ready validation, not
		// be papered over at create time.
		d := &Dataset{ID: "telemetry", Type: TypeEvent}
		d.ApplyDefaults()

		assert.Nil(t, d.RouterConfig)
		require.Error(t, ValidateReady(d, nil))
	})

	t.Run("seeds cache config for master datasets", func(t *testing.T) {
		d := &Dataset{ID: "user-master", Type: TypeMaster}
		d.ApplyDefaults()

		require.NotNil(t, d.CacheConfig)
		assert.Zero(t, d.CacheConfig.PartitionIndex)
	})

	t.Run("never overrides explicit configs", func(t *testing.T) {
		d := &Dataset{
			ID:           "telemetry",
			Type:         TypeEvent,
			KeysConfig:   &KeysConfig{TimestampKey: "ets"},
			RouterConfig: &RouterConfig{Topic: "custom-topic"},
		}
		d.ApplyDefaults()

		assert.Equal(t, "ets", d.KeysConfig.TimestampKey)
		assert.Equal(t, "custom-topic", d.RouterConfig.Topic)
	})
}
