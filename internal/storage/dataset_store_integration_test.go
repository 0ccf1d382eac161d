package storage

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"github.com/conductor-io/conductor/internal/config"
	"github.com/conductor-io/conductor/internal/dataset"
	"github.com/conductor-io/conductor/internal/schema"
	"github.com/conductor-io/conductor/internal/service"
)

const orderedSchema = `{
	"type": "object",
	"properties": {
		"zulu": {"type": "string"},
		"alpha": {"type": "integer"},
		"mike": {
			"type": "object",
			"properties": {
				"yankee": {"type": "string"},
				"bravo": {"type": "string"}
			}
		}
	}
}`

func setupStore(t *testing.T) (*DatasetStore, context.Context) {
	t.Helper()

	ctx := context.Background()
	testDB := config.SetupTestDatabase(ctx, t)

	t.Cleanup(func() {
		_ = testDB.Connection.Close()
		_ = testcontainers.TerminateContainer(testDB.Container)
	})

	conn := &Connection{DB: testDB.Connection}

	store, err := NewDatasetStore(conn)
	require.NoError(t, err)

	return store, ctx
}

func testDataset(t *testing.T, id string) *dataset.Dataset {
	t.Helper()

	node := &schema.Node{}
	require.NoError(t, json.Unmarshal([]byte(orderedSchema), node))

	return &dataset.Dataset{
		ID:         id,
		Name:       id,
		Type:       dataset.TypeEvent,
		Status:     dataset.StatusDraft,
		DataSchema: node,
		ValidationConfig: &dataset.ValidationConfig{
			Validate: true,
			Mode:     "Strict",
		},
		RouterConfig: &dataset.RouterConfig{Topic: id + ".ingest"},
		KeysConfig: &dataset.KeysConfig{
			PartitionKey: "alpha",
			TimestampKey: "zulu",
		},
		Tags:       []string{"pii", "telemetry"},
		VersionKey: dataset.NewVersionKey(),
	}
}

func TestDatasetStore_CreateAndGetRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, ctx := setupStore(t)

	d := testDataset(t, "orders")
	require.NoError(t, store.CreateDraft(ctx, d))

	got, err := store.GetDraft(ctx, "orders")
	require.NoError(t, err)

	assert.Equal(t, d.ID, got.ID)
	assert.Equal(t, d.Status, got.Status)
	assert.Equal(t, d.VersionKey, got.VersionKey)
	assert.Equal(t, d.Tags, got.Tags)
	assert.Equal(t, "Strict", got.ValidationConfig.Mode)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestDatasetStore_SchemaPropertyOrderSurvivesStorage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, ctx := setupStore(t)

	d := testDataset(t, "orders")
	require.NoError(t, store.CreateDraft(ctx, d))

	got, err := store.GetDraft(ctx, "orders")
	require.NoError(t, err)

	// Column indices derive from document order, so the round-tripped schema
	// must flatten identically to the stored one.
	want := fieldNames(schema.Flatten(d.DataSchema))
	have := fieldNames(schema.Flatten(got.DataSchema))

	require.Equal(t, want, have)
	assert.Equal(t, []string{"zulu", "alpha", "mike.yankee", "mike.bravo"}, have)
}

func fieldNames(fields []schema.Field) []string {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Name)
	}

	return names
}

func TestDatasetStore_CreateDuplicateConflicts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, ctx := setupStore(t)

	require.NoError(t, store.CreateDraft(ctx, testDataset(t, "orders")))

	err := store.CreateDraft(ctx, testDataset(t, "orders"))
	require.Error(t, err)
	assert.Equal(t, dataset.KindConflict, dataset.KindOf(err))
	assert.Equal(t, dataset.CodeDatasetExists, dataset.CodeOf(err))
}

func TestDatasetStore_UpdateDraftCompareAndSwap(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, ctx := setupStore(t)

	d := testDataset(t, "orders")
	require.NoError(t, store.CreateDraft(ctx, d))

	original := d.VersionKey

	d.Name = "Orders v2"
	require.NoError(t, store.UpdateDraft(ctx, d, original))
	assert.NotEqual(t, original, d.VersionKey, "version key rotates on update")

	// Losing writer with the stale key.
	stale := testDataset(t, "orders")
	stale.Name = "Orders stale"
	err := store.UpdateDraft(ctx, stale, original)
	require.Error(t, err)
	assert.Equal(t, dataset.CodeDatasetOutdated, dataset.CodeOf(err))

	got, err := store.GetDraft(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, "Orders v2", got.Name)
}

func TestDatasetStore_SetDraftStatusCompareAndSwap(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, ctx := setupStore(t)

	require.NoError(t, store.CreateDraft(ctx, testDataset(t, "orders")))

	require.NoError(t, store.SetDraftStatus(ctx, "orders", dataset.StatusDraft, dataset.StatusReadyToPublish))

	// A second transition from the old status loses.
	err := store.SetDraftStatus(ctx, "orders", dataset.StatusDraft, dataset.StatusReadyToPublish)
	require.Error(t, err)
	assert.Equal(t, dataset.CodeInvalidTransition, dataset.CodeOf(err))
}

func TestDatasetStore_PromoteDraftToLive(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, ctx := setupStore(t)

	d := testDataset(t, "orders")
	require.NoError(t, store.CreateDraft(ctx, d))

	require.NoError(t, store.ReplaceDraftTransformations(ctx, "orders", []dataset.TransformationConfig{
		{FieldKey: "alpha", TransformSpec: dataset.TransformSpec{Type: "mask", Datatype: "string"}},
	}))
	require.NoError(t, store.UpsertDraftDatasource(ctx, &dataset.Datasource{
		ID:            "orders_orders_events",
		DatasetID:     "orders",
		DatasourceRef: "orders_events",
		Type:          "druid",
		IngestionSpec: json.RawMessage(`{"type":"kafka"}`),
		Status:        dataset.StatusDraft,
	}))

	require.NoError(t, store.PromoteDraftToLive(ctx, "orders"))

	live, err := store.GetLive(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, 1, live.DataVersion)
	assert.False(t, live.PublishedAt.IsZero())

	ds, err := store.GetLiveDatasource(ctx, "orders")
	require.NoError(t, err)
	require.NotNil(t, ds)
	assert.Equal(t, dataset.StatusLive, ds.Status)

	// A second promote increments the live data version.
	require.NoError(t, store.PromoteDraftToLive(ctx, "orders"))

	live, err = store.GetLive(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, 2, live.DataVersion)
}

func TestDatasetStore_DeleteDraftCascade(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, ctx := setupStore(t)

	require.NoError(t, store.CreateDraft(ctx, testDataset(t, "orders")))
	require.NoError(t, store.ReplaceDraftTransformations(ctx, "orders", []dataset.TransformationConfig{
		{FieldKey: "alpha", TransformSpec: dataset.TransformSpec{Type: "mask", Datatype: "string"}},
	}))

	require.NoError(t, store.DeleteDraftCascade(ctx, "orders"))

	_, err := store.GetDraft(ctx, "orders")
	assert.Equal(t, dataset.KindNotFound, dataset.KindOf(err))

	tfs, err := store.ListDraftTransformations(ctx, "orders")
	require.NoError(t, err)
	assert.Empty(t, tfs)

	err = store.DeleteDraftCascade(ctx, "orders")
	assert.Equal(t, dataset.KindNotFound, dataset.KindOf(err))
}

func TestDatasetStore_SetRetiredRequiresLive(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, ctx := setupStore(t)

	require.NoError(t, store.CreateDraft(ctx, testDataset(t, "orders")))
	require.NoError(t, store.PromoteDraftToLive(ctx, "orders"))

	require.NoError(t, store.SetRetired(ctx, "orders"))

	live, err := store.GetLive(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, dataset.StatusRetired, live.Status)

	// Retiring again conflicts: the record is no longer Live.
	err = store.SetRetired(ctx, "orders")
	require.Error(t, err)
	assert.Equal(t, dataset.KindConflict, dataset.KindOf(err))
}

func TestDatasetStore_NextCachePartitionIsMonotonic(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, ctx := setupStore(t)

	first, err := store.NextCachePartition(ctx)
	require.NoError(t, err)

	second, err := store.NextCachePartition(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestDatasetStore_DenormReferencers(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, ctx := setupStore(t)

	referencer := testDataset(t, "orders")
	referencer.DenormConfig = &dataset.DenormConfig{DenormFields: []dataset.DenormField{
		{DenormKey: "mike.yankee", DenormOutField: "customer_info", DatasetID: "customer-master"},
	}}
	require.NoError(t, store.CreateDraft(ctx, referencer))

	bystander := testDataset(t, "payments")
	require.NoError(t, store.CreateDraft(ctx, bystander))

	refs, err := store.DenormReferencers(ctx, "customer-master")
	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, refs)

	refs, err = store.DenormReferencers(ctx, "unused-master")
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestDatasetStore_InTxRollsBackOnError(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, ctx := setupStore(t)

	require.NoError(t, store.CreateDraft(ctx, testDataset(t, "orders")))

	err := store.InTx(ctx, func(tx service.Store) error {
		if err := tx.SetDraftStatus(ctx, "orders", dataset.StatusDraft, dataset.StatusReadyToPublish); err != nil {
			return err
		}

		return dataset.Internal(nil, "forced failure")
	})
	require.Error(t, err)

	got, getErr := store.GetDraft(ctx, "orders")
	require.NoError(t, getErr)
	assert.Equal(t, dataset.StatusDraft, got.Status, "status flip must roll back")
}

func TestChildStore_ReplaceAndListTransformations(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, ctx := setupStore(t)

	require.NoError(t, store.CreateDraft(ctx, testDataset(t, "orders")))

	tfs := []dataset.TransformationConfig{
		{FieldKey: "mike.yankee", TransformSpec: dataset.TransformSpec{Type: "mask", Datatype: "string"}},
		{FieldKey: "alpha", TransformSpec: dataset.TransformSpec{Type: "jsonata", Expr: "$.alpha * 2", Datatype: "integer"}},
	}
	require.NoError(t, store.ReplaceDraftTransformations(ctx, "orders", tfs))

	got, err := store.ListDraftTransformations(ctx, "orders")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "alpha", got[0].FieldKey, "listing is ordered by field key")
	assert.Equal(t, "mike.yankee", got[1].FieldKey)

	// Replace drops rows not in the new set.
	require.NoError(t, store.ReplaceDraftTransformations(ctx, "orders", tfs[:1]))

	got, err = store.ListDraftTransformations(ctx, "orders")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "mike.yankee", got[0].FieldKey)
}

func TestChildStore_DatasourceUpsert(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store, ctx := setupStore(t)

	require.NoError(t, store.CreateDraft(ctx, testDataset(t, "orders")))

	ds, err := store.GetDraftDatasource(ctx, "orders")
	require.NoError(t, err)
	assert.Nil(t, ds, "no datasource before first compile")

	require.NoError(t, store.UpsertDraftDatasource(ctx, &dataset.Datasource{
		ID:            "orders_orders_events",
		DatasetID:     "orders",
		DatasourceRef: "orders_events",
		Type:          "druid",
		IngestionSpec: json.RawMessage(`{"type":"kafka"}`),
		TableSpec:     json.RawMessage(`{"dataset":"orders"}`),
		Status:        dataset.StatusDraft,
	}))

	// Upsert replaces the existing row for the dataset.
	require.NoError(t, store.UpsertDraftDatasource(ctx, &dataset.Datasource{
		ID:            "orders_orders_events",
		DatasetID:     "orders",
		DatasourceRef: "orders_events",
		Type:          "druid",
		IngestionSpec: json.RawMessage(`{"type":"kafka","recompiled":true}`),
		Status:        dataset.StatusDraft,
	}))

	ds, err = store.GetDraftDatasource(ctx, "orders")
	require.NoError(t, err)
	require.NotNil(t, ds)
	assert.Contains(t, string(ds.IngestionSpec), "recompiled")
}
