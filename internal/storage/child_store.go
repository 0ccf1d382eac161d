package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/conductor-io/conductor/internal/dataset"
)

// Child-record persistence: transformations, source configs and datasources
// are rows keyed by dataset_id, mutated only through replace-style writes
// driven by the merge engine and the transition commands.

// ListDraftTransformations implements service.Store.
func (s *DatasetStore) ListDraftTransformations(
	ctx context.Context,
	datasetID string,
) ([]dataset.TransformationConfig, error) {
	return s.listTransformations(ctx, "transformations_draft", datasetID)
}

// ListLiveTransformations implements service.Store.
func (s *DatasetStore) ListLiveTransformations(
	ctx context.Context,
	datasetID string,
) ([]dataset.TransformationConfig, error) {
	return s.listTransformations(ctx, "transformations", datasetID)
}

func (s *DatasetStore) listTransformations(
	ctx context.Context,
	table, datasetID string,
) ([]dataset.TransformationConfig, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT field_key, transform_spec, mode, status
		FROM `+table+` WHERE dataset_id = $1 ORDER BY field_key`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("listing transformations of dataset %s: %w", datasetID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []dataset.TransformationConfig

	for rows.Next() {
		var (
			tf   dataset.TransformationConfig
			spec []byte
			mode sql.NullString
		)

		if err := rows.Scan(&tf.FieldKey, &spec, &mode, &tf.Status); err != nil {
			return nil, fmt.Errorf("scanning transformation of dataset %s: %w", datasetID, err)
		}

		if len(spec) > 0 {
			if err := json.Unmarshal(spec, &tf.TransformSpec); err != nil {
				return nil, fmt.Errorf("decoding transformation %s of dataset %s: %w", tf.FieldKey, datasetID, err)
			}
		}

		tf.Mode = mode.String
		out = append(out, tf)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transformations of dataset %s: %w", datasetID, err)
	}

	return out, nil
}

// ReplaceDraftTransformations implements service.Store.
func (s *DatasetStore) ReplaceDraftTransformations(
	ctx context.Context,
	datasetID string,
	tfs []dataset.TransformationConfig,
) error {
	if _, err := s.q.ExecContext(ctx,
		`DELETE FROM transformations_draft WHERE dataset_id = $1`, datasetID); err != nil {
		return fmt.Errorf("clearing transformations of dataset %s: %w", datasetID, err)
	}

	for _, tf := range tfs {
		spec, err := json.Marshal(tf.TransformSpec)
		if err != nil {
			return fmt.Errorf("encoding transformation %s of dataset %s: %w", tf.FieldKey, datasetID, err)
		}

		status := tf.Status
		if status == "" {
			status = dataset.StatusDraft
		}

		if _, err := s.q.ExecContext(ctx, `
			INSERT INTO transformations_draft (dataset_id, field_key, transform_spec, mode, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())`,
			datasetID, tf.FieldKey, spec, tf.Mode, string(status)); err != nil {
			return fmt.Errorf("inserting transformation %s of dataset %s: %w", tf.FieldKey, datasetID, err)
		}
	}

	return nil
}

// ListDraftSourceConfigs implements service.Store.
func (s *DatasetStore) ListDraftSourceConfigs(
	ctx context.Context,
	datasetID string,
) ([]dataset.SourceConfig, error) {
	return s.listSourceConfigs(ctx, "source_configs_draft", datasetID)
}

// ListLiveSourceConfigs implements service.Store.
func (s *DatasetStore) ListLiveSourceConfigs(
	ctx context.Context,
	datasetID string,
) ([]dataset.SourceConfig, error) {
	return s.listSourceConfigs(ctx, "source_configs", datasetID)
}

func (s *DatasetStore) listSourceConfigs(
	ctx context.Context,
	table, datasetID string,
) ([]dataset.SourceConfig, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, connector_type, connector_config, status
		FROM `+table+` WHERE dataset_id = $1 ORDER BY id`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("listing source configs of dataset %s: %w", datasetID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []dataset.SourceConfig

	for rows.Next() {
		var (
			sc  dataset.SourceConfig
			cfg []byte
		)

		if err := rows.Scan(&sc.ID, &sc.ConnectorType, &cfg, &sc.Status); err != nil {
			return nil, fmt.Errorf("scanning source config of dataset %s: %w", datasetID, err)
		}

		sc.ConnectorConfig = cfg
		out = append(out, sc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating source configs of dataset %s: %w", datasetID, err)
	}

	return out, nil
}

// ReplaceDraftSourceConfigs implements service.Store.
func (s *DatasetStore) ReplaceDraftSourceConfigs(
	ctx context.Context,
	datasetID string,
	configs []dataset.SourceConfig,
) error {
	if _, err := s.q.ExecContext(ctx,
		`DELETE FROM source_configs_draft WHERE dataset_id = $1`, datasetID); err != nil {
		return fmt.Errorf("clearing source configs of dataset %s: %w", datasetID, err)
	}

	for _, sc := range configs {
		status := sc.Status
		if status == "" {
			status = dataset.StatusDraft
		}

		cfg := sc.ConnectorConfig
		if len(cfg) == 0 {
			cfg = json.RawMessage("null")
		}

		if _, err := s.q.ExecContext(ctx, `
			INSERT INTO source_configs_draft (id, dataset_id, connector_type, connector_config, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())`,
			sc.ID, datasetID, sc.ConnectorType, []byte(cfg), string(status)); err != nil {
			return fmt.Errorf("inserting source config %s of dataset %s: %w", sc.ID, datasetID, err)
		}
	}

	return nil
}

// GetDraftDatasource implements service.Store. A missing datasource is not an
// error: it simply has not been compiled yet.
func (s *DatasetStore) GetDraftDatasource(ctx context.Context, datasetID string) (*dataset.Datasource, error) {
	return s.getDatasource(ctx, "datasources_draft", datasetID)
}

// GetLiveDatasource implements service.Store.
func (s *DatasetStore) GetLiveDatasource(ctx context.Context, datasetID string) (*dataset.Datasource, error) {
	return s.getDatasource(ctx, "datasources", datasetID)
}

func (s *DatasetStore) getDatasource(ctx context.Context, table, datasetID string) (*dataset.Datasource, error) {
	var (
		ds            dataset.Datasource
		ingestionSpec []byte
		tableSpec     []byte
	)

	err := s.q.QueryRowContext(ctx, `
		SELECT id, dataset_id, datasource_ref, type, ingestion_spec, table_spec, status
		FROM `+table+` WHERE dataset_id = $1`, datasetID).
		Scan(&ds.ID, &ds.DatasetID, &ds.DatasourceRef, &ds.Type, &ingestionSpec, &tableSpec, &ds.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("getting datasource of dataset %s: %w", datasetID, err)
	}

	ds.IngestionSpec = ingestionSpec
	ds.TableSpec = tableSpec

	return &ds, nil
}

// UpsertDraftDatasource implements service.Store.
func (s *DatasetStore) UpsertDraftDatasource(ctx context.Context, ds *dataset.Datasource) error {
	status := ds.Status
	if status == "" {
		status = dataset.StatusDraft
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO datasources_draft (id, dataset_id, datasource_ref, type, ingestion_spec, table_spec, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (dataset_id) DO UPDATE SET
			datasource_ref = EXCLUDED.datasource_ref,
			type = EXCLUDED.type,
			ingestion_spec = EXCLUDED.ingestion_spec,
			table_spec = EXCLUDED.table_spec,
			status = EXCLUDED.status,
			updated_at = now()`,
		ds.ID, ds.DatasetID, ds.DatasourceRef, ds.Type,
		[]byte(ds.IngestionSpec), []byte(ds.TableSpec), string(status))
	if err != nil {
		return fmt.Errorf("upserting datasource of dataset %s: %w", ds.DatasetID, err)
	}

	return nil
}
