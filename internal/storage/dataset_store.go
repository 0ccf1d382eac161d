package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/lib/pq"

	"github.com/conductor-io/conductor/internal/config"
	"github.com/conductor-io/conductor/internal/dataset"
	"github.com/conductor-io/conductor/internal/service"
)

// pqUniqueViolation is the PostgreSQL error code for unique constraint violations.
const pqUniqueViolation = "23505"

// DatasetStore implements service.Store with a PostgreSQL backend. Draft and
// live datasets live in separate tables with the same column layout; child
// records (transformations, source configs, datasources) mirror that duality.
//
// The data_schema column is JSON, not JSONB: JSONB normalizes objects and
// loses key order, and schema property order drives deterministic column
// ordering downstream.
type DatasetStore struct {
	conn   *Connection
	q      querier
	logger *slog.Logger
}

// querier is the common query surface of *Connection and *sql.Tx, letting the
// same store methods run pooled or transaction-scoped.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DatasetStore implements the control plane's persistence interface.
var _ service.Store = (*DatasetStore)(nil)

// NewDatasetStore creates a PostgreSQL-backed dataset store.
func NewDatasetStore(conn *Connection) (*DatasetStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &DatasetStore{
		conn: conn,
		q:    conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}, nil
}

// HealthCheck verifies the backing connection is healthy.
func (s *DatasetStore) HealthCheck(ctx context.Context) error {
	return s.conn.HealthCheck(ctx)
}

// InTx implements service.Store. The callback receives a store bound to a
// single transaction; a nil return commits, anything else rolls back.
func (s *DatasetStore) InTx(ctx context.Context, fn func(service.Store) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback() // Safe to call even after commit
	}()

	txStore := &DatasetStore{conn: s.conn, q: tx, logger: s.logger}

	if err := fn(txStore); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

const datasetColumns = `id, name, type, status, data_schema, validation_config,
	extraction_config, dedup_config, denorm_config, connectors_config,
	router_config, keys_config, cache_config, tags, version_key, data_version,
	created_at, updated_at`

// CreateDraft implements service.Store.
func (s *DatasetStore) CreateDraft(ctx context.Context, d *dataset.Dataset) error {
	args, err := datasetArgs(d)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO datasets_draft (` + datasetColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, now(), now())`

	if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return dataset.Conflict(dataset.CodeDatasetExists, "dataset %s already exists", d.ID)
		}

		return fmt.Errorf("inserting draft dataset %s: %w", d.ID, err)
	}

	return nil
}

// GetDraft implements service.Store.
func (s *DatasetStore) GetDraft(ctx context.Context, id string) (*dataset.Dataset, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+datasetColumns+` FROM datasets_draft WHERE id = $1`, id)

	d, err := scanDataset(row, false)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dataset.NotFound(dataset.CodeDatasetNotFound, "dataset %s not found", id)
	}

	return d, err
}

// GetLive implements service.Store.
func (s *DatasetStore) GetLive(ctx context.Context, id string) (*dataset.Dataset, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+datasetColumns+`, published_date FROM datasets WHERE id = $1`, id)

	d, err := scanDataset(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dataset.NotFound(dataset.CodeDatasetNotFound, "dataset %s not found", id)
	}

	return d, err
}

// ListDrafts implements service.Store.
func (s *DatasetStore) ListDrafts(ctx context.Context, statuses []dataset.Status) ([]*dataset.Dataset, error) {
	return s.listDatasets(ctx, "datasets_draft", false, statuses)
}

// ListLive implements service.Store.
func (s *DatasetStore) ListLive(ctx context.Context, statuses []dataset.Status) ([]*dataset.Dataset, error) {
	return s.listDatasets(ctx, "datasets", true, statuses)
}

func (s *DatasetStore) listDatasets(
	ctx context.Context,
	table string,
	live bool,
	statuses []dataset.Status,
) ([]*dataset.Dataset, error) {
	columns := datasetColumns
	if live {
		columns += ", published_date"
	}

	query := `SELECT ` + columns + ` FROM ` + table

	var args []any

	if len(statuses) > 0 {
		names := make([]string, 0, len(statuses))
		for _, st := range statuses {
			names = append(names, string(st))
		}

		query += ` WHERE status = ANY($1)`
		args = append(args, pq.Array(names))
	}

	query += ` ORDER BY created_at`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing datasets from %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*dataset.Dataset

	for rows.Next() {
		d, err := scanDataset(rows, live)
		if err != nil {
			return nil, err
		}

		out = append(out, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating datasets from %s: %w", table, err)
	}

	return out, nil
}

// UpdateDraft implements service.Store. The version key comparison and swap
// happen in a single conditional UPDATE; zero rows affected means either a
// stale key or a missing draft, distinguished by a follow-up existence check.
func (s *DatasetStore) UpdateDraft(ctx context.Context, d *dataset.Dataset, expectedVersionKey string) error {
	d.VersionKey = dataset.NewVersionKey()

	args, err := datasetArgs(d)
	if err != nil {
		return err
	}

	query := `
		UPDATE datasets_draft SET
			name = $2, type = $3, status = $4, data_schema = $5,
			validation_config = $6, extraction_config = $7, dedup_config = $8,
			denorm_config = $9, connectors_config = $10, router_config = $11,
			keys_config = $12, cache_config = $13, tags = $14, version_key = $15,
			data_version = $16, updated_at = now()
		WHERE id = $1 AND version_key = $17`

	result, err := s.q.ExecContext(ctx, query, append(args, expectedVersionKey)...)
	if err != nil {
		return fmt.Errorf("updating draft dataset %s: %w", d.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating draft dataset %s: %w", d.ID, err)
	}

	if affected == 0 {
		if _, err := s.GetDraft(ctx, d.ID); err != nil {
			return err
		}

		return dataset.Conflict(dataset.CodeDatasetOutdated,
			"dataset %s was modified concurrently, fetch the latest version and retry", d.ID)
	}

	return nil
}

// SaveDraft implements service.Store.
func (s *DatasetStore) SaveDraft(ctx context.Context, d *dataset.Dataset) error {
	args, err := datasetArgs(d)
	if err != nil {
		return err
	}

	query := `
		UPDATE datasets_draft SET
			name = $2, type = $3, status = $4, data_schema = $5,
			validation_config = $6, extraction_config = $7, dedup_config = $8,
			denorm_config = $9, connectors_config = $10, router_config = $11,
			keys_config = $12, cache_config = $13, tags = $14, version_key = $15,
			data_version = $16, updated_at = now()
		WHERE id = $1`

	result, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("saving draft dataset %s: %w", d.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("saving draft dataset %s: %w", d.ID, err)
	}

	if affected == 0 {
		return dataset.NotFound(dataset.CodeDatasetNotFound, "dataset %s not found", d.ID)
	}

	return nil
}

// SetDraftStatus implements service.Store. The conditional update doubles as
// the per-row mutex between concurrent transitions: whichever request flips
// the status first wins, the other matches zero rows and gets a Conflict.
func (s *DatasetStore) SetDraftStatus(ctx context.Context, id string, from, to dataset.Status) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE datasets_draft SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`,
		id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("setting status of draft dataset %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("setting status of draft dataset %s: %w", id, err)
	}

	if affected == 0 {
		current, err := s.GetDraft(ctx, id)
		if err != nil {
			return err
		}

		return dataset.Conflict(dataset.CodeInvalidTransition,
			"dataset %s is %s, expected %s", id, current.Status, from)
	}

	return nil
}

// DeleteDraftCascade implements service.Store.
func (s *DatasetStore) DeleteDraftCascade(ctx context.Context, id string) error {
	childTables := []string{"transformations_draft", "source_configs_draft", "datasources_draft"}

	for _, table := range childTables {
		if _, err := s.q.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE dataset_id = $1`, id); err != nil {
			return fmt.Errorf("deleting %s rows of dataset %s: %w", table, id, err)
		}
	}

	result, err := s.q.ExecContext(ctx, `DELETE FROM datasets_draft WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting draft dataset %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting draft dataset %s: %w", id, err)
	}

	if affected == 0 {
		return dataset.NotFound(dataset.CodeDatasetNotFound, "dataset %s not found", id)
	}

	return nil
}

// PromoteDraftToLive implements service.Store. The draft row and its child
// rows are copied into the live tables; an existing live record keeps its
// identity and gets its data version incremented.
func (s *DatasetStore) PromoteDraftToLive(ctx context.Context, id string) error {
	query := `
		INSERT INTO datasets (` + datasetColumns + `, published_date)
		SELECT id, name, type, 'Live', data_schema, validation_config,
			extraction_config, dedup_config, denorm_config, connectors_config,
			router_config, keys_config, cache_config, tags, version_key, 1,
			created_at, now(), now()
		FROM datasets_draft WHERE id = $1
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			status = 'Live',
			data_schema = EXCLUDED.data_schema,
			validation_config = EXCLUDED.validation_config,
			extraction_config = EXCLUDED.extraction_config,
			dedup_config = EXCLUDED.dedup_config,
			denorm_config = EXCLUDED.denorm_config,
			connectors_config = EXCLUDED.connectors_config,
			router_config = EXCLUDED.router_config,
			keys_config = EXCLUDED.keys_config,
			cache_config = EXCLUDED.cache_config,
			tags = EXCLUDED.tags,
			version_key = EXCLUDED.version_key,
			data_version = datasets.data_version + 1,
			updated_at = now(),
			published_date = now()`

	result, err := s.q.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("promoting dataset %s to live: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("promoting dataset %s to live: %w", id, err)
	}

	if affected == 0 {
		return dataset.NotFound(dataset.CodeDatasetNotFound, "dataset %s not found", id)
	}

	if err := s.promoteChildren(ctx, id); err != nil {
		return err
	}

	return nil
}

// promoteChildren replaces the live child rows of a dataset with copies of
// the draft ones, all marked Live.
func (s *DatasetStore) promoteChildren(ctx context.Context, id string) error {
	copies := []struct {
		deleteStmt string
		insertStmt string
	}{
		{
			`DELETE FROM transformations WHERE dataset_id = $1`,
			`INSERT INTO transformations (dataset_id, field_key, transform_spec, mode, status, created_at, updated_at)
			 SELECT dataset_id, field_key, transform_spec, mode, 'Live', created_at, now()
			 FROM transformations_draft WHERE dataset_id = $1`,
		},
		{
			`DELETE FROM source_configs WHERE dataset_id = $1`,
			`INSERT INTO source_configs (id, dataset_id, connector_type, connector_config, status, created_at, updated_at)
			 SELECT id, dataset_id, connector_type, connector_config, 'Live', created_at, now()
			 FROM source_configs_draft WHERE dataset_id = $1`,
		},
		{
			`DELETE FROM datasources WHERE dataset_id = $1`,
			`INSERT INTO datasources (id, dataset_id, datasource_ref, type, ingestion_spec, table_spec, status, created_at, updated_at)
			 SELECT id, dataset_id, datasource_ref, type, ingestion_spec, table_spec, 'Live', created_at, now()
			 FROM datasources_draft WHERE dataset_id = $1`,
		},
	}

	for _, c := range copies {
		if _, err := s.q.ExecContext(ctx, c.deleteStmt, id); err != nil {
			return fmt.Errorf("promoting child rows of dataset %s: %w", id, err)
		}

		if _, err := s.q.ExecContext(ctx, c.insertStmt, id); err != nil {
			return fmt.Errorf("promoting child rows of dataset %s: %w", id, err)
		}
	}

	return nil
}

// SetRetired implements service.Store.
func (s *DatasetStore) SetRetired(ctx context.Context, id string) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE datasets SET status = 'Retired', updated_at = now() WHERE id = $1 AND status = 'Live'`, id)
	if err != nil {
		return fmt.Errorf("retiring dataset %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("retiring dataset %s: %w", id, err)
	}

	// The status guard makes the update the mutual exclusion point between
	// concurrent retires: the loser matches zero rows.
	if affected == 0 {
		if _, getErr := s.GetLive(ctx, id); getErr != nil {
			return getErr
		}

		return dataset.Conflict(dataset.CodeInvalidTransition,
			"dataset %s is no longer Live", id)
	}

	for _, table := range []string{"transformations", "source_configs", "datasources"} {
		if _, err := s.q.ExecContext(ctx,
			`UPDATE `+table+` SET status = 'Retired', updated_at = now() WHERE dataset_id = $1`,
			id); err != nil {
			return fmt.Errorf("retiring %s rows of dataset %s: %w", table, id, err)
		}
	}

	return nil
}

// NextCachePartition implements service.Store.
func (s *DatasetStore) NextCachePartition(ctx context.Context) (int, error) {
	var index int

	if err := s.q.QueryRowContext(ctx,
		`SELECT nextval('cache_partition_index')`).Scan(&index); err != nil {
		return 0, dataset.Internal(err, "allocating cache partition index")
	}

	return index, nil
}

// DenormReferencers implements service.Store. Containment on the JSONB
// denorm_config finds both live and draft referencers.
func (s *DatasetStore) DenormReferencers(ctx context.Context, masterID string) ([]string, error) {
	pattern, err := json.Marshal(map[string]any{
		"denorm_fields": []map[string]string{{"dataset_id": masterID}},
	})
	if err != nil {
		return nil, fmt.Errorf("building denorm containment pattern: %w", err)
	}

	query := `
		SELECT id FROM datasets WHERE denorm_config @> $1
		UNION
		SELECT id FROM datasets_draft WHERE denorm_config @> $1
		ORDER BY id`

	rows, err := s.q.QueryContext(ctx, query, pattern)
	if err != nil {
		return nil, fmt.Errorf("finding denorm referencers of %s: %w", masterID, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning denorm referencer: %w", err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating denorm referencers of %s: %w", masterID, err)
	}

	return ids, nil
}

// datasetArgs builds the positional arguments matching datasetColumns minus
// the timestamp columns.
func datasetArgs(d *dataset.Dataset) ([]any, error) {
	jsonCols := []any{
		d.DataSchema,
		d.ValidationConfig,
		d.ExtractionConfig,
		d.DedupConfig,
		d.DenormConfig,
		d.ConnectorsConfig,
		d.RouterConfig,
		d.KeysConfig,
		d.CacheConfig,
	}

	encoded := make([]any, 0, len(jsonCols))

	for _, v := range jsonCols {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding dataset %s: %w", d.ID, err)
		}

		encoded = append(encoded, raw)
	}

	dataVersion := d.DataVersion
	if dataVersion == 0 {
		dataVersion = 1
	}

	args := []any{d.ID, d.Name, string(d.Type), string(d.Status)}
	args = append(args, encoded...)
	args = append(args, pq.Array(d.Tags), d.VersionKey, dataVersion)

	return args, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDataset(row rowScanner, live bool) (*dataset.Dataset, error) {
	var (
		d         dataset.Dataset
		jsonCols  [9][]byte
		tags      pq.StringArray
		published sql.NullTime
	)

	dest := []any{
		&d.ID, &d.Name, &d.Type, &d.Status,
		&jsonCols[0], &jsonCols[1], &jsonCols[2], &jsonCols[3], &jsonCols[4],
		&jsonCols[5], &jsonCols[6], &jsonCols[7], &jsonCols[8],
		&tags, &d.VersionKey, &d.DataVersion, &d.CreatedAt, &d.UpdatedAt,
	}

	if live {
		dest = append(dest, &published)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	targets := []any{
		&d.DataSchema, &d.ValidationConfig, &d.ExtractionConfig, &d.DedupConfig,
		&d.DenormConfig, &d.ConnectorsConfig, &d.RouterConfig, &d.KeysConfig,
		&d.CacheConfig,
	}

	for i, raw := range jsonCols {
		if len(raw) == 0 {
			continue
		}

		if err := json.Unmarshal(raw, targets[i]); err != nil {
			return nil, fmt.Errorf("decoding dataset %s: %w", d.ID, err)
		}
	}

	d.Tags = tags

	if published.Valid {
		d.PublishedAt = published.Time
	}

	return &d, nil
}
