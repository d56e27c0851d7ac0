// Package postgres provides the Postgres-backed record store.
//
// Expected schema:
//
//	CREATE TABLE datasets (
//		id UUID PRIMARY KEY,
//		external_id TEXT NOT NULL UNIQUE,
//		title TEXT NOT NULL,
//		slug TEXT NOT NULL UNIQUE,
//		description TEXT NOT NULL DEFAULT '',
//		organization TEXT NOT NULL DEFAULT '',
//		tags JSONB NOT NULL DEFAULT '[]',
//		license TEXT NOT NULL DEFAULT '',
//		created_at_source TIMESTAMPTZ,
//		updated_at_source TIMESTAMPTZ,
//		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//		is_active BOOLEAN NOT NULL DEFAULT TRUE,
//		last_sync TIMESTAMPTZ
//	);
//
//	CREATE TABLE resources (
//		id UUID PRIMARY KEY,
//		dataset_id UUID NOT NULL REFERENCES datasets(id) ON DELETE CASCADE,
//		external_id TEXT NOT NULL,
//		title TEXT NOT NULL,
//		description TEXT NOT NULL DEFAULT '',
//		url TEXT NOT NULL,
//		format TEXT NOT NULL,
//		mime_type TEXT NOT NULL DEFAULT '',
//		file_size BIGINT,
//		is_processed BOOLEAN NOT NULL DEFAULT FALSE,
//		processing_status TEXT NOT NULL DEFAULT 'pending',
//		processing_error TEXT NOT NULL DEFAULT '',
//		created_at_source TIMESTAMPTZ,
//		updated_at_source TIMESTAMPTZ,
//		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//		last_processed TIMESTAMPTZ,
//		UNIQUE (dataset_id, external_id)
//	);
//
//	CREATE TABLE data_records (
//		id UUID PRIMARY KEY,
//		resource_id UUID NOT NULL REFERENCES resources(id) ON DELETE CASCADE,
//		row_number INTEGER NOT NULL,
//		data JSONB NOT NULL,
//		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//		UNIQUE (resource_id, row_number)
//	);
//
//	CREATE TABLE sync_logs (
//		id UUID PRIMARY KEY,
//		kind TEXT NOT NULL,
//		status TEXT NOT NULL DEFAULT 'started',
//		datasets_processed INTEGER NOT NULL DEFAULT 0,
//		resources_processed INTEGER NOT NULL DEFAULT 0,
//		records_created INTEGER NOT NULL DEFAULT 0,
//		message TEXT NOT NULL DEFAULT '',
//		error_details TEXT NOT NULL DEFAULT '',
//		started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//		completed_at TIMESTAMPTZ
//	);
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opengouv/datasync/internal/store"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements store.Store on a pgx connection pool.
type Store struct {
	pool db
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(pool db) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const datasetColumns = `id, external_id, title, slug, description, organization, tags, license,
	created_at_source, updated_at_source, created_at, updated_at, is_active, last_sync`

// UpsertDataset creates or updates a dataset keyed on its external identifier.
func (s *Store) UpsertDataset(ctx context.Context, ds store.Dataset) (store.Dataset, error) {
	if ds.ID == uuid.Nil {
		ds.ID = uuid.New()
	}
	tagsJSON, err := json.Marshal(ds.Tags)
	if err != nil {
		return store.Dataset{}, fmt.Errorf("marshal tags: %w", err)
	}

	query := `
		INSERT INTO datasets (id, external_id, title, slug, description, organization, tags, license,
			created_at_source, updated_at_source, is_active, last_sync)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE, $11)
		ON CONFLICT (external_id) DO UPDATE SET
			title = EXCLUDED.title,
			slug = EXCLUDED.slug,
			description = EXCLUDED.description,
			organization = EXCLUDED.organization,
			tags = EXCLUDED.tags,
			license = EXCLUDED.license,
			created_at_source = EXCLUDED.created_at_source,
			updated_at_source = EXCLUDED.updated_at_source,
			is_active = TRUE,
			last_sync = EXCLUDED.last_sync,
			updated_at = NOW()
		RETURNING ` + datasetColumns

	row := s.pool.QueryRow(ctx, query,
		ds.ID,
		ds.ExternalID,
		ds.Title,
		ds.Slug,
		ds.Description,
		ds.Organization,
		tagsJSON,
		ds.License,
		ds.CreatedAtSource,
		ds.UpdatedAtSource,
		ds.LastSync,
	)
	stored, err := scanDataset(row)
	if err != nil {
		return store.Dataset{}, fmt.Errorf("upsert dataset: %w", err)
	}
	return stored, nil
}

// GetDatasetByExternalID loads a dataset or returns store.ErrNotFound.
func (s *Store) GetDatasetByExternalID(ctx context.Context, externalID string) (store.Dataset, error) {
	query := `SELECT ` + datasetColumns + ` FROM datasets WHERE external_id = $1`
	ds, err := scanDataset(s.pool.QueryRow(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Dataset{}, store.ErrNotFound
		}
		return store.Dataset{}, fmt.Errorf("get dataset: %w", err)
	}
	return ds, nil
}

func scanDataset(row pgx.Row) (store.Dataset, error) {
	var (
		ds       store.Dataset
		tagsJSON []byte
	)
	err := row.Scan(
		&ds.ID,
		&ds.ExternalID,
		&ds.Title,
		&ds.Slug,
		&ds.Description,
		&ds.Organization,
		&tagsJSON,
		&ds.License,
		&ds.CreatedAtSource,
		&ds.UpdatedAtSource,
		&ds.CreatedAt,
		&ds.UpdatedAt,
		&ds.IsActive,
		&ds.LastSync,
	)
	if err != nil {
		return store.Dataset{}, err
	}
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &ds.Tags); err != nil {
			return store.Dataset{}, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	return ds, nil
}

const resourceColumns = `id, dataset_id, external_id, title, description, url, format, mime_type,
	file_size, is_processed, processing_status, processing_error,
	created_at_source, updated_at_source, created_at, updated_at, last_processed`

// UpsertResource creates or updates a resource keyed on (dataset, external id).
// Processing state columns are untouched on update.
func (s *Store) UpsertResource(ctx context.Context, res store.Resource) (store.Resource, error) {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	query := `
		INSERT INTO resources (id, dataset_id, external_id, title, description, url, format,
			mime_type, file_size, created_at_source, updated_at_source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (dataset_id, external_id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			url = EXCLUDED.url,
			format = EXCLUDED.format,
			mime_type = EXCLUDED.mime_type,
			file_size = EXCLUDED.file_size,
			created_at_source = EXCLUDED.created_at_source,
			updated_at_source = EXCLUDED.updated_at_source,
			updated_at = NOW()
		RETURNING ` + resourceColumns

	row := s.pool.QueryRow(ctx, query,
		res.ID,
		res.DatasetID,
		res.ExternalID,
		res.Title,
		res.Description,
		res.URL,
		res.Format,
		res.MimeType,
		res.FileSize,
		res.CreatedAtSource,
		res.UpdatedAtSource,
	)
	stored, err := scanResource(row)
	if err != nil {
		return store.Resource{}, fmt.Errorf("upsert resource: %w", err)
	}
	return stored, nil
}

// ListResources returns a dataset's resources in insertion order.
func (s *Store) ListResources(ctx context.Context, datasetID uuid.UUID) ([]store.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources WHERE dataset_id = $1 ORDER BY created_at, id`
	rows, err := s.pool.Query(ctx, query, datasetID)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()

	var resources []store.Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan resource row: %w", err)
		}
		resources = append(resources, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return resources, nil
}

func scanResource(row pgx.Row) (store.Resource, error) {
	var res store.Resource
	err := row.Scan(
		&res.ID,
		&res.DatasetID,
		&res.ExternalID,
		&res.Title,
		&res.Description,
		&res.URL,
		&res.Format,
		&res.MimeType,
		&res.FileSize,
		&res.IsProcessed,
		&res.ProcessingStatus,
		&res.ProcessingError,
		&res.CreatedAtSource,
		&res.UpdatedAtSource,
		&res.CreatedAt,
		&res.UpdatedAt,
		&res.LastProcessed,
	)
	if err != nil {
		return store.Resource{}, err
	}
	return res, nil
}

// SetResourceProcessing marks a resource as currently being parsed.
func (s *Store) SetResourceProcessing(ctx context.Context, resourceID uuid.UUID) error {
	query := `UPDATE resources SET processing_status = $1, updated_at = NOW() WHERE id = $2`
	return s.execResourceUpdate(ctx, query, store.StatusProcessing, resourceID)
}

// MarkResourceProcessed records a successful parse.
func (s *Store) MarkResourceProcessed(ctx context.Context, resourceID uuid.UUID, processedAt time.Time) error {
	query := `
		UPDATE resources
		SET is_processed = TRUE, processing_status = $1, processing_error = '',
			last_processed = $2, updated_at = NOW()
		WHERE id = $3`
	return s.execResourceUpdate(ctx, query, store.StatusCompleted, processedAt, resourceID)
}

// MarkResourceFailed records a failed parse with the error text.
func (s *Store) MarkResourceFailed(ctx context.Context, resourceID uuid.UUID, errMsg string) error {
	query := `
		UPDATE resources
		SET is_processed = FALSE, processing_status = $1, processing_error = $2, updated_at = NOW()
		WHERE id = $3`
	return s.execResourceUpdate(ctx, query, store.StatusFailed, errMsg, resourceID)
}

func (s *Store) execResourceUpdate(ctx context.Context, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update resource: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// InsertDataRecords inserts a batch with ON CONFLICT DO NOTHING on the
// (resource, row_number) constraint. It returns the number of rows inserted.
func (s *Store) InsertDataRecords(ctx context.Context, records []store.DataRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`INSERT INTO data_records (id, resource_id, row_number, data) VALUES `)
	for i, rec := range records {
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		dataJSON, err := json.Marshal(rec.Data)
		if err != nil {
			return 0, fmt.Errorf("marshal record %d: %w", rec.RowNumber, err)
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 4
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4)
		args = append(args, rec.ID, rec.ResourceID, rec.RowNumber, dataJSON)
	}
	sb.WriteString(` ON CONFLICT (resource_id, row_number) DO NOTHING`)

	tag, err := s.pool.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("insert data records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CountDataRecords returns the number of stored rows for a resource.
func (s *Store) CountDataRecords(ctx context.Context, resourceID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM data_records WHERE resource_id = $1`
	if err := s.pool.QueryRow(ctx, query, resourceID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count data records: %w", err)
	}
	return count, nil
}

// CreateSyncLog persists a new sync log in started status.
func (s *Store) CreateSyncLog(ctx context.Context, log store.SyncLog) (store.SyncLog, error) {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.Status == "" {
		log.Status = store.SyncStarted
	}
	if log.StartedAt.IsZero() {
		log.StartedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO sync_logs (id, kind, status, message, started_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.pool.Exec(ctx, query, log.ID, log.Kind, log.Status, log.Message, log.StartedAt); err != nil {
		return store.SyncLog{}, fmt.Errorf("create sync log: %w", err)
	}
	return log, nil
}

// GetSyncLog loads one sync log by ID or returns store.ErrNotFound.
func (s *Store) GetSyncLog(ctx context.Context, id uuid.UUID) (store.SyncLog, error) {
	query := `
		SELECT id, kind, status, datasets_processed, resources_processed, records_created,
			message, error_details, started_at, completed_at
		FROM sync_logs WHERE id = $1`
	var log store.SyncLog
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&log.ID,
		&log.Kind,
		&log.Status,
		&log.DatasetsProcessed,
		&log.ResourcesProcessed,
		&log.RecordsCreated,
		&log.Message,
		&log.ErrorDetails,
		&log.StartedAt,
		&log.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.SyncLog{}, store.ErrNotFound
		}
		return store.SyncLog{}, fmt.Errorf("get sync log: %w", err)
	}
	return log, nil
}

// FinishSyncLog persists the terminal state of a sync log.
func (s *Store) FinishSyncLog(ctx context.Context, log store.SyncLog) error {
	query := `
		UPDATE sync_logs
		SET status = $1, datasets_processed = $2, resources_processed = $3,
			records_created = $4, message = $5, error_details = $6, completed_at = $7
		WHERE id = $8`
	tag, err := s.pool.Exec(ctx, query,
		log.Status,
		log.DatasetsProcessed,
		log.ResourcesProcessed,
		log.RecordsCreated,
		log.Message,
		log.ErrorDetails,
		log.CompletedAt,
		log.ID,
	)
	if err != nil {
		return fmt.Errorf("finish sync log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
