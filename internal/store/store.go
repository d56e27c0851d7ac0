package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the record store consumed by the ingestion pipeline. The
// presentation layer reads the same entities but never mutates them through
// this interface.
type Store interface {
	// UpsertDataset creates the dataset keyed on ExternalID or overwrites the
	// mutable fields of the existing row. It returns the stored dataset.
	UpsertDataset(ctx context.Context, ds Dataset) (Dataset, error)
	// GetDatasetByExternalID loads a dataset or returns ErrNotFound.
	GetDatasetByExternalID(ctx context.Context, externalID string) (Dataset, error)

	// UpsertResource creates the resource keyed on (DatasetID, ExternalID) or
	// overwrites the mutable fields of the existing row.
	UpsertResource(ctx context.Context, res Resource) (Resource, error)
	// ListResources returns all resources of a dataset in insertion order.
	ListResources(ctx context.Context, datasetID uuid.UUID) ([]Resource, error)

	// SetResourceProcessing marks a resource as currently being parsed.
	SetResourceProcessing(ctx context.Context, resourceID uuid.UUID) error
	// MarkResourceProcessed records a successful parse: status completed,
	// is_processed true, error cleared, last_processed set.
	MarkResourceProcessed(ctx context.Context, resourceID uuid.UUID, processedAt time.Time) error
	// MarkResourceFailed records a failed parse with the error text.
	MarkResourceFailed(ctx context.Context, resourceID uuid.UUID, errMsg string) error

	// InsertDataRecords inserts a batch, silently ignoring rows that violate
	// the (resource, row_number) uniqueness constraint. It returns the number
	// of rows actually inserted.
	InsertDataRecords(ctx context.Context, records []DataRecord) (int, error)
	// CountDataRecords returns the number of stored rows for a resource.
	CountDataRecords(ctx context.Context, resourceID uuid.UUID) (int, error)

	// CreateSyncLog persists a new sync log in started status.
	CreateSyncLog(ctx context.Context, log SyncLog) (SyncLog, error)
	// FinishSyncLog persists the terminal state of a sync log.
	FinishSyncLog(ctx context.Context, log SyncLog) error

	// Close releases any underlying resources.
	Close()
}
