package store

import (
	"time"

	"github.com/google/uuid"
)

// ProcessingStatus mirrors the resources.processing_status column.
type ProcessingStatus string

// Resource processing states. Pending is initial; completed and failed are
// terminal for one processing invocation.
const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// SyncKind identifies the scope of one sync operation.
type SyncKind string

// Sync kinds persisted in sync_logs.kind.
const (
	SyncFull        SyncKind = "full"
	SyncIncremental SyncKind = "incremental"
	SyncSingle      SyncKind = "single"
)

// SyncStatus is the outcome of one sync operation.
type SyncStatus string

// Sync statuses persisted in sync_logs.status.
const (
	SyncStarted   SyncStatus = "started"
	SyncCompleted SyncStatus = "completed"
	SyncFailed    SyncStatus = "failed"
)

// Dataset mirrors one catalog dataset. ExternalID is globally unique; Slug is
// unique and derived from the title. Deleting a dataset cascades to its
// resources.
type Dataset struct {
	ID              uuid.UUID
	ExternalID      string
	Title           string
	Slug            string
	Description     string
	Organization    string
	Tags            []string
	License         string
	CreatedAtSource *time.Time
	UpdatedAtSource *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	IsActive        bool
	LastSync        *time.Time
}

// Resource is one downloadable file belonging to a dataset. ExternalID is
// unique within the owning dataset. Deleting a resource cascades to its data
// records.
type Resource struct {
	ID               uuid.UUID
	DatasetID        uuid.UUID
	ExternalID       string
	Title            string
	Description      string
	URL              string
	Format           string
	MimeType         string
	FileSize         *int64
	IsProcessed      bool
	ProcessingStatus ProcessingStatus
	ProcessingError  string
	CreatedAtSource  *time.Time
	UpdatedAtSource  *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastProcessed    *time.Time
}

// DataRecord is one normalized row parsed from a resource file. RowNumber is
// 1-based and unique within the resource.
type DataRecord struct {
	ID         uuid.UUID
	ResourceID uuid.UUID
	RowNumber  int
	Data       map[string]any
	CreatedAt  time.Time
}

// SyncLog is an append-only audit entry for one sync operation. Only the
// orchestrator that created it ever writes to it, and exactly twice: once at
// start and once at completion.
type SyncLog struct {
	ID                 uuid.UUID
	Kind               SyncKind
	Status             SyncStatus
	DatasetsProcessed  int
	ResourcesProcessed int
	RecordsCreated     int
	Message            string
	ErrorDetails       string
	StartedAt          time.Time
	CompletedAt        *time.Time
}
