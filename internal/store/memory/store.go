// Package memory provides an in-memory Store for development and testing.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opengouv/datasync/internal/store"
)

// Store keeps all entities in maps guarded by a mutex. It honors the same
// uniqueness constraints as the Postgres schema.
type Store struct {
	mu             sync.RWMutex
	datasets       map[uuid.UUID]store.Dataset
	datasetsByExt  map[string]uuid.UUID
	resources      map[uuid.UUID]store.Resource
	resourcesByKey map[string]uuid.UUID
	resourceOrder  map[uuid.UUID][]uuid.UUID
	records        map[uuid.UUID]map[int]store.DataRecord
	syncLogs       map[uuid.UUID]store.SyncLog
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		datasets:       make(map[uuid.UUID]store.Dataset),
		datasetsByExt:  make(map[string]uuid.UUID),
		resources:      make(map[uuid.UUID]store.Resource),
		resourcesByKey: make(map[string]uuid.UUID),
		resourceOrder:  make(map[uuid.UUID][]uuid.UUID),
		records:        make(map[uuid.UUID]map[int]store.DataRecord),
		syncLogs:       make(map[uuid.UUID]store.SyncLog),
	}
}

func resourceKey(datasetID uuid.UUID, externalID string) string {
	return datasetID.String() + "/" + externalID
}

// UpsertDataset creates or updates a dataset keyed on its external identifier.
func (s *Store) UpsertDataset(_ context.Context, ds store.Dataset) (store.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if id, ok := s.datasetsByExt[ds.ExternalID]; ok {
		existing := s.datasets[id]
		existing.Title = ds.Title
		existing.Slug = ds.Slug
		existing.Description = ds.Description
		existing.Organization = ds.Organization
		existing.Tags = append([]string(nil), ds.Tags...)
		existing.License = ds.License
		existing.CreatedAtSource = ds.CreatedAtSource
		existing.UpdatedAtSource = ds.UpdatedAtSource
		existing.LastSync = ds.LastSync
		existing.IsActive = true
		existing.UpdatedAt = now
		s.datasets[id] = existing
		return existing, nil
	}

	if ds.ID == uuid.Nil {
		ds.ID = uuid.New()
	}
	ds.CreatedAt = now
	ds.UpdatedAt = now
	ds.IsActive = true
	s.datasets[ds.ID] = ds
	s.datasetsByExt[ds.ExternalID] = ds.ID
	return ds, nil
}

// GetDatasetByExternalID loads a dataset or returns store.ErrNotFound.
func (s *Store) GetDatasetByExternalID(_ context.Context, externalID string) (store.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.datasetsByExt[externalID]
	if !ok {
		return store.Dataset{}, store.ErrNotFound
	}
	return s.datasets[id], nil
}

// UpsertResource creates or updates a resource keyed on (dataset, external id).
// Processing state fields are preserved on update.
func (s *Store) UpsertResource(_ context.Context, res store.Resource) (store.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := resourceKey(res.DatasetID, res.ExternalID)
	if id, ok := s.resourcesByKey[key]; ok {
		existing := s.resources[id]
		existing.Title = res.Title
		existing.Description = res.Description
		existing.URL = res.URL
		existing.Format = res.Format
		existing.MimeType = res.MimeType
		existing.FileSize = res.FileSize
		existing.CreatedAtSource = res.CreatedAtSource
		existing.UpdatedAtSource = res.UpdatedAtSource
		existing.UpdatedAt = now
		s.resources[id] = existing
		return existing, nil
	}

	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	if res.ProcessingStatus == "" {
		res.ProcessingStatus = store.StatusPending
	}
	res.CreatedAt = now
	res.UpdatedAt = now
	s.resources[res.ID] = res
	s.resourcesByKey[key] = res.ID
	s.resourceOrder[res.DatasetID] = append(s.resourceOrder[res.DatasetID], res.ID)
	return res, nil
}

// ListResources returns a dataset's resources in insertion order.
func (s *Store) ListResources(_ context.Context, datasetID uuid.UUID) ([]store.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.resourceOrder[datasetID]
	out := make([]store.Resource, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.resources[id])
	}
	return out, nil
}

// GetResource loads one resource by ID or returns store.ErrNotFound.
func (s *Store) GetResource(_ context.Context, resourceID uuid.UUID) (store.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.resources[resourceID]
	if !ok {
		return store.Resource{}, store.ErrNotFound
	}
	return res, nil
}

// SetResourceProcessing marks a resource as currently being parsed.
func (s *Store) SetResourceProcessing(_ context.Context, resourceID uuid.UUID) error {
	return s.updateResource(resourceID, func(res *store.Resource) {
		res.ProcessingStatus = store.StatusProcessing
	})
}

// MarkResourceProcessed records a successful parse.
func (s *Store) MarkResourceProcessed(_ context.Context, resourceID uuid.UUID, processedAt time.Time) error {
	return s.updateResource(resourceID, func(res *store.Resource) {
		res.IsProcessed = true
		res.ProcessingStatus = store.StatusCompleted
		res.ProcessingError = ""
		res.LastProcessed = &processedAt
	})
}

// MarkResourceFailed records a failed parse with the error text.
func (s *Store) MarkResourceFailed(_ context.Context, resourceID uuid.UUID, errMsg string) error {
	return s.updateResource(resourceID, func(res *store.Resource) {
		res.IsProcessed = false
		res.ProcessingStatus = store.StatusFailed
		res.ProcessingError = errMsg
	})
}

func (s *Store) updateResource(resourceID uuid.UUID, apply func(*store.Resource)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.resources[resourceID]
	if !ok {
		return store.ErrNotFound
	}
	apply(&res)
	res.UpdatedAt = time.Now().UTC()
	s.resources[resourceID] = res
	return nil
}

// InsertDataRecords inserts a batch, skipping rows whose (resource, row_number)
// already exists. It returns the number of rows actually inserted.
func (s *Store) InsertDataRecords(_ context.Context, records []store.DataRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	now := time.Now().UTC()
	for _, rec := range records {
		rows, ok := s.records[rec.ResourceID]
		if !ok {
			rows = make(map[int]store.DataRecord)
			s.records[rec.ResourceID] = rows
		}
		if _, exists := rows[rec.RowNumber]; exists {
			continue
		}
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		rec.CreatedAt = now
		rows[rec.RowNumber] = rec
		inserted++
	}
	return inserted, nil
}

// CountDataRecords returns the number of stored rows for a resource.
func (s *Store) CountDataRecords(_ context.Context, resourceID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[resourceID]), nil
}

// CreateSyncLog persists a new sync log.
func (s *Store) CreateSyncLog(_ context.Context, log store.SyncLog) (store.SyncLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.Status == "" {
		log.Status = store.SyncStarted
	}
	if log.StartedAt.IsZero() {
		log.StartedAt = time.Now().UTC()
	}
	s.syncLogs[log.ID] = log
	return log, nil
}

// FinishSyncLog persists the terminal state of a sync log.
func (s *Store) FinishSyncLog(_ context.Context, log store.SyncLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.syncLogs[log.ID]; !ok {
		return store.ErrNotFound
	}
	s.syncLogs[log.ID] = log
	return nil
}

// GetSyncLog loads one sync log by ID or returns store.ErrNotFound.
func (s *Store) GetSyncLog(_ context.Context, id uuid.UUID) (store.SyncLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log, ok := s.syncLogs[id]
	if !ok {
		return store.SyncLog{}, store.ErrNotFound
	}
	return log, nil
}

// ListSyncLogs returns all sync logs in unspecified order.
func (s *Store) ListSyncLogs(_ context.Context) ([]store.SyncLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.SyncLog, 0, len(s.syncLogs))
	for _, log := range s.syncLogs {
		out = append(out, log)
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() {}
