// Package syncer drives catalog pagination, dataset and resource upserts, and
// sync audit logging.
package syncer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/opengouv/datasync/internal/catalog"
	"github.com/opengouv/datasync/internal/metrics"
	"github.com/opengouv/datasync/internal/notify"
	"github.com/opengouv/datasync/internal/store"
)

// DefaultPageSize is the catalog search page size when no smaller remainder
// applies.
const DefaultPageSize = 20

// DefaultTopic is the broker topic sync completion events are published to
// when no topic is configured.
const DefaultTopic = "sync-events"

// Catalog is the subset of the catalog client the syncer depends on.
type Catalog interface {
	SearchDatasets(ctx context.Context, query string, page, pageSize int, extra map[string]string) (catalog.SearchResult, error)
	GetDataset(ctx context.Context, externalID string) (catalog.DatasetPayload, error)
}

// Config controls syncer behavior.
type Config struct {
	// PageSize caps the catalog search page size. Zero means DefaultPageSize.
	PageSize int
	// Topic names the broker topic for sync completion events. Zero means
	// DefaultTopic.
	Topic string
}

// Syncer mirrors catalog metadata into the record store. One Syncer instance
// must not be used for concurrent syncs of the same dataset.
type Syncer struct {
	catalog   Catalog
	store     store.Store
	publisher notify.Publisher
	pageSize  int
	topic     string
	logger    *zap.Logger
}

// New constructs a Syncer.
func New(cat Catalog, st store.Store, publisher notify.Publisher, cfg Config, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = &notify.NoOpPublisher{}
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	return &Syncer{
		catalog:   cat,
		store:     st,
		publisher: publisher,
		pageSize:  pageSize,
		topic:     topic,
		logger:    logger,
	}
}

// SyncSingleDataset fetches one dataset payload and upserts the dataset and
// all its resources. It writes one sync log row; on failure the log is marked
// failed with the error text and the error is returned.
func (s *Syncer) SyncSingleDataset(ctx context.Context, externalID string) (store.Dataset, error) {
	start := time.Now().UTC()
	log, err := s.store.CreateSyncLog(ctx, store.SyncLog{
		ID:        uuid.New(),
		Kind:      store.SyncSingle,
		Status:    store.SyncStarted,
		Message:   fmt.Sprintf("sync dataset %s", externalID),
		StartedAt: start,
	})
	if err != nil {
		return store.Dataset{}, fmt.Errorf("create sync log: %w", err)
	}

	payload, err := s.catalog.GetDataset(ctx, externalID)
	if err != nil {
		s.finishFailed(ctx, log, err)
		metrics.ObserveDataset(string(store.SyncFailed))
		return store.Dataset{}, err
	}

	ds, resourceCount, err := s.upsertDataset(ctx, payload)
	if err != nil {
		s.finishFailed(ctx, log, err)
		metrics.ObserveDataset(string(store.SyncFailed))
		return store.Dataset{}, err
	}

	log.Status = store.SyncCompleted
	log.DatasetsProcessed = 1
	log.ResourcesProcessed = resourceCount
	s.finish(ctx, log)

	metrics.ObserveDataset(string(store.SyncCompleted))
	metrics.ObserveSyncDuration(string(store.SyncSingle), time.Since(start))
	s.logger.Info("dataset synced",
		zap.String("external_id", externalID),
		zap.Int("resources", resourceCount),
	)
	return ds, nil
}

// SyncByQuery pages through catalog search results until limit datasets have
// been seen, a page comes back empty, or a page comes back short. One
// dataset's failure is logged and skipped; pagination continues. It returns
// the successfully synced datasets and writes one cumulative sync log row.
func (s *Syncer) SyncByQuery(ctx context.Context, query string, limit int) ([]store.Dataset, error) {
	kind := store.SyncFull
	if query != "" {
		kind = store.SyncIncremental
	}

	start := time.Now().UTC()
	log, err := s.store.CreateSyncLog(ctx, store.SyncLog{
		ID:        uuid.New(),
		Kind:      kind,
		Status:    store.SyncStarted,
		Message:   fmt.Sprintf("sync query %q limit %d", query, limit),
		StartedAt: start,
	})
	if err != nil {
		return nil, fmt.Errorf("create sync log: %w", err)
	}

	var (
		synced         []store.Dataset
		resourcesTotal int
		failures       []string
		seen           int
	)

	for page := 1; seen < limit; page++ {
		pageSize := s.pageSize
		if remaining := limit - seen; remaining < pageSize {
			pageSize = remaining
		}

		result, err := s.catalog.SearchDatasets(ctx, query, page, pageSize, nil)
		if err != nil {
			s.finishFailed(ctx, log, err)
			return synced, err
		}
		if len(result.Data) == 0 {
			break
		}

		for _, payload := range result.Data {
			if seen >= limit {
				break
			}
			seen++

			ds, resourceCount, err := s.upsertDataset(ctx, payload)
			if err != nil {
				s.logger.Warn("dataset sync failed",
					zap.String("external_id", payload.ID),
					zap.Error(err),
				)
				failures = append(failures, fmt.Sprintf("%s: %v", payload.ID, err))
				metrics.ObserveDataset(string(store.SyncFailed))
				continue
			}
			synced = append(synced, ds)
			resourcesTotal += resourceCount
			metrics.ObserveDataset(string(store.SyncCompleted))
		}

		// A page shorter than the catalog's effective page size signals the end
		// of results. The catalog may cap page_size below what was requested,
		// so trust its declared size when it is smaller.
		fullSize := pageSize
		if result.PageSize > 0 && result.PageSize < fullSize {
			fullSize = result.PageSize
		}
		if len(result.Data) < fullSize {
			break
		}
	}

	log.Status = store.SyncCompleted
	log.DatasetsProcessed = len(synced)
	log.ResourcesProcessed = resourcesTotal
	log.ErrorDetails = strings.Join(failures, "; ")
	s.finish(ctx, log)

	metrics.ObserveSyncDuration(string(kind), time.Since(start))
	s.logger.Info("query sync finished",
		zap.String("query", query),
		zap.Int("datasets", len(synced)),
		zap.Int("resources", resourcesTotal),
		zap.Int("failures", len(failures)),
	)
	return synced, nil
}

// upsertDataset maps one catalog payload onto the store and syncs its nested
// resources. It returns the stored dataset and the number of resources
// synced.
func (s *Syncer) upsertDataset(ctx context.Context, payload catalog.DatasetPayload) (store.Dataset, int, error) {
	now := time.Now().UTC()

	organization := ""
	if payload.Organization != nil {
		organization = payload.Organization.Name
	}

	slugSource := payload.Slug
	if slugSource == "" {
		slugSource = payload.Title
	}

	ds, err := s.store.UpsertDataset(ctx, store.Dataset{
		ID:              uuid.New(),
		ExternalID:      payload.ID,
		Title:           payload.Title,
		Slug:            slug.Make(slugSource),
		Description:     payload.Description,
		Organization:    organization,
		Tags:            tagNames(payload.Tags),
		License:         payload.License,
		CreatedAtSource: s.parseTime(payload.CreatedAt),
		UpdatedAtSource: s.parseTime(payload.LastModified),
		IsActive:        true,
		LastSync:        &now,
	})
	if err != nil {
		return store.Dataset{}, 0, fmt.Errorf("upsert dataset %s: %w", payload.ID, err)
	}

	resourceCount := s.syncDatasetResources(ctx, ds, payload.Resources)
	return ds, resourceCount, nil
}

// syncDatasetResources upserts every resource payload of a dataset. A failure
// on one resource is logged and skipped; it never aborts its siblings.
func (s *Syncer) syncDatasetResources(ctx context.Context, ds store.Dataset, payloads []catalog.ResourcePayload) int {
	count := 0
	for _, payload := range payloads {
		_, err := s.store.UpsertResource(ctx, store.Resource{
			ID:              uuid.New(),
			DatasetID:       ds.ID,
			ExternalID:      payload.ID,
			Title:           payload.Title,
			Description:     payload.Description,
			URL:             payload.URL,
			Format:          strings.ToUpper(payload.Format),
			MimeType:        payload.Mime,
			FileSize:        payload.Filesize,
			CreatedAtSource: s.parseTime(payload.CreatedAt),
			UpdatedAtSource: s.parseTime(payload.LastModified),
		})
		if err != nil {
			s.logger.Warn("resource sync failed",
				zap.String("dataset", ds.ExternalID),
				zap.String("resource", payload.ID),
				zap.Error(err),
			)
			continue
		}
		count++
	}
	return count
}

// timeLayouts are tried in order when parsing catalog timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseTime parses an ISO-8601 timestamp. Empty or unparseable input yields
// nil with a logged warning; it never fails the caller.
func (s *Syncer) parseTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			ts = ts.UTC()
			return &ts
		}
	}
	s.logger.Warn("unparseable timestamp", zap.String("value", value))
	return nil
}

// finish persists the terminal sync log state and publishes the completion
// event. Neither failure aborts the sync result.
func (s *Syncer) finish(ctx context.Context, log store.SyncLog) {
	now := time.Now().UTC()
	log.CompletedAt = &now
	if err := s.store.FinishSyncLog(ctx, log); err != nil {
		s.logger.Error("finish sync log", zap.String("sync_log", log.ID.String()), zap.Error(err))
	}

	if _, err := s.publisher.Publish(ctx, s.topic, map[string]any{
		"sync_log_id": log.ID.String(),
		"kind":        string(log.Kind),
		"status":      string(log.Status),
		"datasets":    log.DatasetsProcessed,
		"resources":   log.ResourcesProcessed,
		"records":     log.RecordsCreated,
	}); err != nil {
		s.logger.Warn("publish sync event", zap.Error(err))
	}
}

func (s *Syncer) finishFailed(ctx context.Context, log store.SyncLog, cause error) {
	log.Status = store.SyncFailed
	log.ErrorDetails = cause.Error()
	s.finish(ctx, log)
}

func tagNames(tags []catalog.Tag) []string {
	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.Name)
	}
	return names
}
