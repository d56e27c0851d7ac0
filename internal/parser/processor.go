package parser

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/opengouv/datasync/internal/archive"
	"github.com/opengouv/datasync/internal/metrics"
	"github.com/opengouv/datasync/internal/store"
)

// ResourceError describes one resource's processing failure inside a dataset
// batch.
type ResourceError struct {
	ResourceExternalID string
	ResourceTitle      string
	Error              string
}

// DatasetResult accumulates the outcome of processing a dataset's resources.
type DatasetResult struct {
	ProcessedResources int
	TotalRecords       int
	Errors             []ResourceError
}

// Processor drives resource-level parsing: format dispatch, short-circuits,
// and per-resource failure isolation.
type Processor struct {
	store  store.Store
	deps   Deps
	logger *zap.Logger
}

// NewProcessor constructs a Processor.
func NewProcessor(
	st store.Store,
	downloader Downloader,
	arch archive.Provider,
	batchSize int,
	logger *zap.Logger,
) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		store: st,
		deps: Deps{
			Downloader: downloader,
			Archive:    arch,
			Writer:     NewBatchWriter(st, batchSize, logger.Named("writer")),
			Logger:     logger,
		},
		logger: logger,
	}
}

// ProcessResource parses one resource into data records. Unsupported formats
// are a logged no-op that marks the resource failed and returns 0; an already
// processed resource returns its existing record count without re-parsing.
// Any parser error is recorded on the resource and returned to the caller.
func (p *Processor) ProcessResource(ctx context.Context, res store.Resource, maxRows int) (int, error) {
	format, err := ParseFormat(res.Format)
	if err != nil {
		p.logger.Warn("unsupported resource format",
			zap.String("resource", res.Title),
			zap.String("format", res.Format),
		)
		if markErr := p.store.MarkResourceFailed(ctx, res.ID, err.Error()); markErr != nil {
			p.logger.Error("mark resource failed", zap.String("resource", res.Title), zap.Error(markErr))
		}
		metrics.ObserveResource(res.Format, string(store.StatusFailed))
		return 0, nil
	}

	if res.IsProcessed {
		p.logger.Info("resource already processed", zap.String("resource", res.Title))
		count, err := p.store.CountDataRecords(ctx, res.ID)
		if err != nil {
			return 0, fmt.Errorf("count existing records: %w", err)
		}
		return count, nil
	}

	impl, err := ParserFor(format, p.deps)
	if err != nil {
		return 0, err
	}

	count, err := impl.ParseAndStore(ctx, res, maxRows)
	if err != nil {
		p.logger.Error("resource processing failed",
			zap.String("resource", res.Title),
			zap.Error(err),
		)
		if markErr := p.store.MarkResourceFailed(ctx, res.ID, err.Error()); markErr != nil {
			p.logger.Error("mark resource failed", zap.String("resource", res.Title), zap.Error(markErr))
		}
		metrics.ObserveResource(res.Format, string(store.StatusFailed))
		return count, err
	}

	metrics.ObserveResource(res.Format, string(store.StatusCompleted))
	p.logger.Info("resource processed",
		zap.String("resource", res.Title),
		zap.Int("records", count),
	)
	return count, nil
}

// ProcessDatasetResources processes every resource of a dataset independently;
// one resource's failure never stops processing of the rest. It returns
// store.ErrNotFound when the dataset external id is unknown.
func (p *Processor) ProcessDatasetResources(
	ctx context.Context,
	datasetExternalID string,
	maxRows int,
) (DatasetResult, error) {
	ds, err := p.store.GetDatasetByExternalID(ctx, datasetExternalID)
	if err != nil {
		return DatasetResult{}, fmt.Errorf("dataset %s: %w", datasetExternalID, err)
	}

	resources, err := p.store.ListResources(ctx, ds.ID)
	if err != nil {
		return DatasetResult{}, fmt.Errorf("list resources: %w", err)
	}

	var result DatasetResult
	for _, res := range resources {
		count, err := p.ProcessResource(ctx, res, maxRows)
		if err != nil {
			result.Errors = append(result.Errors, ResourceError{
				ResourceExternalID: res.ExternalID,
				ResourceTitle:      res.Title,
				Error:              err.Error(),
			})
			continue
		}
		result.ProcessedResources++
		result.TotalRecords += count
	}
	return result, nil
}
