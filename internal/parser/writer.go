package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/opengouv/datasync/internal/metrics"
	"github.com/opengouv/datasync/internal/store"
)

// DefaultBatchSize is the number of records buffered before a flush.
const DefaultBatchSize = 100

// BatchWriter consumes a row source, normalizes each row, and persists the
// records in fixed-size batches while driving the resource's processing-status
// state machine.
type BatchWriter struct {
	store     store.Store
	batchSize int
	logger    *zap.Logger
}

// NewBatchWriter constructs a BatchWriter. A batchSize <= 0 falls back to
// DefaultBatchSize.
func NewBatchWriter(st store.Store, batchSize int, logger *zap.Logger) *BatchWriter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchWriter{store: st, batchSize: batchSize, logger: logger}
}

// Write drains src into the store, stopping once maxRows records have been
// buffered. The resource is moved to processing before the first row, to
// completed on success, and to failed on any error during the loop. The
// returned count is the number of rows actually flushed; inserts ignore
// (resource, row_number) conflicts so re-runs never duplicate rows.
func (w *BatchWriter) Write(ctx context.Context, res store.Resource, src RowSource, maxRows int) (int, error) {
	if err := w.store.SetResourceProcessing(ctx, res.ID); err != nil {
		return 0, fmt.Errorf("mark resource processing: %w", err)
	}

	written := 0
	batch := make([]store.DataRecord, 0, w.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := w.store.InsertDataRecords(ctx, batch); err != nil {
			return fmt.Errorf("flush batch: %w", err)
		}
		written += len(batch)
		w.logger.Debug("records flushed",
			zap.String("resource", res.Title),
			zap.Int("written", written),
		)
		batch = batch[:0]
		return nil
	}

	writeErr := func() error {
		rowNumber := 0
		for written+len(batch) < maxRows {
			row, err := src.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			rowNumber++
			batch = append(batch, store.DataRecord{
				ResourceID: res.ID,
				RowNumber:  rowNumber,
				Data:       row.Normalize(),
			})
			if len(batch) >= w.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return nil
	}()
	if writeErr == nil {
		writeErr = flush()
	}

	if writeErr != nil {
		if markErr := w.store.MarkResourceFailed(ctx, res.ID, writeErr.Error()); markErr != nil {
			w.logger.Error("mark resource failed", zap.String("resource", res.Title), zap.Error(markErr))
		}
		w.logger.Error("record write loop failed", zap.String("resource", res.Title), zap.Error(writeErr))
		return written, writeErr
	}

	if err := w.store.MarkResourceProcessed(ctx, res.ID, time.Now().UTC()); err != nil {
		return written, fmt.Errorf("mark resource processed: %w", err)
	}

	metrics.AddRecordsWritten(written)
	w.logger.Info("records written",
		zap.String("resource", res.Title),
		zap.Int("count", written),
	)
	return written, nil
}
