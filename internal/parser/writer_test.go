package parser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opengouv/datasync/internal/store"
	memorystore "github.com/opengouv/datasync/internal/store/memory"
)

// failingSource returns one good row and then an error.
type failingSource struct {
	served bool
}

func (s *failingSource) Next() (Row, error) {
	if s.served {
		return nil, errors.New("corrupt row")
	}
	s.served = true
	return MappingRow{"a": "1"}, nil
}

func makeRows(n int) []Row {
	rows := make([]Row, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, MappingRow{"n": float64(i)})
	}
	return rows
}

func TestWriteRespectsRowCap(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		rows    int
		maxRows int
		want    int
	}{
		{"fewer rows than cap", 3, 10, 3},
		{"more rows than cap", 25, 10, 10},
		{"exactly at cap", 10, 10, 10},
		{"empty source", 0, 10, 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			st := memorystore.New()
			res := seedResource(t, st, "CSV")
			writer := NewBatchWriter(st, 4, zap.NewNop())

			written, err := writer.Write(context.Background(), res, newSliceSource(makeRows(tc.rows)), tc.maxRows)
			require.NoError(t, err)
			assert.Equal(t, tc.want, written)

			count, err := st.CountDataRecords(context.Background(), res.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.want, count)
		})
	}
}

func TestWriteMarksResourceCompleted(t *testing.T) {
	t.Parallel()

	st := memorystore.New()
	res := seedResource(t, st, "CSV")
	writer := NewBatchWriter(st, 100, zap.NewNop())

	_, err := writer.Write(context.Background(), res, newSliceSource(makeRows(5)), 100)
	require.NoError(t, err)

	loaded, err := st.GetResource(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, loaded.ProcessingStatus)
	assert.True(t, loaded.IsProcessed)
	assert.Empty(t, loaded.ProcessingError)
	assert.NotNil(t, loaded.LastProcessed)
}

func TestWriteMarksResourceFailedOnSourceError(t *testing.T) {
	t.Parallel()

	st := memorystore.New()
	res := seedResource(t, st, "CSV")
	writer := NewBatchWriter(st, 100, zap.NewNop())

	_, err := writer.Write(context.Background(), res, &failingSource{}, 100)
	require.Error(t, err)

	loaded, err := st.GetResource(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, loaded.ProcessingStatus)
	assert.False(t, loaded.IsProcessed)
	assert.Contains(t, loaded.ProcessingError, "corrupt row")
}

func TestWriteRerunDoesNotDuplicateRows(t *testing.T) {
	t.Parallel()

	st := memorystore.New()
	res := seedResource(t, st, "CSV")
	writer := NewBatchWriter(st, 4, zap.NewNop())
	ctx := context.Background()

	_, err := writer.Write(ctx, res, newSliceSource(makeRows(7)), 100)
	require.NoError(t, err)

	// Re-running the same parse hits the (resource, row_number) constraint.
	_, err = writer.Write(ctx, res, newSliceSource(makeRows(7)), 100)
	require.NoError(t, err)

	count, err := st.CountDataRecords(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestWriteUnknownResource(t *testing.T) {
	t.Parallel()

	st := memorystore.New()
	writer := NewBatchWriter(st, 4, zap.NewNop())

	_, err := writer.Write(context.Background(), store.Resource{}, newSliceSource(nil), 10)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
