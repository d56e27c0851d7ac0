package syncer_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opengouv/datasync/internal/catalog"
	notifymemory "github.com/opengouv/datasync/internal/notify/memory"
	"github.com/opengouv/datasync/internal/store"
	memorystore "github.com/opengouv/datasync/internal/store/memory"
	"github.com/opengouv/datasync/internal/syncer"
)

// fakeCatalog generates one payload per slot and records every search call.
type fakeCatalog struct {
	// serverPageSize caps how many rows one page returns, mirroring a catalog
	// that ignores larger requested sizes.
	serverPageSize int
	total          int
	searchCalls    int
	datasets       map[string]catalog.DatasetPayload
	err            error
}

func (c *fakeCatalog) SearchDatasets(_ context.Context, _ string, page, pageSize int, _ map[string]string) (catalog.SearchResult, error) {
	if c.err != nil {
		return catalog.SearchResult{}, c.err
	}
	c.searchCalls++

	effective := pageSize
	if c.serverPageSize > 0 && c.serverPageSize < effective {
		effective = c.serverPageSize
	}

	remaining := c.total - (c.searchCalls-1)*effective
	if remaining < 0 {
		remaining = 0
	}
	count := effective
	if remaining < count {
		count = remaining
	}

	data := make([]catalog.DatasetPayload, 0, count)
	for i := 0; i < count; i++ {
		data = append(data, catalog.DatasetPayload{
			ID:    fmt.Sprintf("ds-%d-%d", page, i),
			Title: fmt.Sprintf("Dataset %d %d", page, i),
		})
	}
	return catalog.SearchResult{Data: data, Page: page, PageSize: effective, Total: c.total}, nil
}

func (c *fakeCatalog) GetDataset(_ context.Context, externalID string) (catalog.DatasetPayload, error) {
	if c.err != nil {
		return catalog.DatasetPayload{}, c.err
	}
	payload, ok := c.datasets[externalID]
	if !ok {
		return catalog.DatasetPayload{}, &catalog.RequestError{URL: "datasets/" + externalID, StatusCode: 404}
	}
	return payload, nil
}

func fileSize(n int64) *int64 { return &n }

func budgetPayload() catalog.DatasetPayload {
	return catalog.DatasetPayload{
		ID:           "ds-1",
		Title:        "Budget de l'État",
		Description:  "yearly budget",
		Organization: &catalog.Organization{Name: "Ministère des Finances"},
		Tags:         []catalog.Tag{{Name: "budget"}, {Name: "finances"}},
		License:      "lov2",
		CreatedAt:    "2024-01-15T10:30:00+00:00",
		LastModified: "2024-06-01T08:00:00+00:00",
		Resources: []catalog.ResourcePayload{
			{
				ID:       "res-1",
				Title:    "budget.csv",
				URL:      "https://files.example.com/budget.csv",
				Format:   "csv",
				Mime:     "text/csv",
				Filesize: fileSize(1024),
			},
			{
				ID:     "res-2",
				Title:  "budget.json",
				URL:    "https://files.example.com/budget.json",
				Format: "json",
			},
		},
	}
}

func TestSyncSingleDataset(t *testing.T) {
	t.Parallel()

	st := memorystore.New()
	pub := notifymemory.New()
	cat := &fakeCatalog{datasets: map[string]catalog.DatasetPayload{"ds-1": budgetPayload()}}
	s := syncer.New(cat, st, pub, syncer.Config{}, zap.NewNop())

	ctx := context.Background()
	ds, err := s.SyncSingleDataset(ctx, "ds-1")
	require.NoError(t, err)

	assert.Equal(t, "ds-1", ds.ExternalID)
	assert.Equal(t, "budget-de-l-etat", ds.Slug)
	assert.Equal(t, "Ministère des Finances", ds.Organization)
	assert.Equal(t, []string{"budget", "finances"}, ds.Tags)
	require.NotNil(t, ds.CreatedAtSource)
	assert.Equal(t, 2024, ds.CreatedAtSource.Year())
	require.NotNil(t, ds.LastSync)

	resources, err := st.ListResources(ctx, ds.ID)
	require.NoError(t, err)
	require.Len(t, resources, 2)
	assert.Equal(t, "CSV", resources[0].Format)
	assert.Equal(t, "JSON", resources[1].Format)
	assert.Equal(t, int64(1024), *resources[0].FileSize)

	logs, err := st.ListSyncLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, store.SyncSingle, logs[0].Kind)
	assert.Equal(t, store.SyncCompleted, logs[0].Status)
	assert.Equal(t, 1, logs[0].DatasetsProcessed)
	assert.Equal(t, 2, logs[0].ResourcesProcessed)
	require.NotNil(t, logs[0].CompletedAt)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, syncer.DefaultTopic, msgs[0].Topic)
}

func TestSyncSingleDatasetFetchFailure(t *testing.T) {
	t.Parallel()

	st := memorystore.New()
	cat := &fakeCatalog{datasets: map[string]catalog.DatasetPayload{}}
	s := syncer.New(cat, st, nil, syncer.Config{}, zap.NewNop())

	ctx := context.Background()
	_, err := s.SyncSingleDataset(ctx, "missing")
	require.Error(t, err)

	var reqErr *catalog.RequestError
	assert.True(t, errors.As(err, &reqErr))

	logs, err := st.ListSyncLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, store.SyncFailed, logs[0].Status)
	assert.NotEmpty(t, logs[0].ErrorDetails)
}

func TestSyncSingleDatasetIsIdempotent(t *testing.T) {
	t.Parallel()

	st := memorystore.New()
	cat := &fakeCatalog{datasets: map[string]catalog.DatasetPayload{"ds-1": budgetPayload()}}
	s := syncer.New(cat, st, nil, syncer.Config{}, zap.NewNop())

	ctx := context.Background()
	first, err := s.SyncSingleDataset(ctx, "ds-1")
	require.NoError(t, err)
	second, err := s.SyncSingleDataset(ctx, "ds-1")
	require.NoError(t, err)

	// Same rows updated in place on the second pass.
	assert.Equal(t, first.ID, second.ID)
	resources, err := st.ListResources(ctx, first.ID)
	require.NoError(t, err)
	assert.Len(t, resources, 2)
}

func TestSyncByQueryPaginationHonorsLimit(t *testing.T) {
	t.Parallel()

	st := memorystore.New()
	cat := &fakeCatalog{serverPageSize: 5, total: 50}
	s := syncer.New(cat, st, nil, syncer.Config{}, zap.NewNop())

	synced, err := s.SyncByQuery(context.Background(), "budget", 7)
	require.NoError(t, err)

	// Two pages: 5 from the first, 2 from the second.
	assert.Len(t, synced, 7)
	assert.Equal(t, 2, cat.searchCalls)
}

func TestSyncByQueryStopsOnShortPage(t *testing.T) {
	t.Parallel()

	st := memorystore.New()
	cat := &fakeCatalog{total: 3}
	s := syncer.New(cat, st, nil, syncer.Config{}, zap.NewNop())

	synced, err := s.SyncByQuery(context.Background(), "", 100)
	require.NoError(t, err)
	assert.Len(t, synced, 3)
	assert.Equal(t, 1, cat.searchCalls)
}

func TestSyncByQueryStopsOnEmptyPage(t *testing.T) {
	t.Parallel()

	st := memorystore.New()
	cat := &fakeCatalog{total: 0}
	s := syncer.New(cat, st, nil, syncer.Config{}, zap.NewNop())

	synced, err := s.SyncByQuery(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, synced)
	assert.Equal(t, 1, cat.searchCalls)
}

func TestSyncByQueryWritesCumulativeLog(t *testing.T) {
	t.Parallel()

	st := memorystore.New()
	cat := &fakeCatalog{total: 4}
	s := syncer.New(cat, st, nil, syncer.Config{}, zap.NewNop())

	ctx := context.Background()
	_, err := s.SyncByQuery(ctx, "", 10)
	require.NoError(t, err)

	logs, err := st.ListSyncLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, store.SyncFull, logs[0].Kind)
	assert.Equal(t, store.SyncCompleted, logs[0].Status)
	assert.Equal(t, 4, logs[0].DatasetsProcessed)
}

func TestSyncByQuerySearchFailureMarksLogFailed(t *testing.T) {
	t.Parallel()

	st := memorystore.New()
	cat := &fakeCatalog{err: &catalog.RequestError{URL: "datasets/", StatusCode: 503}}
	s := syncer.New(cat, st, nil, syncer.Config{}, zap.NewNop())

	ctx := context.Background()
	_, err := s.SyncByQuery(ctx, "budget", 10)
	require.Error(t, err)

	logs, err := st.ListSyncLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, store.SyncFailed, logs[0].Status)
}

func TestSyncByQueryUsesIncrementalKindForQueries(t *testing.T) {
	t.Parallel()

	st := memorystore.New()
	cat := &fakeCatalog{total: 1}
	s := syncer.New(cat, st, nil, syncer.Config{}, zap.NewNop())

	ctx := context.Background()
	_, err := s.SyncByQuery(ctx, "transports", 5)
	require.NoError(t, err)

	logs, err := st.ListSyncLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, store.SyncIncremental, logs[0].Kind)
}
