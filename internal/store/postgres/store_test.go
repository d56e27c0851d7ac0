package postgres

import (
	"context"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opengouv/datasync/internal/store"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	st, err := NewWithPool(mock)
	require.NoError(t, err)
	return st, mock
}

func TestUpsertDatasetReturnsStoredRow(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)

	now := time.Unix(1700000000, 0).UTC()
	id := uuid.New()
	tagsJSON, err := json.Marshal([]string{"budget", "open-data"})
	require.NoError(t, err)

	mock.ExpectQuery("INSERT INTO datasets").
		WithArgs(
			id,
			"ext-1",
			"Budget 2024",
			"budget-2024",
			"yearly budget",
			"Ministry of Finance",
			tagsJSON,
			"lov2",
			&now,
			&now,
			&now,
		).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "external_id", "title", "slug", "description", "organization", "tags", "license",
			"created_at_source", "updated_at_source", "created_at", "updated_at", "is_active", "last_sync",
		}).AddRow(
			id, "ext-1", "Budget 2024", "budget-2024", "yearly budget", "Ministry of Finance",
			tagsJSON, "lov2", &now, &now, now, now, true, &now,
		))

	stored, err := st.UpsertDataset(context.Background(), store.Dataset{
		ID:              id,
		ExternalID:      "ext-1",
		Title:           "Budget 2024",
		Slug:            "budget-2024",
		Description:     "yearly budget",
		Organization:    "Ministry of Finance",
		Tags:            []string{"budget", "open-data"},
		License:         "lov2",
		CreatedAtSource: &now,
		UpdatedAtSource: &now,
		LastSync:        &now,
	})
	require.NoError(t, err)
	assert.Equal(t, "ext-1", stored.ExternalID)
	assert.Equal(t, []string{"budget", "open-data"}, stored.Tags)
	assert.True(t, stored.IsActive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDatasetByExternalIDNotFound(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM datasets").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := st.GetDatasetByExternalID(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkResourceProcessedUnknownID(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)

	resourceID := uuid.New()
	processedAt := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("UPDATE resources").
		WithArgs(store.StatusCompleted, processedAt, resourceID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := st.MarkResourceProcessed(context.Background(), resourceID, processedAt)
	assert.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkResourceFailedStoresError(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)

	resourceID := uuid.New()
	mock.ExpectExec("UPDATE resources").
		WithArgs(store.StatusFailed, "boom", resourceID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := st.MarkResourceFailed(context.Background(), resourceID, "boom")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertDataRecordsReportsInsertedCount(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)

	resourceID := uuid.New()
	records := []store.DataRecord{
		{ID: uuid.New(), ResourceID: resourceID, RowNumber: 1, Data: map[string]any{"a": "1"}},
		{ID: uuid.New(), ResourceID: resourceID, RowNumber: 2, Data: map[string]any{"a": "2"}},
	}

	// One row already exists; ON CONFLICT DO NOTHING reports a single insert.
	mock.ExpectExec("INSERT INTO data_records").
		WithArgs(
			records[0].ID, resourceID, 1, []byte(`{"a":"1"}`),
			records[1].ID, resourceID, 2, []byte(`{"a":"2"}`),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	inserted, err := st.InsertDataRecords(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertDataRecordsEmptyBatch(t *testing.T) {
	t.Parallel()

	st, _ := newMockStore(t)

	inserted, err := st.InsertDataRecords(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, inserted)
}

func TestSyncLogLifecycle(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)

	logID := uuid.New()
	started := time.Unix(1700000000, 0).UTC()
	completed := started.Add(time.Minute)

	mock.ExpectExec("INSERT INTO sync_logs").
		WithArgs(logID, store.SyncFull, store.SyncStarted, "full sync", started).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	log, err := st.CreateSyncLog(context.Background(), store.SyncLog{
		ID:        logID,
		Kind:      store.SyncFull,
		Status:    store.SyncStarted,
		Message:   "full sync",
		StartedAt: started,
	})
	require.NoError(t, err)

	log.Status = store.SyncCompleted
	log.DatasetsProcessed = 3
	log.ResourcesProcessed = 7
	log.RecordsCreated = 42
	log.CompletedAt = &completed

	mock.ExpectExec("UPDATE sync_logs").
		WithArgs(store.SyncCompleted, 3, 7, 42, "full sync", "", &completed, logID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, st.FinishSyncLog(context.Background(), log))

	mock.ExpectQuery("SELECT (.+) FROM sync_logs").
		WithArgs(logID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "kind", "status", "datasets_processed", "resources_processed", "records_created",
			"message", "error_details", "started_at", "completed_at",
		}).AddRow(
			logID, store.SyncFull, store.SyncCompleted, 3, 7, 42, "full sync", "", started, &completed,
		))

	loaded, err := st.GetSyncLog(context.Background(), logID)
	require.NoError(t, err)
	assert.Equal(t, store.SyncCompleted, loaded.Status)
	assert.Equal(t, 42, loaded.RecordsCreated)
	require.NoError(t, mock.ExpectationsWereMet())
}
