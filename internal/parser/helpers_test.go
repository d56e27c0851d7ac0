package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opengouv/datasync/internal/catalog"
	"github.com/opengouv/datasync/internal/store"
	memorystore "github.com/opengouv/datasync/internal/store/memory"
)

// stubDownloader serves a fixed body for every URL.
type stubDownloader struct {
	body        []byte
	contentType string
	err         error
}

func (d *stubDownloader) DownloadResource(_ context.Context, _ string) (catalog.Download, error) {
	if d.err != nil {
		return catalog.Download{}, d.err
	}
	return catalog.Download{Body: d.body, ContentType: d.contentType}, nil
}

// seedResource creates a dataset with one resource in the given format.
func seedResource(t *testing.T, st *memorystore.Store, format string) store.Resource {
	t.Helper()
	ctx := context.Background()

	ds, err := st.UpsertDataset(ctx, store.Dataset{ExternalID: "ds-1", Title: "Budget", Slug: "budget"})
	require.NoError(t, err)

	res, err := st.UpsertResource(ctx, store.Resource{
		DatasetID:  ds.ID,
		ExternalID: "res-1",
		Title:      "budget file",
		URL:        "https://files.example.com/budget",
		Format:     format,
	})
	require.NoError(t, err)
	return res
}

func testDeps(st *memorystore.Store, dl *stubDownloader, batchSize int) Deps {
	return Deps{
		Downloader: dl,
		Writer:     NewBatchWriter(st, batchSize, zap.NewNop()),
		Logger:     zap.NewNop(),
	}
}
