package archive_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opengouv/datasync/internal/archive"
)

func TestNewLocal(t *testing.T) {
	t.Run("ValidDir", func(t *testing.T) {
		provider, err := archive.NewLocal(t.TempDir(), "resources")
		require.NoError(t, err)
		assert.NotNil(t, provider)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := archive.NewLocal("", "resources")
		assert.Error(t, err)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		base := filepath.Join(t.TempDir(), "nested", "archive")
		_, err := archive.NewLocal(base, "")
		require.NoError(t, err)

		info, err := os.Stat(base)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		tempFile, err := os.CreateTemp(t.TempDir(), "testfile")
		require.NoError(t, err)
		require.NoError(t, tempFile.Close())

		_, err = archive.NewLocal(tempFile.Name(), "")
		assert.Error(t, err)
	})
}

func TestLocalSave(t *testing.T) {
	tempDir := t.TempDir()
	provider, err := archive.NewLocal(tempDir, "resources")
	require.NoError(t, err)

	t.Run("ValidSave", func(t *testing.T) {
		key := "abc-123/deadbeef.csv"
		data := []byte("col_a,col_b\n1,2\n")
		uri, err := provider.Save(context.Background(), key, "text/csv", data)
		require.NoError(t, err)

		expectedPath := filepath.Join(tempDir, "resources", key)
		assert.Equal(t, "file://"+expectedPath, uri)

		// #nosec G304 -- test reads from the controlled temp directory.
		readData, err := os.ReadFile(expectedPath)
		require.NoError(t, err)
		assert.Equal(t, data, readData)
	})

	t.Run("EmptyKey", func(t *testing.T) {
		_, err := provider.Save(context.Background(), "", "text/csv", []byte("data"))
		assert.Error(t, err)
	})

	t.Run("PathTraversal", func(t *testing.T) {
		_, err := provider.Save(context.Background(), "../../../etc/escape", "", []byte("data"))
		assert.Error(t, err)
	})
}

func TestNoOpProvider(t *testing.T) {
	provider := &archive.NoOpProvider{}
	uri, err := provider.Save(context.Background(), "any/key", "text/plain", []byte("data"))
	require.NoError(t, err)
	assert.Empty(t, uri)
	assert.NoError(t, provider.Close())
}
