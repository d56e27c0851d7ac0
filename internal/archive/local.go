package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalProvider writes archived downloads to the local filesystem.
type LocalProvider struct {
	baseDir string
	prefix  string
}

// NewLocal creates a filesystem-backed archive rooted at baseDir. The prefix
// is prepended to every key.
func NewLocal(baseDir, prefix string) (*LocalProvider, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(baseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(baseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	return &LocalProvider{baseDir: baseDir, prefix: prefix}, nil
}

// Save writes data to a file under the base directory and returns a file://
// URI. Keys that would escape the base directory are rejected.
func (p *LocalProvider) Save(_ context.Context, key string, _ string, data []byte) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}

	fullPath := filepath.Join(p.baseDir, p.prefix, key)

	cleanBase := filepath.Clean(p.baseDir)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("create parent directories: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o600); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return fmt.Sprintf("file://%s", fullPath), nil
}

// Close for LocalProvider does nothing.
func (p *LocalProvider) Close() error { return nil }
