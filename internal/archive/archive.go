// Package archive stores raw resource downloads in a blob store. This
// abstraction allows the application to be independent of a specific storage
// implementation (e.g., Google Cloud Storage or the local filesystem).
package archive

import (
	"context"
)

// Provider defines the common interface for an archive backend. It abstracts
// the operation of saving one downloaded file.
type Provider interface {
	// Save writes data under the given key and returns the URI of the stored
	// object.
	Save(ctx context.Context, key string, contentType string, data []byte) (string, error)

	// Close releases backend resources.
	Close() error
}

// NoOpProvider is an archive provider that performs no operations. It is
// useful when archiving is disabled or in a dry-run mode where files are
// parsed but not retained.
type NoOpProvider struct{}

// Save for NoOpProvider does nothing and reports an empty URI.
func (n *NoOpProvider) Save(_ context.Context, _ string, _ string, _ []byte) (string, error) {
	return "", nil
}

// Close for NoOpProvider does nothing.
func (n *NoOpProvider) Close() error { return nil }
