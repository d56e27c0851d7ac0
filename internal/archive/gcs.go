package archive

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
)

// GCSProvider writes archived downloads to a Google Cloud Storage bucket.
type GCSProvider struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCS creates a GCS-backed archive. The prefix is prepended to every key.
func NewGCS(client *storage.Client, bucket, prefix string) (*GCSProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &GCSProvider{client: client, bucket: bucket, prefix: prefix}, nil
}

// Save uploads data to the configured bucket and returns a gs:// URI.
func (p *GCSProvider) Save(ctx context.Context, key string, contentType string, data []byte) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}
	objectName := key
	if p.prefix != "" {
		objectName = p.prefix + "/" + key
	}

	writer := p.client.Bucket(p.bucket).Object(objectName).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := writer.Write(data); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", p.bucket, objectName), nil
}

// Close closes the underlying storage client.
func (p *GCSProvider) Close() error {
	return p.client.Close()
}
