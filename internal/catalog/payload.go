// Package catalog implements the client for the remote open-data catalog API.
package catalog

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Organization is the nested owner object on a dataset payload.
type Organization struct {
	Name string `json:"name"`
}

// Tag accepts both the bare-string and the object form the catalog emits
// ("tag" or {"name": "tag"}).
type Tag struct {
	Name string
}

// UnmarshalJSON decodes either a JSON string or an object with a name field.
func (t *Tag) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.Name = s
		return nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode tag: %w", err)
	}
	t.Name = obj.Name
	return nil
}

// ResourcePayload is one downloadable file description within a dataset payload.
type ResourcePayload struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	URL          string `json:"url"`
	Format       string `json:"format"`
	Mime         string `json:"mime"`
	Filesize     *int64 `json:"filesize"`
	CreatedAt    string `json:"created_at"`
	LastModified string `json:"last_modified"`
}

// DatasetPayload is the catalog's representation of a dataset, as returned by
// both the search and the detail endpoints.
type DatasetPayload struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Slug         string            `json:"slug"`
	Description  string            `json:"description"`
	Organization *Organization     `json:"organization"`
	Tags         []Tag             `json:"tags"`
	License      string            `json:"license"`
	CreatedAt    string            `json:"created_at"`
	LastModified string            `json:"last_modified"`
	Resources    []ResourcePayload `json:"resources"`
}

// SearchResult is one page of dataset search results.
type SearchResult struct {
	Data     []DatasetPayload `json:"data"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Total    int              `json:"total"`
}

// Download is the body of a fetched resource file plus its declared content type.
type Download struct {
	Body        []byte
	ContentType string
}
