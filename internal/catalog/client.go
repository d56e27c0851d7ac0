package catalog

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/opengouv/datasync/internal/metrics"
)

// RequestError reports a transport failure or a non-2xx response from the
// catalog or a file host. It is never swallowed at the client layer.
type RequestError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("catalog request %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("catalog request %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *RequestError) Unwrap() error { return e.Err }

// ClientConfig controls catalog client behavior.
type ClientConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Client issues blocking GET requests against the catalog API. It performs no
// retries and no caching; callers decide whether a failure is fatal.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewClient builds a Client from the given config.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	restClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("User-Agent", cfg.UserAgent).
		SetTimeout(timeout)
	return &Client{http: restClient, logger: logger}
}

// SearchDatasets fetches one page of dataset search results.
func (c *Client) SearchDatasets(
	ctx context.Context,
	query string,
	page, pageSize int,
	extra map[string]string,
) (SearchResult, error) {
	params := map[string]string{
		"q":         query,
		"page":      strconv.Itoa(page),
		"page_size": strconv.Itoa(pageSize),
	}
	for k, v := range extra {
		params[k] = v
	}

	body, err := c.get(ctx, "datasets/", params)
	if err != nil {
		return SearchResult{}, err
	}

	var result SearchResult
	if err := json.Unmarshal(body, &result); err != nil {
		return SearchResult{}, fmt.Errorf("decode search response: %w", err)
	}
	return result, nil
}

// GetDataset fetches a single dataset payload by its catalog identifier.
func (c *Client) GetDataset(ctx context.Context, externalID string) (DatasetPayload, error) {
	body, err := c.get(ctx, fmt.Sprintf("datasets/%s/", externalID), nil)
	if err != nil {
		return DatasetPayload{}, err
	}

	var payload DatasetPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return DatasetPayload{}, fmt.Errorf("decode dataset payload: %w", err)
	}
	return payload, nil
}

// DownloadResource fetches the raw bytes of a resource file from its URL.
// The URL is absolute and may point at an arbitrary file host.
func (c *Client) DownloadResource(ctx context.Context, url string) (Download, error) {
	resp, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return Download{}, &RequestError{URL: url, Err: err}
	}
	if resp.IsError() {
		return Download{}, &RequestError{URL: url, StatusCode: resp.StatusCode()}
	}
	c.logger.Debug("resource downloaded",
		zap.String("url", url),
		zap.Int("bytes", len(resp.Body())),
	)
	return Download{
		Body:        resp.Body(),
		ContentType: resp.Header().Get("Content-Type"),
	}, nil
}

func (c *Client) get(ctx context.Context, path string, params map[string]string) ([]byte, error) {
	req := c.http.R().SetContext(ctx)
	if params != nil {
		req.SetQueryParams(params)
	}
	resp, err := req.Get(path)
	if err != nil {
		return nil, &RequestError{URL: path, Err: err}
	}
	metrics.ObserveCatalogRequest(resp.StatusCode())
	if resp.IsError() {
		return nil, &RequestError{URL: resp.Request.URL, StatusCode: resp.StatusCode()}
	}
	return resp.Body(), nil
}
