// Package catalog is a typed client for the object and file catalog API.
// The evaluator uses it to resolve object-set membership; the execution
// shim uses it, with a capability token, to fetch input files and upload
// raw output.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/config"
)

// Object is one catalog object as the scheduler sees it: an opaque key, a
// type, and the clearance level an operator granted it.
type Object struct {
	Key       string `json:"key"`
	Type      string `json:"type"`
	Clearance int    `json:"clearance"`
}

// File references an uploaded raw-output file.
type File struct {
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// APIError is a non-2xx response from the catalog.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("catalog API error %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a catalog 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to the catalog API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a catalog client authenticated with the given bearer token.
func New(cfg *config.CatalogConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.ServiceToken,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// NewWithToken creates a catalog client for a one-off token, typically a
// per-task capability token.
func NewWithToken(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// QueryObjects returns objects of the given type whose clearance is at
// least minClearance. A non-empty query narrows the result with a stored
// filter predicate the catalog evaluates; the scheduler treats it as
// opaque.
func (c *Client) QueryObjects(ctx context.Context, objectType, query string, minClearance int) ([]Object, error) {
	params := url.Values{}
	params.Set("type", objectType)
	params.Set("min_clearance", strconv.Itoa(minClearance))
	if query != "" {
		params.Set("query", query)
	}

	var objects []Object
	if err := c.get(ctx, "/api/v1/objects?"+params.Encode(), &objects); err != nil {
		return nil, err
	}
	return objects, nil
}

// GetObjects returns the objects with the given keys. Keys the catalog does
// not know are absent from the result, not an error.
func (c *Client) GetObjects(ctx context.Context, objectType string, keys []string) ([]Object, error) {
	body, err := json.Marshal(map[string]any{"type": objectType, "keys": keys})
	if err != nil {
		return nil, err
	}

	var objects []Object
	if err := c.do(ctx, http.MethodPost, "/api/v1/objects/lookup", bytes.NewReader(body), &objects); err != nil {
		return nil, err
	}
	return objects, nil
}

// CreateFile uploads raw content and returns the stored file reference.
func (c *Client) CreateFile(ctx context.Context, name, fileType string, content io.Reader) (*File, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/files", content)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-File-Name", name)
	req.Header.Set("X-File-Type", fileType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, readAPIError(resp)
	}

	var file File
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode file response: %w", err)
	}
	return &file, nil
}

// DownloadFile streams the content of a stored file. The caller must close
// the returned reader.
func (c *Client) DownloadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/files/"+url.PathEscape(key), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, readAPIError(resp)
	}
	return resp.Body, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode catalog response: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error.Message != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: payload.Error.Message}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
}
