package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tankobon/internal/progress"
)

// HTTPDoer issues HTTP requests.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// StatusError is a non-2xx daemon reply.
type StatusError struct {
	Code    int
	Message string
	// Unresolved is set when an add request names unknown tags.
	Unresolved []string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned %d", e.Code)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// Client provides typed access to the daemon HTTP API.
type Client struct {
	base   string
	source string
	token  string
	doer   HTTPDoer
}

// NewClient connects to the API at baseURL for the named source. A nil doer
// uses an http.Client with a 30 second timeout.
func NewClient(baseURL, sourceName, token string, doer HTTPDoer) *Client {
	if doer == nil {
		doer = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		source: url.PathEscape(sourceName),
		token:  token,
		doer:   doer,
	}
}

// Add submits an acquisition.
func (c *Client) Add(ctx context.Context, req AddRequest) (*AddResponse, error) {
	var resp AddResponse
	if err := c.do(ctx, http.MethodPost, "/api/documents/"+c.source+"/add", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MissingTags lists the record's tags absent from the catalog.
func (c *Client) MissingTags(ctx context.Context, sourceID string) ([]MissingTag, error) {
	var out []MissingTag
	path := "/api/tags/" + c.source + "/missing_tags?source_document_id=" + url.QueryEscape(sourceID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TagGroups lists catalog tag groups.
func (c *Client) TagGroups(ctx context.Context) ([]TagGroup, error) {
	var out []TagGroup
	if err := c.do(ctx, http.MethodGet, "/api/tags/groups", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Status returns every tracked job.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StatusEntry returns one job's progress.
func (c *Client) StatusEntry(ctx context.Context, label string) (*progress.Entry, error) {
	var out progress.Entry
	if err := c.do(ctx, http.MethodGet, "/api/status/"+url.PathEscape(label), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClearStatus removes a job's progress entry.
func (c *Client) ClearStatus(ctx context.Context, label string) error {
	return c.do(ctx, http.MethodDelete, "/api/status/"+url.PathEscape(label), nil, nil)
}

// DownloadURLs maps fragment names to URLs.
func (c *Client) DownloadURLs(ctx context.Context, sourceID string) (map[string]string, error) {
	out := map[string]string{}
	path := "/api/site/" + c.source + "/download_urls?source_document_id=" + url.QueryEscape(sourceID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Pending lists documents whose commit did not finish.
func (c *Client) Pending(ctx context.Context) ([]Document, error) {
	var out []Document
	if err := c.do(ctx, http.MethodGet, "/api/documents/pending", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Document returns the catalogued document linked to a source identifier.
func (c *Client) Document(ctx context.Context, sourceID string) (*DocumentDetail, error) {
	var out DocumentDetail
	if err := c.do(ctx, http.MethodGet, "/api/documents/"+c.source+"/get/"+url.PathEscape(sourceID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Search queries the source.
func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	var out []SearchResult
	path := "/api/documents/" + c.source + "/search?q=" + url.QueryEscape(query)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, dst any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return fmt.Errorf("daemon request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if dst == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	se := &StatusError{Code: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var add AddResponse
	if json.Unmarshal(data, &add) == nil && (add.Message != "" || len(add.Unresolved) > 0) {
		se.Message = add.Message
		se.Unresolved = add.Unresolved
		return se
	}
	var payload ErrorResponse
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		se.Message = payload.Error
		return se
	}
	se.Message = strings.TrimSpace(string(data))
	return se
}
