package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"tankobon/internal/config"
	"tankobon/internal/services"
)

// ErrTooManyResults is returned by Search when a query matches more documents
// than the configured maximum.
var ErrTooManyResults = errors.New("too many search results")

// Resolver looks up document metadata and fragment download locations.
type Resolver interface {
	Resolve(ctx context.Context, id string) (*Record, error)
	FragmentURLs(ctx context.Context, fragments []Fragment) (map[string]string, error)
}

// HTTPDoer describes the HTTP client used by the resolver.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client resolves documents against the remote gallery service.
type Client struct {
	baseURL    string
	referer    string
	userAgent  string
	qualifier  string
	maxResults int
	client     HTTPDoer

	mu      sync.RWMutex
	routing *routingPayload
}

// NewClient constructs a resolver from configuration. A nil doer selects an
// http.Client using the configured request timeout.
func NewClient(cfg *config.Config, doer HTTPDoer) *Client {
	if doer == nil {
		doer = &http.Client{Timeout: cfg.RequestTimeout()}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.Source.BaseURL, "/"),
		referer:    cfg.Source.Referer,
		userAgent:  cfg.Source.UserAgent,
		qualifier:  cfg.Source.LanguageQualifier,
		maxResults: cfg.Source.MaxSearchResults,
		client:     doer,
	}
}

// Resolve fetches the record for id. Unknown ids yield services.ErrNotFound;
// network and decoding problems yield services.ErrTransport.
func (c *Client) Resolve(ctx context.Context, id string) (*Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, services.Wrap(services.ErrNotFound, "", "resolve", "empty source identifier", nil)
	}
	var payload galleryPayload
	if err := c.getJSON(ctx, "/galleries/"+url.PathEscape(id)+".json", &payload); err != nil {
		return nil, err
	}
	return payload.record(id), nil
}

// FragmentURLs maps each fragment name to its download URL using the current
// routing table, loading it first if no refresh has happened yet.
func (c *Client) FragmentURLs(ctx context.Context, fragments []Fragment) (map[string]string, error) {
	routing, err := c.currentRouting(ctx)
	if err != nil {
		return nil, err
	}
	urls := make(map[string]string, len(fragments))
	for _, f := range fragments {
		if f.Hash == "" {
			return nil, services.Wrap(services.ErrTransport, "", "fragment urls", fmt.Sprintf("fragment %q has no hash", f.Name), nil)
		}
		urls[f.Name] = routing.fragmentURL(f)
	}
	return urls, nil
}

// Refresh reloads the routing table.
func (c *Client) Refresh(ctx context.Context) error {
	var payload routingPayload
	if err := c.getJSON(ctx, "/routing.json", &payload); err != nil {
		return err
	}
	if len(payload.Hosts) == 0 {
		return services.Wrap(services.ErrTransport, "", "refresh routing", "routing table lists no hosts", nil)
	}
	for i, host := range payload.Hosts {
		payload.Hosts[i] = strings.TrimRight(strings.TrimSpace(host), "/")
	}
	c.mu.Lock()
	c.routing = &payload
	c.mu.Unlock()
	return nil
}

// RoutingVersion reports the loaded routing table version, or "" before the
// first refresh.
func (c *Client) RoutingVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.routing == nil {
		return ""
	}
	return c.routing.Version
}

// Search returns the records matching query, restricted by the configured
// language qualifier. More than the configured maximum yields
// ErrTooManyResults; no matches yield services.ErrNotFound.
func (c *Client) Search(ctx context.Context, query string) ([]*Record, error) {
	terms := strings.TrimSpace(query)
	if c.qualifier != "" {
		terms = strings.TrimSpace(terms + " " + c.qualifier)
	}
	var payload searchPayload
	if err := c.getJSON(ctx, "/search.json?q="+url.QueryEscape(terms), &payload); err != nil {
		return nil, err
	}
	if len(payload.IDs) == 0 {
		return nil, services.Wrap(services.ErrNotFound, "", "search", fmt.Sprintf("no results for %q", terms), nil)
	}
	if c.maxResults > 0 && len(payload.IDs) > c.maxResults {
		return nil, fmt.Errorf("%w: %d results exceed limit %d", ErrTooManyResults, len(payload.IDs), c.maxResults)
	}
	records := make([]*Record, 0, len(payload.IDs))
	for _, id := range payload.IDs {
		rec, err := c.Resolve(ctx, string(id))
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (c *Client) currentRouting(ctx context.Context) (*routingPayload, error) {
	c.mu.RLock()
	routing := c.routing
	c.mu.RUnlock()
	if routing != nil {
		return routing, nil
	}
	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.routing, nil
}

func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return services.Wrap(services.ErrTransport, "", "build request", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.referer != "" {
		req.Header.Set("Referer", c.referer)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransport, "", "request", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "", "request", path, nil)
	case resp.StatusCode >= http.StatusMultipleChoices:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return services.Wrap(services.ErrTransport, "", "request", fmt.Sprintf("%s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return services.Wrap(services.ErrTransport, "", "decode response", path, err)
	}
	return nil
}

// fragmentURL picks a host by the trailing hex digits of the fragment hash so the
// same fragment always maps to the same host.
func (r *routingPayload) fragmentURL(f Fragment) string {
	host := r.Hosts[0]
	if len(r.Hosts) > 1 && len(f.Hash) >= 2 {
		if n, err := strconv.ParseUint(f.Hash[len(f.Hash)-2:], 16, 16); err == nil {
			host = r.Hosts[int(n)%len(r.Hosts)]
		}
	}
	name := f.Hash + f.Ext()
	if r.Version != "" {
		return host + "/" + url.PathEscape(r.Version) + "/" + name
	}
	return host + "/" + name
}
