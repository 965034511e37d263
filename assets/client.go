// Package assets lists artifacts already present in the source repository.
// It is a read-only wrapper over the repository host's contents API; a
// missing directory is an empty listing, not an error.
package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the repository host's contents API root.
const DefaultBaseURL = "https://api.github.com"

// BlocksDir is the repository directory that holds generated artifacts.
const BlocksDir = "blocks"

// Entry is one item of a directory listing.
type Entry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	URL  string `json:"html_url"`
}

// Client lists repository contents.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
	token   string
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithToken sets a bearer token for private repositories.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New creates a contents client against baseURL, defaulting to the public
// repository host.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListDir returns the entries under path in the given repository
// ("owner/name"). A 404 for the path yields an empty slice.
func (c *Client) ListDir(ctx context.Context, repositoryRef, path string) ([]Entry, error) {
	u := fmt.Sprintf("%s/repos/%s/contents/%s",
		c.baseURL, repositoryRef, url.PathEscape(path))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("blockweave/assets: list %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blockweave/assets: list %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.logger.Debug("repository path absent, returning empty listing",
			"repo", repositoryRef, "path", path)
		return []Entry{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("blockweave/assets: list %s: HTTP %d", path, resp.StatusCode)
	}

	var entries []Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("blockweave/assets: list %s: decode response: %w", path, err)
	}
	return entries, nil
}

// ListBlocks lists the artifact directory of the repository.
func (c *Client) ListBlocks(ctx context.Context, repositoryRef string) ([]Entry, error) {
	return c.ListDir(ctx, repositoryRef, BlocksDir)
}
