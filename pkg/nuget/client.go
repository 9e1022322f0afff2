package nuget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nugo-cli/nugo/pkg/observability"
)

const httpTimeout = 30 * time.Second

// Default nuget.org v3 endpoints.
const (
	DefaultSearchURL = "https://azuresearch-usnc.nuget.org/query"
	DefaultFlatURL   = "https://api.nuget.org/v3-flatcontainer"
)

var (
	// ErrNotFound is returned when a package or resource doesn't exist in the registry.
	ErrNotFound = errors.New("resource not found")

	// ErrNetwork is returned for HTTP failures (timeouts, connection errors, 5xx responses).
	ErrNetwork = errors.New("network error")
)

// Client provides access to the NuGet v3 registry API: latest-version
// lookups through the search service (with a flat-container fallback) and
// package archive downloads.
//
// The client performs no caching and no retries; cache policy belongs to the
// package store and a single failure falls through to the caller. All
// methods are safe for concurrent use.
type Client struct {
	http      *http.Client
	searchURL string
	flatURL   string
}

// NewClient creates a registry client against the public nuget.org endpoints.
func NewClient() *Client {
	return &Client{
		http:      &http.Client{Timeout: httpTimeout},
		searchURL: DefaultSearchURL,
		flatURL:   DefaultFlatURL,
	}
}

// NewClientWithURLs creates a registry client against custom endpoints.
// Used by tests to point at a fake registry.
func NewClientWithURLs(searchURL, flatURL string) *Client {
	return &Client{
		http:      &http.Client{Timeout: httpTimeout},
		searchURL: searchURL,
		flatURL:   flatURL,
	}
}

// LatestVersion resolves the most recent published version of a package.
//
// It queries the search service first; on any failure (network, missing
// data, unknown package) it falls back to the flat-container version index
// and returns the last listed version. If both lookups fail the search
// error is returned wrapped around the fallback error.
func (c *Client) LatestVersion(ctx context.Context, id string) (string, error) {
	id = strings.ToLower(id)

	version, searchErr := c.searchLatest(ctx, id)
	if searchErr == nil && version != "" {
		return version, nil
	}

	version, indexErr := c.indexLatest(ctx, id)
	if indexErr == nil && version != "" {
		return version, nil
	}
	if searchErr == nil {
		searchErr = errors.New("search returned no versions")
	}
	if indexErr == nil {
		indexErr = errors.New("version index is empty")
	}
	return "", fmt.Errorf("latest version of %s: %v; fallback: %w", id, searchErr, indexErr)
}

func (c *Client) searchLatest(ctx context.Context, id string) (string, error) {
	u := fmt.Sprintf("%s?q=%s&take=1", c.searchURL, url.QueryEscape("packageid:"+id))

	var resp struct {
		Data []struct {
			Version string `json:"version"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return "", err
	}
	if len(resp.Data) == 0 {
		return "", fmt.Errorf("%w: package %s", ErrNotFound, id)
	}
	return resp.Data[0].Version, nil
}

func (c *Client) indexLatest(ctx context.Context, id string) (string, error) {
	u := fmt.Sprintf("%s/%s/index.json", c.flatURL, id)

	var resp struct {
		Versions []string `json:"versions"`
	}
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return "", err
	}
	if len(resp.Versions) == 0 {
		return "", fmt.Errorf("%w: package %s has no versions", ErrNotFound, id)
	}
	return resp.Versions[len(resp.Versions)-1], nil
}

// DownloadArchive fetches the .nupkg archive for a package version and
// returns the full body.
func (c *Client) DownloadArchive(ctx context.Context, id, version string) ([]byte, error) {
	id, version = strings.ToLower(id), strings.ToLower(version)
	u := fmt.Sprintf("%s/%s/%s/%s.%s.nupkg", c.flatURL, id, version, id, version)

	body, err := c.doRequest(ctx, u)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	body, err := c.doRequest(ctx, url)
	if err != nil {
		return err
	}
	defer body.Close()
	return json.NewDecoder(body).Decode(v)
}

func (c *Client) doRequest(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	observability.HTTP().OnRequest(ctx, req.Method, req.URL.Host, req.URL.Path)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		observability.HTTP().OnError(ctx, req.Method, req.URL.Host, req.URL.Path, err)
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	observability.HTTP().OnResponse(ctx, req.Method, req.URL.Host, req.URL.Path, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func checkStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("%w: status %d", ErrNetwork, code)
	}
}
