// Package docs provides the HTTP client for the documentation
// retrieval upstream, the product feature metergate protects.
package docs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/docpilot/metergate/ports"
)

// Client implements ports.DocsUpstream over HTTP.
type Client struct {
	http    *http.Client
	baseURL *url.URL
}

// ClientConfig contains configuration for the upstream client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// NewClient creates a new docs upstream client.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL: baseURL,
	}, nil
}

// Search forwards a documentation query upstream and returns the raw
// response. Latency covers the full round trip.
func (c *Client) Search(ctx context.Context, query, library string) ([]byte, int, int64, error) {
	u := *c.baseURL
	u.Path, _ = url.JoinPath(u.Path, "search")
	q := u.Query()
	q.Set("q", query)
	if library != "" {
		q.Set("library", library)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.http.Do(req)
	latency := time.Since(started).Milliseconds()
	if err != nil {
		return nil, 0, latency, fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, resp.StatusCode, latency, fmt.Errorf("read upstream body: %w", err)
	}
	return body, resp.StatusCode, latency, nil
}

var _ ports.DocsUpstream = (*Client)(nil)
