// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

package metadata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/clipfolio/affinity-engine/internal/logging"
)

// HTTPClient implements Provider against the catalog service's REST API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewHTTPClient creates a catalog client. baseURL is the catalog root, e.g.
// "http://catalog:8080".
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logging.WithComponent("catalog-client"),
	}
}

// Video fetches video metadata from the catalog.
func (c *HTTPClient) Video(ctx context.Context, id string) (*Video, error) {
	var video Video
	if err := c.getJSON(ctx, "/api/v1/videos/"+url.PathEscape(id), &video); err != nil {
		return nil, err
	}
	return &video, nil
}

// Clip fetches clip metadata from the catalog.
func (c *HTTPClient) Clip(ctx context.Context, id string) (*Clip, error) {
	var clip Clip
	if err := c.getJSON(ctx, "/api/v1/clips/"+url.PathEscape(id), &clip); err != nil {
		return nil, err
	}
	return &clip, nil
}

// UserExists checks whether a user exists in the catalog.
func (c *HTTPClient) UserExists(ctx context.Context, id string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead,
		c.baseURL+"/api/v1/users/"+url.PathEscape(id), nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for keep-alive

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for keep-alive
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for keep-alive
		return fmt.Errorf("catalog returned status %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode catalog response: %w", err)
	}
	return nil
}
