// Package client talks to a running relay over HTTP.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Client reads and submits readings
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the relay at baseURL
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type reading struct {
	BPM int `json:"bpm"`
}

// Get returns the relay's current reading
func (c *Client) Get(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to get reading: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	var r reading
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return 0, fmt.Errorf("failed to decode reading: %w", err)
	}

	return r.BPM, nil
}

// Send submits a reading through the bpm header
func (c *Client) Send(ctx context.Context, bpm int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("bpm", strconv.Itoa(bpm))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send reading: %w", err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	return nil
}
