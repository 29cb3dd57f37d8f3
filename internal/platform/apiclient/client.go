// Package apiclient is a small HTTP client for a running emr-server, used
// by the healthcheck command.
package apiclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Health is the body of GET /api/v1/health and /api/v1/health/db.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Backend string `json:"backend,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Client struct {
	http *resty.Client
}

func New(baseURL string, timeout time.Duration, retries int) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json")
	return &Client{http: c}
}

// Health checks the server, and its database when db is true.
func (c *Client) Health(ctx context.Context, db bool) (*Health, error) {
	path := "/api/v1/health"
	if db {
		path += "/db"
	}
	var out Health
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).SetError(&out).Get(path)
	if err != nil {
		return nil, fmt.Errorf("health request: %w", err)
	}
	if resp.IsError() {
		return &out, fmt.Errorf("health %s: status %d", path, resp.StatusCode())
	}
	return &out, nil
}
