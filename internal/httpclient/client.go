// Package httpclient is the JSON client used for service-to-service calls
// such as the push relay and the subscription API.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds every request unless overridden.
const DefaultTimeout = 30 * time.Second

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

// TokenSource yields the bearer token for a request. An empty token sends
// no Authorization header.
type TokenSource func(ctx context.Context) (string, error)

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithBearerToken sends a fixed bearer token.
func WithBearerToken(token string) Option {
	return func(c *Client) {
		c.tokens = func(context.Context) (string, error) { return token, nil }
	}
}

// WithTokenSource resolves the bearer token per request.
func WithTokenSource(src TokenSource) Option {
	return func(c *Client) {
		c.tokens = src
	}
}

// WithHTTPClient replaces the underlying client, e.g. for httptest TLS servers.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// Client sends JSON requests to one base URL.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
}

// New creates a client for baseURL (for example "https://api.example.com").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// PostJSON sends body as JSON and decodes the response into result.
func (c *Client) PostJSON(ctx context.Context, path string, body any, result any) error {
	return c.doJSON(ctx, http.MethodPost, path, body, result)
}

// PutJSON sends body as JSON and decodes the response into result.
func (c *Client) PutJSON(ctx context.Context, path string, body any, result any) error {
	return c.doJSON(ctx, http.MethodPut, path, body, result)
}

// GetJSON decodes the response of a GET into result.
func (c *Client) GetJSON(ctx context.Context, path string, result any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, result)
}

// Delete issues a DELETE without a body.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if c.tokens != nil {
		token, err := c.tokens(ctx)
		if err != nil {
			return fmt.Errorf("failed to resolve access token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response body: %w", err)
		}
	}
	return nil
}
