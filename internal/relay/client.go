package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pickup-push-backend/internal/httpclient"
	"pickup-push-backend/internal/wire"
)

// Client posts fan-out requests to the push relay function.
type Client struct {
	http *httpclient.Client
}

// NewClient creates a relay client. token is sent as a bearer token.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		http: httpclient.New(baseURL,
			httpclient.WithBearerToken(token),
			httpclient.WithTimeout(timeout),
		),
	}
}

// Send posts req and returns the relay's summary.
func (c *Client) Send(ctx context.Context, req wire.RelayRequest) (*wire.RelayResponse, error) {
	if len(req.Subscriptions) == 0 {
		return nil, errors.New("relay request has no subscriptions")
	}
	var resp wire.RelayResponse
	if err := c.http.PostJSON(ctx, wire.RelayPath, req, &resp); err != nil {
		return nil, fmt.Errorf("push relay: %w", err)
	}
	return &resp, nil
}
