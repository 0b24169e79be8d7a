package surface

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

var errPanicked = errors.New("event handler panicked")

// maxBodyBytes bounds responses read into memory.
const maxBodyBytes = 8 << 20

// HTTPFetcher fetches over net/http, resolving relative URLs against Origin.
type HTTPFetcher struct {
	Client *http.Client
	Origin string
}

// Fetch implements Fetcher. Responses from Origin are typed basic, others cors.
func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (*Response, error) {
	base, err := url.Parse(f.Origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}
	ref, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	target := base.ResolveReference(ref)

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), nil)
	if err != nil {
		return nil, err
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	typ := ResponseCORS
	if target.Scheme == base.Scheme && target.Host == base.Host {
		typ = ResponseBasic
	}
	return &Response{Status: resp.StatusCode, Type: typ, Header: resp.Header, Body: body}, nil
}
