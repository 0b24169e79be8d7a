package surface

import (
	"context"
	"net/http"

	"pickup-push-backend/internal/wire"
)

// Response types as reported by the runtime.
const (
	ResponseBasic  = "basic"
	ResponseCORS   = "cors"
	ResponseOpaque = "opaque"
)

// Request is a fetch request seen by the worker.
type Request struct {
	Method string
	URL    string
}

// Key identifies a cache entry.
func (r Request) Key() string {
	return r.URL
}

func (r Request) isGET() bool {
	return r.Method == "" || r.Method == http.MethodGet
}

// Response is a fetched or cached response.
type Response struct {
	Status int
	Type   string
	Header http.Header
	Body   []byte
}

func (r *Response) cacheable() bool {
	return r != nil && r.Status == http.StatusOK && r.Type == ResponseBasic
}

// Cache is one named cache generation.
type Cache interface {
	Put(ctx context.Context, req Request, resp *Response) error
	Match(ctx context.Context, req Request) (*Response, bool, error)
}

// CacheStorage holds the named caches.
type CacheStorage interface {
	Open(ctx context.Context, name string) (Cache, error)
	Keys(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) (bool, error)
}

// Fetcher performs network requests.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
}

// WindowClient is an open page controlled by the worker.
type WindowClient interface {
	URL() string
	PostMessage(ctx context.Context, msg wire.Message) error
	Focus(ctx context.Context) error
}

// Clients enumerates and opens pages.
type Clients interface {
	MatchAll(ctx context.Context) ([]WindowClient, error)
	OpenWindow(ctx context.Context, url string) error
}

// Notifier shows system notifications.
type Notifier interface {
	ShowNotification(ctx context.Context, title string, opts wire.NotificationOptions) error
}
