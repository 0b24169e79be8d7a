// Package surface is the background worker's event handling: shell caching,
// push rendering, page messages, notification clicks and offline fetches.
package surface

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"pickup-push-backend/internal/logger"
	"pickup-push-backend/internal/wire"
)

// Asset is one entry of the shell manifest.
type Asset struct {
	URL      string
	Critical bool
}

// DefaultAssets is the static shell cached at install.
var DefaultAssets = []Asset{
	{URL: "/", Critical: true},
	{URL: "/index.html", Critical: true},
	{URL: "/manifest.json"},
	{URL: wire.DefaultIcon},
	{URL: wire.DefaultBadge},
}

// Config describes the worker's origin and cache generation.
type Config struct {
	Origin      string
	CachePrefix string
	Generation  string
	Assets      []Asset
}

// CacheName is the name of the active cache generation.
func (c Config) CacheName() string {
	return c.CachePrefix + "-" + c.Generation
}

// ClickEvent is a notificationclick.
type ClickEvent struct {
	Action  string
	Title   string
	Options wire.NotificationOptions
	// Close dismisses the clicked notification.
	Close func()
}

// Surface handles worker lifecycle and runtime events.
type Surface struct {
	cfg      Config
	caches   CacheStorage
	fetcher  Fetcher
	clients  Clients
	notifier Notifier
	log      *zap.Logger
}

// New creates a Surface.
func New(cfg Config, caches CacheStorage, fetcher Fetcher, clients Clients, notifier Notifier) *Surface {
	if cfg.CachePrefix == "" {
		cfg.CachePrefix = "pickup-shell"
	}
	if cfg.Generation == "" {
		cfg.Generation = "v1"
	}
	if cfg.Assets == nil {
		cfg.Assets = DefaultAssets
	}
	return &Surface{
		cfg:      cfg,
		caches:   caches,
		fetcher:  fetcher,
		clients:  clients,
		notifier: notifier,
		log:      logger.WithModule("surface"),
	}
}

// Install warms the current cache generation with the shell manifest.
// Failures of non-critical assets are skipped.
func (s *Surface) Install(ctx context.Context) error {
	cache, err := s.caches.Open(ctx, s.cfg.CacheName())
	if err != nil {
		return fmt.Errorf("open cache %s: %w", s.cfg.CacheName(), err)
	}

	for _, asset := range s.cfg.Assets {
		req := Request{Method: "GET", URL: asset.URL}
		resp, err := s.fetcher.Fetch(ctx, req)
		if err == nil && (resp == nil || resp.Status != 200) {
			err = fmt.Errorf("unexpected status %d", statusOf(resp))
		}
		if err == nil {
			err = cache.Put(ctx, req, resp)
		}
		if err != nil {
			if asset.Critical {
				return fmt.Errorf("cache critical asset %s: %w", asset.URL, err)
			}
			s.log.Warn("skipping asset", zap.String("url", asset.URL), zap.Error(err))
		}
	}
	return nil
}

// Activate deletes every cache except the current generation.
func (s *Surface) Activate(ctx context.Context) error {
	names, err := s.caches.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list caches: %w", err)
	}
	current := s.cfg.CacheName()
	for _, name := range names {
		if name == current {
			continue
		}
		if _, err := s.caches.Delete(ctx, name); err != nil {
			return fmt.Errorf("delete cache %s: %w", name, err)
		}
		s.log.Info("deleted stale cache", zap.String("cache", name))
	}
	return nil
}

// Push renders push data. Malformed data is logged and dropped.
func (s *Surface) Push(ctx context.Context, data []byte) error {
	payload, err := wire.ParsePushPayload(data)
	if err != nil {
		s.log.Warn("dropping malformed push payload", zap.Error(err))
		return nil
	}
	return s.show(ctx, payload)
}

func (s *Surface) show(ctx context.Context, p wire.PushPayload) error {
	if err := s.notifier.ShowNotification(ctx, p.Title, p.Options()); err != nil {
		return fmt.Errorf("show notification: %w", err)
	}
	return nil
}

// Message handles a message posted by a page.
func (s *Surface) Message(ctx context.Context, msg wire.Message) error {
	switch msg.Type {
	case wire.MessagePushNotification:
		if msg.Payload == nil {
			s.log.Warn("push message without payload")
			return nil
		}
		return s.show(ctx, msg.Payload.WithDefaults())
	case wire.MessagePushSubscriptionChanged:
		return s.broadcast(ctx, msg)
	default:
		return nil
	}
}

// SubscriptionChanged tells every page to re-subscribe.
func (s *Surface) SubscriptionChanged(ctx context.Context) error {
	return s.broadcast(ctx, wire.Message{Type: wire.MessagePushSubscriptionChanged})
}

func (s *Surface) broadcast(ctx context.Context, msg wire.Message) error {
	windows, err := s.clients.MatchAll(ctx)
	if err != nil {
		return fmt.Errorf("match clients: %w", err)
	}
	var errs error
	for _, w := range windows {
		errs = multierr.Append(errs, w.PostMessage(ctx, msg))
	}
	return errs
}

// NotificationClick closes the notification and routes the user: an open
// same-origin page is reused, otherwise one window is opened.
func (s *Surface) NotificationClick(ctx context.Context, ev ClickEvent) error {
	if ev.Close != nil {
		ev.Close()
	}
	if ev.Action == wire.ActionDismiss {
		return nil
	}

	target := ev.Options.Data.URL
	if target == "" {
		target = wire.DefaultURL
	}

	windows, err := s.clients.MatchAll(ctx)
	if err != nil {
		s.log.Warn("failed to enumerate clients", zap.Error(err))
		windows = nil
	}
	for _, w := range windows {
		if !s.sameOrigin(w.URL()) {
			continue
		}
		payload := wire.PushPayload{
			Title:    ev.Title,
			Body:     ev.Options.Body,
			Icon:     ev.Options.Icon,
			Badge:    ev.Options.Badge,
			Data:     ev.Options.Data,
			Tag:      ev.Options.Tag,
			Renotify: ev.Options.Renotify,
		}
		if err := w.PostMessage(ctx, wire.Message{Type: wire.MessageNotificationClick, Payload: &payload}); err != nil {
			s.log.Warn("failed to post click to client", zap.Error(err))
		}
		return w.Focus(ctx)
	}
	return s.clients.OpenWindow(ctx, target)
}

// Fetch is network first. Good basic GET responses are written to the
// current cache; on network failure the cached copy is served.
func (s *Surface) Fetch(ctx context.Context, req Request) (*Response, error) {
	resp, netErr := s.fetcher.Fetch(ctx, req)
	if netErr == nil {
		if req.isGET() && resp.cacheable() {
			if err := s.put(ctx, req, resp); err != nil {
				s.log.Debug("cache write failed", zap.String("url", req.URL), zap.Error(err))
			}
		}
		return resp, nil
	}

	if !req.isGET() {
		return nil, netErr
	}
	cache, err := s.caches.Open(ctx, s.cfg.CacheName())
	if err != nil {
		return nil, netErr
	}
	cached, ok, err := cache.Match(ctx, req)
	if err != nil || !ok {
		return nil, netErr
	}
	return cached, nil
}

func (s *Surface) put(ctx context.Context, req Request, resp *Response) error {
	cache, err := s.caches.Open(ctx, s.cfg.CacheName())
	if err != nil {
		return err
	}
	return cache.Put(ctx, req, resp)
}

func (s *Surface) sameOrigin(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	o, err := url.Parse(s.cfg.Origin)
	if err != nil || o.Host == "" {
		return false
	}
	return u.Scheme == o.Scheme && u.Host == o.Host
}

func statusOf(r *Response) int {
	if r == nil {
		return 0
	}
	return r.Status
}
