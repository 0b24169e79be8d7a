package store

import (
	"errors"

	"pickup-push-backend/internal/realtime"
)

// Table names published on the change feed.
const (
	TableNotifications     = "notifications"
	TablePushSubscriptions = "push_subscriptions"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("record not found")

// Publisher receives committed row changes.
type Publisher interface {
	Publish(c realtime.Change)
}

// Option configures a gormStore.
type Option func(*gormStore)

// WithPublisher publishes notification changes after each committed write.
func WithPublisher(p Publisher) Option {
	return func(s *gormStore) {
		s.publisher = p
	}
}
