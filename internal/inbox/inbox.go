// Package inbox serves a user's notification list and keeps it live from the
// change feed.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"pickup-push-backend/internal/logger"
	"pickup-push-backend/internal/model"
	"pickup-push-backend/internal/realtime"
	"pickup-push-backend/internal/store"
)

// ErrNotFound is returned when marking a notification the user does not own.
var ErrNotFound = store.ErrNotFound

// DefaultLimit caps how many notifications Load returns.
const DefaultLimit = 100

// Store is the storage the inbox reads and updates.
type Store interface {
	ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
}

// Inbox is the notification inbox.
type Inbox struct {
	store Store
	feed  *realtime.Feed
	limit int
	log   *zap.Logger
}

// New creates an inbox. A nil feed gets a private one that nothing publishes to.
func New(s Store, feed *realtime.Feed, limit int) *Inbox {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if feed == nil {
		feed = realtime.NewFeed()
	}
	return &Inbox{store: s, feed: feed, limit: limit, log: logger.WithModule("inbox")}
}

// Load returns the user's notifications newest first.
func (i *Inbox) Load(ctx context.Context, userID string) ([]model.Notification, error) {
	rows, err := i.store.ListNotifications(ctx, userID, i.limit)
	if err != nil {
		return nil, fmt.Errorf("load inbox: %w", err)
	}
	return rows, nil
}

// MarkRead marks one notification read. Marking it again succeeds.
func (i *Inbox) MarkRead(ctx context.Context, userID, id string) error {
	if err := i.store.MarkNotificationRead(ctx, userID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// MarkAllRead marks every notification of the user read and returns how many changed.
func (i *Inbox) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := i.store.MarkAllNotificationsRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return n, nil
}

// Subscribe calls onInsert for every notification newly created for userID.
// The caller must Close the returned subscription.
func (i *Inbox) Subscribe(userID string, onInsert func(model.Notification)) *realtime.Subscription {
	return i.feed.Subscribe(realtime.Filter{
		Table:  store.TableNotifications,
		Event:  realtime.EventInsert,
		Column: "user_id",
		Value:  userID,
	}, func(c realtime.Change) {
		n, ok := c.Record.(model.Notification)
		if !ok {
			i.log.Warn("unexpected change record", zap.String("table", c.Table))
			return
		}
		onInsert(n)
	})
}

// Session is one open inbox view: the loaded snapshot plus live inserts
// prepended as they arrive.
type Session struct {
	inbox  *Inbox
	userID string
	sub    *realtime.Subscription

	mu    sync.Mutex
	items []model.Notification
}

// Open subscribes first and then loads the snapshot, so inserts committed in
// between are not lost. onInsert, if set, runs after each prepend.
func (i *Inbox) Open(ctx context.Context, userID string, onInsert func(model.Notification)) (*Session, error) {
	s := &Session{inbox: i, userID: userID}
	s.sub = i.Subscribe(userID, func(n model.Notification) {
		if s.prepend(n) && onInsert != nil {
			onInsert(n)
		}
	})

	rows, err := i.Load(ctx, userID)
	if err != nil {
		s.sub.Close()
		return nil, err
	}

	s.mu.Lock()
	// Inserts that raced the load are already in rows.
	seen := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		seen[r.ID] = struct{}{}
	}
	var early []model.Notification
	for _, n := range s.items {
		if _, ok := seen[n.ID]; !ok {
			early = append(early, n)
		}
	}
	s.items = append(early, rows...)
	s.mu.Unlock()
	return s, nil
}

func (s *Session) prepend(n model.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items {
		if existing.ID == n.ID {
			return false
		}
	}
	s.items = append([]model.Notification{n}, s.items...)
	return true
}

// Items returns a copy of the current list, newest first.
func (s *Session) Items() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Notification, len(s.items))
	copy(out, s.items)
	return out
}

// Unread counts unread items.
func (s *Session) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.items {
		if !it.IsRead {
			n++
		}
	}
	return n
}

// MarkRead marks id read in storage and in the session.
func (s *Session) MarkRead(ctx context.Context, id string) error {
	if err := s.inbox.MarkRead(ctx, s.userID, id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].IsRead = true
		}
	}
	return nil
}

// MarkAllRead marks everything read in storage and in the session.
func (s *Session) MarkAllRead(ctx context.Context) error {
	if _, err := s.inbox.MarkAllRead(ctx, s.userID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		s.items[i].IsRead = true
	}
	return nil
}

// Close stops live delivery. It is safe to call more than once.
func (s *Session) Close() {
	s.sub.Close()
}
