package realtime

import (
	"sync"

	"go.uber.org/zap"

	"pickup-push-backend/internal/logger"
	"pickup-push-backend/internal/metrics"
)

// EventType is the kind of row change.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

const defaultQueueSize = 64

// Change is one committed row change.
type Change struct {
	Table  string
	Event  EventType
	Record any
	// Columns holds the filterable column values of Record.
	Columns map[string]string
}

// Filter selects changes by table, event and one column equality.
// Empty fields match everything.
type Filter struct {
	Table  string
	Event  EventType
	Column string
	Value  string
}

func (f Filter) matches(c Change) bool {
	if f.Table != "" && f.Table != c.Table {
		return false
	}
	if f.Event != "" && f.Event != c.Event {
		return false
	}
	if f.Column != "" && c.Columns[f.Column] != f.Value {
		return false
	}
	return true
}

// Feed fans committed changes out to filtered subscribers.
type Feed struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
	log  *zap.Logger
}

// NewFeed creates an empty change feed.
func NewFeed() *Feed {
	return &Feed{
		subs: make(map[*Subscription]struct{}),
		log:  logger.WithModule("realtime"),
	}
}

// Subscription is a live registration on a Feed. Close releases it.
type Subscription struct {
	feed   *Feed
	filter Filter
	queue  chan Change
	once   sync.Once
	done   chan struct{}
}

// Subscribe registers fn for changes matching filter. fn runs on a dedicated
// goroutine, one change at a time, in publish order.
func (f *Feed) Subscribe(filter Filter, fn func(Change)) *Subscription {
	s := &Subscription{
		feed:   f,
		filter: filter,
		queue:  make(chan Change, defaultQueueSize),
		done:   make(chan struct{}),
	}

	f.mu.Lock()
	f.subs[s] = struct{}{}
	f.mu.Unlock()

	go func() {
		for {
			select {
			case c := <-s.queue:
				// Close may have raced with a queued change.
				select {
				case <-s.done:
					return
				default:
				}
				fn(c)
			case <-s.done:
				return
			}
		}
	}()
	return s
}

// Publish delivers c to every matching subscriber. Slow subscribers with a
// full queue lose the change rather than blocking the publisher.
func (f *Feed) Publish(c Change) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for s := range f.subs {
		if !s.filter.matches(c) {
			continue
		}
		select {
		case s.queue <- c:
		default:
			metrics.RealtimeDropped.Inc()
			f.log.Warn("dropping change for slow subscriber",
				zap.String("table", c.Table),
				zap.String("event", string(c.Event)))
		}
	}
}

// Len returns the number of live subscriptions.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Close stops delivery. Queued changes are discarded; a handler already
// running finishes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.feed.mu.Lock()
		delete(s.feed.subs, s)
		s.feed.mu.Unlock()
		close(s.done)
	})
}
