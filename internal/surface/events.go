package surface

import (
	"context"

	"go.uber.org/zap"

	"pickup-push-backend/internal/wire"
)

// EventKind is a worker event type.
type EventKind int

const (
	EventInstall EventKind = iota
	EventActivate
	EventPush
	EventMessage
	EventNotificationClick
	EventFetch
	EventSubscriptionChange
)

func (k EventKind) String() string {
	switch k {
	case EventInstall:
		return "install"
	case EventActivate:
		return "activate"
	case EventPush:
		return "push"
	case EventMessage:
		return "message"
	case EventNotificationClick:
		return "notificationclick"
	case EventFetch:
		return "fetch"
	case EventSubscriptionChange:
		return "pushsubscriptionchange"
	}
	return "unknown"
}

// Event is one item on the worker's event queue. Only the field matching
// Kind is read.
type Event struct {
	Kind    EventKind
	Data    []byte
	Message wire.Message
	Click   ClickEvent
	Request Request

	// Respond receives the result of a fetch event.
	Respond func(*Response, error)
	// Done, if set, receives the handling error of any event.
	Done func(error)
}

// Handle processes a single event.
func (s *Surface) Handle(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case EventInstall:
		return s.Install(ctx)
	case EventActivate:
		return s.Activate(ctx)
	case EventPush:
		return s.Push(ctx, ev.Data)
	case EventMessage:
		return s.Message(ctx, ev.Message)
	case EventNotificationClick:
		return s.NotificationClick(ctx, ev.Click)
	case EventSubscriptionChange:
		return s.SubscriptionChanged(ctx)
	case EventFetch:
		resp, err := s.Fetch(ctx, ev.Request)
		if ev.Respond != nil {
			ev.Respond(resp, err)
		}
		return err
	}
	return nil
}

// Serve handles events one at a time until events is closed or ctx ends.
// A failing event is logged and never stops the loop.
func (s *Surface) Serve(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			err := s.handleSafely(ctx, ev)
			if err != nil {
				s.log.Warn("event failed", zap.Stringer("event", ev.Kind), zap.Error(err))
			}
			if ev.Done != nil {
				ev.Done(err)
			}
		}
	}
}

func (s *Surface) handleSafely(ctx context.Context, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("event handler panicked", zap.Stringer("event", ev.Kind), zap.Any("panic", r))
			err = errPanicked
		}
	}()
	return s.Handle(ctx, ev)
}
