package api

import (
	"context"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"pickup-push-backend/internal/dispatch"
	"pickup-push-backend/internal/inbox"
	"pickup-push-backend/internal/logger"
	"pickup-push-backend/internal/realtime"
	"pickup-push-backend/internal/relay"
	"pickup-push-backend/internal/store"
	"pickup-push-backend/internal/subscription"
)

// Dispatcher is the part of dispatch.Dispatcher the admin routes call.
type Dispatcher interface {
	NotifyMatch(ctx context.Context, matchID, message string) (dispatch.Result, error)
	NotifySingle(ctx context.Context, matchID, userID, message string) (dispatch.Result, error)
}

// Deps lists what the handlers need. Nil members disable their routes'
// behaviour: those routes answer 503.
type Deps struct {
	Store      store.Store
	Dispatcher Dispatcher
	Inbox      *inbox.Inbox
	Hub        *realtime.Hub
	Pool       relay.Deliverer
	WebPush    *webpush.Options
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store      store.Store
	dispatcher Dispatcher
	inbox      *inbox.Inbox
	hub        *realtime.Hub
	pool       relay.Deliverer
	saver      subscription.Saver
	webpush    *webpush.Options
	log        *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	h := &Handler{
		store:      d.Store,
		dispatcher: d.Dispatcher,
		inbox:      d.Inbox,
		hub:        d.Hub,
		pool:       d.Pool,
		webpush:    d.WebPush,
		log:        logger.WithModule("api"),
	}
	if d.Store != nil {
		h.saver = subscription.NewStoreSaver(d.Store)
	}
	return h
}
