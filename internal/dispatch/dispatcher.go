// Package dispatch writes match notifications for every real participant and
// then tries to accelerate them over web push.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"pickup-push-backend/internal/auth"
	"pickup-push-backend/internal/logger"
	"pickup-push-backend/internal/metrics"
	"pickup-push-backend/internal/model"
	"pickup-push-backend/internal/parse"
	"pickup-push-backend/internal/realtime"
	"pickup-push-backend/internal/wire"
)

// ErrGuestRecipient rejects a single-recipient dispatch addressed to a guest.
var ErrGuestRecipient = errors.New("guest participants cannot receive notifications")

// DefaultRelayTimeout bounds the relay POST when none is configured.
const DefaultRelayTimeout = 10 * time.Second

// Store is the storage the dispatcher needs.
type Store interface {
	UpsertNotifications(ctx context.Context, rows []model.Notification) ([]model.Notification, error)
	FindPushSubscriptions(ctx context.Context, userIDs []string) ([]model.PushSubscription, error)
	ListParticipants(ctx context.Context, matchID string) ([]model.Participant, error)
}

// Relay forwards a payload to the push service for a set of subscriptions.
type Relay interface {
	Send(ctx context.Context, req wire.RelayRequest) (*wire.RelayResponse, error)
}

// LocalDisplay shows a payload on the caller's open pages.
type LocalDisplay interface {
	Display(ctx context.Context, userID string, payload wire.PushPayload) error
}

// RelayGate decides whether a relay attempt is worth making at all.
type RelayGate func(ctx context.Context) bool

// AlwaysRelay is the default gate.
func AlwaysRelay(context.Context) bool { return true }

// Config holds dispatcher settings.
type Config struct {
	Title        string
	RelayTimeout time.Duration
}

// Result describes the effect of one dispatch call. A relay problem is
// reported here, never as the call's error.
type Result struct {
	Notified      []string
	GuestsSkipped []string
	Written       int
	Subscriptions int
	Relayed       bool
	RelayErr      error
	LocalFallback bool
}

// Dispatcher is the notification dispatcher.
type Dispatcher struct {
	store   Store
	relay   Relay
	display LocalDisplay
	gate    RelayGate
	cfg     Config
	log     *zap.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRelay enables the push relay step.
func WithRelay(r Relay) Option {
	return func(d *Dispatcher) { d.relay = r }
}

// WithLocalDisplay enables the in-page fallback.
func WithLocalDisplay(l LocalDisplay) Option {
	return func(d *Dispatcher) { d.display = l }
}

// WithRelayGate replaces AlwaysRelay.
func WithRelayGate(g RelayGate) Option {
	return func(d *Dispatcher) {
		if g != nil {
			d.gate = g
		}
	}
}

// New creates a dispatcher over store.
func New(store Store, cfg Config, opts ...Option) *Dispatcher {
	if cfg.Title == "" {
		cfg.Title = "Match update"
	}
	if cfg.RelayTimeout <= 0 {
		cfg.RelayTimeout = DefaultRelayTimeout
	}
	d := &Dispatcher{
		store: store,
		gate:  AlwaysRelay,
		cfg:   cfg,
		log:   logger.WithModule("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NotifyMatch loads the roster of matchID and notifies it.
func (d *Dispatcher) NotifyMatch(ctx context.Context, matchID, message string) (Result, error) {
	participants, err := d.store.ListParticipants(ctx, matchID)
	if err != nil {
		return Result{}, fmt.Errorf("load participants: %w", err)
	}
	return d.NotifyAll(ctx, matchID, message, participants)
}

// NotifyAll notifies every real participant of matchID. Guests are skipped.
// The notification rows are written before any push is attempted, and only
// a failed write fails the call.
func (d *Dispatcher) NotifyAll(ctx context.Context, matchID, message string, participants []model.Participant) (Result, error) {
	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.UserID)
	}
	recipients, guests := parse.FilterGuests(ids)
	if len(guests) > 0 {
		metrics.GuestsSkipped.Add(float64(len(guests)))
	}
	return d.notify(ctx, matchID, message, recipients, guests)
}

// NotifySingle notifies one participant. Guests are rejected before any
// storage access.
func (d *Dispatcher) NotifySingle(ctx context.Context, matchID, userID, message string) (Result, error) {
	if parse.IsGuestID(userID) {
		metrics.GuestsSkipped.Inc()
		return Result{GuestsSkipped: []string{userID}}, ErrGuestRecipient
	}
	recipients, _ := parse.FilterGuests([]string{userID})
	return d.notify(ctx, matchID, message, recipients, nil)
}

func (d *Dispatcher) notify(ctx context.Context, matchID, message string, recipients, guests []string) (Result, error) {
	res := Result{Notified: recipients, GuestsSkipped: guests}
	if len(recipients) == 0 {
		d.log.Debug("no real recipients", zap.String("match_id", matchID), zap.Int("guests", len(guests)))
		return res, nil
	}

	rows := make([]model.Notification, 0, len(recipients))
	for _, id := range recipients {
		rows = append(rows, model.Notification{MatchID: matchID, UserID: id, Message: message, IsRead: false})
	}
	stored, err := d.store.UpsertNotifications(ctx, rows)
	if err != nil {
		d.log.Error("failed to write notifications", zap.String("match_id", matchID), zap.Error(err))
		return Result{GuestsSkipped: guests}, fmt.Errorf("write notifications: %w", err)
	}
	res.Written = len(stored)
	metrics.NotificationsWritten.Add(float64(len(stored)))

	envelope := wire.RelayNotification{
		Title:   d.cfg.Title,
		Message: message,
		MatchID: matchID,
		URL:     wire.MatchURL(matchID),
	}
	pushed := d.relayPush(ctx, recipients, envelope, &res)
	d.fallback(ctx, recipients, pushed, envelope, &res)
	return res, nil
}

// relayPush posts the recipients' subscriptions to the relay and returns the
// users whose subscription was handed over.
func (d *Dispatcher) relayPush(ctx context.Context, recipients []string, envelope wire.RelayNotification, res *Result) map[string]struct{} {
	if d.relay == nil || !d.gate(ctx) {
		metrics.RelayAttempts.WithLabelValues("skipped").Inc()
		return nil
	}

	subs, err := d.store.FindPushSubscriptions(ctx, recipients)
	if err != nil {
		metrics.RelayAttempts.WithLabelValues("failure").Inc()
		res.RelayErr = err
		d.log.Warn("failed to resolve push subscriptions", zap.String("match_id", envelope.MatchID), zap.Error(err))
		return nil
	}
	if len(subs) == 0 {
		// Nobody has push enabled; the stored rows are enough.
		metrics.RelayAttempts.WithLabelValues("empty").Inc()
		return nil
	}

	req := wire.RelayRequest{
		Subscriptions: make([]webpush.Subscription, 0, len(subs)),
		Notification:  envelope,
	}
	for _, s := range subs {
		req.Subscriptions = append(req.Subscriptions, s.Subscription.Data())
	}
	res.Subscriptions = len(req.Subscriptions)

	relayCtx, cancel := context.WithTimeout(ctx, d.cfg.RelayTimeout)
	defer cancel()
	if _, err := d.relay.Send(relayCtx, req); err != nil {
		metrics.RelayAttempts.WithLabelValues("failure").Inc()
		res.RelayErr = err
		d.log.Warn("push relay failed",
			zap.String("match_id", envelope.MatchID),
			zap.Int("subscriptions", len(req.Subscriptions)),
			zap.Error(err))
		return nil
	}
	metrics.RelayAttempts.WithLabelValues("success").Inc()
	res.Relayed = true

	pushed := make(map[string]struct{}, len(subs))
	for _, s := range subs {
		pushed[s.UserID] = struct{}{}
	}
	return pushed
}

// fallback shows the notification on the caller's own open pages when the
// caller is a recipient that push did not reach.
func (d *Dispatcher) fallback(ctx context.Context, recipients []string, pushed map[string]struct{}, envelope wire.RelayNotification, res *Result) {
	if d.display == nil {
		return
	}
	caller, ok := auth.UserIDFromContext(ctx)
	if !ok || !contains(recipients, caller) {
		return
	}
	if _, ok := pushed[caller]; ok {
		return
	}
	if err := d.display.Display(ctx, caller, envelope.Payload()); err != nil {
		if errors.Is(err, realtime.ErrNoOpenPage) {
			d.log.Debug("caller has no open page for in-page fallback", zap.String("user_id", caller))
		} else {
			d.log.Warn("in-page fallback failed", zap.String("user_id", caller), zap.Error(err))
		}
		return
	}
	metrics.LocalFallbacks.Inc()
	res.LocalFallback = true
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
