// Package relay holds both ends of the push relay: the client the dispatcher
// posts to and the worker pool that fans a payload out over web push.
package relay

import (
	"context"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"pickup-push-backend/internal/logger"
	"pickup-push-backend/internal/metrics"
)

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is the real Sender backed by webpush-go.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// ExpiredRemover deletes subscriptions the push service reports as gone.
type ExpiredRemover interface {
	DeletePushSubscriptionByEndpoint(ctx context.Context, endpoint string) error
}

// Result summarizes one fan-out.
type Result struct {
	Sent    int
	Failed  int
	Expired int
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeExpired
)

type job struct {
	ctx     context.Context
	payload []byte
	sub     webpush.Subscription
	done    chan<- jobResult
}

type jobResult struct {
	outcome outcome
	err     error
}

// Pool manages a pool of workers for sending web push notifications.
type Pool struct {
	size    int
	jobs    chan job
	remover ExpiredRemover
	options *webpush.Options
	sender  Sender
	log     *zap.Logger
}

// NewPool creates a new worker pool. remover may be nil.
func NewPool(size int, remover ExpiredRemover, options *webpush.Options) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		size:    size,
		jobs:    make(chan job, size),
		remover: remover,
		options: options,
		sender:  &WebPushSender{},
		log:     logger.WithModule("relay"),
	}
}

// SetSender replaces the web push sender.
func (p *Pool) SetSender(s Sender) {
	p.sender = s
}

// Start launches the worker goroutines. They exit when ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		go p.worker(ctx, i)
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	p.log.Debug("worker started", zap.Int("worker", id))
	for {
		select {
		case j := <-p.jobs:
			outcome, err := p.deliver(j.ctx, j.sub, j.payload)
			j.done <- jobResult{outcome: outcome, err: err}
		case <-ctx.Done():
			p.log.Debug("worker shutting down", zap.Int("worker", id))
			return
		}
	}
}

// Deliver pushes payload to every subscription and waits for all of them.
// Individual failures are counted and returned together; expired
// subscriptions are removed and counted separately.
func (p *Pool) Deliver(ctx context.Context, payload []byte, subs []webpush.Subscription) (Result, error) {
	var res Result
	if len(subs) == 0 {
		return res, nil
	}

	done := make(chan jobResult, len(subs))
	queued := 0
	for _, sub := range subs {
		select {
		case p.jobs <- job{ctx: ctx, payload: payload, sub: sub, done: done}:
			queued++
		case <-ctx.Done():
			res.Failed += len(subs) - queued
			return collect(ctx, done, queued, res, ctx.Err())
		}
	}
	return collect(ctx, done, queued, res, nil)
}

// collect waits for n results. done is buffered for every job, so workers
// never block on it after the caller gives up.
func collect(ctx context.Context, done <-chan jobResult, n int, res Result, errs error) (Result, error) {
	for i := 0; i < n; i++ {
		var r jobResult
		select {
		case r = <-done:
		case <-ctx.Done():
			res.Failed += n - i
			return res, multierr.Append(errs, ctx.Err())
		}
		switch r.outcome {
		case outcomeSent:
			res.Sent++
		case outcomeExpired:
			res.Expired++
		default:
			res.Failed++
		}
		errs = multierr.Append(errs, r.err)
	}
	return res, errs
}

// deliver sends a single web push notification.
func (p *Pool) deliver(ctx context.Context, sub webpush.Subscription, payload []byte) (outcome, error) {
	resp, err := p.sender.Send(payload, &sub, p.options)
	if err != nil {
		metrics.PushDeliveries.WithLabelValues("failed").Inc()
		p.log.Warn("error sending notification", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return outcomeFailed, fmt.Errorf("send to %s: %w", sub.Endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		metrics.PushDeliveries.WithLabelValues("expired").Inc()
		p.log.Info("subscription expired, deleting", zap.String("endpoint", sub.Endpoint), zap.Int("status", resp.StatusCode))
		if p.remover != nil {
			if err := p.remover.DeletePushSubscriptionByEndpoint(ctx, sub.Endpoint); err != nil {
				p.log.Error("failed to delete expired subscription", zap.String("endpoint", sub.Endpoint), zap.Error(err))
			}
		}
		return outcomeExpired, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		metrics.PushDeliveries.WithLabelValues("failed").Inc()
		return outcomeFailed, fmt.Errorf("send to %s: push service returned %d", sub.Endpoint, resp.StatusCode)
	}

	metrics.PushDeliveries.WithLabelValues("sent").Inc()
	return outcomeSent, nil
}

// Deliverer is the part of Pool used by HTTP handlers.
type Deliverer interface {
	Deliver(ctx context.Context, payload []byte, subs []webpush.Subscription) (Result, error)
}

var _ Deliverer = (*Pool)(nil)
