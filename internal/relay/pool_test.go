package relay

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

// mockSender is a mock implementation of the Sender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

type recordingRemover struct {
	mu        sync.Mutex
	endpoints []string
}

func (r *recordingRemover) DeletePushSubscriptionByEndpoint(_ context.Context, endpoint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints = append(r.endpoints, endpoint)
	return nil
}

func response(status int) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewBufferString(""))}
}

func subs(endpoints ...string) []webpush.Subscription {
	out := make([]webpush.Subscription, 0, len(endpoints))
	for _, e := range endpoints {
		out = append(out, webpush.Subscription{Endpoint: e, Keys: webpush.Keys{Auth: "a", P256dh: "p"}})
	}
	return out
}

func TestPool_Deliver(t *testing.T) {
	remover := &recordingRemover{}
	opts := &webpush.Options{Subscriber: "mailto:ops@example.com", TTL: 60}
	p := NewPool(3, remover, opts)

	var mu sync.Mutex
	var payloads []string
	p.SetSender(&mockSender{
		SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
			assert.Same(t, opts, options)
			mu.Lock()
			payloads = append(payloads, string(payload))
			mu.Unlock()
			switch sub.Endpoint {
			case "https://push.example.com/gone":
				return response(http.StatusGone), nil
			case "https://push.example.com/missing":
				return response(http.StatusNotFound), nil
			case "https://push.example.com/broken":
				return nil, errors.New("tls handshake timeout")
			case "https://push.example.com/throttled":
				return response(http.StatusTooManyRequests), nil
			}
			return response(http.StatusCreated), nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	res, err := p.Deliver(ctx, []byte(`{"title":"t"}`), subs(
		"https://push.example.com/ok1",
		"https://push.example.com/gone",
		"https://push.example.com/broken",
		"https://push.example.com/ok2",
		"https://push.example.com/missing",
		"https://push.example.com/throttled",
	))

	assert.Equal(t, Result{Sent: 2, Failed: 2, Expired: 2}, res)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Contains(t, err.Error(), "tls handshake timeout")
	assert.Contains(t, err.Error(), "returned 429")

	assert.ElementsMatch(t, []string{"https://push.example.com/gone", "https://push.example.com/missing"}, remover.endpoints)
	assert.Len(t, payloads, 6)
}

func TestPool_DeliverNoSubscriptions(t *testing.T) {
	p := NewPool(1, nil, &webpush.Options{})
	res, err := p.Deliver(context.Background(), []byte("{}"), nil)
	assert.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestPool_DeliverCancelled(t *testing.T) {
	// No workers are started, so nothing ever drains the queue.
	p := NewPool(1, nil, &webpush.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := p.Deliver(ctx, []byte("{}"), subs("https://a", "https://b", "https://c"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Sent)
	assert.Equal(t, 3, res.Failed+res.Sent+res.Expired)
}
