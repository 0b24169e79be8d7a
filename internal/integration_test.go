package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"pickup-push-backend/config"
	"pickup-push-backend/internal/api"
	"pickup-push-backend/internal/auth"
	"pickup-push-backend/internal/dispatch"
	"pickup-push-backend/internal/inbox"
	"pickup-push-backend/internal/model"
	"pickup-push-backend/internal/realtime"
	"pickup-push-backend/internal/relay"
	"pickup-push-backend/internal/store"
	"pickup-push-backend/internal/testutil"
	"pickup-push-backend/internal/wire"
)

const goneEndpoint = "https://push.example.com/gone"

type pushRecorder struct {
	mu       sync.Mutex
	payloads map[string][]byte
}

func (p *pushRecorder) Send(payload []byte, sub *webpush.Subscription, _ *webpush.Options) (*http.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	status := http.StatusCreated
	if sub.Endpoint == goneEndpoint {
		status = http.StatusGone
	} else {
		p.payloads[sub.Endpoint] = payload
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(nil))}, nil
}

func (p *pushRecorder) payload(endpoint string) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.payloads[endpoint]
}

type stack struct {
	app    *gin.Engine
	store  store.Store
	hub    *realtime.Hub
	pushes *pushRecorder
	jwt    *auth.JWTService
}

// newStack wires the whole backend on SQLite. The relay function runs on its
// own test server; relayURL overrides where the dispatcher posts.
func newStack(t *testing.T, relayURL func(real string) string) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	feed := realtime.NewFeed()
	s := store.NewGormStore(testutil.MustOpenTestDB(t), store.WithPublisher(feed))
	hub := realtime.NewHub()
	jwtSvc, err := auth.NewJWTService(auth.JWTConfig{Secret: "integration"})
	require.NoError(t, err)
	serverCfg := config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000, CacheTTLSeconds: 60}

	pushes := &pushRecorder{payloads: make(map[string][]byte)}
	pool := relay.NewPool(2, s, &webpush.Options{})
	pool.SetSender(pushes)
	pool.Start(ctx)

	relayRouter := api.NewRouter(api.NewHandler(api.Deps{Store: s, Pool: pool}), jwtSvc, serverCfg)
	relaySrv := httptest.NewServer(relayRouter)
	t.Cleanup(relaySrv.Close)

	serviceToken, err := jwtSvc.GenerateAccessToken("relay-caller", auth.RoleService)
	require.NoError(t, err)
	url := relaySrv.URL
	if relayURL != nil {
		url = relayURL(url)
	}
	dispatcher := dispatch.New(s, dispatch.Config{Title: "Match update", RelayTimeout: 2 * time.Second},
		dispatch.WithRelay(relay.NewClient(url, serviceToken, 2*time.Second)),
		dispatch.WithLocalDisplay(hub),
	)

	app := api.NewRouter(api.NewHandler(api.Deps{
		Store:      s,
		Dispatcher: dispatcher,
		Inbox:      inbox.New(s, feed, inbox.DefaultLimit),
		Hub:        hub,
		Pool:       pool,
		WebPush:    &webpush.Options{VAPIDPublicKey: "BPub"},
	}), jwtSvc, serverCfg)

	return &stack{app: app, store: s, hub: hub, pushes: pushes, jwt: jwtSvc}
}

func (s *stack) call(t *testing.T, method, path, userID, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	tok, err := s.jwt.GenerateAccessToken(userID, role)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	s.app.ServeHTTP(w, req)
	return w
}

func (s *stack) seed(t *testing.T) {
	t.Helper()
	db := s.store.DB()
	require.NoError(t, db.Create(&model.Match{ID: "m1", Title: "Thursday 7s", StartsAt: time.Now().Add(2 * time.Hour)}).Error)
	for _, id := range []string{"alice", "guest-3f2a", "bob", "carol"} {
		require.NoError(t, db.Create(&model.Participant{MatchID: "m1", UserID: id}).Error)
	}
	for user, endpoint := range map[string]string{"alice": "https://push.example.com/alice", "bob": goneEndpoint} {
		require.NoError(t, s.store.UpsertPushSubscription(context.Background(), &model.PushSubscription{
			UserID:       user,
			Subscription: datatypes.NewJSONType(webpush.Subscription{Endpoint: endpoint, Keys: webpush.Keys{P256dh: "p", Auth: "a"}}),
		}))
	}
}

// TestNotifyLifecycle drives an admin notification through storage, the relay
// function and web push, then reads it back through the inbox routes.
func TestNotifyLifecycle(t *testing.T) {
	s := newStack(t, nil)
	s.seed(t)

	var firstID string
	t.Run("admin notifies the match", func(t *testing.T) {
		w := s.call(t, http.MethodPost, "/api/matches/m1/notify", "organiser", auth.RoleAdmin, map[string]string{"message": "Pitch 2, bring bibs"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var res struct {
			Notified      []string `json:"notified"`
			GuestsSkipped []string `json:"guests_skipped"`
			Written       int      `json:"written"`
			Subscriptions int      `json:"subscriptions"`
			Relayed       bool     `json:"relayed"`
			LocalFallback bool     `json:"local_fallback"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.Equal(t, []string{"alice", "bob", "carol"}, res.Notified)
		assert.Equal(t, []string{"guest-3f2a"}, res.GuestsSkipped)
		assert.Equal(t, 3, res.Written)
		assert.Equal(t, 2, res.Subscriptions)
		assert.True(t, res.Relayed)
		assert.False(t, res.LocalFallback)
	})

	t.Run("push reached alice and bob's expired subscription was removed", func(t *testing.T) {
		payload, err := wire.ParsePushPayload(s.pushes.payload("https://push.example.com/alice"))
		require.NoError(t, err)
		assert.Equal(t, "Match update", payload.Title)
		assert.Equal(t, "Pitch 2, bring bibs", payload.Body)
		assert.Equal(t, "m1", payload.Data.MatchID)

		_, err = s.store.GetPushSubscription(context.Background(), "bob")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("carol reads her inbox", func(t *testing.T) {
		w := s.call(t, http.MethodGet, "/api/notifications", "carol", auth.RoleUser, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var list struct {
			Notifications []model.Notification `json:"notifications"`
			Unread        int                  `json:"unread"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
		require.Len(t, list.Notifications, 1)
		assert.Equal(t, 1, list.Unread)
		firstID = list.Notifications[0].ID

		assert.Equal(t, http.StatusNoContent, s.call(t, http.MethodPost, "/api/notifications/"+firstID+"/read", "carol", auth.RoleUser, nil).Code)
		assert.Equal(t, http.StatusNotFound, s.call(t, http.MethodPost, "/api/notifications/"+firstID+"/read", "alice", auth.RoleUser, nil).Code)
	})

	t.Run("re-notifying reuses the row and marks it unread", func(t *testing.T) {
		w := s.call(t, http.MethodPost, "/api/matches/m1/participants/carol/notify", "organiser", auth.RoleAdmin, map[string]string{"message": "Moved to 8pm"})
		require.Equal(t, http.StatusOK, w.Code)

		n, err := s.store.GetNotification(context.Background(), "carol", firstID)
		require.NoError(t, err)
		assert.Equal(t, "Moved to 8pm", n.Message)
		assert.False(t, n.IsRead)

		var count int64
		require.NoError(t, s.store.DB().Model(&model.Notification{}).Where("match_id = ?", "m1").Count(&count).Error)
		assert.Equal(t, int64(3), count)
	})
}

type notifyOutcome struct {
	Written       int    `json:"written"`
	Relayed       bool   `json:"relayed"`
	RelayError    string `json:"relay_error"`
	LocalFallback bool   `json:"local_fallback"`
}

// TestNotifyWithRelayDown keeps the stored rows and falls back to the
// caller's open pages when the relay cannot be reached. The fallback only
// counts when a page actually received it.
func TestNotifyWithRelayDown(t *testing.T) {
	s := newStack(t, func(string) string { return "http://127.0.0.1:1" })
	s.seed(t)

	notify := func(msg string) notifyOutcome {
		w := s.call(t, http.MethodPost, "/api/matches/m1/notify", "alice", auth.RoleAdmin, map[string]string{"message": msg})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var res notifyOutcome
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		return res
	}

	res := notify("Rain check")
	assert.Equal(t, 3, res.Written)
	assert.False(t, res.Relayed)
	assert.NotEmpty(t, res.RelayError)
	assert.False(t, res.LocalFallback, "no page was open")
	assert.Nil(t, s.pushes.payload("https://push.example.com/alice"))

	server := httptest.NewServer(s.app)
	t.Cleanup(server.Close)
	tok, err := s.jwt.GenerateAccessToken("alice", auth.RoleAdmin)
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/api/notifications/stream?access_token="+tok, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return s.hub.Connected("alice") == 1 }, time.Second, 10*time.Millisecond)

	res = notify("Rain check, moved indoors")
	assert.True(t, res.LocalFallback)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg wire.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, wire.MessagePushNotification, msg.Type)
	require.NotNil(t, msg.Payload)
	assert.Equal(t, "Rain check, moved indoors", msg.Payload.Body)

	rows, err := s.store.ListNotifications(context.Background(), "alice", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Rain check, moved indoors", rows[0].Message)
}
