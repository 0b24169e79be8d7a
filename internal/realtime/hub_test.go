package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pickup-push-backend/internal/wire"
)

func dialHub(t *testing.T, hub *Hub, userID string, opened chan struct{}) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(userID, w, r, func(func(wire.Message) bool) func() {
			opened <- struct{}{}
			return nil
		})
	}))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	select {
	case <-opened:
	case <-time.After(time.Second):
		t.Fatal("connection was not registered")
	}
	return conn
}

func TestHub_DisplayReachesOpenPage(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "u1", make(chan struct{}, 1))
	assert.Equal(t, 1, hub.Connected("u1"))

	payload := wire.RelayNotification{Title: "Match update", Message: "Pitch 3 tonight", MatchID: "m1"}.Payload()
	require.NoError(t, hub.Display(context.Background(), "u1", payload))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var msg wire.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, wire.MessagePushNotification, msg.Type)
	require.NotNil(t, msg.Payload)
	assert.Equal(t, "Pitch 3 tonight", msg.Payload.Body)
}

func TestHub_DisplayWithoutOpenPage(t *testing.T) {
	hub := NewHub()
	payload := wire.RelayNotification{Title: "Match update", Message: "Pitch 3 tonight", MatchID: "m1"}.Payload()
	assert.ErrorIs(t, hub.Display(context.Background(), "u1", payload), ErrNoOpenPage)
}

func TestHub_SendToUnknownUser(t *testing.T) {
	hub := NewHub()
	assert.Equal(t, 0, hub.Send("nobody", wire.Message{Type: wire.MessageInboxInsert}))
}

func TestSameOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://app.example.com/api/notifications/stream", nil)
	assert.True(t, sameOrigin(req))

	req.Header.Set("Origin", "https://app.example.com")
	assert.True(t, sameOrigin(req))

	req.Header.Set("Origin", "https://evil.example.net")
	assert.False(t, sameOrigin(req))

	req.Header.Set("Origin", "http://localhost:5173")
	assert.True(t, sameOrigin(req))
}
