package realtime

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pickup-push-backend/internal/logger"
	"pickup-push-backend/internal/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 16
)

// ErrNoOpenPage is returned by Display when the user has no open page.
var ErrNoOpenPage = errors.New("no open page for user")

type conn struct {
	ws   *websocket.Conn
	send chan wire.Message
}

// Hub keeps the open page connections of each user and pushes messages to them.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*conn]struct{}
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHub constructs a websocket hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOrigin,
		},
		log: logger.WithModule("realtime"),
	}
}

// Serve upgrades the request and keeps the connection registered for userID
// until the client goes away. onOpen, when non-nil, runs after registration
// with a send func bound to this one connection; its returned cleanup runs
// when the connection closes.
func (h *Hub) Serve(userID string, w http.ResponseWriter, r *http.Request, onOpen func(send func(wire.Message) bool) func()) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &conn{ws: ws, send: make(chan wire.Message, sendBufferSize)}
	h.add(userID, c)
	defer h.remove(userID, c)

	if onOpen != nil {
		send := func(msg wire.Message) bool { return h.sendTo(userID, c, msg) }
		if cleanup := onOpen(send); cleanup != nil {
			defer cleanup()
		}
	}

	go h.writeLoop(c)
	h.readLoop(c)
}

// Send queues msg for every open connection of userID and reports how many
// connections accepted it.
func (h *Hub) Send(userID string, msg wire.Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.clients[userID] {
		select {
		case c.send <- msg:
			delivered++
		default:
			h.log.Warn("dropping message for slow connection", zap.String("user_id", userID))
		}
	}
	return delivered
}

func (h *Hub) sendTo(userID string, c *conn, msg wire.Message) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[userID][c]; !ok {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Display shows payload on the user's open pages. It is the in-page fallback
// used when no push relay is reachable.
func (h *Hub) Display(ctx context.Context, userID string, payload wire.PushPayload) error {
	if n := h.Send(userID, wire.Message{Type: wire.MessagePushNotification, Payload: &payload}); n == 0 {
		return ErrNoOpenPage
	}
	return nil
}

// Connected returns the number of open connections for userID.
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) add(userID string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*conn]struct{})
	}
	h.clients[userID][c] = struct{}{}
}

func (h *Hub) remove(userID string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients := h.clients[userID]; clients != nil {
		if _, ok := clients[c]; !ok {
			return
		}
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.clients, userID)
		}
	}
	close(c.send)
	_ = c.ws.Close()
}

func (h *Hub) writeLoop(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop drains client frames; pages only send control frames here.
func (h *Hub) readLoop(c *conn) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	originHost := hostWithoutPort(u.Host)
	return strings.EqualFold(originHost, hostWithoutPort(r.Host)) || isLoopback(originHost)
}

func hostWithoutPort(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return hostport
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
