// Package notifications provides real-time notification delivery and management.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"alumnet/internal/middleware"
	"alumnet/internal/observability"
	"alumnet/internal/presence"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// Max total connections
const maxTotalConns = 10000

// PresenceEvents is the slice of the presence tracker the hub drives.
type PresenceEvents interface {
	Connect(userID uint, connID string)
	Disconnect(userID uint, connID string)
	Heartbeat(userID uint, connID string) bool
	SetStatus(userID uint, connID string, status presence.Status) error
}

// Hub maps each user to at most one active client. A reconnect supersedes
// the previous connection: the old client is closed and its later lifecycle
// events become stale for presence purposes.
type Hub struct {
	mu         sync.RWMutex
	conns      map[uint]*Client
	totalConns int
	shutdown   chan struct{}
	done       chan struct{}
	presence   PresenceEvents
	wsLog      *observability.WSLogger
}

// NewHub creates a new Hub instance for delivering notifications.
func NewHub(tracker PresenceEvents) *Hub {
	return &Hub{
		conns:    make(map[uint]*Client),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		presence: tracker,
		wsLog:    observability.NewWSLogger("notifications"),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "notifications" }

// Register attaches a connection for the user, superseding any existing one.
// Returns the new client or an error if the server connection limit is hit.
func (h *Hub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	connID := uuid.NewString()

	h.mu.Lock()
	if h.totalConns >= maxTotalConns {
		h.mu.Unlock()
		return nil, errors.New("server connection limit reached")
	}

	superseded := h.conns[userID]
	client := NewClient(h, conn, userID, connID)
	h.conns[userID] = client
	if superseded == nil {
		h.totalConns++
	}
	h.mu.Unlock()

	if superseded != nil {
		// The old WritePump sees the closed channel and shuts the socket down.
		close(superseded.Send)
	}

	observability.WebSocketConnectionsTotal.Inc()
	h.wsLog.LogConnect(context.Background(), userID, connID)

	if h.presence != nil {
		h.presence.Connect(userID, connID)
	}

	return client, nil
}

// UnregisterClient removes the client if it is still the user's active
// connection. Unregisters from superseded clients are ignored so they cannot
// knock the replacement connection's presence offline.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	active := h.conns[client.UserID] == client
	if active {
		delete(h.conns, client.UserID)
		h.totalConns--
	}
	h.mu.Unlock()

	observability.WebSocketConnectionsTotal.Dec()
	h.wsLog.LogDisconnect(context.Background(), client.UserID, client.ConnectionID, "closed")

	if active && h.presence != nil {
		h.presence.Disconnect(client.UserID, client.ConnectionID)
	}
}

// Broadcast sends message to the user's active connection, if any.
func (h *Hub) Broadcast(userID uint, message string) {
	h.mu.RLock()
	client := h.conns[userID]
	h.mu.RUnlock()
	if client != nil {
		client.TrySend([]byte(message))
	}
}

// BroadcastAll sends message to every connected websocket client.
func (h *Hub) BroadcastAll(message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data := []byte(message)
	for _, c := range h.conns {
		c.TrySend(data)
	}
}

// IsConnected reports whether the user has an active connection on this
// instance.
func (h *Hub) IsConnected(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conns[userID] != nil
}

// StartWiring connects the Notifier to this hub: it subscribes to the Redis
// pattern and forwards messages to the matching user's connection.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartPatternSubscriber(ctx, func(channel, payload string) {
		if channel == broadcastChannel {
			h.BroadcastAll(payload)
			return
		}
		if !strings.HasPrefix(channel, userChannelPrefix) {
			middleware.Logger.Warn("invalid notification channel", slog.String("channel", channel))
			return
		}
		var userID uint
		if _, err := fmt.Sscanf(channel, userChannelPrefix+"%d", &userID); err != nil {
			middleware.Logger.Warn("invalid notification channel", slog.String("channel", channel))
			return
		}
		h.Broadcast(userID, payload)
	})
}

// Shutdown gracefully closes all websocket connections
func (h *Hub) Shutdown(_ context.Context) error {
	close(h.shutdown)

	h.mu.Lock()
	for userID, client := range h.conns {
		if client.Conn == nil {
			continue
		}
		if err := client.Conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
			middleware.Logger.Warn("failed to write close message",
				slog.Uint64("user_id", uint64(userID)),
				slog.String("error", err.Error()),
			)
		}
		if err := client.Conn.Close(); err != nil {
			middleware.Logger.Warn("failed to close websocket",
				slog.Uint64("user_id", uint64(userID)),
				slog.String("error", err.Error()),
			)
		}
	}
	h.conns = make(map[uint]*Client)
	h.totalConns = 0
	h.mu.Unlock()

	close(h.done)

	return nil
}
