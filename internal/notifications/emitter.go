package notifications

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"alumnet/internal/middleware"
	"alumnet/internal/observability"
)

// EventKind identifies a notification event. The set is closed: unknown
// kinds are dropped at publish time rather than leaking to clients.
type EventKind string

const (
	EventFriendRequest  EventKind = "friend_request"
	EventFriendAccept   EventKind = "friend_accept"
	EventFriendCancel   EventKind = "friend_cancel"
	EventFriendRemoved  EventKind = "friend_removed"
	EventNewMessage     EventKind = "new_message"
	EventMessageDeleted EventKind = "message_deleted"
	EventPresenceChange EventKind = "presence_change"
)

var knownKinds = map[EventKind]struct{}{
	EventFriendRequest:  {},
	EventFriendAccept:   {},
	EventFriendCancel:   {},
	EventFriendRemoved:  {},
	EventNewMessage:     {},
	EventMessageDeleted: {},
	EventPresenceChange: {},
}

// Envelope is the wire format for every realtime event.
type Envelope struct {
	Type    EventKind   `json:"type"`
	Payload interface{} `json:"payload"`
}

// Emitter fans domain events out to live connections: directly through the
// local hub and via Redis pub/sub for users connected to other instances.
// Delivery is best-effort by design; domain operations never fail because a
// notification could not be delivered, and offline users simply miss the
// event.
type Emitter struct {
	hub      *Hub
	notifier *Notifier
}

// NewEmitter creates an Emitter over the given hub and notifier.
func NewEmitter(hub *Hub, notifier *Notifier) *Emitter {
	return &Emitter{hub: hub, notifier: notifier}
}

// Publish delivers a single event to the target user. Errors are logged and
// counted, never returned.
func (e *Emitter) Publish(targetUserID uint, kind EventKind, payload interface{}) {
	if _, ok := knownKinds[kind]; !ok {
		middleware.Logger.Error("dropping event of unknown kind", slog.String("kind", string(kind)))
		observability.NotificationsPublished.WithLabelValues(string(kind), "dropped").Inc()
		return
	}

	data, err := json.Marshal(Envelope{Type: kind, Payload: payload})
	if err != nil {
		middleware.Logger.Error("failed to marshal event",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		observability.NotificationsPublished.WithLabelValues(string(kind), "error").Inc()
		return
	}
	msg := string(data)

	if e.hub != nil {
		e.hub.Broadcast(targetUserID, msg)
	}

	if e.notifier != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := e.notifier.PublishUser(ctx, targetUserID, msg); err != nil {
			middleware.Logger.Warn("failed to publish event to redis",
				slog.String("kind", string(kind)),
				slog.Uint64("user_id", uint64(targetUserID)),
				slog.String("error", err.Error()),
			)
			observability.NotificationsPublished.WithLabelValues(string(kind), "redis_error").Inc()
			return
		}
	}

	observability.NotificationsPublished.WithLabelValues(string(kind), "ok").Inc()
}
