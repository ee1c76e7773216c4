package service

import (
	"alumnet/internal/notifications"
)

// EventPublisher is the slice of the notification emitter the services need.
// Delivery is best-effort; services never see or handle delivery failures.
type EventPublisher interface {
	Publish(targetUserID uint, kind notifications.EventKind, payload interface{})
}

// noopPublisher drops every event. Used when a service is constructed without
// a live emitter, e.g. in tests or offline tooling.
type noopPublisher struct{}

func (noopPublisher) Publish(uint, notifications.EventKind, interface{}) {}
