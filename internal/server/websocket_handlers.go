// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"alumnet/internal/middleware"
	"alumnet/internal/notifications"
	"alumnet/internal/presence"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// WebsocketHandler handles the realtime connection: event delivery plus the
// presence lifecycle (connect, heartbeat frames, manual status, disconnect).
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		ctx := context.Background()

		// Get userID from context locals (set by AuthRequired middleware)
		userIDVal := conn.Locals("userID")
		if userIDVal == nil {
			log.Printf("WebSocket: Unauthenticated connection attempt")
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}
		userID := userIDVal.(uint)

		// The handshake is done; the single-use ticket is spent.
		s.consumeWSTicket(ctx, conn.Locals("wsTicket"))

		client, err := s.hub.Register(userID, conn)
		if err != nil {
			log.Printf("WebSocket: Failed to register user %d: %v", userID, err)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		client.IncomingHandler = func(c *notifications.Client, message []byte) {
			var incomingMsg map[string]interface{}
			if err := json.Unmarshal(message, &incomingMsg); err != nil {
				log.Printf("WebSocket: Invalid message format from user %d", userID)
				return
			}

			msgType, ok := incomingMsg["type"].(string)
			if !ok {
				return
			}

			switch msgType {
			case "heartbeat":
				// Heartbeats from a superseded connection are stale; the
				// tracker drops them and we tell the client to reconnect.
				if !s.tracker.Heartbeat(c.UserID, c.ConnectionID) {
					c.TrySend([]byte(`{"type":"stale_connection"}`))
				}

			case "status":
				statusStr, _ := incomingMsg["status"].(string)

				// Limit status flapping to 10 changes per 10 seconds.
				id := fmt.Sprintf("user:%d", c.UserID)
				allowed, _ := middleware.CheckRateLimit(ctx, s.redis, "presence_status", id, 10, 10*time.Second)
				if !allowed {
					return
				}

				if err := s.tracker.SetStatus(c.UserID, c.ConnectionID, presence.Status(statusStr)); err != nil {
					c.TrySend([]byte(`{"type":"error","payload":{"reason":"invalid_status"}}`))
				}

			default:
				log.Printf("WebSocket: Unknown message type %q from user %d", msgType, userID)
			}
		}

		// Let the client know which connection id its presence events carry.
		welcome, _ := json.Marshal(fiber.Map{
			"type":    "connected",
			"payload": fiber.Map{"connection_id": client.ConnectionID},
		})
		client.TrySend(welcome)

		go client.WritePump()
		client.ReadPump() // blocks until the connection drops
	})
}
