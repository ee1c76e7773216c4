// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"alumnet/internal/models"

	"github.com/gofiber/fiber/v2"
)

// OpenChat handles POST /api/chats/with/:userId
// Returns the 1:1 conversation with the target user, creating it on first
// contact.
func (s *Server) OpenChat(c *fiber.Ctx) error {
	ctx := c.Context()
	userID := c.Locals("userID").(uint)
	targetUserID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	chat, openErr := s.chatService.GetOrCreateChat(ctx, userID, targetUserID)
	if openErr != nil {
		return failWith(c, openErr)
	}

	return c.JSON(chat)
}

// GetChats handles GET /api/chats
func (s *Server) GetChats(c *fiber.Ctx) error {
	ctx := c.Context()
	userID := c.Locals("userID").(uint)

	chats, err := s.chatService.ListChats(ctx, userID)
	if err != nil {
		return failWith(c, err)
	}

	return c.JSON(fiber.Map{"chats": chats})
}

// GetMessages handles GET /api/chats/:id/messages
// Pagination walks backwards: `before` is an exclusive message-id cursor and
// results come newest first.
func (s *Server) GetMessages(c *fiber.Ctx) error {
	ctx := c.Context()
	userID := c.Locals("userID").(uint)
	chatID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var before *uint
	if beforeInt := c.QueryInt("before", 0); beforeInt > 0 {
		b := uint(beforeInt)
		before = &b
	}
	limit := c.QueryInt("limit", 0)

	messages, listErr := s.chatService.ListMessages(ctx, chatID, userID, before, limit)
	if listErr != nil {
		return failWith(c, listErr)
	}

	return c.JSON(fiber.Map{"messages": messages})
}

// SendMessage handles POST /api/chats/:id/messages
func (s *Server) SendMessage(c *fiber.Ctx) error {
	ctx := c.Context()
	userID := c.Locals("userID").(uint)
	chatID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Body             string `json:"body"`
		ReplyToMessageID *uint  `json:"reply_to_message_id,omitempty"`
	}
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	msg, sendErr := s.chatService.SendMessage(ctx, chatID, userID, req.Body, req.ReplyToMessageID)
	if sendErr != nil {
		return failWith(c, sendErr)
	}

	return c.Status(fiber.StatusCreated).JSON(msg)
}

// DeleteMessage handles DELETE /api/chats/messages/:messageId
// Only the sender may delete their message.
func (s *Server) DeleteMessage(c *fiber.Ctx) error {
	ctx := c.Context()
	userID := c.Locals("userID").(uint)
	messageID, err := s.parseID(c, "messageId")
	if err != nil {
		return nil
	}

	if deleteErr := s.chatService.DeleteMessage(ctx, messageID, userID); deleteErr != nil {
		return failWith(c, deleteErr)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
