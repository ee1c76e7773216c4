// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"github.com/gofiber/fiber/v2"
)

// SendFriendRequest handles POST /api/friends/requests/:userId
func (s *Server) SendFriendRequest(c *fiber.Ctx) error {
	ctx := c.Context()
	userID := c.Locals("userID").(uint)
	targetUserID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	edge, sendErr := s.friendService.SendRequest(ctx, userID, targetUserID)
	if sendErr != nil {
		return failWith(c, sendErr)
	}

	return c.Status(fiber.StatusCreated).JSON(edge)
}

// CancelFriendRequest handles DELETE /api/friends/requests/:userId
// Only the sender of a pending request may retract it.
func (s *Server) CancelFriendRequest(c *fiber.Ctx) error {
	ctx := c.Context()
	userID := c.Locals("userID").(uint)
	targetUserID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	if cancelErr := s.friendService.CancelRequest(ctx, userID, targetUserID); cancelErr != nil {
		return failWith(c, cancelErr)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ConfirmFriendRequest handles POST /api/friends/requests/:userId/confirm
// The path parameter identifies the sender whose request is being accepted.
func (s *Server) ConfirmFriendRequest(c *fiber.Ctx) error {
	ctx := c.Context()
	userID := c.Locals("userID").(uint)
	senderID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	edge, confirmErr := s.friendService.ConfirmRequest(ctx, userID, senderID)
	if confirmErr != nil {
		return failWith(c, confirmErr)
	}

	return c.JSON(edge)
}

// HideFriendRequest handles POST /api/friends/requests/:userId/hide
// Hiding removes the request from the receiver's inbox without telling the
// sender; it is idempotent.
func (s *Server) HideFriendRequest(c *fiber.Ctx) error {
	ctx := c.Context()
	userID := c.Locals("userID").(uint)
	senderID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	if hideErr := s.friendService.HideRequest(ctx, userID, senderID); hideErr != nil {
		return failWith(c, hideErr)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// GetPendingRequests handles GET /api/friends/requests
func (s *Server) GetPendingRequests(c *fiber.Ctx) error {
	ctx := c.Context()
	userID := c.Locals("userID").(uint)

	requests, err := s.friendService.PendingRequests(ctx, userID)
	if err != nil {
		return failWith(c, err)
	}

	return c.JSON(fiber.Map{"requests": requests})
}

// GetSentRequests handles GET /api/friends/requests/sent
func (s *Server) GetSentRequests(c *fiber.Ctx) error {
	ctx := c.Context()
	userID := c.Locals("userID").(uint)

	requests, err := s.friendService.SentRequests(ctx, userID)
	if err != nil {
		return failWith(c, err)
	}

	return c.JSON(fiber.Map{"requests": requests})
}

// GetFriends handles GET /api/friends
func (s *Server) GetFriends(c *fiber.Ctx) error {
	ctx := c.Context()
	userID := c.Locals("userID").(uint)

	friends, err := s.friendService.Friends(ctx, userID)
	if err != nil {
		return failWith(c, err)
	}

	return c.JSON(fiber.Map{"friends": friends})
}

// GetFriendSuggestions handles GET /api/friends/suggestions
func (s *Server) GetFriendSuggestions(c *fiber.Ctx) error {
	ctx := c.Context()
	userID := c.Locals("userID").(uint)

	suggestions, err := s.friendService.Suggestions(ctx, userID)
	if err != nil {
		return failWith(c, err)
	}

	return c.JSON(fiber.Map{"suggestions": suggestions})
}

// GetFriendshipStatus handles GET /api/friends/status/:userId
func (s *Server) GetFriendshipStatus(c *fiber.Ctx) error {
	ctx := c.Context()
	userID := c.Locals("userID").(uint)
	targetUserID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	state, statusErr := s.friendService.Status(ctx, userID, targetUserID)
	if statusErr != nil {
		return failWith(c, statusErr)
	}

	return c.JSON(state)
}

// RemoveFriend handles DELETE /api/friends/:userId
func (s *Server) RemoveFriend(c *fiber.Ctx) error {
	ctx := c.Context()
	userID := c.Locals("userID").(uint)
	targetUserID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	if deleteErr := s.friendService.DeleteFriend(ctx, userID, targetUserID); deleteErr != nil {
		return failWith(c, deleteErr)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
