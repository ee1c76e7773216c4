package server

import (
	"github.com/gofiber/fiber/v2"
)

// GetPresence handles GET /api/presence/:userId
// Lookups never fail: users the tracker has not seen report as offline.
func (s *Server) GetPresence(c *fiber.Ctx) error {
	targetUserID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	return c.JSON(s.tracker.Status(targetUserID))
}

// GetOnlineUsers handles GET /api/presence/online
func (s *Server) GetOnlineUsers(c *fiber.Ctx) error {
	ids := s.tracker.OnlineUserIDs()
	if ids == nil {
		ids = []uint{}
	}
	return c.JSON(fiber.Map{"user_ids": ids})
}
