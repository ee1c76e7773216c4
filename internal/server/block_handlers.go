package server

import (
	"alumnet/internal/models"

	"github.com/gofiber/fiber/v2"
)

// BlockUser handles POST /api/blocks/:userId
// Blocking atomically severs any friendship with the target. The target is
// never notified.
func (s *Server) BlockUser(c *fiber.Ctx) error {
	ctx := c.Context()
	userID := c.Locals("userID").(uint)
	targetUserID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	var req struct {
		Reason string `json:"reason"`
	}
	// Body is optional; a bare POST blocks without a reason.
	if len(c.Body()) > 0 {
		if parseErr := c.BodyParser(&req); parseErr != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid request body"))
		}
	}

	block, blockErr := s.blockService.Block(ctx, userID, targetUserID, req.Reason)
	if blockErr != nil {
		return failWith(c, blockErr)
	}

	return c.Status(fiber.StatusCreated).JSON(block)
}

// UnblockUser handles DELETE /api/blocks/:userId
func (s *Server) UnblockUser(c *fiber.Ctx) error {
	ctx := c.Context()
	userID := c.Locals("userID").(uint)
	targetUserID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	if unblockErr := s.blockService.Unblock(ctx, userID, targetUserID); unblockErr != nil {
		return failWith(c, unblockErr)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// GetBlockedUsers handles GET /api/blocks
func (s *Server) GetBlockedUsers(c *fiber.Ctx) error {
	ctx := c.Context()
	userID := c.Locals("userID").(uint)

	blocks, err := s.blockService.Blocked(ctx, userID)
	if err != nil {
		return failWith(c, err)
	}

	return c.JSON(fiber.Map{"blocks": blocks})
}
