package server

import (
	"alumnet/internal/models"

	"github.com/gofiber/fiber/v2"
)

// IssueDigitalID handles POST /api/digital-id
// Returns a short-lived signed token the client renders as a QR code.
func (s *Server) IssueDigitalID(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	token, expiresAt, err := s.digitalIDService.Issue(userID)
	if err != nil {
		return failWith(c, err)
	}

	return c.JSON(fiber.Map{
		"token":      token,
		"expires_at": expiresAt,
	})
}

// VerifyDigitalID handles POST /api/digital-id/verify
// The scanning party is not the token holder, so this endpoint does not
// require a session; the token itself is the credential being checked.
func (s *Server) VerifyDigitalID(c *fiber.Ctx) error {
	ctx := c.Context()

	var req struct {
		Token string `json:"token"`
	}
	if parseErr := c.BodyParser(&req); parseErr != nil || req.Token == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	userID, err := s.digitalIDService.Verify(req.Token)
	if err != nil {
		return failWith(c, err)
	}

	user, getErr := s.userRepo.GetByID(ctx, userID)
	if getErr != nil {
		return failWith(c, getErr)
	}

	return c.JSON(fiber.Map{
		"valid": true,
		"user":  user,
	})
}
