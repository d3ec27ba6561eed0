package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-bot/internal/api/dto"
	"github.com/spec-kit/ticket-bot/internal/service"
	apperrors "github.com/spec-kit/ticket-bot/pkg/util"
)

// OperatorsHandler manages ops API authentication endpoints.
type OperatorsHandler struct {
	auth *service.AuthService
}

// NewOperatorsHandler constructs handler.
func NewOperatorsHandler(authService *service.AuthService) *OperatorsHandler {
	return &OperatorsHandler{auth: authService}
}

// Login POST /auth/login.
func (h *OperatorsHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Login == "" || req.Password == "" {
		return apperrors.NewValidationError("login and password required", nil)
	}

	result, err := h.auth.Login(c.UserContext(), req.Login, req.Password)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"data": dto.LoginResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
	}})
}
