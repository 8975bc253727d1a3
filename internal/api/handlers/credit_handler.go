package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/postpilotapp/postpilot/internal/service"
)

type CreditHandler struct {
	s service.CreditService
}

func NewCreditHandler(s service.CreditService) *CreditHandler {
	return &CreditHandler{s: s}
}

func (h *CreditHandler) GetBalance(c *fiber.Ctx) error {
	userID := GetUserID(c)

	admission, err := h.s.Balance(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to get credit balance",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"balance":   admission.Remaining,
		"unlimited": admission.Unlimited,
	})
}
