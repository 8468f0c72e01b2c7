package admin

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/vedshala/lms-api/services"
	"github.com/vedshala/lms-api/utils/response"
	"github.com/vedshala/lms-api/utils/validation"
)

// JyotishiAdminHandler manages affiliate accounts: promotion, rate
// changes and the affiliate roster.
type JyotishiAdminHandler struct {
	jyotishiService   *services.JyotishiService
	commissionService *services.CommissionService
	validator         *validation.Validator
}

// NewJyotishiAdminHandler creates a new jyotishi admin handler
func NewJyotishiAdminHandler(jyotishiService *services.JyotishiService, commissionService *services.CommissionService) *JyotishiAdminHandler {
	return &JyotishiAdminHandler{
		jyotishiService:   jyotishiService,
		commissionService: commissionService,
		validator:         validation.NewValidator(),
	}
}

// PromoteRequest represents the promotion body
type PromoteRequest struct {
	CommissionRate string `json:"commission_rate" validate:"required"`
}

// UpdateRateRequest represents the rate change body
type UpdateRateRequest struct {
	CommissionRate string `json:"commission_rate" validate:"required"`
}

// Promote handles POST /api/v1/admin/users/:id/promote
// Turns a user into a jyotishi with a freshly generated code.
func (h *JyotishiAdminHandler) Promote(c *fiber.Ctx) error {
	userID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid user ID")
	}

	var req PromoteRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	rate, err := decimal.NewFromString(req.CommissionRate)
	if err != nil {
		return response.BadRequest(c, "Commission rate must be a decimal number")
	}

	user, err := h.jyotishiService.Promote(c.Context(), uint(userID), rate)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotFound):
			return response.NotFound(c, "User not found")
		case errors.Is(err, services.ErrConflict):
			return response.Conflict(c, "User is already a jyotishi or code generation raced out")
		case errors.Is(err, services.ErrCodeSpaceExhausted):
			return response.Conflict(c, "No jyotishi code available for these initials")
		default:
			return response.BadRequest(c, err.Error())
		}
	}

	return response.SuccessWithMessage(c, "User promoted to jyotishi", user)
}

// UpdateRate handles PUT /api/v1/admin/jyotishis/:id/rate
// Changes the rate for future accruals only.
func (h *JyotishiAdminHandler) UpdateRate(c *fiber.Ctx) error {
	userID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid user ID")
	}

	var req UpdateRateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	rate, err := decimal.NewFromString(req.CommissionRate)
	if err != nil {
		return response.BadRequest(c, "Commission rate must be a decimal number")
	}

	if err := h.jyotishiService.UpdateRate(c.Context(), uint(userID), rate); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return response.NotFound(c, "Jyotishi not found")
		}
		return response.BadRequest(c, err.Error())
	}

	return response.SuccessWithMessage(c, "Commission rate updated", nil)
}

// ListJyotishis handles GET /api/v1/admin/jyotishis
func (h *JyotishiAdminHandler) ListJyotishis(c *fiber.Ctx) error {
	jyotishis, err := h.jyotishiService.List(c.Context())
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch jyotishis")
	}

	return response.Success(c, fiber.Map{
		"jyotishis": jyotishis,
	})
}

// GetBalances handles GET /api/v1/admin/jyotishis/balances
// Pending balance per jyotishi, highest first.
func (h *JyotishiAdminHandler) GetBalances(c *fiber.Ctx) error {
	balances, err := h.commissionService.PendingBalanceByAffiliate(c.Context())
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch balances")
	}

	return response.Success(c, fiber.Map{
		"balances": balances,
	})
}
