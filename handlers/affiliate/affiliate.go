package affiliate

import (
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/vedshala/lms-api/model"
	"github.com/vedshala/lms-api/services"
	"github.com/vedshala/lms-api/utils/middleware"
	"github.com/vedshala/lms-api/utils/response"
	"github.com/vedshala/lms-api/utils/validation"
)

// AffiliateHandler serves the jyotishi-facing dashboard, commission
// history and payout requests.
type AffiliateHandler struct {
	commissionService   *services.CommissionService
	payoutService       *services.PayoutService
	jyotishiService     *services.JyotishiService
	couponService       *services.CouponService
	notificationService *services.NotificationService
	emailService        *services.EmailService
	validator           *validation.Validator
}

// NewAffiliateHandler creates a new affiliate handler
func NewAffiliateHandler(
	commissionService *services.CommissionService,
	payoutService *services.PayoutService,
	jyotishiService *services.JyotishiService,
	couponService *services.CouponService,
	notificationService *services.NotificationService,
	emailService *services.EmailService,
) *AffiliateHandler {
	return &AffiliateHandler{
		commissionService:   commissionService,
		payoutService:       payoutService,
		jyotishiService:     jyotishiService,
		couponService:       couponService,
		notificationService: notificationService,
		emailService:        emailService,
		validator:           validation.NewValidator(),
	}
}

// RequestPayoutRequest represents the payout request body
type RequestPayoutRequest struct {
	Amount string `json:"amount" validate:"required"`
	Method string `json:"method" validate:"omitempty,oneof=bank_transfer upi"`
}

// UpdateBankDetailsRequest represents the bank details update body
type UpdateBankDetailsRequest struct {
	AccountName   string `json:"account_name" validate:"required,min=2,max=255"`
	AccountNumber string `json:"account_number" validate:"required,min=6,max=34"`
	IFSC          string `json:"ifsc" validate:"required,min=4,max=15"`
	BankName      string `json:"bank_name" validate:"omitempty,max=100"`
	UPIID         string `json:"upi_id" validate:"omitempty,max=100"`
}

// GetDashboard handles GET /api/v1/jyotishi/dashboard
// Returns the earnings summary plus the balance available for a new
// payout request (pending commissions minus open payout reservations).
func (h *AffiliateHandler) GetDashboard(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	earnings, err := h.commissionService.Earnings(c.Context(), user.ID)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch earnings")
	}

	openPayouts, _, err := h.payoutService.List(c.Context(), services.PayoutListOptions{
		AffiliateID: user.ID,
		Status:      model.PayoutStatusPending,
		Limit:       100,
	})
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch payouts")
	}
	processing, _, err := h.payoutService.List(c.Context(), services.PayoutListOptions{
		AffiliateID: user.ID,
		Status:      model.PayoutStatusProcessing,
		Limit:       100,
	})
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch payouts")
	}

	reserved := decimal.Zero
	for _, p := range append(openPayouts, processing...) {
		reserved = reserved.Add(p.Amount)
	}

	return response.Success(c, fiber.Map{
		"earnings":          earnings,
		"reserved":          reserved,
		"available_balance": earnings.Pending.Sub(reserved),
		"jyotishi_code":     user.JyotishiCode,
		"commission_rate":   user.CommissionRate,
	})
}

// ListCommissions handles GET /api/v1/jyotishi/commissions
func (h *AffiliateHandler) ListCommissions(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	status := c.Query("status")

	commissions, total, err := h.commissionService.List(c.Context(), services.ListOptions{
		AffiliateID: user.ID,
		Status:      status,
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch commissions")
	}

	return response.Success(c, fiber.Map{
		"commissions": commissions,
		"total":       total,
		"limit":       limit,
		"offset":      offset,
	})
}

// RequestPayout handles POST /api/v1/jyotishi/payouts
func (h *AffiliateHandler) RequestPayout(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req RequestPayoutRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return response.BadRequest(c, "Amount must be a decimal number")
	}

	payout, err := h.payoutService.Request(c.Context(), user.ID, services.RequestInput{
		Amount: amount,
		Method: req.Method,
	})
	if err != nil {
		var insufficient *services.InsufficientBalanceError
		var missingBank *services.MissingBankDetailsError
		switch {
		case errors.Is(err, services.ErrInvalidAmount):
			return response.BadRequest(c, "Amount must be positive")
		case errors.As(err, &insufficient):
			return response.BadRequest(c, fmt.Sprintf(
				"Requested %s exceeds available balance %s",
				insufficient.Requested.StringFixed(2), insufficient.Available.StringFixed(2)))
		case errors.As(err, &missingBank):
			return response.BadRequest(c, missingBank.Error())
		case errors.Is(err, services.ErrConflict):
			return response.Conflict(c, "Another payout request is in flight, try again")
		case errors.Is(err, services.ErrNotFound):
			return response.Forbidden(c, "Only jyotishis can request payouts")
		default:
			return response.InternalServerError(c, "Failed to create payout request")
		}
	}

	// Notify admins and confirm to the jyotishi outside the request path
	payoutID := payout.ID
	if err := h.notificationService.NotifyAdmins(c.Context(), services.CreateNotificationRequest{
		Type:     model.NotificationTypeInfo,
		Category: model.NotificationCategoryPayout,
		Title:    "New payout request",
		Message: fmt.Sprintf("%s requested a payout of %s",
			user.Name, payout.Amount.StringFixed(2)),
		PayoutID: &payoutID,
	}); err != nil {
		log.Printf("Failed to notify admins about payout %d: %v", payout.ID, err)
	}
	go func(email, name string, p model.Payout) {
		if err := h.emailService.SendPayoutRequestedEmail(email, name, &p); err != nil {
			log.Printf("Failed to send payout-requested email: %v", err)
		}
	}(user.Email, user.Name, *payout)

	return response.Created(c, payout)
}

// ListPayouts handles GET /api/v1/jyotishi/payouts
func (h *AffiliateHandler) ListPayouts(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	payouts, total, err := h.payoutService.List(c.Context(), services.PayoutListOptions{
		AffiliateID: user.ID,
		Status:      c.Query("status"),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch payouts")
	}

	return response.Success(c, fiber.Map{
		"payouts": payouts,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// GetPayout handles GET /api/v1/jyotishi/payouts/:id
func (h *AffiliateHandler) GetPayout(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	payoutID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid payout ID")
	}

	payout, err := h.payoutService.Get(c.Context(), uint(payoutID))
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return response.NotFound(c, "Payout not found")
		}
		return response.InternalServerError(c, "Failed to fetch payout")
	}

	// Jyotishis only see their own payouts
	if payout.AffiliateID != user.ID && user.Role != model.RoleAdmin {
		return response.NotFound(c, "Payout not found")
	}

	return response.Success(c, payout)
}

// UpdateBankDetails handles PUT /api/v1/jyotishi/bank-details
func (h *AffiliateHandler) UpdateBankDetails(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req UpdateBankDetailsRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	err := h.jyotishiService.UpdateBankDetails(c.Context(), user.ID, model.BankDetailsSnapshot{
		AccountName:   validation.SanitizeString(req.AccountName),
		AccountNumber: validation.SanitizeString(req.AccountNumber),
		IFSC:          validation.SanitizeString(req.IFSC),
		BankName:      validation.SanitizeString(req.BankName),
		UPIID:         validation.SanitizeString(req.UPIID),
	})
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return response.NotFound(c, "User not found")
		}
		return response.InternalServerError(c, "Failed to update bank details")
	}

	return response.SuccessWithMessage(c, "Bank details updated", nil)
}

// ListCoupons handles GET /api/v1/jyotishi/coupons
func (h *AffiliateHandler) ListCoupons(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	coupons, err := h.couponService.ListByJyotishi(c.Context(), user.ID)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch coupons")
	}

	return response.Success(c, fiber.Map{
		"coupons": coupons,
	})
}
