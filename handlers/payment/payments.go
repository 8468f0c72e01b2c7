package payment

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/vedshala/lms-api/services"
	"github.com/vedshala/lms-api/utils/middleware"
	"github.com/vedshala/lms-api/utils/response"
	"github.com/vedshala/lms-api/utils/validation"
)

// PaymentHandler handles course checkout requests
type PaymentHandler struct {
	paymentService *services.PaymentService
	validator      *validation.Validator
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(paymentService *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		validator:      validation.NewValidator(),
	}
}

// CreateOrderRequest represents the request body for starting a checkout
type CreateOrderRequest struct {
	CourseID   uint   `json:"course_id" validate:"required,min=1"`
	CouponCode string `json:"coupon_code" validate:"omitempty,max=30"`
	Method     string `json:"method" validate:"omitempty,max=30"`
}

// ConfirmPaymentRequest represents the gateway confirmation callback body
type ConfirmPaymentRequest struct {
	GatewayPaymentID string `json:"gateway_payment_id" validate:"required,max=100"`
}

// CreateOrder handles POST /api/v1/payments/orders
func (h *PaymentHandler) CreateOrder(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	payment, err := h.paymentService.CreateOrder(c.Context(), services.CreateOrderInput{
		UserID:     user.ID,
		CourseID:   req.CourseID,
		CouponCode: req.CouponCode,
		Method:     req.Method,
	})
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return response.NotFound(c, "Course or coupon not found")
		}
		return response.InternalServerError(c, "Failed to create order")
	}

	return response.Created(c, payment)
}

// ConfirmPayment handles POST /api/v1/payments/:id/confirm
// Marks the payment completed, enrolls the student and accrues any
// coupon commission. Confirming an already-completed payment is a no-op.
func (h *PaymentHandler) ConfirmPayment(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	paymentID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid payment ID")
	}

	var req ConfirmPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	payment, err := h.paymentService.Confirm(c.Context(), uint(paymentID), req.GatewayPaymentID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return response.NotFound(c, "Payment not found")
		}
		if errors.Is(err, services.ErrConflict) {
			return response.Conflict(c, "Payment is not in a confirmable state")
		}
		return response.InternalServerError(c, "Failed to confirm payment")
	}

	return response.SuccessWithMessage(c, "Payment confirmed", payment)
}

// ListMyPayments handles GET /api/v1/payments
func (h *PaymentHandler) ListMyPayments(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	payments, err := h.paymentService.ListByUser(c.Context(), user.ID)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch payments")
	}

	return response.Success(c, fiber.Map{
		"payments": payments,
	})
}

// RefundPayment handles POST /api/v1/admin/payments/:id/refund
// Refunds a completed payment and cancels its still-pending commissions.
func (h *PaymentHandler) RefundPayment(c *fiber.Ctx) error {
	paymentID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid payment ID")
	}

	payment, err := h.paymentService.Refund(c.Context(), uint(paymentID))
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return response.NotFound(c, "Payment not found")
		}
		if errors.Is(err, services.ErrConflict) {
			return response.Conflict(c, "Only completed payments can be refunded")
		}
		return response.InternalServerError(c, "Failed to refund payment")
	}

	return response.SuccessWithMessage(c, "Payment refunded", payment)
}
