package coupon

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/vedshala/lms-api/services"
	"github.com/vedshala/lms-api/utils/response"
	"github.com/vedshala/lms-api/utils/validation"
)

// CouponHandler handles coupon types and jyotishi coupons
type CouponHandler struct {
	couponService *services.CouponService
	validator     *validation.Validator
}

// NewCouponHandler creates a new coupon handler
func NewCouponHandler(couponService *services.CouponService) *CouponHandler {
	return &CouponHandler{
		couponService: couponService,
		validator:     validation.NewValidator(),
	}
}

// CreateTypeRequest represents the request body for creating a coupon type
type CreateTypeRequest struct {
	Name         string `json:"name" validate:"required,min=2,max=100"`
	DiscountKind string `json:"discount_kind" validate:"omitempty,oneof=flat percent"`
	Description  string `json:"description" validate:"omitempty,max=1000"`
}

// CreateCouponRequest represents the request body for creating a coupon
type CreateCouponRequest struct {
	CouponTypeID uint   `json:"coupon_type_id" validate:"required,min=1"`
	JyotishiID   uint   `json:"jyotishi_id" validate:"required,min=1"`
	Discount     string `json:"discount" validate:"required"`
	MaxUsage     *int   `json:"max_usage" validate:"omitempty,min=1"`
	ValidUntil   string `json:"valid_until" validate:"omitempty"`
}

// PreviewCouponRequest represents the request body for previewing a code
type PreviewCouponRequest struct {
	CouponTypeID uint   `json:"coupon_type_id" validate:"required,min=1"`
	JyotishiID   uint   `json:"jyotishi_id" validate:"required,min=1"`
	Discount     string `json:"discount" validate:"required"`
}

// CreateType handles POST /api/v1/admin/coupon-types
// The two-digit type code is generated, never supplied by the caller.
func (h *CouponHandler) CreateType(c *fiber.Ctx) error {
	var req CreateTypeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	couponType, err := h.couponService.CreateType(c.Context(), services.CreateTypeInput{
		Name:         validation.SanitizeString(req.Name),
		DiscountKind: req.DiscountKind,
		Description:  validation.SanitizeString(req.Description),
	})
	if err != nil {
		if errors.Is(err, services.ErrCodeSpaceExhausted) {
			return response.Conflict(c, "All coupon type codes are in use")
		}
		if errors.Is(err, services.ErrConflict) {
			return response.Conflict(c, "Coupon type code collision, try again")
		}
		return response.InternalServerError(c, "Failed to create coupon type")
	}

	return response.Created(c, couponType)
}

// ListTypes handles GET /api/v1/coupon-types
func (h *CouponHandler) ListTypes(c *fiber.Ctx) error {
	types, err := h.couponService.ListTypes(c.Context())
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch coupon types")
	}
	return response.Success(c, fiber.Map{
		"coupon_types": types,
	})
}

// CreateCoupon handles POST /api/v1/admin/coupons
func (h *CouponHandler) CreateCoupon(c *fiber.Ctx) error {
	var req CreateCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	discount, err := decimal.NewFromString(req.Discount)
	if err != nil {
		return response.BadRequest(c, "Discount must be a decimal number")
	}

	var validUntil *time.Time
	if req.ValidUntil != "" {
		t, err := time.Parse(time.RFC3339, req.ValidUntil)
		if err != nil {
			return response.BadRequest(c, "valid_until must be RFC3339 formatted")
		}
		validUntil = &t
	}

	coupon, err := h.couponService.Create(c.Context(), services.CreateCouponInput{
		CouponTypeID: req.CouponTypeID,
		JyotishiID:   req.JyotishiID,
		Discount:     discount,
		MaxUsage:     req.MaxUsage,
		ValidUntil:   validUntil,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidAmount):
			return response.BadRequest(c, "Discount must be positive")
		case errors.Is(err, services.ErrNotFound):
			return response.NotFound(c, "Jyotishi or coupon type not found")
		case errors.Is(err, services.ErrConflict):
			return response.Conflict(c, "A coupon with this code already exists")
		default:
			return response.InternalServerError(c, "Failed to create coupon")
		}
	}

	return response.Created(c, coupon)
}

// PreviewCoupon handles POST /api/v1/admin/coupons/preview
// Returns the code the coupon would get and whether it collides, without
// creating anything.
func (h *CouponHandler) PreviewCoupon(c *fiber.Ctx) error {
	var req PreviewCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	discount, err := decimal.NewFromString(req.Discount)
	if err != nil {
		return response.BadRequest(c, "Discount must be a decimal number")
	}

	code, exists, err := h.couponService.Preview(c.Context(), req.JyotishiID, req.CouponTypeID, discount)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return response.NotFound(c, "Jyotishi or coupon type not found")
		}
		return response.InternalServerError(c, "Failed to preview coupon code")
	}

	return response.Success(c, fiber.Map{
		"code":   code,
		"exists": exists,
	})
}

// ValidateCoupon handles GET /api/v1/coupons/:code/validate
// Public endpoint used by the checkout page to price a coupon.
func (h *CouponHandler) ValidateCoupon(c *fiber.Ctx) error {
	code := c.Params("code")
	if code == "" {
		return response.BadRequest(c, "Coupon code is required")
	}

	coupon, err := h.couponService.Resolve(c.Context(), code)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return response.NotFound(c, "Coupon not found or no longer redeemable")
		}
		return response.InternalServerError(c, "Failed to validate coupon")
	}

	return response.Success(c, fiber.Map{
		"code":          coupon.Code,
		"discount":      coupon.Discount,
		"discount_kind": coupon.CouponType.DiscountKind,
		"valid":         true,
	})
}
