package admin

import (
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/vedshala/lms-api/model"
	"github.com/vedshala/lms-api/services"
	"github.com/vedshala/lms-api/services/storage"
	"github.com/vedshala/lms-api/utils/middleware"
	"github.com/vedshala/lms-api/utils/response"
	"github.com/vedshala/lms-api/utils/validation"
	"gorm.io/gorm"
)

// PayoutAdminHandler serves the admin payout queue: settlement (request
// based and bulk), rejection and proof uploads.
type PayoutAdminHandler struct {
	db                  *gorm.DB
	payoutService       *services.PayoutService
	notificationService *services.NotificationService
	emailService        *services.EmailService
	spacesClient        *storage.SpacesClient
	validator           *validation.Validator
}

// NewPayoutAdminHandler creates a new payout admin handler. spacesClient
// may be nil when proof storage is not configured.
func NewPayoutAdminHandler(
	db *gorm.DB,
	payoutService *services.PayoutService,
	notificationService *services.NotificationService,
	emailService *services.EmailService,
	spacesClient *storage.SpacesClient,
) *PayoutAdminHandler {
	return &PayoutAdminHandler{
		db:                  db,
		payoutService:       payoutService,
		notificationService: notificationService,
		emailService:        emailService,
		spacesClient:        spacesClient,
		validator:           validation.NewValidator(),
	}
}

// SettlePayoutRequest represents the settlement body
type SettlePayoutRequest struct {
	TransactionID    string `json:"transaction_id" validate:"required,min=2,max=100"`
	TransactionProof string `json:"transaction_proof" validate:"omitempty,max=2000"`
	Notes            string `json:"notes" validate:"omitempty,max=2000"`
}

// BulkSettleRequest represents the bulk settlement body
type BulkSettleRequest struct {
	TransactionID    string `json:"transaction_id" validate:"required,min=2,max=100"`
	TransactionProof string `json:"transaction_proof" validate:"omitempty,max=2000"`
	Notes            string `json:"notes" validate:"omitempty,max=2000"`
	Method           string `json:"method" validate:"omitempty,oneof=bank_transfer upi"`
}

// RejectPayoutRequest represents the rejection body
type RejectPayoutRequest struct {
	Reason string `json:"reason" validate:"required,min=2,max=1000"`
}

// ListPayouts handles GET /api/v1/admin/payouts
// The settlement queue, oldest requests first when filtering PENDING.
func (h *PayoutAdminHandler) ListPayouts(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	payouts, total, err := h.payoutService.List(c.Context(), services.PayoutListOptions{
		Status: c.Query("status"),
		Limit:  limit,
		Offset: offset,
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

// GetPayout handles GET /api/v1/admin/payouts/:id
func (h *PayoutAdminHandler) GetPayout(c *fiber.Ctx) error {
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

	return response.Success(c, payout)
}

// SettlePayout handles POST /api/v1/admin/payouts/:id/settle
// Completes a requested payout: pending commissions are consumed
// oldest-first, the boundary commission is split if needed, and the
// linked sum equals the payout amount exactly.
func (h *PayoutAdminHandler) SettlePayout(c *fiber.Ctx) error {
	admin, ok := middleware.GetUser(c)
	if !ok || admin == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	payoutID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid payout ID")
	}

	var req SettlePayoutRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	payout, err := h.payoutService.SettleRequested(c.Context(), uint(payoutID), admin.ID, services.SettleInput{
		TransactionID:    req.TransactionID,
		TransactionProof: req.TransactionProof,
		Notes:            req.Notes,
	})
	if err != nil {
		var insufficient *services.InsufficientBalanceError
		switch {
		case errors.Is(err, services.ErrNotFound):
			return response.NotFound(c, "Payout not found")
		case errors.Is(err, services.ErrConflict):
			return response.Conflict(c, "Payout is not pending (already settled or rejected?)")
		case errors.As(err, &insufficient):
			return response.BadRequest(c, fmt.Sprintf(
				"Pending commissions (%s) no longer cover the payout amount (%s)",
				insufficient.Available.StringFixed(2), insufficient.Requested.StringFixed(2)))
		default:
			return response.InternalServerError(c, "Failed to settle payout")
		}
	}

	h.notifySettled(c, payout)

	return response.SuccessWithMessage(c, "Payout settled", payout)
}

// BulkSettlePayout handles POST /api/v1/admin/jyotishis/:id/settle
// Pays out every pending commission of the jyotishi in one batch.
func (h *PayoutAdminHandler) BulkSettlePayout(c *fiber.Ctx) error {
	admin, ok := middleware.GetUser(c)
	if !ok || admin == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	affiliateID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid jyotishi ID")
	}

	var req BulkSettleRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	payout, err := h.payoutService.BulkSettle(c.Context(), uint(affiliateID), admin.ID, services.SettleInput{
		TransactionID:    req.TransactionID,
		TransactionProof: req.TransactionProof,
		Notes:            req.Notes,
		Method:           req.Method,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotFound):
			return response.NotFound(c, "Jyotishi not found")
		case errors.Is(err, services.ErrNoPendingCommissions):
			return response.BadRequest(c, "Jyotishi has no pending commissions")
		case errors.Is(err, services.ErrConflict):
			return response.Conflict(c, "Commissions changed underneath the settlement, try again")
		default:
			return response.InternalServerError(c, "Failed to settle commissions")
		}
	}

	h.notifySettled(c, payout)

	return response.SuccessWithMessage(c, "Commissions settled", payout)
}

// RejectPayout handles POST /api/v1/admin/payouts/:id/reject
// Declines a pending request; the commissions stay pending.
func (h *PayoutAdminHandler) RejectPayout(c *fiber.Ctx) error {
	admin, ok := middleware.GetUser(c)
	if !ok || admin == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	payoutID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid payout ID")
	}

	var req RejectPayoutRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	payout, err := h.payoutService.Reject(c.Context(), uint(payoutID), admin.ID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotFound):
			return response.NotFound(c, "Payout not found")
		case errors.Is(err, services.ErrConflict):
			return response.Conflict(c, "Payout is not pending")
		default:
			return response.InternalServerError(c, "Failed to reject payout")
		}
	}

	// Tell the jyotishi
	var affiliate model.User
	if err := h.db.First(&affiliate, payout.AffiliateID).Error; err == nil {
		payoutID := payout.ID
		if _, err := h.notificationService.CreateNotification(c.Context(), services.CreateNotificationRequest{
			UserID:   affiliate.ID,
			Type:     model.NotificationTypeWarning,
			Category: model.NotificationCategoryPayout,
			Title:    "Payout request declined",
			Message:  fmt.Sprintf("Your payout request %s was declined: %s", payout.Reference, req.Reason),
			PayoutID: &payoutID,
		}); err != nil {
			log.Printf("Failed to notify jyotishi %d: %v", affiliate.ID, err)
		}
		go func(email, name string, p model.Payout) {
			if err := h.emailService.SendPayoutRejectedEmail(email, name, &p); err != nil {
				log.Printf("Failed to send payout-rejected email: %v", err)
			}
		}(affiliate.Email, affiliate.Name, *payout)
	}

	return response.SuccessWithMessage(c, "Payout rejected", payout)
}

// UploadProof handles POST /api/v1/admin/payouts/:id/proof
// Stores the transaction-proof file in object storage and attaches its
// URL to the payout.
func (h *PayoutAdminHandler) UploadProof(c *fiber.Ctx) error {
	if h.spacesClient == nil {
		return response.InternalServerError(c, "Proof storage is not configured")
	}

	payoutID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid payout ID")
	}

	fileHeader, err := c.FormFile("proof")
	if err != nil {
		return response.BadRequest(c, "Proof file is required (multipart field 'proof')")
	}
	if fileHeader.Size > 10*1024*1024 {
		return response.BadRequest(c, "Proof file must be under 10MB")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return response.InternalServerError(c, "Failed to read uploaded file")
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	url, err := h.spacesClient.UploadProof(c.Context(), uint(payoutID), fileHeader.Filename, file, contentType)
	if err != nil {
		return response.InternalServerError(c, "Failed to store proof")
	}

	if err := h.payoutService.AttachProof(c.Context(), uint(payoutID), url); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return response.NotFound(c, "Payout not found or already closed")
		}
		return response.InternalServerError(c, "Failed to attach proof")
	}

	return response.SuccessWithMessage(c, "Proof uploaded", fiber.Map{
		"proof_url": url,
	})
}

// notifySettled informs the jyotishi that money went out.
func (h *PayoutAdminHandler) notifySettled(c *fiber.Ctx, payout *model.Payout) {
	var affiliate model.User
	if err := h.db.First(&affiliate, payout.AffiliateID).Error; err != nil {
		log.Printf("Failed to load jyotishi %d for settlement notice: %v", payout.AffiliateID, err)
		return
	}

	payoutID := payout.ID
	if _, err := h.notificationService.CreateNotification(c.Context(), services.CreateNotificationRequest{
		UserID:   affiliate.ID,
		Type:     model.NotificationTypeSuccess,
		Category: model.NotificationCategoryPayout,
		Title:    "Payout completed",
		Message: fmt.Sprintf("Your payout %s for %s has been transferred",
			payout.Reference, payout.Amount.StringFixed(2)),
		PayoutID: &payoutID,
	}); err != nil {
		log.Printf("Failed to notify jyotishi %d: %v", affiliate.ID, err)
	}

	go func(email, name string, p model.Payout) {
		if err := h.emailService.SendPayoutSettledEmail(email, name, &p); err != nil {
			log.Printf("Failed to send payout-settled email: %v", err)
		}
	}(affiliate.Email, affiliate.Name, *payout)
}
