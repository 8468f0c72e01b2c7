package certificate

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/vedshala/lms-api/services"
	"github.com/vedshala/lms-api/utils/middleware"
	"github.com/vedshala/lms-api/utils/response"
)

// CertificateHandler handles completion certificates
type CertificateHandler struct {
	certificateService *services.CertificateService
}

// NewCertificateHandler creates a new certificate handler
func NewCertificateHandler(certificateService *services.CertificateService) *CertificateHandler {
	return &CertificateHandler{certificateService: certificateService}
}

// IssueCertificate handles POST /api/v1/admin/enrollments/:id/certificate
func (h *CertificateHandler) IssueCertificate(c *fiber.Ctx) error {
	admin, ok := middleware.GetUser(c)
	if !ok || admin == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	enrollmentID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid enrollment ID")
	}

	certificate, err := h.certificateService.Issue(c.Context(), uint(enrollmentID), admin.ID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotFound):
			return response.NotFound(c, "Enrollment not found")
		case errors.Is(err, services.ErrConflict):
			return response.Conflict(c, "Certificate already issued for this enrollment")
		default:
			return response.InternalServerError(c, "Failed to issue certificate")
		}
	}

	return response.Created(c, certificate)
}

// ListMyCertificates handles GET /api/v1/certificates
func (h *CertificateHandler) ListMyCertificates(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	certificates, err := h.certificateService.ListByUser(c.Context(), user.ID)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch certificates")
	}

	return response.Success(c, fiber.Map{
		"certificates": certificates,
	})
}

// VerifyCertificate handles GET /api/v1/certificates/:serial/verify
// Public verification endpoint.
func (h *CertificateHandler) VerifyCertificate(c *fiber.Ctx) error {
	serial := c.Params("serial")
	if serial == "" {
		return response.BadRequest(c, "Certificate serial is required")
	}

	certificate, err := h.certificateService.GetBySerial(c.Context(), serial)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return response.NotFound(c, "Certificate not found")
		}
		return response.InternalServerError(c, "Failed to verify certificate")
	}

	return response.Success(c, fiber.Map{
		"valid":       true,
		"serial":      certificate.Serial,
		"issued_at":   certificate.IssuedAt,
		"course":      certificate.Course.Name,
		"holder_name": certificate.User.Name,
	})
}
