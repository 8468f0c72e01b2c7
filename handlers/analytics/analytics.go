package analytics

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/vedshala/lms-api/services"
	"github.com/vedshala/lms-api/utils/middleware"
	"github.com/vedshala/lms-api/utils/response"
	"gorm.io/gorm"
)

// AnalyticsHandler handles analytics and reporting requests
type AnalyticsHandler struct {
	db               *gorm.DB
	analyticsService *services.AnalyticsService
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(db *gorm.DB, analyticsService *services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{
		db:               db,
		analyticsService: analyticsService,
	}
}

// GetDashboard handles GET /api/v1/admin/analytics/dashboard
func (h *AnalyticsHandler) GetDashboard(c *fiber.Ctx) error {
	// Get user from context
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	// Get dashboard statistics
	stats, err := h.analyticsService.GetDashboardStats(c.Context())
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch dashboard stats")
	}

	return response.Success(c, stats)
}

// GetTopJyotishis handles GET /api/v1/admin/analytics/top-jyotishis
// Returns the affiliates with the highest pending balances
func (h *AnalyticsHandler) GetTopJyotishis(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "10"))
	if limit < 1 || limit > 100 {
		limit = 10
	}

	balances, err := h.analyticsService.TopJyotishis(c.Context(), limit)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch top jyotishis")
	}

	return response.Success(c, fiber.Map{
		"jyotishis": balances,
		"limit":     limit,
	})
}

// GetRevenueSeries handles GET /api/v1/admin/analytics/revenue
// Returns daily revenue buckets for the requested window
func (h *AnalyticsHandler) GetRevenueSeries(c *fiber.Ctx) error {
	days, _ := strconv.Atoi(c.Query("days", "30"))
	if days < 1 || days > 365 {
		days = 30
	}

	series, err := h.analyticsService.RevenueTimeSeries(c.Context(), days)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch revenue series")
	}

	return response.Success(c, fiber.Map{
		"days":   days,
		"series": series,
	})
}
