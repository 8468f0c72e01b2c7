package admin

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/vedshala/lms-api/database"
	"github.com/vedshala/lms-api/model"
	"github.com/vedshala/lms-api/utils/response"
	"gorm.io/gorm"
)

// GetOverviewAnalytics retrieves system-wide overview statistics
// GET /admin/analytics/overview
func GetOverviewAnalytics(c *fiber.Ctx, store database.Storage) error {
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return response.InternalServerError(c, "Database connection error")
	}

	var stats struct {
		TotalUsers         int64 `json:"total_users"`
		TotalJyotishis     int64 `json:"total_jyotishis"`
		TotalCourses       int64 `json:"total_courses"`
		TotalEnrollments   int64 `json:"total_enrollments"`
		TotalCoupons       int64 `json:"total_coupons"`
		CompletedPayments  int64 `json:"completed_payments"`
		PaymentsToday      int64 `json:"payments_today"`
		PendingCommissions int64 `json:"pending_commissions"`
		PendingPayouts     int64 `json:"pending_payouts"`
	}

	// Fetch all counts
	db.Model(&model.User{}).Count(&stats.TotalUsers)
	db.Model(&model.User{}).Where("role = ?", model.RoleJyotishi).Count(&stats.TotalJyotishis)
	db.Model(&model.Course{}).Count(&stats.TotalCourses)
	db.Model(&model.Enrollment{}).Count(&stats.TotalEnrollments)
	db.Model(&model.Coupon{}).Count(&stats.TotalCoupons)
	db.Model(&model.CoursePayment{}).
		Where("status = ?", model.PaymentStatusCompleted).
		Count(&stats.CompletedPayments)
	db.Model(&model.CoursePayment{}).
		Where("status = ? AND created_at >= ?", model.PaymentStatusCompleted,
			time.Now().Add(-24*time.Hour)).
		Count(&stats.PaymentsToday)
	db.Model(&model.Commission{}).
		Where("status = ?", model.CommissionStatusPending).
		Count(&stats.PendingCommissions)
	db.Model(&model.Payout{}).
		Where("status = ?", model.PayoutStatusPending).
		Count(&stats.PendingPayouts)

	return response.SuccessWithMessage(c, "Overview analytics retrieved successfully", stats)
}

// GetPayoutAnalytics breaks payouts down by status and method
// GET /admin/analytics/payouts
func GetPayoutAnalytics(c *fiber.Ctx, store database.Storage) error {
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return response.InternalServerError(c, "Database connection error")
	}

	type statusCount struct {
		Status string `json:"status"`
		Count  int64  `json:"count"`
	}
	type methodCount struct {
		Method string `json:"method"`
		Count  int64  `json:"count"`
	}

	var byStatus []statusCount
	if err := db.Model(&model.Payout{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&byStatus).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch payout analytics")
	}

	var byMethod []methodCount
	if err := db.Model(&model.Payout{}).
		Select("method, COUNT(*) as count").
		Group("method").
		Scan(&byMethod).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch payout analytics")
	}

	// Oldest waiting request, useful for queue health
	var oldest model.Payout
	var oldestWaiting *time.Time
	err := db.Where("status = ?", model.PayoutStatusPending).
		Order("requested_at ASC").
		First(&oldest).Error
	if err == nil {
		oldestWaiting = &oldest.RequestedAt
	}

	return response.SuccessWithMessage(c, "Payout analytics retrieved successfully", fiber.Map{
		"by_status":      byStatus,
		"by_method":      byMethod,
		"oldest_waiting": oldestWaiting,
	})
}
