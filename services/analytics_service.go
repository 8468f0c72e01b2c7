package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vedshala/lms-api/model"
	"gorm.io/gorm"
)

// AnalyticsService handles admin reporting across sales, commissions
// and payouts.
type AnalyticsService struct {
	db          *gorm.DB
	commissions *CommissionService
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(db *gorm.DB, commissions *CommissionService) *AnalyticsService {
	return &AnalyticsService{db: db, commissions: commissions}
}

// DashboardStats represents overall platform statistics
type DashboardStats struct {
	TotalUsers       int64 `json:"total_users"`
	TotalJyotishis   int64 `json:"total_jyotishis"`
	TotalCourses     int64 `json:"total_courses"`
	TotalEnrollments int64 `json:"total_enrollments"`
	NewUsersToday    int64 `json:"new_users_today"`

	Revenue            decimal.Decimal `json:"revenue"`
	CompletedPayments  int64           `json:"completed_payments"`
	PendingCommission  decimal.Decimal `json:"pending_commission"`
	PaidCommission     decimal.Decimal `json:"paid_commission"`
	PendingPayouts     int64           `json:"pending_payouts"`
	PendingPayoutValue decimal.Decimal `json:"pending_payout_value"`
	CompletedPayouts   int64           `json:"completed_payouts"`
	PaidOutValue       decimal.Decimal `json:"paid_out_value"`
}

// GetDashboardStats retrieves overall platform statistics
func (s *AnalyticsService) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	db := s.db.WithContext(ctx)
	stats := &DashboardStats{
		Revenue:            decimal.Zero,
		PendingCommission:  decimal.Zero,
		PaidCommission:     decimal.Zero,
		PendingPayoutValue: decimal.Zero,
		PaidOutValue:       decimal.Zero,
	}

	if err := db.Model(&model.User{}).Count(&stats.TotalUsers).Error; err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	if err := db.Model(&model.User{}).
		Where("role = ?", model.RoleJyotishi).
		Count(&stats.TotalJyotishis).Error; err != nil {
		return nil, fmt.Errorf("failed to count jyotishis: %w", err)
	}
	if err := db.Model(&model.Course{}).Count(&stats.TotalCourses).Error; err != nil {
		return nil, fmt.Errorf("failed to count courses: %w", err)
	}
	if err := db.Model(&model.Enrollment{}).Count(&stats.TotalEnrollments).Error; err != nil {
		return nil, fmt.Errorf("failed to count enrollments: %w", err)
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	if err := db.Model(&model.User{}).
		Where("created_at >= ?", today).
		Count(&stats.NewUsersToday).Error; err != nil {
		return nil, fmt.Errorf("failed to count new users: %w", err)
	}

	// Revenue from completed payments, summed in decimal space.
	var payments []model.CoursePayment
	if err := db.Where("status = ?", model.PaymentStatusCompleted).Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("failed to load payments: %w", err)
	}
	stats.CompletedPayments = int64(len(payments))
	for _, p := range payments {
		stats.Revenue = stats.Revenue.Add(p.Amount)
	}

	var commissions []model.Commission
	if err := db.Where("status IN ?", []string{
		model.CommissionStatusPending, model.CommissionStatusPaid,
	}).Find(&commissions).Error; err != nil {
		return nil, fmt.Errorf("failed to load commissions: %w", err)
	}
	for _, c := range commissions {
		if c.Status == model.CommissionStatusPending {
			stats.PendingCommission = stats.PendingCommission.Add(c.CommissionAmount)
		} else {
			stats.PaidCommission = stats.PaidCommission.Add(c.CommissionAmount)
		}
	}

	var payouts []model.Payout
	if err := db.Where("status IN ?", []string{
		model.PayoutStatusPending, model.PayoutStatusProcessing, model.PayoutStatusCompleted,
	}).Find(&payouts).Error; err != nil {
		return nil, fmt.Errorf("failed to load payouts: %w", err)
	}
	for _, p := range payouts {
		if p.Status == model.PayoutStatusCompleted {
			stats.CompletedPayouts++
			stats.PaidOutValue = stats.PaidOutValue.Add(p.Amount)
		} else {
			stats.PendingPayouts++
			stats.PendingPayoutValue = stats.PendingPayoutValue.Add(p.Amount)
		}
	}

	return stats, nil
}

// TopJyotishis returns the affiliates with the highest pending balances,
// capped at limit.
func (s *AnalyticsService) TopJyotishis(ctx context.Context, limit int) ([]AffiliateBalance, error) {
	balances, err := s.commissions.PendingBalanceByAffiliate(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(balances) > limit {
		balances = balances[:limit]
	}
	return balances, nil
}

// RevenueBucket is one day of the revenue time series.
type RevenueBucket struct {
	Day     time.Time       `json:"day"`
	Revenue decimal.Decimal `json:"revenue"`
	Count   int64           `json:"count"`
}

// RevenueTimeSeries buckets completed payments per day over the window.
func (s *AnalyticsService) RevenueTimeSeries(ctx context.Context, days int) ([]RevenueBucket, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -days).Truncate(24 * time.Hour)

	var payments []model.CoursePayment
	if err := s.db.WithContext(ctx).
		Where("status = ? AND created_at >= ?", model.PaymentStatusCompleted, since).
		Order("created_at ASC").
		Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("failed to load payments: %w", err)
	}

	buckets := make([]RevenueBucket, days+1)
	for i := range buckets {
		buckets[i] = RevenueBucket{Day: since.AddDate(0, 0, i), Revenue: decimal.Zero}
	}
	for _, p := range payments {
		idx := int(p.CreatedAt.UTC().Truncate(24 * time.Hour).Sub(since).Hours() / 24)
		if idx >= 0 && idx < len(buckets) {
			buckets[idx].Revenue = buckets[idx].Revenue.Add(p.Amount)
			buckets[idx].Count++
		}
	}
	return buckets, nil
}
