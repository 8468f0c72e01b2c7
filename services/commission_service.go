package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vedshala/lms-api/model"
	"gorm.io/gorm"
)

// CommissionService owns commission accrual and the pending-balance
// aggregates used by dashboards and by the payout workflow.
type CommissionService struct {
	db *gorm.DB
}

// NewCommissionService creates a new commission service
func NewCommissionService(db *gorm.DB) *CommissionService {
	return &CommissionService{db: db}
}

// AccrueInput carries the sale facts needed to record a commission.
type AccrueInput struct {
	PaymentID   uint
	AffiliateID uint
	StudentID   uint
	CourseID    uint
	SaleAmount  decimal.Decimal
	Rate        decimal.Decimal // affiliate's rate at accrual time
}

// Accrue converts a completed sale into a PENDING commission owed to the
// jyotishi. The commission amount is fixed at accrual time from the rate
// passed in, so later rate changes never alter accrued commissions.
//
// Accrual is idempotent per payment: the unique index on
// (payment_id, segment) turns a re-invocation into ErrDuplicateCommission
// instead of a second row.
func (s *CommissionService) Accrue(ctx context.Context, in AccrueInput) (*model.Commission, error) {
	if in.SaleAmount.IsNegative() || !in.SaleAmount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if in.Rate.IsNegative() {
		return nil, fmt.Errorf("commission rate must not be negative")
	}

	commission := &model.Commission{
		AffiliateID:      in.AffiliateID,
		StudentID:        in.StudentID,
		CourseID:         in.CourseID,
		PaymentID:        in.PaymentID,
		Segment:          1,
		SaleAmount:       in.SaleAmount,
		CommissionRate:   in.Rate,
		CommissionAmount: in.SaleAmount.Mul(in.Rate).Round(2),
		Status:           model.CommissionStatusPending,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var payment model.CoursePayment
		if err := tx.First(&payment, in.PaymentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load payment: %w", err)
		}

		if err := tx.Create(commission).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateCommission
			}
			return fmt.Errorf("failed to create commission: %w", err)
		}

		amount := commission.CommissionAmount
		return tx.Model(&payment).Updates(map[string]interface{}{
			"commission_amount": amount,
			"commission_paid":   false,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	return commission, nil
}

// Cancel marks all still-PENDING commission segments of a payment as
// CANCELLED (refund path). PAID segments are never touched.
func (s *CommissionService) Cancel(ctx context.Context, paymentID uint) error {
	return s.db.WithContext(ctx).Model(&model.Commission{}).
		Where("payment_id = ? AND status = ?", paymentID, model.CommissionStatusPending).
		Update("status", model.CommissionStatusCancelled).Error
}

// PendingBalance returns the sum of PENDING commission amounts for one
// jyotishi. Amounts are summed in decimal space from the loaded rows so
// the result is exact regardless of the database's numeric handling.
func (s *CommissionService) PendingBalance(ctx context.Context, affiliateID uint) (decimal.Decimal, error) {
	return pendingBalanceTx(s.db.WithContext(ctx), affiliateID)
}

// pendingBalanceTx computes the pending balance on the given handle so
// the payout workflow can evaluate it inside its own transaction.
func pendingBalanceTx(tx *gorm.DB, affiliateID uint) (decimal.Decimal, error) {
	var commissions []model.Commission
	if err := tx.
		Where("affiliate_id = ? AND status = ?", affiliateID, model.CommissionStatusPending).
		Find(&commissions).Error; err != nil {
		return decimal.Zero, fmt.Errorf("failed to load pending commissions: %w", err)
	}

	total := decimal.Zero
	for _, c := range commissions {
		total = total.Add(c.CommissionAmount)
	}
	return total, nil
}

// AffiliateBalance is one row of the admin "top jyotishis" overview.
type AffiliateBalance struct {
	AffiliateID  uint            `json:"affiliate_id"`
	Name         string          `json:"name"`
	JyotishiCode string          `json:"jyotishi_code,omitempty"`
	Pending      decimal.Decimal `json:"pending"`
	Count        int             `json:"count"`
}

// PendingBalanceByAffiliate aggregates the pending balance of every
// jyotishi in one pass, ordered by total descending; ties break by
// affiliate id ascending so the ordering is deterministic.
func (s *CommissionService) PendingBalanceByAffiliate(ctx context.Context) ([]AffiliateBalance, error) {
	var commissions []model.Commission
	if err := s.db.WithContext(ctx).
		Preload("Affiliate").
		Where("status = ?", model.CommissionStatusPending).
		Find(&commissions).Error; err != nil {
		return nil, fmt.Errorf("failed to load pending commissions: %w", err)
	}

	byAffiliate := make(map[uint]*AffiliateBalance)
	for _, c := range commissions {
		b, ok := byAffiliate[c.AffiliateID]
		if !ok {
			b = &AffiliateBalance{AffiliateID: c.AffiliateID, Name: c.Affiliate.Name, Pending: decimal.Zero}
			if c.Affiliate.JyotishiCode != nil {
				b.JyotishiCode = *c.Affiliate.JyotishiCode
			}
			byAffiliate[c.AffiliateID] = b
		}
		b.Pending = b.Pending.Add(c.CommissionAmount)
		b.Count++
	}

	balances := make([]AffiliateBalance, 0, len(byAffiliate))
	for _, b := range byAffiliate {
		balances = append(balances, *b)
	}
	sort.Slice(balances, func(i, j int) bool {
		if !balances[i].Pending.Equal(balances[j].Pending) {
			return balances[i].Pending.GreaterThan(balances[j].Pending)
		}
		return balances[i].AffiliateID < balances[j].AffiliateID
	})
	return balances, nil
}

// ListOptions filters a jyotishi's commission history.
type ListOptions struct {
	AffiliateID uint
	Status      string
	Limit       int
	Offset      int
}

// List returns a jyotishi's commissions, newest first, with the total
// matching count for pagination.
func (s *CommissionService) List(ctx context.Context, opts ListOptions) ([]model.Commission, int64, error) {
	query := s.db.WithContext(ctx).Model(&model.Commission{}).
		Where("affiliate_id = ?", opts.AffiliateID)
	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count commissions: %w", err)
	}

	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	var commissions []model.Commission
	if err := query.Preload("Course").
		Order("created_at DESC, id DESC").
		Limit(opts.Limit).
		Offset(opts.Offset).
		Find(&commissions).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch commissions: %w", err)
	}
	return commissions, total, nil
}

// EarningsSummary is the jyotishi dashboard aggregate.
type EarningsSummary struct {
	Pending   decimal.Decimal `json:"pending"`
	Paid      decimal.Decimal `json:"paid"`
	Cancelled decimal.Decimal `json:"cancelled"`
	Lifetime  decimal.Decimal `json:"lifetime"` // pending + paid
	LastPaidAt *time.Time     `json:"last_paid_at,omitempty"`
}

// Earnings summarises a jyotishi's commissions across all statuses.
func (s *CommissionService) Earnings(ctx context.Context, affiliateID uint) (*EarningsSummary, error) {
	var commissions []model.Commission
	if err := s.db.WithContext(ctx).
		Where("affiliate_id = ?", affiliateID).
		Find(&commissions).Error; err != nil {
		return nil, fmt.Errorf("failed to load commissions: %w", err)
	}

	summary := &EarningsSummary{
		Pending:   decimal.Zero,
		Paid:      decimal.Zero,
		Cancelled: decimal.Zero,
	}
	for _, c := range commissions {
		switch c.Status {
		case model.CommissionStatusPending:
			summary.Pending = summary.Pending.Add(c.CommissionAmount)
		case model.CommissionStatusPaid:
			summary.Paid = summary.Paid.Add(c.CommissionAmount)
			if summary.LastPaidAt == nil || (c.PaidAt != nil && c.PaidAt.After(*summary.LastPaidAt)) {
				summary.LastPaidAt = c.PaidAt
			}
		case model.CommissionStatusCancelled:
			summary.Cancelled = summary.Cancelled.Add(c.CommissionAmount)
		}
	}
	summary.Lifetime = summary.Pending.Add(summary.Paid)
	return summary, nil
}
