package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vedshala/lms-api/model"
	"gorm.io/gorm"
)

// PaymentService handles course checkout: order creation, confirmation
// (which enrolls the student and accrues commission for the coupon's
// jyotishi) and refunds.
type PaymentService struct {
	db          *gorm.DB
	coupons     *CouponService
	commissions *CommissionService
}

// NewPaymentService creates a new payment service
func NewPaymentService(db *gorm.DB, coupons *CouponService, commissions *CommissionService) *PaymentService {
	return &PaymentService{db: db, coupons: coupons, commissions: commissions}
}

// CreateOrderInput starts a checkout.
type CreateOrderInput struct {
	UserID     uint
	CourseID   uint
	CouponCode string
	Method     string
}

// CreateOrder creates a pending payment for the course at its current
// price, applying the coupon discount when a redeemable coupon is given.
func (s *PaymentService) CreateOrder(ctx context.Context, in CreateOrderInput) (*model.CoursePayment, error) {
	var course model.Course
	if err := s.db.WithContext(ctx).Where("active = ?", true).First(&course, in.CourseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load course: %w", err)
	}

	amount := course.Price
	discount := decimal.Zero
	var couponCode *string
	if in.CouponCode != "" {
		coupon, err := s.coupons.Resolve(ctx, in.CouponCode)
		if err != nil {
			return nil, err
		}
		amount, discount = s.coupons.DiscountedPrice(coupon, course.Price)
		couponCode = &coupon.Code
	}

	payment := &model.CoursePayment{
		UserID:         in.UserID,
		CourseID:       in.CourseID,
		GatewayOrderID: "order_" + uuid.New().String(),
		Amount:         amount,
		Discount:       discount,
		Status:         model.PaymentStatusPending,
		PaymentMethod:  in.Method,
		CouponCode:     couponCode,
	}
	if err := s.db.WithContext(ctx).Create(payment).Error; err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}
	return payment, nil
}

// Confirm marks a pending payment completed, enrolls the student and, if
// the sale was redeemed through a jyotishi coupon, accrues the
// commission at the jyotishi's current rate. Re-confirming a completed
// payment is a no-op for the commission (accrual is idempotent).
func (s *PaymentService) Confirm(ctx context.Context, paymentID uint, gatewayPaymentID string) (*model.CoursePayment, error) {
	var payment model.CoursePayment
	if err := s.db.WithContext(ctx).First(&payment, paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	if payment.Status == model.PaymentStatusCompleted {
		return &payment, nil
	}
	if payment.Status != model.PaymentStatusPending {
		return nil, ErrConflict
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.CoursePayment{}).
			Where("id = ? AND status = ?", paymentID, model.PaymentStatusPending).
			Updates(map[string]interface{}{
				"status":             model.PaymentStatusCompleted,
				"gateway_payment_id": gatewayPaymentID,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to complete payment: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}

		enrollment := &model.Enrollment{
			UserID:    payment.UserID,
			CourseID:  payment.CourseID,
			PaymentID: &payment.ID,
		}
		if err := tx.Create(enrollment).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrConflict // already enrolled
			}
			return fmt.Errorf("failed to enroll student: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Accrual is a separate idempotent step keyed on the payment, so a
	// crash between the two leaves a completed sale that the next
	// confirmation attempt finishes without double-counting.
	if payment.CouponCode != nil {
		if err := s.accrueForCoupon(ctx, &payment); err != nil &&
			!errors.Is(err, ErrDuplicateCommission) && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	if err := s.db.WithContext(ctx).First(&payment, paymentID).Error; err != nil {
		return nil, fmt.Errorf("failed to reload payment: %w", err)
	}
	return &payment, nil
}

func (s *PaymentService) accrueForCoupon(ctx context.Context, payment *model.CoursePayment) error {
	coupon, err := s.coupons.Resolve(ctx, *payment.CouponCode)
	if err != nil {
		return err
	}

	_, err = s.commissions.Accrue(ctx, AccrueInput{
		PaymentID:   payment.ID,
		AffiliateID: coupon.JyotishiID,
		StudentID:   payment.UserID,
		CourseID:    payment.CourseID,
		SaleAmount:  payment.Amount,
		Rate:        coupon.Jyotishi.CommissionRate,
	})
	if err != nil {
		return err
	}
	return s.coupons.RecordUsage(ctx, coupon.ID)
}

// Refund marks a completed payment refunded and cancels any commission
// segments still PENDING. Already-settled segments stay PAID; clawbacks
// are an offline process.
func (s *PaymentService) Refund(ctx context.Context, paymentID uint) (*model.CoursePayment, error) {
	var payment model.CoursePayment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&payment, paymentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load payment: %w", err)
		}

		res := tx.Model(&model.CoursePayment{}).
			Where("id = ? AND status = ?", paymentID, model.PaymentStatusCompleted).
			Update("status", model.PaymentStatusRefunded)
		if res.Error != nil {
			return fmt.Errorf("failed to refund payment: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}

		if err := tx.Model(&model.Commission{}).
			Where("payment_id = ? AND status = ?", paymentID, model.CommissionStatusPending).
			Update("status", model.CommissionStatusCancelled).Error; err != nil {
			return fmt.Errorf("failed to cancel commissions: %w", err)
		}

		return tx.Where("payment_id = ?", paymentID).Delete(&model.Enrollment{}).Error
	})
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).First(&payment, paymentID).Error; err != nil {
		return nil, fmt.Errorf("failed to reload payment: %w", err)
	}
	return &payment, nil
}

// ListByUser returns a student's payments newest first.
func (s *PaymentService) ListByUser(ctx context.Context, userID uint) ([]model.CoursePayment, error) {
	var payments []model.CoursePayment
	if err := s.db.WithContext(ctx).
		Preload("Course").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch payments: %w", err)
	}
	return payments, nil
}
