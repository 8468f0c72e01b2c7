package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vedshala/lms-api/model"
	"gorm.io/gorm"
)

// CouponService manages coupon types and jyotishi coupons.
type CouponService struct {
	db    *gorm.DB
	codes *CodeService
}

// NewCouponService creates a new coupon service
func NewCouponService(db *gorm.DB, codes *CodeService) *CouponService {
	return &CouponService{db: db, codes: codes}
}

// CreateTypeInput describes a new coupon type.
type CreateTypeInput struct {
	Name         string
	DiscountKind string
	Description  string
}

// CreateType creates a coupon type with the next free two-digit code.
// A concurrent creation claiming the same code loses at insert time and
// surfaces as ErrConflict.
func (s *CouponService) CreateType(ctx context.Context, in CreateTypeInput) (*model.CouponType, error) {
	code, err := s.codes.NextCouponTypeCode(ctx)
	if err != nil {
		return nil, err
	}

	if in.DiscountKind == "" {
		in.DiscountKind = model.DiscountKindFlat
	}
	couponType := &model.CouponType{
		Name:         in.Name,
		Code:         code,
		DiscountKind: in.DiscountKind,
		Description:  in.Description,
	}
	if err := s.db.WithContext(ctx).Create(couponType).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("failed to create coupon type: %w", err)
	}
	return couponType, nil
}

// ListTypes returns all coupon types ordered by code.
func (s *CouponService) ListTypes(ctx context.Context) ([]model.CouponType, error) {
	var types []model.CouponType
	if err := s.db.WithContext(ctx).Order("code ASC").Find(&types).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch coupon types: %w", err)
	}
	return types, nil
}

// CreateCouponInput describes a new jyotishi coupon.
type CreateCouponInput struct {
	CouponTypeID uint
	JyotishiID   uint
	Discount     decimal.Decimal
	MaxUsage     *int
	ValidUntil   *time.Time
}

// Create composes the coupon code from the jyotishi code, the type code
// and the discount, then inserts it. The unique index on the code column
// is the last word: a race with an identical composition fails with
// ErrConflict instead of overwriting.
func (s *CouponService) Create(ctx context.Context, in CreateCouponInput) (*model.Coupon, error) {
	if !in.Discount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	var jyotishi model.User
	if err := s.db.WithContext(ctx).First(&jyotishi, in.JyotishiID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load jyotishi: %w", err)
	}
	if !jyotishi.IsJyotishi() || jyotishi.JyotishiCode == nil {
		return nil, ErrNotFound
	}

	var couponType model.CouponType
	if err := s.db.WithContext(ctx).First(&couponType, in.CouponTypeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load coupon type: %w", err)
	}

	coupon := &model.Coupon{
		Code:         ComposeCouponCode(*jyotishi.JyotishiCode, couponType.Code, in.Discount),
		CouponTypeID: couponType.ID,
		JyotishiID:   jyotishi.ID,
		Discount:     in.Discount,
		Active:       true,
		MaxUsage:     in.MaxUsage,
		ValidUntil:   in.ValidUntil,
	}
	if err := s.db.WithContext(ctx).Create(coupon).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("failed to create coupon: %w", err)
	}
	return coupon, nil
}

// Preview reports the code a coupon would get and whether it collides,
// without creating anything.
func (s *CouponService) Preview(ctx context.Context, jyotishiID, couponTypeID uint, discount decimal.Decimal) (string, bool, error) {
	var jyotishi model.User
	if err := s.db.WithContext(ctx).First(&jyotishi, jyotishiID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, ErrNotFound
		}
		return "", false, fmt.Errorf("failed to load jyotishi: %w", err)
	}
	if jyotishi.JyotishiCode == nil {
		return "", false, ErrNotFound
	}

	var couponType model.CouponType
	if err := s.db.WithContext(ctx).First(&couponType, couponTypeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, ErrNotFound
		}
		return "", false, fmt.Errorf("failed to load coupon type: %w", err)
	}

	return s.codes.PreviewCouponCode(ctx, *jyotishi.JyotishiCode, couponType.Code, discount)
}

// Resolve finds a redeemable coupon by code, for checkout.
func (s *CouponService) Resolve(ctx context.Context, code string) (*model.Coupon, error) {
	var coupon model.Coupon
	err := s.db.WithContext(ctx).
		Preload("Jyotishi").
		Preload("CouponType").
		Where("code = ?", code).
		First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load coupon: %w", err)
	}
	if !coupon.IsRedeemable(time.Now()) {
		return nil, ErrNotFound
	}
	return &coupon, nil
}

// DiscountedPrice applies the coupon to a course price.
func (s *CouponService) DiscountedPrice(coupon *model.Coupon, price decimal.Decimal) (final, discount decimal.Decimal) {
	switch coupon.CouponType.DiscountKind {
	case model.DiscountKindPercent:
		discount = price.Mul(coupon.Discount).Div(decimal.NewFromInt(100)).Round(2)
	default:
		discount = coupon.Discount
	}
	if discount.GreaterThan(price) {
		discount = price
	}
	return price.Sub(discount), discount
}

// RecordUsage bumps the coupon usage counter after a completed sale.
func (s *CouponService) RecordUsage(ctx context.Context, couponID uint) error {
	return s.db.WithContext(ctx).Model(&model.Coupon{}).
		Where("id = ?", couponID).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1")).Error
}

// ListByJyotishi returns a jyotishi's coupons newest first.
func (s *CouponService) ListByJyotishi(ctx context.Context, jyotishiID uint) ([]model.Coupon, error) {
	var coupons []model.Coupon
	if err := s.db.WithContext(ctx).
		Preload("CouponType").
		Where("jyotishi_id = ?", jyotishiID).
		Order("created_at DESC").
		Find(&coupons).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch coupons: %w", err)
	}
	return coupons, nil
}
