package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Coupon discount kinds
const (
	DiscountKindFlat    = "flat"
	DiscountKindPercent = "percent"
)

// CouponType classifies coupons (e.g. festival offer, referral). Each
// type carries a two-digit code (01-99) unique across all types, used as
// a segment of the composed coupon code.
type CouponType struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Name         string         `gorm:"uniqueIndex;not null" json:"name"`
	Code         string         `gorm:"type:varchar(2);uniqueIndex;not null" json:"code"` // "01".."99"
	DiscountKind string         `gorm:"type:varchar(10);default:'flat'" json:"discount_kind"`
	Description  string         `gorm:"type:text" json:"description"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Coupons []Coupon `gorm:"foreignKey:CouponTypeID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for CouponType
func (CouponType) TableName() string {
	return "coupon_types"
}

// Coupon is a discount code tied to a jyotishi; sales redeemed with it
// accrue commission to that jyotishi.
type Coupon struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Code         string          `gorm:"type:varchar(30);uniqueIndex;not null" json:"code"`
	CouponTypeID uint            `gorm:"not null;index" json:"coupon_type_id"`
	JyotishiID   uint            `gorm:"not null;index" json:"jyotishi_id"`
	Discount     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"discount"`
	Active       bool            `gorm:"default:true" json:"active"`
	UsageCount   int             `gorm:"default:0" json:"usage_count"`
	MaxUsage     *int            `json:"max_usage,omitempty"` // nil = unlimited
	ValidUntil   *time.Time      `json:"valid_until,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	DeletedAt    gorm.DeletedAt  `gorm:"index" json:"-"`

	// Relationships
	CouponType CouponType `gorm:"foreignKey:CouponTypeID;constraint:OnDelete:CASCADE" json:"coupon_type,omitempty"`
	Jyotishi   User       `gorm:"foreignKey:JyotishiID;constraint:OnDelete:CASCADE" json:"jyotishi,omitempty"`
}

// TableName specifies the table name for Coupon
func (Coupon) TableName() string {
	return "coupons"
}

// IsRedeemable reports whether the coupon can still be applied.
func (c *Coupon) IsRedeemable(now time.Time) bool {
	if !c.Active {
		return false
	}
	if c.MaxUsage != nil && c.UsageCount >= *c.MaxUsage {
		return false
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return false
	}
	return true
}
