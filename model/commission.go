package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Commission statuses
const (
	CommissionStatusPending   = "PENDING"
	CommissionStatusPaid      = "PAID"
	CommissionStatusCancelled = "CANCELLED"
)

// Commission is the amount owed to a jyotishi for one course sale.
//
// Segment 1 is the row created at accrual time; the composite unique
// index on (payment_id, segment) makes accrual idempotent per payment.
// Higher segments are remainder rows created when a request-based
// settlement splits a commission at the payout boundary.
//
// A commission transitions PENDING -> PAID exactly once, only inside a
// payout settlement; PayoutID is set if and only if the row is PAID.
// PENDING -> CANCELLED is the terminal alternative (refunds).
type Commission struct {
	ID               uint             `gorm:"primaryKey" json:"id"`
	AffiliateID      uint             `gorm:"not null;index" json:"affiliate_id"`
	StudentID        uint             `gorm:"not null;index" json:"student_id"`
	CourseID         uint             `gorm:"not null;index" json:"course_id"`
	PaymentID        uint             `gorm:"not null;uniqueIndex:idx_commission_payment_segment" json:"payment_id"`
	Segment          int              `gorm:"not null;default:1;uniqueIndex:idx_commission_payment_segment" json:"segment"`
	SaleAmount       decimal.Decimal  `gorm:"type:numeric(12,2);not null" json:"sale_amount"`
	CommissionRate   decimal.Decimal  `gorm:"type:numeric(5,4);not null" json:"commission_rate"`
	CommissionAmount decimal.Decimal  `gorm:"type:numeric(12,2);not null" json:"commission_amount"`
	Status           string           `gorm:"type:varchar(20);default:'PENDING';index" json:"status"` // PENDING, PAID, CANCELLED
	PayoutID         *uint            `gorm:"index" json:"payout_id,omitempty"`
	PaidAt           *time.Time       `json:"paid_at,omitempty"`
	CreatedAt        time.Time        `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	DeletedAt        gorm.DeletedAt   `gorm:"index" json:"-"`

	// Relationships
	Affiliate User          `gorm:"foreignKey:AffiliateID;constraint:OnDelete:CASCADE" json:"affiliate,omitempty"`
	Student   User          `gorm:"foreignKey:StudentID;constraint:OnDelete:CASCADE" json:"-"`
	Course    Course        `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"course,omitempty"`
	Payment   CoursePayment `gorm:"foreignKey:PaymentID;constraint:OnDelete:CASCADE" json:"-"`
	Payout    *Payout       `gorm:"foreignKey:PayoutID;constraint:OnDelete:SET NULL" json:"-"`
}

// TableName specifies the table name for Commission
func (Commission) TableName() string {
	return "commissions"
}

// IsPending reports whether the commission is still payable.
func (c *Commission) IsPending() bool {
	return c.Status == CommissionStatusPending
}
