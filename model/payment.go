package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CoursePayment statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

// CoursePayment represents a payment record for course enrollment.
// CommissionPaid becomes true only once every commission segment derived
// from this payment has been settled.
type CoursePayment struct {
	ID               uint             `gorm:"primaryKey" json:"id"`
	UserID           uint             `gorm:"not null;index" json:"user_id"`
	CourseID         uint             `gorm:"not null;index" json:"course_id"`
	GatewayOrderID   string           `gorm:"type:varchar(100);uniqueIndex" json:"gateway_order_id"`
	GatewayPaymentID string           `gorm:"type:varchar(100)" json:"gateway_payment_id"`
	Amount           decimal.Decimal  `gorm:"type:numeric(12,2);not null" json:"amount"`
	Discount         decimal.Decimal  `gorm:"type:numeric(12,2);default:0" json:"discount"`
	Currency         string           `gorm:"type:varchar(10);default:'INR'" json:"currency"`
	Status           string           `gorm:"type:varchar(20);default:'pending'" json:"status"` // pending, completed, failed, refunded
	PaymentMethod    string           `gorm:"type:varchar(50)" json:"payment_method"`
	CouponCode       *string          `gorm:"type:varchar(30);index" json:"coupon_code,omitempty"`
	CommissionAmount *decimal.Decimal `gorm:"type:numeric(12,2)" json:"commission_amount,omitempty"`
	CommissionPaid   bool             `gorm:"default:false" json:"commission_paid"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	DeletedAt        gorm.DeletedAt   `gorm:"index" json:"-"`

	// Relationships
	User        User         `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Course      Course       `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"course,omitempty"`
	Commissions []Commission `gorm:"foreignKey:PaymentID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for CoursePayment
func (CoursePayment) TableName() string {
	return "course_payments"
}
