package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Payout statuses
const (
	PayoutStatusPending    = "PENDING"
	PayoutStatusProcessing = "PROCESSING"
	PayoutStatusCompleted  = "COMPLETED"
	PayoutStatusRejected   = "REJECTED"
)

// Payout payment methods
const (
	PayoutMethodBankTransfer = "bank_transfer"
	PayoutMethodUPI          = "upi"
)

// Payout is a settlement batch of money transferred to a jyotishi.
//
// A payout is created either by an affiliate request (PENDING, no
// commissions linked yet) or by an admin bulk settlement (COMPLETED,
// commissions attached in the same transaction). Once COMPLETED, the sum
// of commission amounts referencing this payout equals Amount exactly.
type Payout struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	Reference        string          `gorm:"type:varchar(40);uniqueIndex;not null" json:"reference"`
	AffiliateID      uint            `gorm:"not null;index" json:"affiliate_id"`
	Amount           decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Status           string          `gorm:"type:varchar(20);default:'PENDING';index" json:"status"` // PENDING, PROCESSING, COMPLETED, REJECTED
	PaymentMethod    string          `gorm:"type:varchar(30);not null" json:"payment_method"`
	TransactionID    *string         `gorm:"type:varchar(100)" json:"transaction_id,omitempty"`
	TransactionProof *string         `gorm:"type:text" json:"transaction_proof,omitempty"` // object storage URL
	BankDetails      datatypes.JSON  `gorm:"type:jsonb" json:"bank_details"`               // snapshot at request time
	Notes            string          `gorm:"type:text" json:"notes"`
	RejectionReason  *string         `gorm:"type:text" json:"rejection_reason,omitempty"`
	RequestedAt      time.Time       `gorm:"not null" json:"requested_at"`
	ProcessedAt      *time.Time      `json:"processed_at,omitempty"`
	ProcessedBy      *uint           `gorm:"index" json:"processed_by,omitempty"` // admin user id
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	DeletedAt        gorm.DeletedAt  `gorm:"index" json:"-"`

	// Relationships
	Affiliate   User         `gorm:"foreignKey:AffiliateID;constraint:OnDelete:CASCADE" json:"affiliate,omitempty"`
	Processor   *User        `gorm:"foreignKey:ProcessedBy;constraint:OnDelete:SET NULL" json:"-"`
	Commissions []Commission `gorm:"foreignKey:PayoutID" json:"commissions,omitempty"`
}

// TableName specifies the table name for Payout
func (Payout) TableName() string {
	return "payouts"
}

// IsOpen reports whether the payout still reserves balance
// (not yet completed or rejected).
func (p *Payout) IsOpen() bool {
	return p.Status == PayoutStatusPending || p.Status == PayoutStatusProcessing
}
