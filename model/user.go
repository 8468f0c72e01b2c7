package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// User roles
const (
	RoleStudent  = "student"
	RoleJyotishi = "jyotishi"
	RoleAdmin    = "admin"
)

// User represents a registered user in the system. A user with role
// "jyotishi" is an affiliate partner earning commission on course sales.
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string         `gorm:"not null" json:"-"` // Never expose password in JSON
	Name         string         `gorm:"not null" json:"name"`
	Phone        string         `gorm:"type:varchar(20)" json:"phone"`
	Role         string         `gorm:"type:varchar(20);default:'student'" json:"role"` // student, jyotishi, admin
	TokenVersion int            `gorm:"default:0" json:"-"`                             // Increment to invalidate all user tokens

	// Affiliate (jyotishi) fields
	JyotishiCode   *string         `gorm:"type:varchar(10);uniqueIndex" json:"jyotishi_code,omitempty"`
	CommissionRate decimal.Decimal `gorm:"type:numeric(5,4);default:0" json:"commission_rate"` // e.g. 0.20 = 20%

	// Bank details used for payouts; snapshotted onto each payout at request time
	BankAccountName   string `gorm:"type:varchar(255)" json:"bank_account_name"`
	BankAccountNumber string `gorm:"type:varchar(34)" json:"bank_account_number"`
	BankIFSC          string `gorm:"type:varchar(15)" json:"bank_ifsc"`
	BankName          string `gorm:"type:varchar(100)" json:"bank_name"`
	UPIID             string `gorm:"type:varchar(100)" json:"upi_id"`

	// Optimistic concurrency token for payout requests: bumped on every
	// successful request so two concurrent requests cannot both reserve
	// the same balance.
	PayoutVersion int `gorm:"default:0" json:"-"`

	// Relationships
	Enrollments []Enrollment    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"enrollments,omitempty"`
	Payments    []CoursePayment `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Commissions []Commission    `gorm:"foreignKey:AffiliateID;constraint:OnDelete:CASCADE" json:"-"`
	Payouts     []Payout        `gorm:"foreignKey:AffiliateID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}

// IsJyotishi reports whether the user is an affiliate partner.
func (u *User) IsJyotishi() bool {
	return u.Role == RoleJyotishi
}

// BankDetailsSnapshot is the bank-detail state captured on a payout at
// request time, so later edits never alter an in-flight payout.
type BankDetailsSnapshot struct {
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	IFSC          string `json:"ifsc"`
	BankName      string `json:"bank_name"`
	UPIID         string `json:"upi_id,omitempty"`
}

// BankDetails returns the user's current bank details as a snapshot value.
func (u *User) BankDetails() BankDetailsSnapshot {
	return BankDetailsSnapshot{
		AccountName:   u.BankAccountName,
		AccountNumber: u.BankAccountNumber,
		IFSC:          u.BankIFSC,
		BankName:      u.BankName,
		UPIID:         u.UPIID,
	}
}

// MissingBankFields lists the bank-detail fields still unset. UPI is
// optional; account name, number and IFSC are required for a payout.
func (u *User) MissingBankFields() []string {
	var missing []string
	if u.BankAccountName == "" {
		missing = append(missing, "bank_account_name")
	}
	if u.BankAccountNumber == "" {
		missing = append(missing, "bank_account_number")
	}
	if u.BankIFSC == "" {
		missing = append(missing, "bank_ifsc")
	}
	return missing
}

// Enrollment links a student to a course they purchased
type Enrollment struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      uint       `gorm:"not null;index;uniqueIndex:idx_enrollment_user_course" json:"user_id"`
	CourseID    uint       `gorm:"not null;index;uniqueIndex:idx_enrollment_user_course" json:"course_id"`
	PaymentID   *uint      `gorm:"index" json:"payment_id,omitempty"`
	EnrolledAt  time.Time  `gorm:"autoCreateTime" json:"enrolled_at"`
	Completed   bool       `gorm:"default:false" json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Relationships
	User   User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Course Course `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"course,omitempty"`
}

// TableName specifies the table name for Enrollment
func (Enrollment) TableName() string {
	return "enrollments"
}
