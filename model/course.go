package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Course represents a purchasable course in the catalog
type Course struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`
	Name        string          `gorm:"not null" json:"name"`
	Code        string          `gorm:"uniqueIndex;not null" json:"code"` // e.g., "JYO-101"
	Description string          `gorm:"type:text" json:"description"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	DurationWeeks int           `gorm:"default:4" json:"duration_weeks"`
	Language    string          `gorm:"type:varchar(30);default:'hindi'" json:"language"`
	Active      bool            `gorm:"default:true" json:"active"`

	// Relationships
	Enrollments []Enrollment    `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"-"`
	Payments    []CoursePayment `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for Course
func (Course) TableName() string {
	return "courses"
}
