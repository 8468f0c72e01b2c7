package model

import (
	"time"

	"gorm.io/gorm"
)

// Certificate records course completion for an enrollment. Rendering is
// handled elsewhere; this is only the durable record with its serial.
type Certificate struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Serial       string         `gorm:"type:varchar(40);uniqueIndex;not null" json:"serial"`
	EnrollmentID uint           `gorm:"not null;uniqueIndex" json:"enrollment_id"`
	UserID       uint           `gorm:"not null;index" json:"user_id"`
	CourseID     uint           `gorm:"not null;index" json:"course_id"`
	IssuedBy     uint           `gorm:"not null" json:"issued_by"` // admin user id
	IssuedAt     time.Time      `gorm:"not null" json:"issued_at"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Enrollment Enrollment `gorm:"foreignKey:EnrollmentID;constraint:OnDelete:CASCADE" json:"-"`
	User       User       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Course     Course     `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"course,omitempty"`
}

// TableName specifies the table name for Certificate
func (Certificate) TableName() string {
	return "certificates"
}
