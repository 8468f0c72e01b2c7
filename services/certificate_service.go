package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/vedshala/lms-api/model"
	"gorm.io/gorm"
)

// CertificateService issues completion certificates for enrollments.
// Only the durable record is created here; rendering lives elsewhere.
type CertificateService struct {
	db *gorm.DB
}

// NewCertificateService creates a new certificate service
func NewCertificateService(db *gorm.DB) *CertificateService {
	return &CertificateService{db: db}
}

// Issue marks the enrollment completed and creates its certificate with
// a fresh serial. Issuing twice for the same enrollment is rejected by
// the unique index.
func (s *CertificateService) Issue(ctx context.Context, enrollmentID, adminID uint) (*model.Certificate, error) {
	var certificate *model.Certificate
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var enrollment model.Enrollment
		if err := tx.First(&enrollment, enrollmentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load enrollment: %w", err)
		}

		now := tx.NowFunc()
		if err := tx.Model(&enrollment).Updates(map[string]interface{}{
			"completed":    true,
			"completed_at": now,
		}).Error; err != nil {
			return fmt.Errorf("failed to complete enrollment: %w", err)
		}

		certificate = &model.Certificate{
			Serial:       "VED-CERT-" + uuid.New().String(),
			EnrollmentID: enrollment.ID,
			UserID:       enrollment.UserID,
			CourseID:     enrollment.CourseID,
			IssuedBy:     adminID,
			IssuedAt:     now,
		}
		if err := tx.Create(certificate).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrConflict
			}
			return fmt.Errorf("failed to create certificate: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return certificate, nil
}

// ListByUser returns a student's certificates newest first.
func (s *CertificateService) ListByUser(ctx context.Context, userID uint) ([]model.Certificate, error) {
	var certificates []model.Certificate
	if err := s.db.WithContext(ctx).
		Preload("Course").
		Where("user_id = ?", userID).
		Order("issued_at DESC").
		Find(&certificates).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch certificates: %w", err)
	}
	return certificates, nil
}

// GetBySerial looks a certificate up for public verification.
func (s *CertificateService) GetBySerial(ctx context.Context, serial string) (*model.Certificate, error) {
	var certificate model.Certificate
	err := s.db.WithContext(ctx).
		Preload("Course").
		Preload("User").
		Where("serial = ?", serial).
		First(&certificate).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	return &certificate, nil
}
