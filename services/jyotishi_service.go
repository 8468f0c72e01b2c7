package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vedshala/lms-api/model"
	"gorm.io/gorm"
)

// jyotishiCodeAttempts bounds the retry loop when concurrent promotions
// race for the same code.
const jyotishiCodeAttempts = 3

// JyotishiService manages the affiliate side of user accounts.
type JyotishiService struct {
	db    *gorm.DB
	codes *CodeService
}

// NewJyotishiService creates a new jyotishi service
func NewJyotishiService(db *gorm.DB, codes *CodeService) *JyotishiService {
	return &JyotishiService{db: db, codes: codes}
}

// Promote turns a user into a jyotishi: assigns a generated code and the
// commission rate. The code claim is an insert-time unique check; on a
// collision with a concurrent promotion it regenerates from fresh state,
// up to a small retry budget, then gives up with ErrConflict.
func (s *JyotishiService) Promote(ctx context.Context, userID uint, rate decimal.Decimal) (*model.User, error) {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("commission rate must be within [0, 1]")
	}

	var user model.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user.JyotishiCode != nil {
		return nil, ErrConflict // already a jyotishi
	}

	for attempt := 0; attempt < jyotishiCodeAttempts; attempt++ {
		code, err := s.codes.NextJyotishiCode(ctx, user.Name)
		if err != nil {
			return nil, err
		}

		err = s.db.WithContext(ctx).Model(&model.User{}).
			Where("id = ?", userID).
			Updates(map[string]interface{}{
				"role":            model.RoleJyotishi,
				"jyotishi_code":   code,
				"commission_rate": rate,
			}).Error
		if err == nil {
			user.Role = model.RoleJyotishi
			user.JyotishiCode = &code
			user.CommissionRate = rate
			return &user, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("failed to promote user: %w", err)
		}
		// Lost the race for this code; rescan and try the next one.
	}
	return nil, ErrConflict
}

// UpdateRate changes the jyotishi's commission rate for future accruals.
// Already-accrued commissions keep the rate they were recorded with.
func (s *JyotishiService) UpdateRate(ctx context.Context, userID uint, rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("commission rate must be within [0, 1]")
	}
	res := s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND role = ?", userID, model.RoleJyotishi).
		Update("commission_rate", rate)
	if res.Error != nil {
		return fmt.Errorf("failed to update rate: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateBankDetails stores the jyotishi's payout destination. In-flight
// payouts keep the snapshot taken at request time.
func (s *JyotishiService) UpdateBankDetails(ctx context.Context, userID uint, details model.BankDetailsSnapshot) error {
	res := s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"bank_account_name":   details.AccountName,
			"bank_account_number": details.AccountNumber,
			"bank_ifsc":           details.IFSC,
			"bank_name":           details.BankName,
			"upi_id":              details.UPIID,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update bank details: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all jyotishis ordered by code.
func (s *JyotishiService) List(ctx context.Context) ([]model.User, error) {
	var jyotishis []model.User
	if err := s.db.WithContext(ctx).
		Where("role = ?", model.RoleJyotishi).
		Order("jyotishi_code ASC").
		Find(&jyotishis).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch jyotishis: %w", err)
	}
	return jyotishis, nil
}
