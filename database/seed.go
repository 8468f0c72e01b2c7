package database

import (
	"fmt"
	"log"
	"os"

	"github.com/shopspring/decimal"
	"github.com/vedshala/lms-api/model"
	"github.com/vedshala/lms-api/utils/auth"
	"gorm.io/gorm"
)

// RunSeeds populates the database with the baseline data a fresh
// deployment needs: the admin user, the starter course catalog and the
// default coupon types. Every seed is idempotent.
func RunSeeds(db *gorm.DB) error {
	if err := seedAdminUser(db); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}
	if err := seedCourses(db); err != nil {
		return fmt.Errorf("failed to seed courses: %w", err)
	}
	if err := seedCouponTypes(db); err != nil {
		return fmt.Errorf("failed to seed coupon types: %w", err)
	}
	if err := seedAppSettings(db); err != nil {
		return fmt.Errorf("failed to seed app settings: %w", err)
	}
	return nil
}

// seedAdminUser creates the admin account from ADMIN_EMAIL and
// ADMIN_PASSWORD. Skipped when either variable is unset or the user
// already exists.
func seedAdminUser(db *gorm.DB) error {
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		log.Println("ADMIN_EMAIL or ADMIN_PASSWORD not set, skipping admin seed")
		return nil
	}

	var count int64
	if err := db.Model(&model.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		log.Println("Admin user already exists, skipping")
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	admin := model.User{
		Email:        email,
		PasswordHash: hash,
		Name:         "Vedshala Admin",
		Role:         model.RoleAdmin,
	}
	if err := db.Create(&admin).Error; err != nil {
		return err
	}

	log.Printf("Created admin user %s", email)
	return nil
}

func seedCourses(db *gorm.DB) error {
	courses := []model.Course{
		{
			Name:          "Vedic Astrology Foundation",
			Code:          "JYO-101",
			Description:   "Grahas, rashis and bhavas from first principles.",
			Price:         decimal.NewFromInt(4999),
			DurationWeeks: 12,
		},
		{
			Name:          "Advanced Kundali Reading",
			Code:          "JYO-201",
			Description:   "Dasha systems, yogas and chart synthesis.",
			Price:         decimal.NewFromInt(7999),
			DurationWeeks: 16,
		},
		{
			Name:          "Muhurta and Panchanga",
			Code:          "JYO-110",
			Description:   "Electional astrology and the five limbs of the almanac.",
			Price:         decimal.NewFromInt(2999),
			DurationWeeks: 6,
		},
	}

	for _, course := range courses {
		var count int64
		if err := db.Model(&model.Course{}).Where("code = ?", course.Code).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		if err := db.Create(&course).Error; err != nil {
			return err
		}
		log.Printf("Created course %s (%s)", course.Name, course.Code)
	}
	return nil
}

func seedCouponTypes(db *gorm.DB) error {
	types := []model.CouponType{
		{Name: "Referral", Code: "01", DiscountKind: model.DiscountKindFlat, Description: "Standard jyotishi referral discount"},
		{Name: "Festival", Code: "02", DiscountKind: model.DiscountKindFlat, Description: "Seasonal festival offers"},
		{Name: "Scholarship", Code: "03", DiscountKind: model.DiscountKindPercent, Description: "Need-based percentage discount"},
	}

	for _, ct := range types {
		var count int64
		if err := db.Model(&model.CouponType{}).Where("code = ?", ct.Code).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		if err := db.Create(&ct).Error; err != nil {
			return err
		}
		log.Printf("Created coupon type %s (%s)", ct.Name, ct.Code)
	}
	return nil
}

func seedAppSettings(db *gorm.DB) error {
	defaults := map[string]string{
		"default_commission_rate": "0.20",
		"min_payout_amount":       "500",
	}

	for key, value := range defaults {
		var count int64
		if err := db.Model(&model.AppSetting{}).Where("key = ?", key).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		if err := db.Create(&model.AppSetting{Key: key, Value: value}).Error; err != nil {
			return err
		}
		log.Printf("Created app setting %s=%s", key, value)
	}
	return nil
}
