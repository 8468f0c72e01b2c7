package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vedshala/lms-api/model"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an in-memory SQLite database migrated with the ledger
// schema. A single connection keeps the in-memory database alive for
// the whole test and serializes access the way the production pool's
// transactions do.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Course{},
		&model.Enrollment{},
		&model.CoursePayment{},
		&model.Commission{},
		&model.Payout{},
		&model.CouponType{},
		&model.Coupon{},
	))
	return db
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func createStudent(t *testing.T, db *gorm.DB, email string) *model.User {
	t.Helper()
	user := &model.User{
		Email:        email,
		PasswordHash: "x",
		Name:         "Test Student",
		Role:         model.RoleStudent,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createJyotishi(t *testing.T, db *gorm.DB, name, code, rate string) *model.User {
	t.Helper()
	user := &model.User{
		Email:             code + "@example.com",
		PasswordHash:      "x",
		Name:              name,
		Role:              model.RoleJyotishi,
		JyotishiCode:      &code,
		CommissionRate:    dec(t, rate),
		BankAccountName:   name,
		BankAccountNumber: "000111222333",
		BankIFSC:          "HDFC0001234",
		BankName:          "HDFC Bank",
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createCourse(t *testing.T, db *gorm.DB, code, price string) *model.Course {
	t.Helper()
	course := &model.Course{
		Name:   "Course " + code,
		Code:   code,
		Price:  dec(t, price),
		Active: true,
	}
	require.NoError(t, db.Create(course).Error)
	return course
}

func createCompletedPayment(t *testing.T, db *gorm.DB, student, course uint, amount string) *model.CoursePayment {
	t.Helper()
	payment := &model.CoursePayment{
		UserID:         student,
		CourseID:       course,
		GatewayOrderID: "order_" + uuid.New().String(),
		Amount:         dec(t, amount),
		Status:         model.PaymentStatusCompleted,
	}
	require.NoError(t, db.Create(payment).Error)
	return payment
}

// linkedCommissionTotal sums the commission amounts referencing a
// payout, the invariant side of "linked sum equals payout amount".
func linkedCommissionTotal(t *testing.T, db *gorm.DB, payoutID uint) decimal.Decimal {
	t.Helper()
	var commissions []model.Commission
	require.NoError(t, db.Where("payout_id = ?", payoutID).Find(&commissions).Error)
	total := decimal.Zero
	for _, c := range commissions {
		total = total.Add(c.CommissionAmount)
	}
	return total
}

func reloadCommission(t *testing.T, db *gorm.DB, id uint) *model.Commission {
	t.Helper()
	var c model.Commission
	require.NoError(t, db.First(&c, id).Error)
	return &c
}

func reloadPayout(t *testing.T, db *gorm.DB, id uint) *model.Payout {
	t.Helper()
	var p model.Payout
	require.NoError(t, db.First(&p, id).Error)
	return &p
}

func reloadPayment(t *testing.T, db *gorm.DB, id uint) *model.CoursePayment {
	t.Helper()
	var p model.CoursePayment
	require.NoError(t, db.First(&p, id).Error)
	return &p
}
