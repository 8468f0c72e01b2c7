package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedshala/lms-api/model"
	"gorm.io/gorm"
)

// accrueSale records a completed sale and its commission. createdAt pins
// the commission's place in the oldest-first settlement order.
func accrueSale(t *testing.T, db *gorm.DB, affiliate, student, course uint, amount, rate string, createdAt time.Time) (*model.Commission, *model.CoursePayment) {
	t.Helper()

	payment := createCompletedPayment(t, db, student, course, amount)
	commission, err := NewCommissionService(db).Accrue(context.Background(), AccrueInput{
		PaymentID:   payment.ID,
		AffiliateID: affiliate,
		StudentID:   student,
		CourseID:    course,
		SaleAmount:  dec(t, amount),
		Rate:        dec(t, rate),
	})
	require.NoError(t, err)

	require.NoError(t, db.Model(&model.Commission{}).
		Where("id = ?", commission.ID).
		Update("created_at", createdAt).Error)
	commission.CreatedAt = createdAt
	return commission, payment
}

// threeSales accrues the standard 100/150/200 fixture at a 20% rate,
// yielding commissions of 20, 30 and 40 in settlement order.
func threeSales(t *testing.T, db *gorm.DB, affiliate uint) ([]*model.Commission, []*model.CoursePayment) {
	t.Helper()

	student := createStudent(t, db, "student@example.com")
	course := createCourse(t, db, "JYO-101", "100.00")

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var commissions []*model.Commission
	var payments []*model.CoursePayment
	for i, amount := range []string{"100.00", "150.00", "200.00"} {
		c, p := accrueSale(t, db, affiliate, student.ID, course.ID, amount, "0.20",
			base.Add(time.Duration(i)*time.Hour))
		commissions = append(commissions, c)
		payments = append(payments, p)
	}
	return commissions, payments
}

func TestRequestReservesBalance(t *testing.T) {
	db := newTestDB(t)
	svc := NewPayoutService(db)
	ctx := context.Background()

	jyotishi := createJyotishi(t, db, "Arun Verma", "AV001", "0.20")
	threeSales(t, db, jyotishi.ID)

	payout, err := svc.Request(ctx, jyotishi.ID, RequestInput{Amount: dec(t, "50.00")})
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusPending, payout.Status)
	assert.True(t, payout.Amount.Equal(dec(t, "50.00")))
	assert.Equal(t, model.PayoutMethodBankTransfer, payout.PaymentMethod)
	assert.NotEmpty(t, payout.Reference)

	var snapshot model.BankDetailsSnapshot
	require.NoError(t, json.Unmarshal(payout.BankDetails, &snapshot))
	assert.Equal(t, "000111222333", snapshot.AccountNumber)
	assert.Equal(t, "HDFC0001234", snapshot.IFSC)

	// The open request reserves 50 of the 90 pending; 60 no longer fits.
	_, err = svc.Request(ctx, jyotishi.ID, RequestInput{Amount: dec(t, "60.00")})
	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Requested.Equal(dec(t, "60.00")))
	assert.True(t, insufficient.Available.Equal(dec(t, "40.00")), "got %s", insufficient.Available)

	// The remaining 40 does.
	_, err = svc.Request(ctx, jyotishi.ID, RequestInput{Amount: dec(t, "40.00")})
	require.NoError(t, err)
}

func TestRequestRequiresBankDetails(t *testing.T) {
	db := newTestDB(t)
	svc := NewPayoutService(db)

	code := "AV001"
	jyotishi := &model.User{
		Email:          "av001@example.com",
		PasswordHash:   "x",
		Name:           "Arun Verma",
		Role:           model.RoleJyotishi,
		JyotishiCode:   &code,
		CommissionRate: dec(t, "0.20"),
	}
	require.NoError(t, db.Create(jyotishi).Error)
	threeSales(t, db, jyotishi.ID)

	_, err := svc.Request(context.Background(), jyotishi.ID, RequestInput{Amount: dec(t, "10.00")})
	var missing *MissingBankDetailsError
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, missing.Fields, "bank_account_number")
	assert.Contains(t, missing.Fields, "bank_ifsc")
}

func TestRequestRejectsBadInput(t *testing.T) {
	db := newTestDB(t)
	svc := NewPayoutService(db)
	ctx := context.Background()

	student := createStudent(t, db, "student@example.com")

	_, err := svc.Request(ctx, student.ID, RequestInput{Amount: dec(t, "10.00")})
	assert.ErrorIs(t, err, ErrNotFound)

	jyotishi := createJyotishi(t, db, "Arun Verma", "AV001", "0.20")
	_, err = svc.Request(ctx, jyotishi.ID, RequestInput{Amount: dec(t, "0")})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestRequestConflictRollsBack(t *testing.T) {
	db := newTestDB(t)
	svc := NewPayoutService(db)
	ctx := context.Background()

	jyotishi := createJyotishi(t, db, "Arun Verma", "AV001", "0.20")
	threeSales(t, db, jyotishi.ID)

	// Simulate a concurrent request committing between the balance read
	// and the version bump: advance the version right after the payout
	// row is inserted, inside the same transaction's view.
	const race = "test:race_payout_request"
	require.NoError(t, db.Callback().Create().After("gorm:create").Register(race, func(tx *gorm.DB) {
		if tx.Statement.Table == "payouts" {
			tx.Session(&gorm.Session{NewDB: true}).
				Exec("UPDATE users SET payout_version = payout_version + 1 WHERE id = ?", jyotishi.ID)
		}
	}))

	_, err := svc.Request(ctx, jyotishi.ID, RequestInput{Amount: dec(t, "50.00")})
	assert.ErrorIs(t, err, ErrConflict)

	require.NoError(t, db.Callback().Create().Remove(race))

	// The whole request rolled back: no payout row survived.
	var count int64
	require.NoError(t, db.Model(&model.Payout{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)

	// A retry with fresh state goes through.
	_, err = svc.Request(ctx, jyotishi.ID, RequestInput{Amount: dec(t, "50.00")})
	require.NoError(t, err)
}

func TestBulkSettle(t *testing.T) {
	db := newTestDB(t)
	svc := NewPayoutService(db)
	ctx := context.Background()

	jyotishi := createJyotishi(t, db, "Arun Verma", "AV001", "0.20")
	admin := createStudent(t, db, "admin@example.com")
	commissions, payments := threeSales(t, db, jyotishi.ID)

	payout, err := svc.BulkSettle(ctx, jyotishi.ID, admin.ID, SettleInput{
		TransactionID: "TXN-1",
		Notes:         "monthly settlement",
	})
	require.NoError(t, err)

	assert.Equal(t, model.PayoutStatusCompleted, payout.Status)
	assert.True(t, payout.Amount.Equal(dec(t, "90.00")), "got %s", payout.Amount)
	require.NotNil(t, payout.ProcessedBy)
	assert.Equal(t, admin.ID, *payout.ProcessedBy)
	assert.NotNil(t, payout.ProcessedAt)

	linked := linkedCommissionTotal(t, db, payout.ID)
	assert.True(t, linked.Equal(payout.Amount), "linked %s payout %s", linked, payout.Amount)

	for _, c := range commissions {
		got := reloadCommission(t, db, c.ID)
		assert.Equal(t, model.CommissionStatusPaid, got.Status)
		require.NotNil(t, got.PayoutID)
		assert.Equal(t, payout.ID, *got.PayoutID)
		assert.NotNil(t, got.PaidAt)
	}
	for _, p := range payments {
		assert.True(t, reloadPayment(t, db, p.ID).CommissionPaid)
	}
}

func TestBulkSettleNothingPending(t *testing.T) {
	db := newTestDB(t)
	svc := NewPayoutService(db)
	ctx := context.Background()

	jyotishi := createJyotishi(t, db, "Arun Verma", "AV001", "0.20")
	admin := createStudent(t, db, "admin@example.com")

	_, err := svc.BulkSettle(ctx, jyotishi.ID, admin.ID, SettleInput{})
	assert.ErrorIs(t, err, ErrNoPendingCommissions)

	_, err = svc.BulkSettle(ctx, 9999, admin.ID, SettleInput{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSettleRequestedExactCover(t *testing.T) {
	db := newTestDB(t)
	svc := NewPayoutService(db)
	ctx := context.Background()

	jyotishi := createJyotishi(t, db, "Arun Verma", "AV001", "0.20")
	admin := createStudent(t, db, "admin@example.com")
	commissions, payments := threeSales(t, db, jyotishi.ID)

	requested, err := svc.Request(ctx, jyotishi.ID, RequestInput{Amount: dec(t, "50.00")})
	require.NoError(t, err)

	payout, err := svc.SettleRequested(ctx, requested.ID, admin.ID, SettleInput{TransactionID: "TXN-2"})
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusCompleted, payout.Status)

	// The two oldest commissions (20 + 30) cover 50 exactly; no split.
	assert.Equal(t, model.CommissionStatusPaid, reloadCommission(t, db, commissions[0].ID).Status)
	assert.Equal(t, model.CommissionStatusPaid, reloadCommission(t, db, commissions[1].ID).Status)
	assert.Equal(t, model.CommissionStatusPending, reloadCommission(t, db, commissions[2].ID).Status)

	linked := linkedCommissionTotal(t, db, payout.ID)
	assert.True(t, linked.Equal(payout.Amount))

	assert.True(t, reloadPayment(t, db, payments[0].ID).CommissionPaid)
	assert.True(t, reloadPayment(t, db, payments[1].ID).CommissionPaid)
	assert.False(t, reloadPayment(t, db, payments[2].ID).CommissionPaid)
}

func TestSettleRequestedSplitsBoundaryCommission(t *testing.T) {
	db := newTestDB(t)
	svc := NewPayoutService(db)
	ctx := context.Background()

	jyotishi := createJyotishi(t, db, "Arun Verma", "AV001", "0.20")
	admin := createStudent(t, db, "admin@example.com")
	commissions, payments := threeSales(t, db, jyotishi.ID)

	requested, err := svc.Request(ctx, jyotishi.ID, RequestInput{Amount: dec(t, "35.00")})
	require.NoError(t, err)

	payout, err := svc.SettleRequested(ctx, requested.ID, admin.ID, SettleInput{TransactionID: "TXN-3"})
	require.NoError(t, err)

	// 20 is consumed whole; the 30 commission splits 15/15 at the boundary.
	boundary := reloadCommission(t, db, commissions[1].ID)
	assert.Equal(t, model.CommissionStatusPaid, boundary.Status)
	assert.True(t, boundary.CommissionAmount.Equal(dec(t, "15.00")), "got %s", boundary.CommissionAmount)
	assert.True(t, boundary.SaleAmount.Equal(dec(t, "75.00")), "got %s", boundary.SaleAmount)

	var carry model.Commission
	require.NoError(t, db.
		Where("payment_id = ? AND segment = ?", boundary.PaymentID, 2).
		First(&carry).Error)
	assert.Equal(t, model.CommissionStatusPending, carry.Status)
	assert.True(t, carry.CommissionAmount.Equal(dec(t, "15.00")))
	assert.True(t, carry.SaleAmount.Equal(dec(t, "75.00")))
	assert.Nil(t, carry.PayoutID)
	// The remainder keeps its place in oldest-first order.
	assert.True(t, carry.CreatedAt.Equal(boundary.CreatedAt),
		"carry %s boundary %s", carry.CreatedAt, boundary.CreatedAt)

	// The segment family still sums to the original sale and commission.
	linked := linkedCommissionTotal(t, db, payout.ID)
	assert.True(t, linked.Equal(dec(t, "35.00")), "linked %s", linked)
	assert.True(t, boundary.SaleAmount.Add(carry.SaleAmount).Equal(dec(t, "150.00")))

	// The carry keeps the boundary payment open; the untouched third
	// commission stays pending too.
	assert.False(t, reloadPayment(t, db, payments[1].ID).CommissionPaid)
	assert.Equal(t, model.CommissionStatusPending, reloadCommission(t, db, commissions[2].ID).Status)

	balance, err := NewCommissionService(db).PendingBalance(ctx, jyotishi.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec(t, "55.00")), "got %s", balance)
}

func TestSettleRequestedTwiceConflicts(t *testing.T) {
	db := newTestDB(t)
	svc := NewPayoutService(db)
	ctx := context.Background()

	jyotishi := createJyotishi(t, db, "Arun Verma", "AV001", "0.20")
	admin := createStudent(t, db, "admin@example.com")
	threeSales(t, db, jyotishi.ID)

	requested, err := svc.Request(ctx, jyotishi.ID, RequestInput{Amount: dec(t, "50.00")})
	require.NoError(t, err)

	_, err = svc.SettleRequested(ctx, requested.ID, admin.ID, SettleInput{TransactionID: "TXN-4"})
	require.NoError(t, err)

	_, err = svc.SettleRequested(ctx, requested.ID, admin.ID, SettleInput{TransactionID: "TXN-5"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSettleRequestedInsufficientAfterCancellation(t *testing.T) {
	db := newTestDB(t)
	svc := NewPayoutService(db)
	ctx := context.Background()

	jyotishi := createJyotishi(t, db, "Arun Verma", "AV001", "0.20")
	admin := createStudent(t, db, "admin@example.com")
	commissions, _ := threeSales(t, db, jyotishi.ID)

	requested, err := svc.Request(ctx, jyotishi.ID, RequestInput{Amount: dec(t, "80.00")})
	require.NoError(t, err)

	// A refund between request and settlement shrinks the pending pool
	// below the requested amount.
	require.NoError(t, NewCommissionService(db).Cancel(ctx, commissions[2].PaymentID))

	_, err = svc.SettleRequested(ctx, requested.ID, admin.ID, SettleInput{TransactionID: "TXN-6"})
	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Available.Equal(dec(t, "50.00")), "got %s", insufficient.Available)

	// The claim rolled back with everything else.
	assert.Equal(t, model.PayoutStatusPending, reloadPayout(t, db, requested.ID).Status)
	assert.Equal(t, model.CommissionStatusPending, reloadCommission(t, db, commissions[0].ID).Status)
}

func TestSettlementRollsBackOnStorageFailure(t *testing.T) {
	db := newTestDB(t)
	svc := NewPayoutService(db)
	ctx := context.Background()

	jyotishi := createJyotishi(t, db, "Arun Verma", "AV001", "0.20")
	admin := createStudent(t, db, "admin@example.com")
	commissions, _ := threeSales(t, db, jyotishi.ID)

	requested, err := svc.Request(ctx, jyotishi.ID, RequestInput{Amount: dec(t, "35.00")})
	require.NoError(t, err)

	// Fail the payment-flag refresh, the last write of the settlement.
	const fail = "test:fail_payment_refresh"
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register(fail, func(tx *gorm.DB) {
		if tx.Statement.Table == "course_payments" {
			tx.AddError(errors.New("storage failure"))
		}
	}))

	_, err = svc.SettleRequested(ctx, requested.ID, admin.ID, SettleInput{TransactionID: "TXN-7"})
	require.Error(t, err)

	require.NoError(t, db.Callback().Update().Remove(fail))

	// Nothing moved: payout still PENDING, commissions untouched, no
	// remainder segment was left behind.
	assert.Equal(t, model.PayoutStatusPending, reloadPayout(t, db, requested.ID).Status)
	for _, c := range commissions {
		got := reloadCommission(t, db, c.ID)
		assert.Equal(t, model.CommissionStatusPending, got.Status)
		assert.Nil(t, got.PayoutID)
	}
	var splits int64
	require.NoError(t, db.Model(&model.Commission{}).
		Where("segment > 1").Count(&splits).Error)
	assert.EqualValues(t, 0, splits)
}

func TestRejectKeepsCommissionsPending(t *testing.T) {
	db := newTestDB(t)
	svc := NewPayoutService(db)
	ctx := context.Background()

	jyotishi := createJyotishi(t, db, "Arun Verma", "AV001", "0.20")
	admin := createStudent(t, db, "admin@example.com")
	commissions, _ := threeSales(t, db, jyotishi.ID)

	requested, err := svc.Request(ctx, jyotishi.ID, RequestInput{Amount: dec(t, "90.00")})
	require.NoError(t, err)

	rejected, err := svc.Reject(ctx, requested.ID, admin.ID, "bank details mismatch")
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "bank details mismatch", *rejected.RejectionReason)

	for _, c := range commissions {
		assert.Equal(t, model.CommissionStatusPending, reloadCommission(t, db, c.ID).Status)
	}

	// The rejected payout releases its reservation.
	_, err = svc.Request(ctx, jyotishi.ID, RequestInput{Amount: dec(t, "90.00")})
	require.NoError(t, err)

	// Rejecting twice, or rejecting a non-pending payout, conflicts.
	_, err = svc.Reject(ctx, requested.ID, admin.ID, "again")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSelectForAmount(t *testing.T) {
	commissions := []model.Commission{
		{ID: 1, CommissionAmount: dec(t, "20.00")},
		{ID: 2, CommissionAmount: dec(t, "30.00")},
		{ID: 3, CommissionAmount: dec(t, "40.00")},
	}

	selected, split, covered := selectForAmount(commissions, dec(t, "50.00"))
	require.True(t, covered)
	assert.Len(t, selected, 2)
	assert.Nil(t, split)

	selected, split, covered = selectForAmount(commissions, dec(t, "35.00"))
	require.True(t, covered)
	assert.Len(t, selected, 2)
	require.NotNil(t, split)
	assert.Equal(t, uint(2), split.commission.ID)
	assert.True(t, split.keep.Equal(dec(t, "15.00")))
	assert.True(t, split.carry.Equal(dec(t, "15.00")))

	_, _, covered = selectForAmount(commissions, dec(t, "100.00"))
	assert.False(t, covered)
}

func TestAttachProof(t *testing.T) {
	db := newTestDB(t)
	svc := NewPayoutService(db)
	ctx := context.Background()

	jyotishi := createJyotishi(t, db, "Arun Verma", "AV001", "0.20")
	admin := createStudent(t, db, "admin@example.com")
	threeSales(t, db, jyotishi.ID)

	requested, err := svc.Request(ctx, jyotishi.ID, RequestInput{Amount: dec(t, "50.00")})
	require.NoError(t, err)

	require.NoError(t, svc.AttachProof(ctx, requested.ID, "https://cdn.example.com/proof.pdf"))
	got := reloadPayout(t, db, requested.ID)
	require.NotNil(t, got.TransactionProof)
	assert.Equal(t, "https://cdn.example.com/proof.pdf", *got.TransactionProof)

	_, err = svc.SettleRequested(ctx, requested.ID, admin.ID, SettleInput{TransactionID: "TXN-8"})
	require.NoError(t, err)

	// Completed payouts no longer accept proofs.
	err = svc.AttachProof(ctx, requested.ID, "https://cdn.example.com/late.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}
