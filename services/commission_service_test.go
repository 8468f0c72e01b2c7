package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedshala/lms-api/model"
)

func TestAccrue(t *testing.T) {
	db := newTestDB(t)
	svc := NewCommissionService(db)
	ctx := context.Background()

	jyotishi := createJyotishi(t, db, "Arun Verma", "AV001", "0.20")
	student := createStudent(t, db, "student@example.com")
	course := createCourse(t, db, "JYO-101", "4999.00")
	payment := createCompletedPayment(t, db, student.ID, course.ID, "4999.00")

	commission, err := svc.Accrue(ctx, AccrueInput{
		PaymentID:   payment.ID,
		AffiliateID: jyotishi.ID,
		StudentID:   student.ID,
		CourseID:    course.ID,
		SaleAmount:  dec(t, "4999.00"),
		Rate:        dec(t, "0.20"),
	})
	require.NoError(t, err)

	assert.Equal(t, model.CommissionStatusPending, commission.Status)
	assert.Equal(t, 1, commission.Segment)
	assert.True(t, commission.CommissionAmount.Equal(dec(t, "999.80")),
		"got %s", commission.CommissionAmount)
	assert.Nil(t, commission.PayoutID)

	got := reloadPayment(t, db, payment.ID)
	require.NotNil(t, got.CommissionAmount)
	assert.True(t, got.CommissionAmount.Equal(dec(t, "999.80")))
	assert.False(t, got.CommissionPaid)
}

func TestAccrueIsIdempotentPerPayment(t *testing.T) {
	db := newTestDB(t)
	svc := NewCommissionService(db)
	ctx := context.Background()

	jyotishi := createJyotishi(t, db, "Arun Verma", "AV001", "0.20")
	student := createStudent(t, db, "student@example.com")
	course := createCourse(t, db, "JYO-101", "100.00")
	payment := createCompletedPayment(t, db, student.ID, course.ID, "100.00")

	in := AccrueInput{
		PaymentID:   payment.ID,
		AffiliateID: jyotishi.ID,
		StudentID:   student.ID,
		CourseID:    course.ID,
		SaleAmount:  dec(t, "100.00"),
		Rate:        dec(t, "0.20"),
	}
	_, err := svc.Accrue(ctx, in)
	require.NoError(t, err)

	_, err = svc.Accrue(ctx, in)
	assert.ErrorIs(t, err, ErrDuplicateCommission)

	var count int64
	require.NoError(t, db.Model(&model.Commission{}).
		Where("payment_id = ?", payment.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestAccrueRejectsBadInput(t *testing.T) {
	db := newTestDB(t)
	svc := NewCommissionService(db)
	ctx := context.Background()

	jyotishi := createJyotishi(t, db, "Arun Verma", "AV001", "0.20")
	student := createStudent(t, db, "student@example.com")
	course := createCourse(t, db, "JYO-101", "100.00")
	payment := createCompletedPayment(t, db, student.ID, course.ID, "100.00")

	_, err := svc.Accrue(ctx, AccrueInput{
		PaymentID:   payment.ID,
		AffiliateID: jyotishi.ID,
		StudentID:   student.ID,
		CourseID:    course.ID,
		SaleAmount:  decimal.Zero,
		Rate:        dec(t, "0.20"),
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Accrue(ctx, AccrueInput{
		PaymentID:   9999,
		AffiliateID: jyotishi.ID,
		StudentID:   student.ID,
		CourseID:    course.ID,
		SaleAmount:  dec(t, "100.00"),
		Rate:        dec(t, "0.20"),
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelOnlyTouchesPending(t *testing.T) {
	db := newTestDB(t)
	svc := NewCommissionService(db)
	ctx := context.Background()

	jyotishi := createJyotishi(t, db, "Arun Verma", "AV001", "0.20")
	student := createStudent(t, db, "student@example.com")
	course := createCourse(t, db, "JYO-101", "100.00")

	pendingPayment := createCompletedPayment(t, db, student.ID, course.ID, "100.00")
	pending, err := svc.Accrue(ctx, AccrueInput{
		PaymentID: pendingPayment.ID, AffiliateID: jyotishi.ID,
		StudentID: student.ID, CourseID: course.ID,
		SaleAmount: dec(t, "100.00"), Rate: dec(t, "0.20"),
	})
	require.NoError(t, err)

	paidPayment := createCompletedPayment(t, db, student.ID, course.ID, "100.00")
	paid, err := svc.Accrue(ctx, AccrueInput{
		PaymentID: paidPayment.ID, AffiliateID: jyotishi.ID,
		StudentID: student.ID, CourseID: course.ID,
		SaleAmount: dec(t, "100.00"), Rate: dec(t, "0.20"),
	})
	require.NoError(t, err)
	require.NoError(t, db.Model(&model.Commission{}).
		Where("id = ?", paid.ID).
		Update("status", model.CommissionStatusPaid).Error)

	require.NoError(t, svc.Cancel(ctx, pendingPayment.ID))
	require.NoError(t, svc.Cancel(ctx, paidPayment.ID))

	assert.Equal(t, model.CommissionStatusCancelled, reloadCommission(t, db, pending.ID).Status)
	assert.Equal(t, model.CommissionStatusPaid, reloadCommission(t, db, paid.ID).Status)
}

func TestPendingBalance(t *testing.T) {
	db := newTestDB(t)
	svc := NewCommissionService(db)
	ctx := context.Background()

	jyotishi := createJyotishi(t, db, "Arun Verma", "AV001", "0.20")
	student := createStudent(t, db, "student@example.com")
	course := createCourse(t, db, "JYO-101", "100.00")

	for _, amount := range []string{"100.00", "150.00", "200.00"} {
		payment := createCompletedPayment(t, db, student.ID, course.ID, amount)
		_, err := svc.Accrue(ctx, AccrueInput{
			PaymentID: payment.ID, AffiliateID: jyotishi.ID,
			StudentID: student.ID, CourseID: course.ID,
			SaleAmount: dec(t, amount), Rate: dec(t, "0.20"),
		})
		require.NoError(t, err)
	}

	balance, err := svc.PendingBalance(ctx, jyotishi.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec(t, "90.00")), "got %s", balance)

	// Unknown affiliate owes nothing.
	balance, err = svc.PendingBalance(ctx, 9999)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestPendingBalanceByAffiliate(t *testing.T) {
	db := newTestDB(t)
	svc := NewCommissionService(db)
	ctx := context.Background()

	low := createJyotishi(t, db, "Arun Verma", "AV001", "0.20")
	high := createJyotishi(t, db, "Ravi Shankar", "RS001", "0.20")
	student := createStudent(t, db, "student@example.com")
	course := createCourse(t, db, "JYO-101", "100.00")

	sales := []struct {
		affiliate *model.User
		amount    string
	}{
		{low, "100.00"},
		{high, "300.00"},
		{high, "200.00"},
	}
	for _, sale := range sales {
		payment := createCompletedPayment(t, db, student.ID, course.ID, sale.amount)
		_, err := svc.Accrue(ctx, AccrueInput{
			PaymentID: payment.ID, AffiliateID: sale.affiliate.ID,
			StudentID: student.ID, CourseID: course.ID,
			SaleAmount: dec(t, sale.amount), Rate: dec(t, "0.20"),
		})
		require.NoError(t, err)
	}

	balances, err := svc.PendingBalanceByAffiliate(ctx)
	require.NoError(t, err)
	require.Len(t, balances, 2)

	assert.Equal(t, high.ID, balances[0].AffiliateID)
	assert.True(t, balances[0].Pending.Equal(dec(t, "100.00")), "got %s", balances[0].Pending)
	assert.Equal(t, 2, balances[0].Count)
	assert.Equal(t, "RS001", balances[0].JyotishiCode)

	assert.Equal(t, low.ID, balances[1].AffiliateID)
	assert.True(t, balances[1].Pending.Equal(dec(t, "20.00")))
}

func TestEarnings(t *testing.T) {
	db := newTestDB(t)
	svc := NewCommissionService(db)
	ctx := context.Background()

	jyotishi := createJyotishi(t, db, "Arun Verma", "AV001", "0.20")
	student := createStudent(t, db, "student@example.com")
	course := createCourse(t, db, "JYO-101", "100.00")

	ids := make([]uint, 0, 3)
	for _, amount := range []string{"100.00", "200.00", "300.00"} {
		payment := createCompletedPayment(t, db, student.ID, course.ID, amount)
		c, err := svc.Accrue(ctx, AccrueInput{
			PaymentID: payment.ID, AffiliateID: jyotishi.ID,
			StudentID: student.ID, CourseID: course.ID,
			SaleAmount: dec(t, amount), Rate: dec(t, "0.20"),
		})
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}

	paidAt := time.Now().UTC()
	require.NoError(t, db.Model(&model.Commission{}).
		Where("id = ?", ids[1]).
		Updates(map[string]interface{}{
			"status":  model.CommissionStatusPaid,
			"paid_at": paidAt,
		}).Error)
	require.NoError(t, db.Model(&model.Commission{}).
		Where("id = ?", ids[2]).
		Update("status", model.CommissionStatusCancelled).Error)

	summary, err := svc.Earnings(ctx, jyotishi.ID)
	require.NoError(t, err)
	assert.True(t, summary.Pending.Equal(dec(t, "20.00")), "pending %s", summary.Pending)
	assert.True(t, summary.Paid.Equal(dec(t, "40.00")), "paid %s", summary.Paid)
	assert.True(t, summary.Cancelled.Equal(dec(t, "60.00")), "cancelled %s", summary.Cancelled)
	assert.True(t, summary.Lifetime.Equal(dec(t, "60.00")), "lifetime %s", summary.Lifetime)
	require.NotNil(t, summary.LastPaidAt)
}
