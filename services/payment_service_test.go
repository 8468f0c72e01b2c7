package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedshala/lms-api/model"
)

func TestCreateOrderAppliesCoupon(t *testing.T) {
	db := newTestDB(t)
	codes := NewCodeService(db)
	coupons := NewCouponService(db, codes)
	commissions := NewCommissionService(db)
	svc := NewPaymentService(db, coupons, commissions)
	ctx := context.Background()

	jyotishi := createJyotishi(t, db, "Arun Verma", "AV001", "0.20")
	student := createStudent(t, db, "student@example.com")
	course := createCourse(t, db, "JYO-101", "4999.00")

	couponType, err := coupons.CreateType(ctx, CreateTypeInput{Name: "Referral"})
	require.NoError(t, err)
	coupon, err := coupons.Create(ctx, CreateCouponInput{
		CouponTypeID: couponType.ID,
		JyotishiID:   jyotishi.ID,
		Discount:     dec(t, "500.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, "VEDAV00101500", coupon.Code)

	payment, err := svc.CreateOrder(ctx, CreateOrderInput{
		UserID:     student.ID,
		CourseID:   course.ID,
		CouponCode: coupon.Code,
		Method:     "upi",
	})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, payment.Status)
	assert.True(t, payment.Amount.Equal(dec(t, "4499.00")), "got %s", payment.Amount)
	assert.True(t, payment.Discount.Equal(dec(t, "500.00")))
	require.NotNil(t, payment.CouponCode)

	// Unknown coupons and inactive courses fail the order.
	_, err = svc.CreateOrder(ctx, CreateOrderInput{
		UserID: student.ID, CourseID: course.ID, CouponCode: "VEDNOPE",
	})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.CreateOrder(ctx, CreateOrderInput{UserID: student.ID, CourseID: 9999})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConfirmEnrollsAndAccrues(t *testing.T) {
	db := newTestDB(t)
	codes := NewCodeService(db)
	coupons := NewCouponService(db, codes)
	commissions := NewCommissionService(db)
	svc := NewPaymentService(db, coupons, commissions)
	ctx := context.Background()

	jyotishi := createJyotishi(t, db, "Arun Verma", "AV001", "0.20")
	student := createStudent(t, db, "student@example.com")
	course := createCourse(t, db, "JYO-101", "1000.00")

	couponType, err := coupons.CreateType(ctx, CreateTypeInput{Name: "Referral"})
	require.NoError(t, err)
	coupon, err := coupons.Create(ctx, CreateCouponInput{
		CouponTypeID: couponType.ID,
		JyotishiID:   jyotishi.ID,
		Discount:     dec(t, "100.00"),
	})
	require.NoError(t, err)

	order, err := svc.CreateOrder(ctx, CreateOrderInput{
		UserID:     student.ID,
		CourseID:   course.ID,
		CouponCode: coupon.Code,
	})
	require.NoError(t, err)

	payment, err := svc.Confirm(ctx, order.ID, "pay_123")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, payment.Status)
	assert.Equal(t, "pay_123", payment.GatewayPaymentID)

	var enrollment model.Enrollment
	require.NoError(t, db.Where("user_id = ? AND course_id = ?", student.ID, course.ID).
		First(&enrollment).Error)

	// Commission accrued on the discounted amount at the jyotishi's rate.
	var commission model.Commission
	require.NoError(t, db.Where("payment_id = ?", order.ID).First(&commission).Error)
	assert.Equal(t, jyotishi.ID, commission.AffiliateID)
	assert.True(t, commission.SaleAmount.Equal(dec(t, "900.00")))
	assert.True(t, commission.CommissionAmount.Equal(dec(t, "180.00")), "got %s", commission.CommissionAmount)

	var used model.Coupon
	require.NoError(t, db.First(&used, coupon.ID).Error)
	assert.Equal(t, 1, used.UsageCount)

	// Re-confirming is a no-op: still one commission, one enrollment.
	_, err = svc.Confirm(ctx, order.ID, "pay_123")
	require.NoError(t, err)
	var count int64
	require.NoError(t, db.Model(&model.Commission{}).
		Where("payment_id = ?", order.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestConfirmWithoutCouponAccruesNothing(t *testing.T) {
	db := newTestDB(t)
	codes := NewCodeService(db)
	coupons := NewCouponService(db, codes)
	svc := NewPaymentService(db, coupons, NewCommissionService(db))
	ctx := context.Background()

	student := createStudent(t, db, "student@example.com")
	course := createCourse(t, db, "JYO-101", "1000.00")

	order, err := svc.CreateOrder(ctx, CreateOrderInput{UserID: student.ID, CourseID: course.ID})
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, order.ID, "pay_456")
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&model.Commission{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestRefundCancelsPendingCommission(t *testing.T) {
	db := newTestDB(t)
	codes := NewCodeService(db)
	coupons := NewCouponService(db, codes)
	commissions := NewCommissionService(db)
	svc := NewPaymentService(db, coupons, commissions)
	ctx := context.Background()

	jyotishi := createJyotishi(t, db, "Arun Verma", "AV001", "0.20")
	student := createStudent(t, db, "student@example.com")
	course := createCourse(t, db, "JYO-101", "1000.00")

	couponType, err := coupons.CreateType(ctx, CreateTypeInput{Name: "Referral"})
	require.NoError(t, err)
	coupon, err := coupons.Create(ctx, CreateCouponInput{
		CouponTypeID: couponType.ID,
		JyotishiID:   jyotishi.ID,
		Discount:     dec(t, "100.00"),
	})
	require.NoError(t, err)

	order, err := svc.CreateOrder(ctx, CreateOrderInput{
		UserID: student.ID, CourseID: course.ID, CouponCode: coupon.Code,
	})
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, order.ID, "pay_789")
	require.NoError(t, err)

	refunded, err := svc.Refund(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusRefunded, refunded.Status)

	var commission model.Commission
	require.NoError(t, db.Where("payment_id = ?", order.ID).First(&commission).Error)
	assert.Equal(t, model.CommissionStatusCancelled, commission.Status)

	var enrollments int64
	require.NoError(t, db.Model(&model.Enrollment{}).
		Where("payment_id = ?", order.ID).Count(&enrollments).Error)
	assert.EqualValues(t, 0, enrollments)

	// A refunded payment cannot be refunded again.
	_, err = svc.Refund(ctx, order.ID)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCouponLifecycleLimits(t *testing.T) {
	db := newTestDB(t)
	codes := NewCodeService(db)
	coupons := NewCouponService(db, codes)
	ctx := context.Background()

	jyotishi := createJyotishi(t, db, "Arun Verma", "AV001", "0.20")
	couponType, err := coupons.CreateType(ctx, CreateTypeInput{Name: "Referral"})
	require.NoError(t, err)

	maxUsage := 1
	coupon, err := coupons.Create(ctx, CreateCouponInput{
		CouponTypeID: couponType.ID,
		JyotishiID:   jyotishi.ID,
		Discount:     dec(t, "50.00"),
		MaxUsage:     &maxUsage,
	})
	require.NoError(t, err)

	_, err = coupons.Resolve(ctx, coupon.Code)
	require.NoError(t, err)

	require.NoError(t, coupons.RecordUsage(ctx, coupon.ID))
	_, err = coupons.Resolve(ctx, coupon.Code)
	assert.ErrorIs(t, err, ErrNotFound)

	// Identical composition collides on the code column.
	_, err = coupons.Create(ctx, CreateCouponInput{
		CouponTypeID: couponType.ID,
		JyotishiID:   jyotishi.ID,
		Discount:     dec(t, "50.00"),
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestPromoteAssignsCode(t *testing.T) {
	db := newTestDB(t)
	svc := NewJyotishiService(db, NewCodeService(db))
	ctx := context.Background()

	user := createStudent(t, db, "arun@example.com")
	require.NoError(t, db.Model(user).Update("name", "Arun Verma").Error)

	promoted, err := svc.Promote(ctx, user.ID, dec(t, "0.25"))
	require.NoError(t, err)
	assert.Equal(t, model.RoleJyotishi, promoted.Role)
	require.NotNil(t, promoted.JyotishiCode)
	assert.Equal(t, "AV001", *promoted.JyotishiCode)
	assert.True(t, promoted.CommissionRate.Equal(dec(t, "0.25")))

	// Promoting twice conflicts; out-of-range rates are rejected.
	_, err = svc.Promote(ctx, user.ID, dec(t, "0.25"))
	assert.ErrorIs(t, err, ErrConflict)
	_, err = svc.Promote(ctx, 9999, dec(t, "1.5"))
	assert.Error(t, err)
}
