package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedshala/lms-api/model"
)

func TestInitials(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Arun Verma", "AV"},
		{"Arun Kumar Verma", "AV"},
		{"arun", "AR"},
		{"  Arun  Verma  ", "AV"},
		{"A", "A"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Initials(tt.name), "Initials(%q)", tt.name)
	}
}

func TestNextJyotishiCode(t *testing.T) {
	db := newTestDB(t)
	svc := NewCodeService(db)
	ctx := context.Background()

	code, err := svc.NextJyotishiCode(ctx, "Arun Verma")
	require.NoError(t, err)
	assert.Equal(t, "AV001", code)

	createJyotishi(t, db, "Arun Verma", "AV001", "0.20")
	createJyotishi(t, db, "Anita Vyas", "AV002", "0.20")

	code, err = svc.NextJyotishiCode(ctx, "Amit Varma")
	require.NoError(t, err)
	assert.Equal(t, "AV003", code)

	// Different initials run their own sequence.
	code, err = svc.NextJyotishiCode(ctx, "Ravi Shankar")
	require.NoError(t, err)
	assert.Equal(t, "RS001", code)
}

func TestNextJyotishiCodeFillsGaps(t *testing.T) {
	db := newTestDB(t)
	svc := NewCodeService(db)

	createJyotishi(t, db, "Arun Verma", "AV001", "0.20")
	createJyotishi(t, db, "Anita Vyas", "AV003", "0.20")

	code, err := svc.NextJyotishiCode(context.Background(), "Amit Varma")
	require.NoError(t, err)
	assert.Equal(t, "AV002", code)
}

func TestNextJyotishiCodeRejectsUnusableName(t *testing.T) {
	db := newTestDB(t)
	svc := NewCodeService(db)

	_, err := svc.NextJyotishiCode(context.Background(), "42")
	assert.Error(t, err)

	_, err = svc.NextJyotishiCode(context.Background(), "   ")
	assert.Error(t, err)
}

func TestNextCouponTypeCode(t *testing.T) {
	db := newTestDB(t)
	svc := NewCodeService(db)
	ctx := context.Background()

	code, err := svc.NextCouponTypeCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, "01", code)

	require.NoError(t, db.Create(&model.CouponType{Name: "Referral", Code: "01"}).Error)
	require.NoError(t, db.Create(&model.CouponType{Name: "Festival", Code: "03"}).Error)

	code, err = svc.NextCouponTypeCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, "02", code)
}

func TestSmallestUnused(t *testing.T) {
	seq, err := smallestUnused([]string{"AV001", "AV002"}, "AV", 3, 999)
	require.NoError(t, err)
	assert.Equal(t, 3, seq)

	// Codes with the wrong suffix width or junk are ignored.
	seq, err = smallestUnused([]string{"AV01", "AVXYZ", "AV0001"}, "AV", 3, 999)
	require.NoError(t, err)
	assert.Equal(t, 1, seq)

	_, err = smallestUnused([]string{"01", "02", "03"}, "", 2, 3)
	assert.ErrorIs(t, err, ErrCodeSpaceExhausted)
}

func TestComposeCouponCode(t *testing.T) {
	assert.Equal(t, "VEDAV001024999", ComposeCouponCode("AV001", "02", dec(t, "49.99")))
	// Whole-number discounts drop the trailing zeros.
	assert.Equal(t, "VEDAV0010250", ComposeCouponCode("AV001", "02", dec(t, "50")))
	assert.Equal(t, "VEDRS0010110", ComposeCouponCode("RS001", "01", dec(t, "10.00")))
}

func TestPreviewCouponCode(t *testing.T) {
	db := newTestDB(t)
	svc := NewCodeService(db)
	ctx := context.Background()

	jyotishi := createJyotishi(t, db, "Arun Verma", "AV001", "0.20")
	require.NoError(t, db.Create(&model.CouponType{Name: "Referral", Code: "01"}).Error)

	code, exists, err := svc.PreviewCouponCode(ctx, "AV001", "01", dec(t, "50"))
	require.NoError(t, err)
	assert.Equal(t, "VEDAV0010150", code)
	assert.False(t, exists)

	require.NoError(t, db.Create(&model.Coupon{
		Code:         code,
		CouponTypeID: 1,
		JyotishiID:   jyotishi.ID,
		Discount:     dec(t, "50"),
		Active:       true,
	}).Error)

	_, exists, err = svc.PreviewCouponCode(ctx, "AV001", "01", dec(t, "50"))
	require.NoError(t, err)
	assert.True(t, exists)
}
