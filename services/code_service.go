package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"github.com/vedshala/lms-api/model"
	"gorm.io/gorm"
)

// CouponCodePrefix starts every composed coupon code.
const CouponCodePrefix = "VED"

// CodeService generates human-readable jyotishi and coupon codes.
//
// Generation is "scan for the smallest unused sequence number, then rely
// on the unique index at insert time": two concurrent generations may
// compute the same candidate, but only one insert wins; the loser gets
// gorm.ErrDuplicatedKey, which callers surface as ErrConflict and retry
// with fresh state.
type CodeService struct {
	db *gorm.DB
}

// NewCodeService creates a new code service
func NewCodeService(db *gorm.DB) *CodeService {
	return &CodeService{db: db}
}

// Initials derives the code prefix from a jyotishi's name: a single-word
// name yields its first two letters, a multi-word name the first letter
// of the first and last word. Always upper-case.
func Initials(name string) string {
	fields := strings.Fields(strings.TrimSpace(name))
	switch len(fields) {
	case 0:
		return ""
	case 1:
		runes := []rune(fields[0])
		if len(runes) < 2 {
			return strings.ToUpper(string(runes))
		}
		return strings.ToUpper(string(runes[:2]))
	default:
		first := []rune(fields[0])
		last := []rune(fields[len(fields)-1])
		return strings.ToUpper(string(first[0]) + string(last[0]))
	}
}

// NextJyotishiCode returns the next free code for the given name:
// initials plus the smallest unused zero-padded sequence in [1, 999]
// among existing codes sharing those initials (e.g. "AV001").
func (s *CodeService) NextJyotishiCode(ctx context.Context, name string) (string, error) {
	prefix := Initials(name)
	if prefix == "" || !isLetters(prefix) {
		return "", fmt.Errorf("cannot derive initials from name %q", name)
	}

	var codes []string
	if err := s.db.WithContext(ctx).Model(&model.User{}).
		Where("jyotishi_code LIKE ?", prefix+"%").
		Pluck("jyotishi_code", &codes).Error; err != nil {
		return "", fmt.Errorf("failed to scan existing codes: %w", err)
	}

	seq, err := smallestUnused(codes, prefix, 3, 999)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%03d", prefix, seq), nil
}

// NextCouponTypeCode returns the smallest unused two-digit coupon type
// code in [01, 99].
func (s *CodeService) NextCouponTypeCode(ctx context.Context) (string, error) {
	var codes []string
	if err := s.db.WithContext(ctx).Model(&model.CouponType{}).
		Pluck("code", &codes).Error; err != nil {
		return "", fmt.Errorf("failed to scan existing type codes: %w", err)
	}

	seq, err := smallestUnused(codes, "", 2, 99)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02d", seq), nil
}

// ComposeCouponCode builds a coupon code from the fixed prefix, the
// jyotishi code, the coupon type code and the discount value with its
// decimal point stripped (e.g. VED + AV001 + 02 + 4999 for 49.99).
func ComposeCouponCode(jyotishiCode, typeCode string, discount decimal.Decimal) string {
	value := strings.ReplaceAll(discount.StringFixed(2), ".", "")
	// A whole-number discount reads better without the trailing zeros.
	if discount.Equal(discount.Truncate(0)) {
		value = discount.Truncate(0).String()
	}
	return CouponCodePrefix + jyotishiCode + typeCode + value
}

// PreviewCouponCode reports the code that would be generated and whether
// it already exists, without creating anything.
func (s *CodeService) PreviewCouponCode(ctx context.Context, jyotishiCode, typeCode string, discount decimal.Decimal) (string, bool, error) {
	code := ComposeCouponCode(jyotishiCode, typeCode, discount)

	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Coupon{}).
		Where("code = ?", code).
		Count(&count).Error; err != nil {
		return "", false, fmt.Errorf("failed to check coupon code: %w", err)
	}
	return code, count > 0, nil
}

// smallestUnused parses the numeric suffix of each code after prefix and
// returns the smallest integer in [1, max] not already taken. Suffixes
// of the wrong width or non-numeric codes are ignored.
func smallestUnused(codes []string, prefix string, width, max int) (int, error) {
	taken := make(map[int]bool, len(codes))
	for _, code := range codes {
		suffix := strings.TrimPrefix(code, prefix)
		if len(suffix) != width {
			continue
		}
		n, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		taken[n] = true
	}
	for n := 1; n <= max; n++ {
		if !taken[n] {
			return n, nil
		}
	}
	return 0, ErrCodeSpaceExhausted
}

func isLetters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return len(s) > 0
}
