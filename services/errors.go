package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across the commission/payout services. Handlers
// map these onto HTTP responses; none of them implies partial state, as
// every failing operation rolls back before returning.
var (
	// ErrNotFound is returned when the targeted user, payout, coupon or
	// commission does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateCommission is returned when a commission has already
	// been accrued for the payment (accrual is idempotent per payment).
	ErrDuplicateCommission = errors.New("commission already accrued for this payment")

	// ErrNoPendingCommissions is returned by bulk settlement when the
	// jyotishi has nothing payable.
	ErrNoPendingCommissions = errors.New("no pending commissions for this jyotishi")

	// ErrConflict is returned when a concurrent operation won the race:
	// a second settlement of the same payout, an interleaved payout
	// request, or a code-generation collision. Callers should retry with
	// fresh state.
	ErrConflict = errors.New("conflicting concurrent operation")

	// ErrCodeSpaceExhausted is returned when a code generator has no
	// unused sequence number left.
	ErrCodeSpaceExhausted = errors.New("code sequence exhausted")

	// ErrInvalidAmount is returned for zero or negative monetary input.
	ErrInvalidAmount = errors.New("amount must be greater than zero")
)

// InsufficientBalanceError reports that a payout request or settlement
// exceeds the currently available balance.
type InsufficientBalanceError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: requested %s, available %s",
		e.Requested.StringFixed(2), e.Available.StringFixed(2))
}

// MissingBankDetailsError names the bank-detail fields a jyotishi must
// fill in before requesting a payout.
type MissingBankDetailsError struct {
	Fields []string
}

func (e *MissingBankDetailsError) Error() string {
	return "missing bank details: " + strings.Join(e.Fields, ", ")
}
