package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vedshala/lms-api/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PayoutService owns the payout lifecycle: affiliate requests, admin
// settlement (bulk and request-based) and rejection.
//
// Every entry point that mutates ledger rows runs inside one database
// transaction, so a failure anywhere rolls back the whole closure: a
// payout is never COMPLETED while its commissions stay PENDING, and
// commissions are never PAID without a completed payout.
//
// Concurrency control is optimistic: settlement of one payout is
// serialized by a status-conditional UPDATE (a second attempt sees zero
// affected rows and fails with ErrConflict), and concurrent requests for
// the same jyotishi are serialized by the user's payout version counter.
type PayoutService struct {
	db *gorm.DB
}

// NewPayoutService creates a new payout service
func NewPayoutService(db *gorm.DB) *PayoutService {
	return &PayoutService{db: db}
}

// RequestInput is an affiliate-initiated payout request.
type RequestInput struct {
	Amount decimal.Decimal
	Method string // bank_transfer, upi
}

// SettleInput carries the admin-supplied settlement facts.
type SettleInput struct {
	TransactionID    string
	TransactionProof string // object storage URL, optional
	Notes            string
	Method           string // bulk settlement only; requests carry their own
}

// Request reserves part of the jyotishi's payable balance as a PENDING
// payout. No commissions are linked yet; binding happens at settlement.
// The affiliate's bank details are snapshotted onto the payout so later
// edits never change an in-flight request.
func (s *PayoutService) Request(ctx context.Context, affiliateID uint, in RequestInput) (*model.Payout, error) {
	if !in.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if in.Method == "" {
		in.Method = model.PayoutMethodBankTransfer
	}

	var payout *model.Payout
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var affiliate model.User
		if err := tx.First(&affiliate, affiliateID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load jyotishi: %w", err)
		}
		if !affiliate.IsJyotishi() {
			return ErrNotFound
		}

		if missing := affiliate.MissingBankFields(); len(missing) > 0 {
			return &MissingBankDetailsError{Fields: missing}
		}

		pending, err := pendingBalanceTx(tx, affiliateID)
		if err != nil {
			return err
		}
		reserved, err := openPayoutTotalTx(tx, affiliateID)
		if err != nil {
			return err
		}
		available := pending.Sub(reserved)
		if in.Amount.GreaterThan(available) {
			return &InsufficientBalanceError{Requested: in.Amount, Available: available}
		}

		snapshot, err := json.Marshal(affiliate.BankDetails())
		if err != nil {
			return fmt.Errorf("failed to snapshot bank details: %w", err)
		}

		payout = &model.Payout{
			Reference:     uuid.New().String(),
			AffiliateID:   affiliateID,
			Amount:        in.Amount,
			Status:        model.PayoutStatusPending,
			PaymentMethod: in.Method,
			BankDetails:   datatypes.JSON(snapshot),
			RequestedAt:   time.Now().UTC(),
		}
		if err := tx.Create(payout).Error; err != nil {
			return fmt.Errorf("failed to create payout: %w", err)
		}

		// Version check: if another request for this jyotishi committed
		// between our balance read and here, the version moved and this
		// update matches nothing, rolling the whole request back.
		res := tx.Model(&model.User{}).
			Where("id = ? AND payout_version = ?", affiliateID, affiliate.PayoutVersion).
			Update("payout_version", affiliate.PayoutVersion+1)
		if res.Error != nil {
			return fmt.Errorf("failed to advance payout version: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payout, nil
}

// BulkSettle gathers every PENDING commission of the jyotishi, creates a
// COMPLETED payout for the exact sum and closes all of them in one
// transaction.
func (s *PayoutService) BulkSettle(ctx context.Context, affiliateID, adminID uint, in SettleInput) (*model.Payout, error) {
	if in.Method == "" {
		in.Method = model.PayoutMethodBankTransfer
	}

	var payout *model.Payout
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var affiliate model.User
		if err := tx.First(&affiliate, affiliateID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load jyotishi: %w", err)
		}

		commissions, err := pendingCommissionsOldestFirstTx(tx, affiliateID)
		if err != nil {
			return err
		}
		if len(commissions) == 0 {
			return ErrNoPendingCommissions
		}

		total := decimal.Zero
		for _, c := range commissions {
			total = total.Add(c.CommissionAmount)
		}

		snapshot, err := json.Marshal(affiliate.BankDetails())
		if err != nil {
			return fmt.Errorf("failed to snapshot bank details: %w", err)
		}

		now := time.Now().UTC()
		payout = &model.Payout{
			Reference:     uuid.New().String(),
			AffiliateID:   affiliateID,
			Amount:        total,
			Status:        model.PayoutStatusCompleted,
			PaymentMethod: in.Method,
			BankDetails:   datatypes.JSON(snapshot),
			Notes:         in.Notes,
			RequestedAt:   now,
			ProcessedAt:   &now,
			ProcessedBy:   &adminID,
		}
		if in.TransactionID != "" {
			payout.TransactionID = &in.TransactionID
		}
		if in.TransactionProof != "" {
			payout.TransactionProof = &in.TransactionProof
		}
		if err := tx.Create(payout).Error; err != nil {
			return fmt.Errorf("failed to create payout: %w", err)
		}

		return closeCommissionsTx(tx, commissions, payout.ID, now)
	})
	if err != nil {
		return nil, err
	}
	return payout, nil
}

// SettleRequested settles an existing PENDING payout created via
// Request. PENDING commissions are selected oldest-first until their sum
// covers the payout amount; if the boundary commission overshoots, it is
// split so the linked sum equals the payout amount exactly and the
// overshoot carries forward as a new PENDING commission.
func (s *PayoutService) SettleRequested(ctx context.Context, payoutID, adminID uint, in SettleInput) (*model.Payout, error) {
	var payout model.Payout
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&payout, payoutID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load payout: %w", err)
		}

		// Claim the payout. A concurrent (or repeated) settlement of the
		// same payout finds it no longer PENDING and fails cleanly.
		res := tx.Model(&model.Payout{}).
			Where("id = ? AND status = ?", payoutID, model.PayoutStatusPending).
			Update("status", model.PayoutStatusProcessing)
		if res.Error != nil {
			return fmt.Errorf("failed to claim payout: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}

		commissions, err := pendingCommissionsOldestFirstTx(tx, payout.AffiliateID)
		if err != nil {
			return err
		}

		selected, remainder, covered := selectForAmount(commissions, payout.Amount)
		if !covered {
			available := decimal.Zero
			for _, c := range commissions {
				available = available.Add(c.CommissionAmount)
			}
			return &InsufficientBalanceError{Requested: payout.Amount, Available: available}
		}

		now := time.Now().UTC()
		if remainder != nil {
			if err := splitBoundaryTx(tx, remainder, now); err != nil {
				return err
			}
		}
		if err := closeCommissionsTx(tx, selected, payout.ID, now); err != nil {
			return err
		}

		updates := map[string]interface{}{
			"status":       model.PayoutStatusCompleted,
			"processed_at": now,
			"processed_by": adminID,
			"notes":        in.Notes,
		}
		if in.TransactionID != "" {
			updates["transaction_id"] = in.TransactionID
		}
		if in.TransactionProof != "" {
			updates["transaction_proof"] = in.TransactionProof
		}
		if err := tx.Model(&model.Payout{}).Where("id = ?", payoutID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to complete payout: %w", err)
		}
		return tx.First(&payout, payoutID).Error
	})
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

// Reject declines a PENDING payout with a reason. Commissions are never
// touched; they remain PENDING and eligible for a future payout.
func (s *PayoutService) Reject(ctx context.Context, payoutID, adminID uint, reason string) (*model.Payout, error) {
	var payout model.Payout
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&payout, payoutID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load payout: %w", err)
		}

		now := time.Now().UTC()
		res := tx.Model(&model.Payout{}).
			Where("id = ? AND status = ?", payoutID, model.PayoutStatusPending).
			Updates(map[string]interface{}{
				"status":           model.PayoutStatusRejected,
				"rejection_reason": reason,
				"processed_at":     now,
				"processed_by":     adminID,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to reject payout: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		return tx.First(&payout, payoutID).Error
	})
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

// Get loads one payout with its linked commissions.
func (s *PayoutService) Get(ctx context.Context, payoutID uint) (*model.Payout, error) {
	var payout model.Payout
	err := s.db.WithContext(ctx).
		Preload("Commissions").
		Preload("Affiliate").
		First(&payout, payoutID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load payout: %w", err)
	}
	return &payout, nil
}

// PayoutListOptions filters payout listings.
type PayoutListOptions struct {
	AffiliateID uint // 0 = all affiliates (admin queue)
	Status      string
	Limit       int
	Offset      int
}

// List returns payouts newest-request-first with the matching total.
func (s *PayoutService) List(ctx context.Context, opts PayoutListOptions) ([]model.Payout, int64, error) {
	query := s.db.WithContext(ctx).Model(&model.Payout{})
	if opts.AffiliateID != 0 {
		query = query.Where("affiliate_id = ?", opts.AffiliateID)
	}
	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count payouts: %w", err)
	}

	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	var payouts []model.Payout
	if err := query.Preload("Affiliate").
		Order("requested_at DESC, id DESC").
		Limit(opts.Limit).
		Offset(opts.Offset).
		Find(&payouts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch payouts: %w", err)
	}
	return payouts, total, nil
}

// AttachProof stores the transaction-proof URL on an open payout.
func (s *PayoutService) AttachProof(ctx context.Context, payoutID uint, proofURL string) error {
	res := s.db.WithContext(ctx).Model(&model.Payout{}).
		Where("id = ? AND status IN ?", payoutID,
			[]string{model.PayoutStatusPending, model.PayoutStatusProcessing}).
		Update("transaction_proof", proofURL)
	if res.Error != nil {
		return fmt.Errorf("failed to attach proof: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// openPayoutTotalTx sums the amounts of payouts still reserving balance.
func openPayoutTotalTx(tx *gorm.DB, affiliateID uint) (decimal.Decimal, error) {
	var payouts []model.Payout
	if err := tx.
		Where("affiliate_id = ? AND status IN ?", affiliateID,
			[]string{model.PayoutStatusPending, model.PayoutStatusProcessing}).
		Find(&payouts).Error; err != nil {
		return decimal.Zero, fmt.Errorf("failed to load open payouts: %w", err)
	}
	total := decimal.Zero
	for _, p := range payouts {
		total = total.Add(p.Amount)
	}
	return total, nil
}

// pendingCommissionsOldestFirstTx loads the jyotishi's PENDING
// commissions in deterministic settlement order: createdAt ascending, id
// ascending as tiebreak, reproducible for audit.
func pendingCommissionsOldestFirstTx(tx *gorm.DB, affiliateID uint) ([]model.Commission, error) {
	var commissions []model.Commission
	if err := tx.
		Where("affiliate_id = ? AND status = ?", affiliateID, model.CommissionStatusPending).
		Order("created_at ASC, id ASC").
		Find(&commissions).Error; err != nil {
		return nil, fmt.Errorf("failed to load pending commissions: %w", err)
	}
	return commissions, nil
}

// boundarySplit describes the commission at the payout boundary: keep is
// the portion folded into the payout, carry the portion that becomes a
// new PENDING commission.
type boundarySplit struct {
	commission model.Commission
	keep       decimal.Decimal
	carry      decimal.Decimal
}

// selectForAmount walks the ordered commissions accumulating amounts
// until target is reached. If the boundary commission overshoots, the
// returned split describes how to divide it; covered is false when the
// whole list cannot reach the target.
func selectForAmount(commissions []model.Commission, target decimal.Decimal) ([]model.Commission, *boundarySplit, bool) {
	selected := make([]model.Commission, 0, len(commissions))
	remaining := target
	for _, c := range commissions {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		if c.CommissionAmount.GreaterThan(remaining) {
			split := &boundarySplit{
				commission: c,
				keep:       remaining,
				carry:      c.CommissionAmount.Sub(remaining),
			}
			selected = append(selected, c)
			return selected, split, true
		}
		selected = append(selected, c)
		remaining = remaining.Sub(c.CommissionAmount)
	}
	return selected, nil, remaining.LessThanOrEqual(decimal.Zero)
}

// splitBoundaryTx shrinks the boundary commission to the kept portion
// and inserts a remainder commission (next free segment of the same
// payment) carrying the overshoot forward as PENDING. Sale amounts are
// prorated so the segment family still sums to the original sale.
func splitBoundaryTx(tx *gorm.DB, split *boundarySplit, now time.Time) error {
	c := split.commission

	keepSale := decimal.Zero
	if !c.CommissionAmount.IsZero() {
		keepSale = c.SaleAmount.Mul(split.keep).Div(c.CommissionAmount).Round(2)
	}
	carrySale := c.SaleAmount.Sub(keepSale)

	if err := tx.Model(&model.Commission{}).
		Where("id = ?", c.ID).
		Updates(map[string]interface{}{
			"commission_amount": split.keep,
			"sale_amount":       keepSale,
		}).Error; err != nil {
		return fmt.Errorf("failed to shrink boundary commission: %w", err)
	}

	var maxSegment int
	if err := tx.Model(&model.Commission{}).
		Where("payment_id = ?", c.PaymentID).
		Select("COALESCE(MAX(segment), 0)").
		Scan(&maxSegment).Error; err != nil {
		return fmt.Errorf("failed to find next segment: %w", err)
	}

	carry := &model.Commission{
		AffiliateID:      c.AffiliateID,
		StudentID:        c.StudentID,
		CourseID:         c.CourseID,
		PaymentID:        c.PaymentID,
		Segment:          maxSegment + 1,
		SaleAmount:       carrySale,
		CommissionRate:   c.CommissionRate,
		CommissionAmount: split.carry,
		Status:           model.CommissionStatusPending,
		CreatedAt:        c.CreatedAt, // keeps its place in oldest-first order
	}
	if err := tx.Create(carry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create remainder commission: %w", err)
	}
	return nil
}

// closeCommissionsTx marks the selected commissions PAID against the
// payout and refreshes the commission-paid flag of every touched source
// payment. Runs inside the settlement transaction.
func closeCommissionsTx(tx *gorm.DB, commissions []model.Commission, payoutID uint, now time.Time) error {
	ids := make([]uint, 0, len(commissions))
	paymentIDs := make(map[uint]struct{})
	for _, c := range commissions {
		ids = append(ids, c.ID)
		paymentIDs[c.PaymentID] = struct{}{}
	}

	res := tx.Model(&model.Commission{}).
		Where("id IN ? AND status = ?", ids, model.CommissionStatusPending).
		Updates(map[string]interface{}{
			"status":    model.CommissionStatusPaid,
			"payout_id": payoutID,
			"paid_at":   now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to mark commissions paid: %w", res.Error)
	}
	if res.RowsAffected != int64(len(ids)) {
		// Someone changed a commission underneath us; abort the closure.
		return ErrConflict
	}

	for paymentID := range paymentIDs {
		if err := refreshCommissionPaidTx(tx, paymentID); err != nil {
			return err
		}
	}
	return nil
}

// refreshCommissionPaidTx recomputes a payment's commission-paid flag:
// true only when the payment has at least one PAID segment and no
// PENDING segment left.
func refreshCommissionPaidTx(tx *gorm.DB, paymentID uint) error {
	var pending, paid int64
	if err := tx.Model(&model.Commission{}).
		Where("payment_id = ? AND status = ?", paymentID, model.CommissionStatusPending).
		Count(&pending).Error; err != nil {
		return fmt.Errorf("failed to count pending segments: %w", err)
	}
	if err := tx.Model(&model.Commission{}).
		Where("payment_id = ? AND status = ?", paymentID, model.CommissionStatusPaid).
		Count(&paid).Error; err != nil {
		return fmt.Errorf("failed to count paid segments: %w", err)
	}

	return tx.Model(&model.CoursePayment{}).
		Where("id = ?", paymentID).
		Update("commission_paid", pending == 0 && paid > 0).Error
}
