package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/vedshala/lms-api/model"
	"github.com/vedshala/lms-api/services"
)

// stalePayoutAge is how long a payout may sit PENDING before admins get
// a reminder.
const stalePayoutAge = 7 * 24 * time.Hour

// abandonedPaymentAge is how long a pending payment may sit before it is
// marked failed.
const abandonedPaymentAge = 48 * time.Hour

// RemindStalePayouts notifies every admin about payout requests that
// have been waiting longer than stalePayoutAge.
func (m *CronManager) RemindStalePayouts() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	jobName := "stale_payout_reminder"
	cutoff := time.Now().Add(-stalePayoutAge)

	var payouts []model.Payout
	err := m.db.
		Preload("Affiliate").
		Where("status = ? AND requested_at < ?", model.PayoutStatusPending, cutoff).
		Find(&payouts).Error
	if err != nil {
		m.logJobError(jobName, fmt.Errorf("failed to query payouts: %w", err))
		return
	}

	if len(payouts) == 0 {
		m.logJobComplete(jobName, "No stale payouts")
		return
	}

	notifier := services.NewNotificationService(m.db)
	for i := range payouts {
		p := &payouts[i]
		payoutID := p.ID
		err := notifier.NotifyAdmins(ctx, services.CreateNotificationRequest{
			Type:     model.NotificationTypeWarning,
			Category: model.NotificationCategoryPayout,
			Title:    "Payout request awaiting action",
			Message: fmt.Sprintf("Payout %s for %s (%s) has been pending since %s",
				p.Reference, p.Affiliate.Name, p.Amount.StringFixed(2),
				p.RequestedAt.Format("2006-01-02")),
			PayoutID: &payoutID,
		})
		if err != nil {
			m.logJobError(jobName, err)
			return
		}
	}

	m.logJobComplete(jobName, fmt.Sprintf("Reminded admins about %d stale payouts", len(payouts)))
}

// ExpireAbandonedPayments fails pending payments older than
// abandonedPaymentAge so they stop cluttering checkout reports. No
// commission exists for them yet, so nothing else moves.
func (m *CronManager) ExpireAbandonedPayments() {
	jobName := "expire_abandoned_payments"
	cutoff := time.Now().Add(-abandonedPaymentAge)

	res := m.db.Model(&model.CoursePayment{}).
		Where("status = ? AND created_at < ?", model.PaymentStatusPending, cutoff).
		Update("status", model.PaymentStatusFailed)
	if res.Error != nil {
		m.logJobError(jobName, fmt.Errorf("failed to expire payments: %w", res.Error))
		return
	}

	m.logJobComplete(jobName, fmt.Sprintf("Expired %d abandoned payments", res.RowsAffected))
}

// CleanupOldData purges expired blacklisted tokens, used reset tokens
// and cron logs older than 90 days.
func (m *CronManager) CleanupOldData() {
	jobName := "cleanup_old_data"
	now := time.Now()

	var removed int64

	res := m.db.Unscoped().
		Where("expires_at < ?", now).
		Delete(&model.JWTTokenBlacklist{})
	if res.Error != nil {
		m.logJobError(jobName, fmt.Errorf("failed to purge token blacklist: %w", res.Error))
		return
	}
	removed += res.RowsAffected

	res = m.db.Unscoped().
		Where("expires_at < ? OR used_at IS NOT NULL", now.AddDate(0, 0, -1)).
		Delete(&model.PasswordResetToken{})
	if res.Error != nil {
		m.logJobError(jobName, fmt.Errorf("failed to purge reset tokens: %w", res.Error))
		return
	}
	removed += res.RowsAffected

	res = m.db.Unscoped().
		Where("created_at < ?", now.AddDate(0, 0, -90)).
		Delete(&model.CronJobLog{})
	if res.Error != nil {
		m.logJobError(jobName, fmt.Errorf("failed to purge cron logs: %w", res.Error))
		return
	}
	removed += res.RowsAffected

	m.logJobComplete(jobName, fmt.Sprintf("Removed %d rows", removed))
}
