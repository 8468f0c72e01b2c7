package services

import (
	"crypto/tls"
	"fmt"
	"log"
	"net/smtp"
	"os"
	"strings"

	"github.com/vedshala/lms-api/model"
)

// EmailService handles sending emails via SMTP. Delivery is
// fire-and-forget: a failed mail is logged, never surfaced into the
// payout workflow's correctness.
type EmailService struct {
	host     string
	port     int
	username string
	password string
	from     string
	appURL   string
}

// NewEmailService creates a new email service instance
func NewEmailService() *EmailService {
	port := 587
	if p := os.Getenv("SMTP_PORT"); p != "" {
		fmt.Sscanf(p, "%d", &port)
	}

	return &EmailService{
		host:     getEnvOrDefault("SMTP_HOST", "smtp.gmail.com"),
		port:     port,
		username: os.Getenv("SMTP_USERNAME"),
		password: os.Getenv("SMTP_PASSWORD"),
		from:     getEnvOrDefault("SMTP_FROM", "noreply@vedshala.app"),
		appURL:   getEnvOrDefault("APP_URL", "http://localhost:3000"),
	}
}

// getEnvOrDefault returns the environment variable value or a default
func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// IsConfigured checks if SMTP is properly configured
func (e *EmailService) IsConfigured() bool {
	return e.username != "" && e.password != ""
}

// SendPasswordResetEmail sends a password reset email to the user
func (e *EmailService) SendPasswordResetEmail(toEmail, resetToken, userName string) error {
	if !e.IsConfigured() {
		log.Printf("SMTP not configured. Reset token for %s: %s", toEmail, resetToken)
		return fmt.Errorf("SMTP not configured")
	}

	resetLink := fmt.Sprintf("%s/reset-password?token=%s", e.appURL, resetToken)
	subject := "Reset Your Password - Vedshala"
	body := e.buildSimpleBody(userName,
		"We received a request to reset your password.",
		fmt.Sprintf(`<a href="%s">Reset password</a> (valid for one hour).`, resetLink))

	return e.sendEmail(toEmail, subject, body)
}

// SendPayoutRequestedEmail confirms a payout request to the jyotishi.
func (e *EmailService) SendPayoutRequestedEmail(toEmail, userName string, payout *model.Payout) error {
	if !e.IsConfigured() {
		log.Printf("SMTP not configured. Skipping payout-requested mail to %s", toEmail)
		return nil
	}

	subject := "Payout Request Received - Vedshala"
	body := e.buildSimpleBody(userName,
		fmt.Sprintf("Your payout request %s for ₹%s has been received.",
			payout.Reference, payout.Amount.StringFixed(2)),
		"Our team will process it shortly. You will be notified once it completes.")

	return e.sendEmail(toEmail, subject, body)
}

// SendPayoutSettledEmail tells the jyotishi their payout completed.
func (e *EmailService) SendPayoutSettledEmail(toEmail, userName string, payout *model.Payout) error {
	if !e.IsConfigured() {
		log.Printf("SMTP not configured. Skipping payout-settled mail to %s", toEmail)
		return nil
	}

	txn := ""
	if payout.TransactionID != nil {
		txn = fmt.Sprintf(" Transaction reference: %s.", *payout.TransactionID)
	}
	subject := "Payout Completed - Vedshala"
	body := e.buildSimpleBody(userName,
		fmt.Sprintf("Your payout %s for ₹%s has been transferred.%s",
			payout.Reference, payout.Amount.StringFixed(2), txn),
		"Thank you for being a Vedshala jyotishi.")

	return e.sendEmail(toEmail, subject, body)
}

// SendPayoutRejectedEmail tells the jyotishi their payout was declined.
func (e *EmailService) SendPayoutRejectedEmail(toEmail, userName string, payout *model.Payout) error {
	if !e.IsConfigured() {
		log.Printf("SMTP not configured. Skipping payout-rejected mail to %s", toEmail)
		return nil
	}

	reason := "no reason given"
	if payout.RejectionReason != nil {
		reason = *payout.RejectionReason
	}
	subject := "Payout Request Declined - Vedshala"
	body := e.buildSimpleBody(userName,
		fmt.Sprintf("Your payout request %s for ₹%s was declined: %s.",
			payout.Reference, payout.Amount.StringFixed(2), reason),
		"Your commissions remain available for a future payout request.")

	return e.sendEmail(toEmail, subject, body)
}

// SendCommissionAccruedEmail tells the jyotishi a sale earned them commission.
func (e *EmailService) SendCommissionAccruedEmail(toEmail, userName string, commission *model.Commission) error {
	if !e.IsConfigured() {
		log.Printf("SMTP not configured. Skipping commission mail to %s", toEmail)
		return nil
	}

	subject := "New Commission Earned - Vedshala"
	body := e.buildSimpleBody(userName,
		fmt.Sprintf("A sale through your coupon earned you ₹%s in commission.",
			commission.CommissionAmount.StringFixed(2)),
		fmt.Sprintf(`See your <a href="%s/jyotishi/dashboard">dashboard</a> for details.`, e.appURL))

	return e.sendEmail(toEmail, subject, body)
}

// buildSimpleBody renders the shared minimal HTML email layout.
func (e *EmailService) buildSimpleBody(userName, lead, detail string) string {
	if userName == "" {
		userName = "User"
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: sans-serif; color: #333;">
  <h2>Namaste %s,</h2>
  <p>%s</p>
  <p>%s</p>
  <p style="color: #888; font-size: 12px;">— The Vedshala team</p>
</body>
</html>`, userName, lead, detail)
}

// sendEmail sends an email over SMTP with STARTTLS.
func (e *EmailService) sendEmail(to, subject, htmlBody string) error {
	addr := fmt.Sprintf("%s:%d", e.host, e.port)
	auth := smtp.PlainAuth("", e.username, e.password, e.host)

	headers := []string{
		fmt.Sprintf("From: %s", e.from),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="UTF-8"`,
	}
	message := strings.Join(headers, "\r\n") + "\r\n\r\n" + htmlBody

	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: e.host}); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP auth failed: %w", err)
	}
	if err := client.Mail(e.from); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(message)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}
