package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"
)

// Mailer delivers transactional mail. The engine treats delivery failures
// as fatal for the flow that triggered them, so implementations must
// return an error rather than silently dropping mail.
type Mailer interface {
	// SendVerificationCode emails the one-time sign-in code. The code is
	// plaintext in the message body; expiresIn is rendered for the reader.
	SendVerificationCode(ctx context.Context, toEmail, code string, expiresIn time.Duration) error
}

// SMTPConfig configures [SMTPMailer].
type SMTPConfig struct {
	Host        string
	Port        string
	Username    string
	Password    string
	FromAddress string
	AppName     string
}

// SMTPMailer sends mail over SMTP with mandatory STARTTLS. Works with any
// provider that speaks ESMTP: SES, Mailgun, Mailpit for local dev.
type SMTPMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// NopMailer discards all outbound mail. Used when SMTP is not configured.
type NopMailer struct{}

func (NopMailer) SendVerificationCode(_ context.Context, _, _ string, _ time.Duration) error {
	return nil
}

// SendVerificationCode emails the one-time code to toEmail.
func (m *SMTPMailer) SendVerificationCode(ctx context.Context, toEmail, code string, expiresIn time.Duration) error {
	appName := m.cfg.AppName
	if appName == "" {
		appName = "your account"
	}

	body := "Your sign-in verification code is:\n\n" +
		"    " + code + "\n\n" +
		"The code expires in " + formatDuration(expiresIn) + ". " +
		"If you did not try to sign in, change your password now."

	msg := "From: " + m.cfg.FromAddress + "\r\n" +
		"To: " + toEmail + "\r\n" +
		"Subject: " + appName + " verification code\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n" +
		"\r\n" +
		body

	if err := m.sendMail(ctx, toEmail, msg); err != nil {
		return fmt.Errorf("sending verification code: %w", err)
	}
	return nil
}

// sendMail dials the SMTP server, enforces STARTTLS (rejects plaintext
// sessions), authenticates, and delivers msg. The dial respects ctx
// cancellation.
func (m *SMTPMailer) sendMail(ctx context.Context, toEmail, msg string) error {
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", m.cfg.Host+":"+m.cfg.Port)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); !ok {
		return fmt.Errorf("smtp server does not advertise STARTTLS: refusing plaintext session")
	}
	if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
		return fmt.Errorf("smtp starttls: %w", err)
	}

	if err := c.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}

	if err := c.Mail(m.cfg.FromAddress); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := c.Rcpt(toEmail); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := fmt.Fprint(wc, msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}

	return c.Quit()
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= 24*time.Hour:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	case d >= time.Hour:
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	default:
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", mins)
	}
}
