package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"ipgate/internal/support"

	"github.com/charmbracelet/log"
)

// Notifier delivers operator notifications out of band. Failures are the
// caller's to log, never to propagate into request or detection paths.
type Notifier interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// NewFromEnv returns an SMTP notifier when SMTP_HOST is configured and a
// log-only notifier otherwise, so report jobs keep working in development.
func NewFromEnv() Notifier {
	host := support.GetEnv("SMTP_HOST", "")
	if host == "" {
		log.Warn("SMTP_HOST not set, notifications will only be logged")
		return LogNotifier{}
	}

	return &SMTPNotifier{
		host:     host,
		port:     support.GetEnvInt("SMTP_PORT", 587),
		username: support.GetEnv("SMTP_USERNAME", ""),
		password: support.GetEnv("SMTP_PASSWORD", ""),
		from:     support.GetEnv("SMTP_FROM", "ipgate@localhost"),
	}
}

// SMTPNotifier sends plain-text mail through a single SMTP relay.
type SMTPNotifier struct {
	host     string
	port     int
	username string
	password string
	from     string
}

func (n *SMTPNotifier) Send(ctx context.Context, recipient, subject, body string) error {
	if recipient == "" {
		return fmt.Errorf("notify: empty recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", n.from)
	fmt.Fprintf(&msg, "To: %s\r\n", recipient)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("\r\n")
	msg.WriteString(body)

	var auth smtp.Auth
	if n.username != "" {
		auth = smtp.PlainAuth("", n.username, n.password, n.host)
	}

	addr := fmt.Sprintf("%s:%d", n.host, n.port)
	if err := smtp.SendMail(addr, auth, n.from, []string{recipient}, []byte(msg.String())); err != nil {
		return fmt.Errorf("notify: send mail: %w", err)
	}
	return nil
}

// LogNotifier writes the notification to the application log.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, recipient, subject, body string) error {
	log.Info("Notification (log only)", "recipient", recipient, "subject", subject, "bytes", len(body))
	return nil
}
