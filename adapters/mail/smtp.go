package mail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/natashamaes/concierge/domain/repositories"
)

// Config holds the SMTP account used for call reports
type Config struct {
	Addr     string // host:port, STARTTLS is negotiated by net/smtp
	Sender   string
	Password string
	Receiver string
	FromName string
}

// SMTPMailer sends plain-text reports to a fixed receiver
type SMTPMailer struct {
	config Config
	logger *zap.Logger
	// send is swapped in tests
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

var _ repositories.Mailer = (*SMTPMailer)(nil)

// NewSMTPMailer validates config and returns a mailer
func NewSMTPMailer(config Config, logger *zap.Logger) (*SMTPMailer, error) {
	if config.Sender == "" || config.Password == "" {
		return nil, fmt.Errorf("email sender and password are required")
	}
	if config.Receiver == "" {
		return nil, fmt.Errorf("email receiver is required")
	}
	if config.Addr == "" {
		config.Addr = "smtp.gmail.com:587"
	}
	if config.FromName == "" {
		config.FromName = "Natasha AI"
	}

	return &SMTPMailer{config: config, logger: logger, send: smtp.SendMail}, nil
}

// Send implements repositories.Mailer
func (m *SMTPMailer) Send(ctx context.Context, subject, body string) error {
	host, _, err := net.SplitHostPort(m.config.Addr)
	if err != nil {
		return fmt.Errorf("invalid SMTP address %q: %w", m.config.Addr, err)
	}

	msg := buildMessage(m.config.FromName, m.config.Sender, m.config.Receiver, subject, body, time.Now())
	auth := smtp.PlainAuth("", m.config.Sender, m.config.Password, host)

	done := make(chan error, 1)
	go func() {
		done <- m.send(m.config.Addr, auth, m.config.Sender, []string{m.config.Receiver}, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send email: %w", err)
		}
	case <-ctx.Done():
		return fmt.Errorf("email send cancelled: %w", ctx.Err())
	}

	m.logger.Info("Email sent", zap.String("subject", subject))
	return nil
}

func buildMessage(fromName, from, to, subject, body string, now time.Time) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s <%s>\r\n", fromName, from)
	fmt.Fprintf(&sb, "To: %s\r\n", to)
	fmt.Fprintf(&sb, "Subject: %s\r\n", subject)
	fmt.Fprintf(&sb, "Date: %s\r\n", now.Format(time.RFC1123Z))
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(sb.String())
}
