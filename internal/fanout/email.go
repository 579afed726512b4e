package fanout

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// EmailSender delivers a single HTML email to one or more recipients.
// Implementations are injected at construction time; the fanout never
// builds its own transport lazily.
type EmailSender interface {
	Send(ctx context.Context, to []string, subject, htmlBody string) error
}

// SMTPConfig holds the outbound email transport settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether the transport is configured at all. An empty
// host disables delivery, used in dev environments.
func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

// GomailSender implements EmailSender over SMTP.
type GomailSender struct {
	logger *zap.Logger
	config SMTPConfig
	dialer *gomail.Dialer
}

// NewGomailSender creates a new SMTP email sender
func NewGomailSender(config SMTPConfig, logger *zap.Logger) *GomailSender {
	return &GomailSender{
		logger: logger.Named("email-sender"),
		config: config,
		dialer: gomail.NewDialer(config.Host, config.Port, config.Username, config.Password),
	}
}

// Send implements EmailSender.Send. One message is addressed to the whole
// recipient list, not one message per recipient.
func (s *GomailSender) Send(ctx context.Context, to []string, subject, htmlBody string) error {
	if !s.config.Enabled() {
		s.logger.Info("Email transport disabled, skipping send",
			zap.Int("recipients", len(to)))
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", s.config.From)
	msg.SetHeader("To", to...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("email send aborted: %w", ctx.Err())
	}
}
