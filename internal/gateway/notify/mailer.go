package notify

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

// MailerConfig holds the SMTP settings for the code mailer.
type MailerConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Issuer   string // service name shown in the subject line
}

// Mailer sends verification codes over SMTP.
type Mailer struct {
	cfg    MailerConfig
	dialer *gomail.Dialer
}

func NewMailer(cfg MailerConfig) *Mailer {
	return &Mailer{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

// SendCode mails the code to the given address. gomail has no context
// support, so the dial-and-send runs in a goroutine and the context
// deadline bounds how long we wait for it.
func (m *Mailer) SendCode(ctx context.Context, email, code string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", email)
	msg.SetHeader("Subject", fmt.Sprintf("Your %s Verification Code", m.cfg.Issuer))
	msg.SetBody("text/plain", fmt.Sprintf("Your verification code is: %s", code))

	done := make(chan error, 1)
	go func() {
		done <- m.dialer.DialAndSend(msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("notify: send code: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notify: send code: %w", ctx.Err())
	}
}
