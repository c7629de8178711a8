package mail

import (
	"context"
	"errors"

	"gopkg.in/gomail.v2"
)

var (
	ErrNoRecipient = errors.New("mail: message has no recipient")
	ErrNoAccount   = errors.New("mail: sender account not configured")
)

// SMTPSender delivers messages through an authenticated SMTP account.  Port
// 465 is dialed with implicit TLS, other ports upgrade with STARTTLS.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
	name   string
}

func NewSMTPSender(host string, port int, user, password, senderName string) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(host, port, user, password),
		from:   user,
		name:   senderName,
	}
}

func (s *SMTPSender) Send(ctx context.Context, m Message) error {
	if err := validate(m); err != nil {
		return err
	}
	if s.from == "" || s.dialer.Password == "" {
		return ErrNoAccount
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", s.from, s.name)
	msg.SetHeader("To", m.To)
	msg.SetHeader("Subject", m.Subject)
	msg.SetBody("text/html", m.HTML)
	return s.dialer.DialAndSend(msg)
}
