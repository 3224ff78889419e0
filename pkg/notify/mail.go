package notify

import (
	"context"
	"fmt"
	"time"

	"chartgate/config"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// MailSender delivers user notifications over SMTP.
type MailSender struct {
	from string
	send func(m ...*gomail.Message) error
}

func NewMailSender(cfg config.MailConfig) *MailSender {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &MailSender{
		from: cfg.From,
		send: dialer.DialAndSend,
	}
}

func (s *MailSender) Send(ctx context.Context, msg Message) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if msg.To == "" {
		return Receipt{}, fmt.Errorf("mail %s: empty recipient", msg.Template)
	}

	subject, body, err := renderMail(msg)
	if err != nil {
		return Receipt{}, err
	}

	id := uuid.NewString()
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", subject)
	m.SetHeader("Message-ID", fmt.Sprintf("<%s@chartgate>", id))
	m.SetBody("text/html", body)

	if err := s.send(m); err != nil {
		return Receipt{}, fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	return Receipt{ID: id, Sender: "mail", At: time.Now().UTC()}, nil
}
