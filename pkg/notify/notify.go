package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Template names a notification body.
type Template string

const (
	TemplateTransactionVerified  Template = "transaction_verified"
	TemplateSubscriptionReminder Template = "subscription_reminder"
	TemplateSubscriptionExpired  Template = "subscription_expired"
)

// Message is one outbound notification. To is the recipient address for
// senders that address users directly.
type Message struct {
	To       string
	Template Template
	Data     map[string]string
}

// Receipt identifies a delivered notification.
type Receipt struct {
	ID     string
	Sender string
	At     time.Time
}

// Sender delivers notifications.
type Sender interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
}

// Fanout delivers each message through every sender. It returns the first
// successful receipt and the joined errors of the failing senders.
type Fanout []Sender

func (f Fanout) Send(ctx context.Context, msg Message) (Receipt, error) {
	var (
		first Receipt
		ok    bool
		errs  []error
	)
	for _, s := range f {
		r, err := s.Send(ctx, msg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			first, ok = r, true
		}
	}
	return first, errors.Join(errs...)
}

// LogSender only logs; used when no mail transport is configured.
type LogSender struct {
	Logger *zap.Logger
}

func (s LogSender) Send(_ context.Context, msg Message) (Receipt, error) {
	s.Logger.Info("notification",
		zap.String("to", msg.To),
		zap.String("template", string(msg.Template)),
		zap.Any("data", msg.Data),
	)
	return Receipt{Sender: "log", At: time.Now().UTC()}, nil
}
