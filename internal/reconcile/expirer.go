package reconcile

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"chartgate/internal/reminder"
	"chartgate/internal/subscription"
	"chartgate/pkg/notify"
	"chartgate/pkg/storage/postgres"

	"go.uber.org/zap"
)

type ExpiryReport struct {
	Expired  int
	Reminded int
	Skipped  int
	Failed   int
}

// Expirer closes lapsed subscriptions and reminds users whose subscription
// ends soon.
type Expirer struct {
	Store          UserStore
	Notifier       notify.Sender
	Guard          reminder.Guard
	Logger         *zap.Logger
	ReminderWindow time.Duration
	NotifyExpired  bool
	Concurrency    int
	Now            func() time.Time
}

// Sweep runs the expire pass and then the remind pass. Each user is handled
// on its own; a failing user is logged and the rest proceed.
func (e *Expirer) Sweep(ctx context.Context) ExpiryReport {
	now := time.Now()
	if e.Now != nil {
		now = e.Now()
	}

	var report ExpiryReport
	var expired, reminded, skipped, failed atomic.Int64

	users, err := e.Store.ListExpiredUsers(ctx, now)
	if err != nil {
		e.Logger.Error("failed to list expired users", zap.Error(err))
	}
	forEach(users, e.Concurrency, func(u postgres.UserRecord) {
		ok, err := e.expire(ctx, u, now)
		switch {
		case err != nil:
			failed.Add(1)
		case ok:
			expired.Add(1)
		}
	})

	users, err = e.Store.ListUsersEndingSoon(ctx, now, e.ReminderWindow)
	if err != nil {
		e.Logger.Error("failed to list users ending soon", zap.Error(err))
	}
	forEach(users, e.Concurrency, func(u postgres.UserRecord) {
		ok, err := e.remind(ctx, u, now)
		switch {
		case err != nil:
			failed.Add(1)
		case ok:
			reminded.Add(1)
		default:
			skipped.Add(1)
		}
	})

	report.Expired = int(expired.Load())
	report.Reminded = int(reminded.Load())
	report.Skipped = int(skipped.Load())
	report.Failed = int(failed.Load())

	e.Logger.Info("expiry sweep finished",
		zap.Int("expired", report.Expired),
		zap.Int("reminded", report.Reminded),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report
}

func (e *Expirer) expire(ctx context.Context, u postgres.UserRecord, now time.Time) (bool, error) {
	log := e.Logger.With(zap.Uint("user_id", u.ID))

	changed, err := e.Store.ExpireUser(ctx, u.ID, now)
	if err != nil {
		log.Error("failed to expire subscription", zap.Error(err))
		return false, err
	}
	if !changed {
		return false, nil
	}
	log.Info("subscription expired")

	if e.NotifyExpired {
		if _, err := e.Notifier.Send(ctx, notify.Message{
			To:       u.Email,
			Template: notify.TemplateSubscriptionExpired,
		}); err != nil {
			log.Warn("failed to send expiry notice", zap.Error(err))
		}
	}
	return true, nil
}

func (e *Expirer) remind(ctx context.Context, u postgres.UserRecord, now time.Time) (bool, error) {
	log := e.Logger.With(zap.Uint("user_id", u.ID))

	allow, err := e.Guard.Allow(ctx, &u, now)
	if err != nil {
		// guard errors fall back to sending
		log.Warn("reminder guard failed", zap.Error(err))
		allow = true
	}
	if !allow {
		return false, nil
	}

	days := subscription.DaysRemaining(*u.ExpirationDate, now)
	if _, err := e.Notifier.Send(ctx, notify.Message{
		To:       u.Email,
		Template: notify.TemplateSubscriptionReminder,
		Data: map[string]string{
			"message": subscription.ReminderText(days),
			"days":    strconv.Itoa(days),
		},
	}); err != nil {
		log.Warn("failed to send reminder", zap.Error(err))
		return false, err
	}

	if err := e.Store.MarkReminded(ctx, u.ID, now); err != nil {
		log.Warn("failed to record reminder", zap.Error(err))
	}
	log.Info("sent subscription reminder", zap.Int("days_remaining", days))
	return true, nil
}
