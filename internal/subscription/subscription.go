// Package subscription holds the billing rules applied to payments and users.
package subscription

import (
	"errors"
	"fmt"
	"math"
	"time"

	"chartgate/pkg/storage/postgres"
)

var (
	ErrUnknownCadence = errors.New("unknown purchase cadence")
	ErrPlanNotFound   = errors.New("plan not found")
)

const day = 24 * time.Hour

// ExpirationFor adds one calendar month or year to the purchase date.
func ExpirationFor(purchase time.Time, cadence postgres.Cadence) (time.Time, error) {
	switch cadence {
	case postgres.CadenceMonthly:
		return purchase.AddDate(0, 1, 0), nil
	case postgres.CadenceYearly:
		return purchase.AddDate(1, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownCadence, cadence)
	}
}

// Activate applies a confirmed payment to its owner.
//
// A user holding an active, unexpired subscription gets the span the payment
// bought stacked onto the current expiration date; the plan stays as it is.
// Anyone else starts the purchased plan with the expiration computed when the
// payment was submitted. The purchase date always follows the latest payment.
func Activate(user *postgres.UserRecord, tx *postgres.TransactionRecord, now time.Time) error {
	if IsActive(user, now) {
		span, err := PurchasedSpan(tx)
		if err != nil {
			return err
		}
		exp := user.ExpirationDate.Add(span)
		user.ExpirationDate = &exp
	} else {
		exp := tx.ExpirationDate
		planID := tx.PlanID
		user.ExpirationDate = &exp
		user.PlanID = &planID
		user.Cadence = tx.Cadence
		user.SubscriptionActive = true
	}

	purchase := tx.PurchaseDate
	user.PurchaseDate = &purchase
	return nil
}

// PurchasedSpan is the length of time a payment buys, measured from its own
// purchase date so a month is the month that was paid for.
func PurchasedSpan(tx *postgres.TransactionRecord) (time.Duration, error) {
	if tx.ExpirationDate.After(tx.PurchaseDate) {
		return tx.ExpirationDate.Sub(tx.PurchaseDate), nil
	}
	exp, err := ExpirationFor(tx.PurchaseDate, tx.Cadence)
	if err != nil {
		return 0, err
	}
	return exp.Sub(tx.PurchaseDate), nil
}

// Activator binds Activate to a clock for the storage layer.
func Activator(now time.Time) postgres.ActivateFunc {
	return func(user *postgres.UserRecord, tx *postgres.TransactionRecord) error {
		return Activate(user, tx, now)
	}
}

// IsActive reports whether the user holds a subscription that has not expired.
func IsActive(user *postgres.UserRecord, now time.Time) bool {
	return user.SubscriptionActive && user.ExpirationDate != nil && user.ExpirationDate.After(now)
}

// HasAccess gates subscriber-only resources.
func HasAccess(user *postgres.UserRecord, now time.Time) bool {
	return user.Role == postgres.RoleAdmin || IsActive(user, now)
}

// DaysRemaining rounds the time left up to whole days. Past dates give 0.
func DaysRemaining(exp, now time.Time) int {
	left := exp.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(float64(left) / float64(day)))
}

// ReminderText is the body line of an expiry reminder.
func ReminderText(days int) string {
	if days == 0 {
		return "Your subscription plan will expire today."
	}
	return fmt.Sprintf("%d day(s) left for your current subscription.", days)
}

// Classify decides the state a pending payment should be in at now: it stays
// pending while its purchase date is inside the verification window and is
// abandoned afterwards. Settled payments keep their status.
func Classify(tx *postgres.TransactionRecord, now time.Time, window time.Duration) postgres.TransactionStatus {
	if tx.Status != postgres.StatusPending {
		return tx.Status
	}
	if tx.PurchaseDate.Before(now.Add(-window)) {
		return postgres.StatusAbandoned
	}
	return postgres.StatusPending
}
