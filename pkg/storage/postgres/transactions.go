package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ActivateFunc applies a confirmed payment to its owner's subscription.
type ActivateFunc func(user *UserRecord, tx *TransactionRecord) error

// CreateTransaction stores a new pending payment.
func (p *PostgresClient) CreateTransaction(ctx context.Context, record *TransactionRecord) error {
	record.Status = StatusPending

	var count int64
	if err := p.DB.WithContext(ctx).Model(&TransactionRecord{}).Where("hash = ?", record.Hash).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateHash
	}

	if err := p.DB.WithContext(ctx).Create(record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateHash
		}
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (p *PostgresClient) ListTransactions(ctx context.Context, limit int) ([]TransactionRecord, error) {
	var txs []TransactionRecord
	q := p.DB.WithContext(ctx).Order("purchase_date DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&txs).Error; err != nil {
		return nil, err
	}
	return txs, nil
}

func (p *PostgresClient) GetTransaction(ctx context.Context, id uint) (*TransactionRecord, error) {
	var tx TransactionRecord
	if err := p.DB.WithContext(ctx).First(&tx, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &tx, nil
}

// ListPendingTransactions returns pending payments purchased within [since, until].
func (p *PostgresClient) ListPendingTransactions(ctx context.Context, since, until time.Time) ([]TransactionRecord, error) {
	var txs []TransactionRecord
	err := p.DB.WithContext(ctx).
		Where("status = ? AND purchase_date >= ? AND purchase_date <= ?", StatusPending, since.UTC(), until.UTC()).
		Order("purchase_date, id").
		Find(&txs).Error
	return txs, err
}

// AbandonTransactions moves pending payments purchased before cutoff to the
// abandoned state and returns how many were moved.
func (p *PostgresClient) AbandonTransactions(ctx context.Context, cutoff time.Time) (int64, error) {
	tx := p.DB.WithContext(ctx).
		Model(&TransactionRecord{}).
		Where("status = ? AND purchase_date < ?", StatusPending, cutoff.UTC()).
		Update("status", StatusAbandoned)
	return tx.RowsAffected, tx.Error
}

// ConfirmTransaction marks a pending payment verified and applies it to the
// owner's subscription inside one database transaction. The updated user is
// returned. ErrNotPending means another sweep already handled it.
func (p *PostgresClient) ConfirmTransaction(ctx context.Context, id uint, now time.Time, activate ActivateFunc) (*UserRecord, error) {
	now = now.UTC()
	var user *UserRecord

	err := p.DB.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		res := db.Model(&TransactionRecord{}).
			Where("id = ? AND status = ?", id, StatusPending).
			Updates(map[string]any{"status": StatusVerified, "verified_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotPending
		}

		var err error
		user, err = applyActivation(db, id, now, activate)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("confirm transaction %d: %w", id, err)
	}
	return user, nil
}

// ListUnactivatedTransactions returns verified payments that never reached
// their owner's subscription.
func (p *PostgresClient) ListUnactivatedTransactions(ctx context.Context) ([]TransactionRecord, error) {
	var txs []TransactionRecord
	err := p.DB.WithContext(ctx).
		Where("status = ? AND activated_at IS NULL", StatusVerified).
		Order("purchase_date, id").
		Find(&txs).Error
	return txs, err
}

// ActivateTransaction applies an already verified payment that has not been
// activated yet.
func (p *PostgresClient) ActivateTransaction(ctx context.Context, id uint, now time.Time, activate ActivateFunc) (*UserRecord, error) {
	now = now.UTC()
	var user *UserRecord

	err := p.DB.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		var count int64
		if err := db.Model(&TransactionRecord{}).
			Where("id = ? AND status = ? AND activated_at IS NULL", id, StatusVerified).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}

		var err error
		user, err = applyActivation(db, id, now, activate)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("activate transaction %d: %w", id, err)
	}
	return user, nil
}

func applyActivation(db *gorm.DB, id uint, now time.Time, activate ActivateFunc) (*UserRecord, error) {
	var tx TransactionRecord
	if err := db.First(&tx, id).Error; err != nil {
		return nil, notFound(err)
	}

	// row lock so concurrent renewals of one user stack instead of overwriting
	var user UserRecord
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, tx.UserID).Error; err != nil {
		return nil, fmt.Errorf("owner %d: %w", tx.UserID, notFound(err))
	}

	if err := activate(&user, &tx); err != nil {
		return nil, err
	}

	if err := db.Model(&UserRecord{}).Where("id = ?", user.ID).Updates(map[string]any{
		"subscription_active": user.SubscriptionActive,
		"plan_id":             user.PlanID,
		"cadence":             user.Cadence,
		"purchase_date":       user.PurchaseDate,
		"expiration_date":     user.ExpirationDate,
	}).Error; err != nil {
		return nil, err
	}

	if err := db.Model(&TransactionRecord{}).Where("id = ?", id).Update("activated_at", now).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
