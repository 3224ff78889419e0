package postgres

import (
	"context"
	"fmt"
	"time"
)

func (p *PostgresClient) CreateUser(ctx context.Context, user *UserRecord) error {
	if user.Role == "" {
		user.Role = RoleUser
	}
	if err := p.DB.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user %s: %w", user.Email, err)
	}
	return nil
}

func (p *PostgresClient) GetUser(ctx context.Context, id uint) (*UserRecord, error) {
	var user UserRecord
	if err := p.DB.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// ListExpiredUsers returns active users whose expiration date is before now.
func (p *PostgresClient) ListExpiredUsers(ctx context.Context, now time.Time) ([]UserRecord, error) {
	var users []UserRecord
	err := p.DB.WithContext(ctx).
		Where("subscription_active = ? AND expiration_date < ?", true, now.UTC()).
		Order("id").
		Find(&users).Error
	return users, err
}

// ExpireUser deactivates the subscription and clears the current plan.
// The update is conditional on the subscription still being expired, so a
// concurrent extension is not undone. It reports whether a row changed.
func (p *PostgresClient) ExpireUser(ctx context.Context, id uint, now time.Time) (bool, error) {
	tx := p.DB.WithContext(ctx).
		Model(&UserRecord{}).
		Where("id = ? AND subscription_active = ? AND expiration_date < ?", id, true, now.UTC()).
		Updates(map[string]any{
			"subscription_active": false,
			"plan_id":             nil,
			"cadence":             "",
		})
	if tx.Error != nil {
		return false, fmt.Errorf("expire user %d: %w", id, tx.Error)
	}
	return tx.RowsAffected > 0, nil
}

// ListUsersEndingSoon returns active users expiring within [now, now+window].
func (p *PostgresClient) ListUsersEndingSoon(ctx context.Context, now time.Time, window time.Duration) ([]UserRecord, error) {
	now = now.UTC()
	var users []UserRecord
	err := p.DB.WithContext(ctx).
		Where("subscription_active = ? AND expiration_date >= ? AND expiration_date <= ?", true, now, now.Add(window)).
		Order("id").
		Find(&users).Error
	return users, err
}

func (p *PostgresClient) MarkReminded(ctx context.Context, id uint, at time.Time) error {
	return p.DB.WithContext(ctx).
		Model(&UserRecord{}).
		Where("id = ?", id).
		Update("last_reminder_at", at.UTC()).Error
}
