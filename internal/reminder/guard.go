// Package reminder decides whether an expiry reminder may be sent again.
package reminder

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"chartgate/config"
	"chartgate/pkg/storage/postgres"

	"github.com/go-redis/redis/v8"
)

// Guard suppresses repeated reminders for the same expiration.
type Guard interface {
	Allow(ctx context.Context, user *postgres.UserRecord, now time.Time) (bool, error)
}

// Noop lets every reminder through, so a user in the window is reminded on
// every sweep.
type Noop struct{}

func (Noop) Allow(context.Context, *postgres.UserRecord, time.Time) (bool, error) {
	return true, nil
}

type setNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.BoolCmd
}

// RedisGuard allows one reminder per user and expiration date per cooldown.
// The user's last_reminder_at column is checked first so a flushed Redis
// does not cause a burst of repeats.
type RedisGuard struct {
	client   setNXer
	prefix   string
	cooldown time.Duration
}

func NewRedisGuard(client *redis.Client, prefix string, cooldown time.Duration) *RedisGuard {
	return &RedisGuard{client: client, prefix: prefix, cooldown: cooldown}
}

// NewRedisClient connects and pings, with the pool settings used elsewhere.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

func (g *RedisGuard) Allow(ctx context.Context, user *postgres.UserRecord, now time.Time) (bool, error) {
	if user.LastReminderAt != nil && now.Sub(*user.LastReminderAt) < g.cooldown {
		return false, nil
	}

	ok, err := g.client.SetNX(ctx, g.key(user), now.UTC().Format(time.RFC3339), g.cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("reminder guard %d: %w", user.ID, err)
	}
	return ok, nil
}

func (g *RedisGuard) key(user *postgres.UserRecord) string {
	parts := []string{g.prefix, "reminder", strconv.FormatUint(uint64(user.ID), 10)}
	if user.ExpirationDate != nil {
		parts = append(parts, strconv.FormatInt(user.ExpirationDate.Unix(), 10))
	}
	if g.prefix == "" {
		parts = parts[1:]
	}
	return strings.Join(parts, ":")
}
