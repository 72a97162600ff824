// Package undo reverses the recorded operations of an import job.
package undo

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/wealthdesk/internal/config"
)

const leaseKeyPrefix = "undo:job:"

const leaseReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const leaseRefreshScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`

// Locker marks a live undo worker in redis. The database claim is the
// single-flight guarantee; the lease only tells the recovery sweep
// whether a running undo still has a worker behind it. A nil Locker
// disables the lease without disabling undo.
type Locker struct {
	client  *redis.Client
	release *redis.Script
	refresh *redis.Script
}

func NewLocker(cfg config.Config) *Locker {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
	return &Locker{
		client:  client,
		release: redis.NewScript(leaseReleaseScript),
		refresh: redis.NewScript(leaseRefreshScript),
	}
}

func leaseKey(jobID snowflake.ID) string {
	return leaseKeyPrefix + jobID.String()
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", true, nil
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *Locker) Refresh(ctx context.Context, key, token string, ttl time.Duration) error {
	if l == nil || l.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.refresh.Run(ctx, l.client, []string{key}, token, ttl.Milliseconds()).Err()
}

func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.release.Run(ctx, l.client, []string{key}, token).Err()
}

// Held reports whether any worker currently holds the key.
func (l *Locker) Held(ctx context.Context, key string) (bool, error) {
	if l == nil || l.client == nil {
		return false, nil
	}
	n, err := l.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
