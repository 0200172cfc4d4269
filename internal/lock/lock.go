package redlock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Locker is a Redis-backed mutual-exclusion primitive. The value identifies
// the holder so only the holder can unlock or renew.
type Locker struct {
	client redis.UniversalClient
	key    string
	value  string
}

func NewLocker(client redis.UniversalClient, key, value string) *Locker {
	return &Locker{
		client: client,
		key:    key,
		value:  value,
	}
}

// Lock attempts a non-blocking acquire. It fails immediately when another
// holder owns the key, which is exactly what a standby projector wants at
// startup.
func (l *Locker) Lock(ctx context.Context, ttl time.Duration) error {
	success, err := l.client.SetNX(ctx, l.key, l.value, ttl).Result()
	if err != nil {
		return err
	}
	if !success {
		return fmt.Errorf("lock for key %s is already held", l.key)
	}
	return nil
}

func (l *Locker) Unlock(ctx context.Context) error {
	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	result, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("unlock failed, either lock expired or you're not the lock holder for key %s", l.key)
	}
	return nil
}

func (l *Locker) ExtendLock(ctx context.Context, extension time.Duration) error {
	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('pexpire', KEYS[1], ARGV[2]) else return 0 end"
	result, err := l.client.Eval(ctx, script, []string{l.key}, l.value, fmt.Sprintf("%d", extension.Milliseconds())).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("lock extension failed for key %s, either lock expired or you're not the holder", l.key)
	}
	return nil
}

// KeepAlive renews the lock every ttl/3 until ctx is cancelled, making the
// lock session-scoped: a crashed holder stops renewing and the TTL releases
// the lock for a standby without any lock-management service. The returned
// channel closes if renewal fails, signalling that exclusivity is lost.
func (l *Locker) KeepAlive(ctx context.Context, ttl time.Duration) <-chan struct{} {
	lost := make(chan struct{})
	interval := ttl / 3
	if interval <= 0 {
		interval = time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := l.ExtendLock(ctx, ttl); err != nil {
					if ctx.Err() != nil {
						return
					}
					logrus.Errorf("lock keepalive failed for key %s: %v", l.key, err)
					close(lost)
					return
				}
			}
		}
	}()

	return lost
}
