package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-marketplace/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const keyPrefix = "ledger_lock:"

// ErrLockTimeout means the lock stayed held for the whole wait.
var ErrLockTimeout = errors.New("customer lock wait timed out")

// unlockScript deletes the key only while it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// CustomerLock serializes credit allocation per customer so concurrent
// payments queue instead of fighting over the same bookings.
type CustomerLock struct {
	Client *redis.Client
	Logger *logger.Logger
	TTL    time.Duration
	Wait   time.Duration
	Poll   time.Duration
}

func NewCustomerLock(client *redis.Client, log *logger.Logger, ttl, wait time.Duration) *CustomerLock {
	return &CustomerLock{
		Client: client,
		Logger: log,
		TTL:    ttl,
		Wait:   wait,
		Poll:   25 * time.Millisecond,
	}
}

func lockKey(agencyID, customerID string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, agencyID, customerID)
}

// TryLock takes the lock once without waiting.
func (l *CustomerLock) TryLock(ctx context.Context, agencyID, customerID, token string) (bool, error) {
	return l.Client.SetNX(ctx, lockKey(agencyID, customerID), token, l.TTL).Result()
}

// Unlock releases the lock if token still owns it. An expired or stolen
// lock is left alone.
func (l *CustomerLock) Unlock(ctx context.Context, agencyID, customerID, token string) error {
	err := unlockScript.Run(ctx, l.Client, []string{lockKey(agencyID, customerID)}, token).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// Acquire polls until the lock is taken, the wait runs out or ctx ends.
// The returned func releases the lock and is safe to call once.
func (l *CustomerLock) Acquire(ctx context.Context, agencyID, customerID string) (func(), error) {
	token := uuid.New().String()
	deadline := time.Now().Add(l.Wait)

	for {
		ok, err := l.TryLock(ctx, agencyID, customerID, token)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				// The caller's context may already be done.
				unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
				defer cancel()
				if err := l.Unlock(unlockCtx, agencyID, customerID, token); err != nil {
					l.Logger.Warn("REDIS", fmt.Sprintf("Failed to release lock for customer %s: %v", customerID, err))
				}
			}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.Poll):
		}
	}
}
