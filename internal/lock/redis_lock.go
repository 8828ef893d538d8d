// Package lock serialises plan transitions per trainer across every
// instance of the service.  It is a coarse guard against two transitions
// archiving the same students twice.  Capacity itself is protected in
// MySQL: every activation transaction starts by locking the trainer row
// and standalone tokens are claimed with conditional writes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned when another holder owns the trainer's lock.
var ErrLocked = errors.New("trainer lock held by another request")

// releaseScript deletes the key only if it still holds our token, so a
// lock that expired and was re-acquired elsewhere is left alone.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// TrainerLocker hands out short-lived Redis locks keyed by trainer id.
type TrainerLocker struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewTrainerLocker returns a locker.  A nil client yields nil so callers
// can treat "no Redis" as "no locking".
func NewTrainerLocker(rdb *redis.Client, prefix string, ttl time.Duration) *TrainerLocker {
	if rdb == nil {
		return nil
	}
	if prefix == "" {
		prefix = "alloc:lock"
	}
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &TrainerLocker{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (l *TrainerLocker) key(trainerID uint64) string {
	return fmt.Sprintf("%s:trainer:%d", l.prefix, trainerID)
}

// Lock acquires the trainer's lock or returns ErrLocked.  The returned
// function releases it; it is safe to call once the lock has expired.
func (l *TrainerLocker) Lock(ctx context.Context, trainerID uint64) (func(), error) {
	if l == nil {
		return func() {}, nil
	}
	token := uuid.NewString()
	key := l.key(trainerID)
	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.rdb, []string{key}, token).Err()
	}, nil
}
