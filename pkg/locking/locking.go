// Package locking serializes correlation mutation. Batch processing, duplicate
// detection and merging all funnel through one advisory lock so concurrent
// workers cannot violate the one-correlation-per-tag invariant or merge ids a
// running scan still references.
package locking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/assetlink-io/assetlink-engine/pkg/apperrors"
)

// CorrelationLockKey is the single advisory lock guarding all correlation
// mutation. Finer-grained keys were considered and rejected: the merger and
// duplicate detector need to exclude each other across the whole set anyway.
const CorrelationLockKey = "assetlink:correlation-mutation"

// DefaultTTL bounds how long a crashed holder can pin the distributed lock.
const DefaultTTL = 2 * time.Minute

// Locker grants exclusive access to the correlation set for one unit of work.
type Locker interface {
	// Acquire obtains the lock or returns apperrors.ErrLockHeld when another
	// holder has it. The release function must be called exactly once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// NewLocker returns a Redis-backed locker when a client is available, and an
// in-process locker otherwise (sufficient for a single engine instance).
func NewLocker(client *redis.Client) Locker {
	if client == nil {
		return &localLocker{keys: make(map[string]*sync.Mutex)}
	}
	return &redisLocker{client: redislock.New(client)}
}

type redisLocker struct {
	client *redislock.Client
}

func (l *redisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lock, err := l.client.Obtain(ctx, key, DefaultTTL, nil)
	if err == redislock.ErrNotObtained {
		return nil, apperrors.ErrLockHeld
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain lock %q: %w", key, err)
	}

	release := func() {
		// Best effort; the TTL reclaims the lock if the release is lost.
		_ = lock.Release(context.Background())
	}
	return release, nil
}

// localLocker serializes within a single process using per-key mutexes.
type localLocker struct {
	mu   sync.Mutex
	keys map[string]*sync.Mutex
}

func (l *localLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	m, ok := l.keys[key]
	if !ok {
		m = &sync.Mutex{}
		l.keys[key] = m
	}
	l.mu.Unlock()

	if !m.TryLock() {
		return nil, apperrors.ErrLockHeld
	}
	return m.Unlock, nil
}
