// Package lock serializes topology mutations per user. The Redis locker works
// across instances; the in-process locker backs single-node deployments and
// tests.
package lock

import (
	"context"
	"fmt"
	"time"

	"cluster-intelligence-be/internal/pkg/apperror"

	"github.com/google/uuid"
)

const keyPrefix = "cluster-intel:lock:"

// Locker acquires an exclusive, expiring lease on a key. Acquire waits up to
// wait for a held lease and then fails with apperror.ErrLocked.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl, wait time.Duration) (Lease, error)
}

type Lease interface {
	Release(ctx context.Context) error
}

// UserKey is the lock key for topology mutations of one user.
func UserKey(userID uuid.UUID) string {
	return keyPrefix + "user:" + userID.String()
}

type tryFunc func(ctx context.Context) (bool, error)

// poll retries try until it succeeds, wait runs out or ctx ends.
func poll(ctx context.Context, key string, wait time.Duration, try tryFunc) error {
	deadline := time.Now().Add(wait)
	backoff := 10 * time.Millisecond
	for {
		ok, err := try(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().Add(backoff).After(deadline) {
			return fmt.Errorf("lock %s: %w", key, apperror.ErrLocked)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 200*time.Millisecond {
			backoff *= 2
		}
	}
}
