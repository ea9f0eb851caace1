package lock

import (
	"context"
	"testing"
	"time"

	"cluster-intelligence-be/internal/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker_ExclusiveUntilRelease(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()
	key := UserKey(uuid.New())

	lease, err := l.Acquire(ctx, key, time.Minute, 0)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, key, time.Minute, 30*time.Millisecond)
	assert.ErrorIs(t, err, apperror.ErrLocked)

	require.NoError(t, lease.Release(ctx))
	again, err := l.Acquire(ctx, key, time.Minute, 0)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestLocalLocker_ExpiredLeaseCanBeTaken(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()
	key := UserKey(uuid.New())

	stale, err := l.Acquire(ctx, key, 20*time.Millisecond, 0)
	require.NoError(t, err)

	fresh, err := l.Acquire(ctx, key, time.Minute, time.Second)
	require.NoError(t, err)

	// releasing the stale lease must not drop the new holder
	require.NoError(t, stale.Release(ctx))
	_, err = l.Acquire(ctx, key, time.Minute, 0)
	assert.ErrorIs(t, err, apperror.ErrLocked)
	require.NoError(t, fresh.Release(ctx))
}

func TestLocalLocker_WaitsForRelease(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()
	key := UserKey(uuid.New())

	lease, err := l.Acquire(ctx, key, time.Minute, 0)
	require.NoError(t, err)
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = lease.Release(ctx)
	}()

	next, err := l.Acquire(ctx, key, time.Minute, 2*time.Second)
	require.NoError(t, err)
	require.NoError(t, next.Release(ctx))
}

func TestLocalLocker_StaleReleaseRacingReacquire(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()
	key := UserKey(uuid.New())

	stale, err := l.Acquire(ctx, key, 20*time.Millisecond, 0)
	require.NoError(t, err)

	acquired := make(chan error, 1)
	l.releaseChecked = func() {
		// The stale lease expires and another caller tries to take the key
		// while the release is in progress.
		time.Sleep(30 * time.Millisecond)
		go func() {
			_, err := l.Acquire(ctx, key, time.Minute, time.Second)
			acquired <- err
		}()
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, stale.Release(ctx))
	l.releaseChecked = nil

	select {
	case err := <-acquired:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("re-acquire never completed")
	}
	_, err = l.Acquire(ctx, key, time.Minute, 0)
	assert.ErrorIs(t, err, apperror.ErrLocked)
}
