package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// LocalLocker keeps leases in a go-cache so abandoned ones expire on their TTL.
// mu makes the release check-and-delete atomic with respect to Acquire.
type LocalLocker struct {
	mu     sync.Mutex
	leases *cache.Cache

	// releaseChecked runs in Release between the ownership check and the
	// delete. Tests only.
	releaseChecked func()
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{leases: cache.New(time.Minute, time.Minute)}
}

type localLease struct {
	locker *LocalLocker
	key    string
	token  string
}

func (l *LocalLocker) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (Lease, error) {
	token := uuid.NewString()
	err := poll(ctx, key, wait, func(context.Context) (bool, error) {
		return l.tryAdd(key, token, ttl), nil
	})
	if err != nil {
		return nil, err
	}
	return &localLease{locker: l, key: key, token: token}, nil
}

// tryAdd fails while an unexpired lease exists.
func (l *LocalLocker) tryAdd(key, token string, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.leases.Add(key, token, ttl) == nil
}

func (r *localLease) Release(ctx context.Context) error {
	l := r.locker
	l.mu.Lock()
	defer l.mu.Unlock()
	if held, ok := l.leases.Get(r.key); ok && held == r.token {
		if l.releaseChecked != nil {
			l.releaseChecked()
		}
		l.leases.Delete(r.key)
	}
	return nil
}
