package distlock

import (
	"context"
	"sync"
)

var localHeld sync.Map

// LocalLock is a process-wide lock used when neither Redis nor Postgres is
// configured.
type LocalLock struct {
	key  string
	held bool
}

// NewLocalLock creates a lock keyed within this process.
func NewLocalLock(key string) *LocalLock {
	return &LocalLock{key: key}
}

// Acquire takes the key if no other LocalLock holds it.
func (l *LocalLock) Acquire(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, loaded := localHeld.LoadOrStore(l.key, struct{}{})
	l.held = !loaded
	return l.held, nil
}

// Release frees the key.
func (l *LocalLock) Release(ctx context.Context) error {
	if !l.held {
		return ErrNotHeld
	}
	localHeld.Delete(l.key)
	l.held = false
	return nil
}
