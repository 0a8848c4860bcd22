package booking

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrLockNotAcquired = errors.New("doctor lock not acquired")

// Locker guards the critical check-and-claim section for one doctor's
// reservation set. Different doctors never contend on the same lock.
type Locker interface {
	WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error
}

// MutexLocker is the in-process Locker: one mutex per doctor. Used by tests
// and single-node deployments; multi-node deployments use the Redis locker.
type MutexLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewMutexLocker() *MutexLocker {
	return &MutexLocker{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *MutexLocker) WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doctorMu := l.lockFor(doctorID)
	doctorMu.Lock()
	defer doctorMu.Unlock()

	return fn(ctx)
}

func (l *MutexLocker) lockFor(doctorID uuid.UUID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.locks[doctorID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[doctorID] = m
	}
	return m
}
