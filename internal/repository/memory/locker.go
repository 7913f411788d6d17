package memory

import (
	"context"
	"sync"

	memoirRepo "memoir/internal/domain/repositories/memoir"
)

// Locker is a keyed mutex scoped to the current process.
type Locker struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

// NewLocker creates an in-process locker
func NewLocker() *Locker {
	return &Locker{held: make(map[string]chan struct{})}
}

var _ memoirRepo.Locker = (*Locker)(nil)

func (l *Locker) TryLock(_ context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}
	done := make(chan struct{})
	l.held[key] = done
	return l.releaser(key, done), true, nil
}

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	for {
		l.mu.Lock()
		current, busy := l.held[key]
		if !busy {
			done := make(chan struct{})
			l.held[key] = done
			l.mu.Unlock()
			return l.releaser(key, done), nil
		}
		l.mu.Unlock()

		select {
		case <-current:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (l *Locker) releaser(key string, done chan struct{}) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			if l.held[key] == done {
				delete(l.held, key)
			}
			l.mu.Unlock()
			close(done)
		})
	}
}
