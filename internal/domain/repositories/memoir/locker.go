package memoir

import "context"

// Locker provides named mutual exclusion that holds across processes sharing
// the same backing store.
type Locker interface {
	// TryLock acquires key without waiting. ok is false when another holder has it.
	TryLock(ctx context.Context, key string) (release func(), ok bool, err error)

	// Lock waits until key is acquired or ctx is done.
	Lock(ctx context.Context, key string) (release func(), err error)
}
