package melsec

import "context"

// mutex behaves similar to the sync.Mutex, with the following differences:
//  1. the mutex needs to be initialized by sending a struct{} into it
//  2. a lock attempt can be canceled by the given context
//
// The TCP connection pool (pool.go) uses one of these per target slot so a
// blocked lock acquisition can still respect a caller's timeout instead of
// stalling the whole pool.
type mutex chan struct{}

func newMutex() mutex {
	m := make(mutex, 1)
	m <- struct{}{}
	return m
}

func (mu mutex) lock(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-mu:
		return nil
	}
}

func (mu mutex) unlock() {
	mu <- struct{}{}
}
