package relayer

import (
	"context"
	"strings"
	"sync"
)

// OwnerQueue runs at most one swap per owner at a time. It narrows the nonce
// and allowance races between attempts of the same owner inside this process;
// it cannot help against other relayers.
type OwnerQueue struct {
	mu    sync.Mutex
	slots map[string]*ownerSlot
}

type ownerSlot struct {
	sem  chan struct{}
	refs int
}

// NewOwnerQueue creates an empty queue
func NewOwnerQueue() *OwnerQueue {
	return &OwnerQueue{slots: make(map[string]*ownerSlot)}
}

// Do waits for owner's turn and runs fn. Waiting stops when ctx is done.
func (q *OwnerQueue) Do(ctx context.Context, owner string, fn func(context.Context) error) error {
	key := strings.ToLower(owner)
	slot := q.acquire(key)
	defer q.release(key, slot)

	select {
	case slot.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-slot.sem }()

	return fn(ctx)
}

// Len returns the number of owners with a running or waiting call
func (q *OwnerQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.slots)
}

func (q *OwnerQueue) acquire(key string) *ownerSlot {
	q.mu.Lock()
	defer q.mu.Unlock()
	slot, ok := q.slots[key]
	if !ok {
		slot = &ownerSlot{sem: make(chan struct{}, 1)}
		q.slots[key] = slot
	}
	slot.refs++
	return slot
}

func (q *OwnerQueue) release(key string, slot *ownerSlot) {
	q.mu.Lock()
	defer q.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(q.slots, key)
	}
}
