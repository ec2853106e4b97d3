package relayer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

// SwapCache makes /swap idempotent. A key is bound to the fingerprint of the
// request that first used it: a retry with the same body replays the original
// result or joins the in-flight attempt, while reusing the key for a
// different swap is reported as a conflict instead of executing twice.
type SwapCache struct {
	mu      sync.Mutex
	entries map[string]*swapEntry
	ttl     time.Duration
	now     func() time.Time
}

type swapEntry struct {
	fingerprint string
	result      *SwapResult
	expires     time.Time
	// done is non-nil while the swap is running; it closes when it settles
	done chan struct{}
}

// NewSwapCache creates a swap cache that keeps confirmed results for ttl.
func NewSwapCache(ttl time.Duration) *SwapCache {
	return &SwapCache{
		entries: make(map[string]*swapEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// GenerateSwapKey scopes a client idempotency key to the owner.
func GenerateSwapKey(owner, idempotencyKey string) string {
	hash := sha256.Sum256([]byte(strings.ToLower(owner) + "|" + idempotencyKey))
	return hex.EncodeToString(hash[:])
}

// SwapFingerprint digests the fields that decide what a swap does. Two
// requests with the same fingerprint move the same funds along the same route.
func SwapFingerprint(req SwapRequest) string {
	h := sha256.New()
	owner := ""
	if req.Owner != nil {
		owner = req.Owner.Address()
	}
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s",
		strings.ToLower(owner), strings.ToLower(req.TokenIn), strings.ToLower(req.TokenOut),
		req.AmountIn, req.AmountOutMin, req.QuotingMethod)
	for _, hop := range req.Hops {
		fmt.Fprintf(h, "|%d:%s", hop.Fee, strings.ToLower(hop.Token))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CacheStatus represents the result of checking the cache.
type CacheStatus int

const (
	// StatusNotFound means the caller now owns the key and must settle it.
	StatusNotFound CacheStatus = iota
	// StatusCached means a confirmed result was found.
	StatusCached
	// StatusInFlight means another request is currently running this swap.
	StatusInFlight
	// StatusConflict means the key belongs to a different swap request.
	StatusConflict
)

// CheckAndMark atomically looks key up and claims it when it is free.
//   - StatusCached + result when a confirmed result exists
//   - StatusInFlight + wait channel when another request is running the same swap
//   - StatusConflict when the key was used with another fingerprint
//   - StatusNotFound + done channel when this request should run the swap
func (c *SwapCache) CheckAndMark(key, fingerprint string) (CacheStatus, *SwapResult, chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		if entry.done == nil && !c.now().Before(entry.expires) {
			delete(c.entries, key)
		} else {
			switch {
			case entry.fingerprint != fingerprint:
				return StatusConflict, nil, nil
			case entry.done != nil:
				return StatusInFlight, nil, entry.done
			default:
				return StatusCached, entry.result, nil
			}
		}
	}

	done := make(chan struct{})
	c.entries[key] = &swapEntry{fingerprint: fingerprint, done: done}
	return StatusNotFound, nil, done
}

// WaitForResult waits for an in-flight request to settle, respecting context cancellation.
// A nil result means the in-flight attempt failed and may be retried.
func (c *SwapCache) WaitForResult(ctx context.Context, key string, done chan struct{}) (*SwapResult, error) {
	select {
	case <-done:
		return c.Get(key), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns the confirmed result for key, if it has not expired.
func (c *SwapCache) Get(key string) *SwapResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || entry.done != nil {
		return nil
	}
	if !c.now().Before(entry.expires) {
		delete(c.entries, key)
		return nil
	}
	return entry.result
}

// Complete stores result under key and wakes the waiters.
func (c *SwapCache) Complete(key string, result *SwapResult, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok && entry.done == done {
		entry.result = result
		entry.expires = c.now().Add(c.ttl)
		entry.done = nil
	}
	close(done)
	c.sweepLocked()
}

// Fail releases key without a result so the same swap can be retried.
func (c *SwapCache) Fail(key string, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok && entry.done == done {
		delete(c.entries, key)
	}
	close(done)
	c.sweepLocked()
}

// Len reports how many keys are held, in flight or confirmed.
func (c *SwapCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// sweepLocked drops expired results. Must be called with lock held.
func (c *SwapCache) sweepLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if entry.done == nil && !now.Before(entry.expires) {
			delete(c.entries, key)
		}
	}
}
