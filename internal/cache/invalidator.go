package cache

import (
	"context"
	"log"
	"sync"
	"time"
)

// Refresher is a cache that can be invalidated and re-fetched.
// Satisfied by *List[T].
type Refresher interface {
	Invalidate()
	Refresh(ctx context.Context) error
}

// refresher adapts a List to Refresher.
type refresher[T any] struct{ l *List[T] }

func (r refresher[T]) Invalidate() { r.l.Invalidate() }

func (r refresher[T]) Refresh(ctx context.Context) error {
	_, err := r.l.Refresh(ctx)
	return err
}

// AsRefresher exposes a List to an Invalidator.
func AsRefresher[T any](l *List[T]) Refresher {
	return refresher[T]{l: l}
}

// Invalidator maps push event types to the caches they make stale. Event
// payloads are ignored; every event causes a full re-fetch.
type Invalidator struct {
	timeout time.Duration

	mu       sync.RWMutex
	bindings map[string][]Refresher
	all      []Refresher
}

// NewInvalidator creates an Invalidator whose re-fetches are bounded by
// timeout (zero means unbounded).
func NewInvalidator(timeout time.Duration) *Invalidator {
	return &Invalidator{timeout: timeout, bindings: make(map[string][]Refresher)}
}

// Bind registers r for every listed event type.
func (inv *Invalidator) Bind(r Refresher, events ...string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.all = append(inv.all, r)
	for _, e := range events {
		inv.bindings[e] = append(inv.bindings[e], r)
	}
}

// Handle invalidates and re-fetches the caches bound to event. It returns
// the number of caches refreshed successfully.
func (inv *Invalidator) Handle(ctx context.Context, event string) int {
	inv.mu.RLock()
	targets := inv.bindings[event]
	inv.mu.RUnlock()

	ok := 0
	for _, r := range targets {
		r.Invalidate()

		rctx, cancel := ctx, context.CancelFunc(func() {})
		if inv.timeout > 0 {
			rctx, cancel = context.WithTimeout(ctx, inv.timeout)
		}
		err := r.Refresh(rctx)
		cancel()
		if err != nil {
			// Stays invalidated; the next Get retries.
			log.Printf("ERROR: refresh after %s: %v", event, err)
			continue
		}
		ok++
	}
	return ok
}

// InvalidateAll marks every bound cache stale without re-fetching. Used
// after a reconnect, when events may have been missed.
func (inv *Invalidator) InvalidateAll() {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	for _, r := range inv.all {
		r.Invalidate()
	}
}
