// Package cache keeps read-through snapshots of backend lists that are
// invalidated by push events and re-fetched in full.
package cache

import (
	"context"
	"log"
	"slices"
	"sync"
)

// FetchFunc loads a complete list from the backend.
type FetchFunc[T any] func(ctx context.Context) ([]T, error)

// List is a snapshot of one backend list.
//
// Every fetch is numbered when it is issued. A response is applied only if no
// fetch issued after it has already been applied, so a slow, older response
// can never overwrite a newer one regardless of arrival order.
type List[T any] struct {
	name  string
	fetch FetchFunc[T]

	mu          sync.Mutex
	items       []T
	issued      uint64
	applied     uint64
	invalidated uint64
	onUpdate    func([]T)
}

// NewList creates an empty list. name is used in log lines.
func NewList[T any](name string, fetch FetchFunc[T]) *List[T] {
	return &List[T]{name: name, fetch: fetch}
}

// OnUpdate registers a callback run after each applied refresh.
func (l *List[T]) OnUpdate(fn func([]T)) {
	l.mu.Lock()
	l.onUpdate = fn
	l.mu.Unlock()
}

// Get returns the current snapshot, fetching first if it is missing or was
// invalidated after the snapshot's fetch was issued.
func (l *List[T]) Get(ctx context.Context) ([]T, error) {
	l.mu.Lock()
	fresh := l.applied > 0 && l.applied > l.invalidated
	items := l.items
	l.mu.Unlock()

	if fresh {
		return items, nil
	}
	return l.Refresh(ctx)
}

// Snapshot returns the last applied list without fetching.
func (l *List[T]) Snapshot() ([]T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.items, l.applied > 0
}

// Invalidate marks the snapshot stale. Fetches already in flight may still
// land but do not make the list fresh again.
func (l *List[T]) Invalidate() {
	l.mu.Lock()
	l.invalidated = l.issued
	l.mu.Unlock()
}

// Refresh fetches the list and applies it unless a newer fetch already
// landed. It returns the newest applied snapshot.
func (l *List[T]) Refresh(ctx context.Context) ([]T, error) {
	l.mu.Lock()
	l.issued++
	seq := l.issued
	l.mu.Unlock()

	items, err := l.fetch(ctx)
	if err != nil {
		return nil, err
	}
	items = slices.Clip(items)

	l.mu.Lock()
	if seq <= l.applied {
		current := l.items
		l.mu.Unlock()
		log.Printf("WARN: cache %s: dropped response %d, %d already applied", l.name, seq, l.applied)
		return current, nil
	}
	l.applied = seq
	l.items = items
	fn := l.onUpdate
	l.mu.Unlock()

	if fn != nil {
		fn(items)
	}
	return items, nil
}
