// Package notify provides a single-consumer, latest-wins event notifier used
// for user-facing cues (haptic pulses, auto-stop announcements, clip-ready
// signals). A slow consumer only ever misses intermediate values, never the
// most recent one.
package notify

import "sync"

// Notifier delivers published values to one consumer via a buffered channel
// of capacity one. Publishing over an undelivered value replaces it.
type Notifier[T any] struct {
	mu     sync.Mutex
	ch     chan T
	closed bool
}

// New creates a notifier.
func New[T any]() *Notifier[T] {
	return &Notifier[T]{ch: make(chan T, 1)}
}

// Publish makes v the pending value. It never blocks; an undelivered older
// value is dropped. Publishing after Close is a no-op.
func (n *Notifier[T]) Publish(v T) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	select {
	case n.ch <- v:
	default:
		// Drop the stale pending value, then park the new one. The drain can
		// race a concurrent receive, so the second send must also be guarded.
		select {
		case <-n.ch:
		default:
		}
		select {
		case n.ch <- v:
		default:
		}
	}
}

// C returns the consumer channel. It is closed by [Notifier.Close].
func (n *Notifier[T]) C() <-chan T {
	return n.ch
}

// Close closes the consumer channel. Close is idempotent.
func (n *Notifier[T]) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	close(n.ch)
}
