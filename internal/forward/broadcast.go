package forward

import (
	"context"
	"errors"
	"sync"
)

// ErrBroadcastClosed is returned by Receiver.Recv once the broadcast has
// been closed and every buffered item has been drained.
var ErrBroadcastClosed = errors.New("forward: broadcast closed")

// Broadcast is a bounded, lagging-tolerant fan-out: one writer, many
// readers, each with its own position in a ring buffer of depth N. A
// reader that falls more than N items behind the writer observes a lag
// count and resynchronizes at the oldest item still buffered — it never
// blocks the writer and never crashes.
type Broadcast[T any] struct {
	mu     sync.Mutex
	buf    []T
	depth  uint64
	head   uint64
	closed bool
	notify chan struct{}
}

// NewBroadcast builds a broadcast with the given ring depth (reference
// value for RTP fan-out: 1024).
func NewBroadcast[T any](depth int) *Broadcast[T] {
	if depth <= 0 {
		depth = 1
	}
	return &Broadcast[T]{
		buf:    make([]T, depth),
		depth:  uint64(depth),
		notify: make(chan struct{}),
	}
}

// Send publishes one item. Never blocks.
func (b *Broadcast[T]) Send(item T) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.buf[b.head%b.depth] = item
	b.head++
	ch := b.notify
	b.notify = make(chan struct{})
	b.mu.Unlock()
	close(ch)
}

// Close marks the broadcast closed; subsequent Recv calls drain any
// remaining buffered items then return ErrBroadcastClosed.
func (b *Broadcast[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	ch := b.notify
	b.notify = make(chan struct{})
	b.mu.Unlock()
	close(ch)
}

// Subscribe returns an independent receiver positioned at the current head
// (it only observes items sent after this call).
func (b *Broadcast[T]) Subscribe() *Receiver[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &Receiver[T]{b: b, pos: b.head}
}

// Receiver is one subscriber's cursor into a Broadcast.
type Receiver[T any] struct {
	b   *Broadcast[T]
	pos uint64
}

// Recv blocks until the next item is available, the broadcast closes, or
// ctx is done. lag is non-zero when this receiver fell behind the ring
// depth and had to skip forward — packets are dropped, never reordered.
func (r *Receiver[T]) Recv(ctx context.Context) (item T, lag int, err error) {
	for {
		r.b.mu.Lock()
		if r.pos < r.b.head {
			if r.b.head-r.pos > r.b.depth {
				lag = int(r.b.head - r.pos - r.b.depth)
				r.pos = r.b.head - r.b.depth
			}
			item = r.b.buf[r.pos%r.b.depth]
			r.pos++
			r.b.mu.Unlock()
			return item, lag, nil
		}
		if r.b.closed {
			r.b.mu.Unlock()
			var zero T
			return zero, 0, ErrBroadcastClosed
		}
		ch := r.b.notify
		r.b.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			var zero T
			return zero, 0, ctx.Err()
		}
	}
}
