package broker

import (
	"context"
	"errors"
	"sync"

	list "github.com/bahlo/generic-list-go"
)

// ErrQueueClosed is returned by Next once the queue has been closed.
var ErrQueueClosed = errors.New("queue closed")

// Queue is a FIFO mailbox of serialized payloads owned by one subscriber.
// Push never blocks. When a limit is set and the queue is full, the oldest
// payload is evicted to make room.
type Queue struct {
	mu     sync.Mutex
	items  *list.List[[]byte]
	limit  int
	closed bool

	// ready is buffered(1) so a push between a drain and a wait is never lost.
	ready chan struct{}
	done  chan struct{}
}

// NewQueue creates a queue holding at most limit payloads. A limit of zero
// or less means unbounded.
func NewQueue(limit int) *Queue {
	return &Queue{
		items: list.New[[]byte](),
		limit: limit,
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Push appends a payload and wakes the reader. It reports whether an older
// payload had to be dropped. Pushing to a closed queue is a no-op.
func (q *Queue) Push(payload []byte) (dropped bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if q.limit > 0 && q.items.Len() >= q.limit {
		q.items.Remove(q.items.Front())
		dropped = true
	}
	q.items.PushBack(payload)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return dropped
}

// PushFront queues payload ahead of everything already pending, for a
// snapshot that predates payloads pushed while it was being built. A full or
// closed queue drops it, since it would be the oldest entry.
func (q *Queue) PushFront(payload []byte) (queued bool) {
	q.mu.Lock()
	if q.closed || (q.limit > 0 && q.items.Len() >= q.limit) {
		q.mu.Unlock()
		return false
	}
	q.items.PushFront(payload)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// Pop removes and returns the oldest payload, if any.
func (q *Queue) Pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	front := q.items.Front()
	if front == nil {
		return nil, false
	}
	return q.items.Remove(front), true
}

// Ready returns a channel that receives a signal after each Push.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Done is closed when the queue is closed.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Len returns the number of pending payloads.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Next blocks until a payload is available, the queue is closed, or ctx is
// cancelled.
func (q *Queue) Next(ctx context.Context) ([]byte, error) {
	for {
		select {
		case <-q.done:
			return nil, ErrQueueClosed
		default:
		}
		if payload, ok := q.Pop(); ok {
			return payload, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.done:
			return nil, ErrQueueClosed
		case <-q.ready:
		}
	}
}

// Close releases pending payloads and wakes any waiting reader. It is safe to
// call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.items.Init()
	close(q.done)
}
