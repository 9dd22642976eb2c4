package recordstore

import (
	"context"
	"errors"
	"sync"
)

// EventKind distinguishes saves from deletes.
type EventKind int

const (
	Saved EventKind = iota + 1
	Deleted
)

func (k EventKind) String() string {
	switch k {
	case Saved:
		return "saved"
	case Deleted:
		return "deleted"
	}
	return "unknown"
}

// Event is a committed article mutation.
type Event struct {
	Kind    EventKind
	Article Article
	ID      int64
}

// ErrQueueClosed is returned when publishing to a closed queue.
var ErrQueueClosed = errors.New("event queue closed")

// Queue is a buffered Subscriber that hands events to a consumer goroutine,
// decoupling index maintenance from the request path.
type Queue struct {
	mu     sync.RWMutex
	ch     chan Event
	closed bool
}

// NewQueue creates a queue buffering up to size events.
func NewQueue(size int) *Queue {
	if size < 0 {
		size = 0
	}
	return &Queue{ch: make(chan Event, size)}
}

// Events returns the consumer side of the queue.
func (q *Queue) Events() <-chan Event { return q.ch }

func (q *Queue) OnSaved(ctx context.Context, article Article) error {
	return q.publish(ctx, Event{Kind: Saved, Article: article, ID: article.ID})
}

func (q *Queue) OnDeleted(ctx context.Context, id int64) error {
	return q.publish(ctx, Event{Kind: Deleted, ID: id})
}

func (q *Queue) publish(ctx context.Context, event Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events; buffered events remain readable.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}
