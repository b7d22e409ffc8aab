// Package emit holds the process-wide state pipelines share: the merge
// queue, the data epoch and the base timestamp.
package emit

import (
	"context"
	"errors"
	"sync"

	"paraScope/internal/model"
)

var ErrClosed = errors.New("queue closed")

// Queue is a FIFO of records from all pipelines. With a positive limit,
// Push blocks while the queue is full; a zero limit never blocks.
type Queue struct {
	mu      sync.Mutex
	items   []model.Record
	limit   int
	closed  bool
	changed chan struct{}
}

func NewQueue(limit int) *Queue {
	if limit < 0 {
		limit = 0
	}
	return &Queue{limit: limit, changed: make(chan struct{})}
}

// broadcast wakes every waiter. Callers hold mu.
func (q *Queue) broadcast() {
	close(q.changed)
	q.changed = make(chan struct{})
}

func (q *Queue) Push(ctx context.Context, rec model.Record) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrClosed
		}
		if q.limit == 0 || len(q.items) < q.limit {
			q.items = append(q.items, rec)
			q.broadcast()
			q.mu.Unlock()
			return nil
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pop removes the oldest record, waiting for one if the queue is empty.
func (q *Queue) Pop(ctx context.Context) (model.Record, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			rec := q.items[0]
			q.items[0] = model.Record{}
			q.items = q.items[1:]
			q.broadcast()
			q.mu.Unlock()
			return rec, nil
		}
		if q.closed {
			q.mu.Unlock()
			return model.Record{}, ErrClosed
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return model.Record{}, ctx.Err()
		}
	}
}

// PopCurrent is Pop that discards records older than the current epoch.
func (q *Queue) PopCurrent(ctx context.Context, epoch *Epoch) (model.Record, error) {
	for {
		rec, err := q.Pop(ctx)
		if err != nil {
			return rec, err
		}
		if rec.Epoch >= epoch.Current() {
			return rec, nil
		}
	}
}

// Drain removes and returns everything queued.
func (q *Queue) Drain() []model.Record {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	q.broadcast()
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops producers. Queued records can still be popped.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		q.broadcast()
	}
}
