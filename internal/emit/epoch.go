package emit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStale is returned, and used as the cancellation cause, once the data
// epoch has moved past the one a pipeline captured.
var ErrStale = errors.New("data epoch changed")

// Epoch is the process-wide data epoch. The zero value is epoch 0.
type Epoch struct {
	v       atomic.Uint64
	mu      sync.Mutex
	changed chan struct{}
}

func (e *Epoch) Current() uint64 {
	return e.v.Load()
}

// Bump starts a new epoch and returns it.
func (e *Epoch) Bump() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.v.Add(1)
	if e.changed != nil {
		close(e.changed)
	}
	e.changed = make(chan struct{})
	return n
}

// Guard captures the current epoch.
func (e *Epoch) Guard() Guard {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.changed == nil {
		e.changed = make(chan struct{})
	}
	return Guard{epoch: e, captured: e.v.Load(), done: e.changed}
}

// Guard is an epoch captured at pipeline start.
type Guard struct {
	epoch    *Epoch
	captured uint64
	done     chan struct{}
}

func (g Guard) Epoch() uint64 {
	return g.captured
}

// Check returns ErrStale once the process epoch has moved on.
func (g Guard) Check() error {
	if g.epoch.Current() != g.captured {
		return ErrStale
	}
	return nil
}

// Done is closed by the first Bump after the guard was taken.
func (g Guard) Done() <-chan struct{} {
	return g.done
}

// Context derives a context canceled with cause ErrStale when the epoch moves
// on.
func (g Guard) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	go func() {
		select {
		case <-g.done:
			cancel(ErrStale)
		case <-ctx.Done():
		}
	}()
	return ctx, func() { cancel(context.Canceled) }
}

// BaseTimestamp is the historical start time in milliseconds, published by
// the chain that owns the start address. It is set once per epoch.
type BaseTimestamp struct {
	v atomic.Uint64
}

// Set publishes ms if nothing is published yet and reports whether it won.
func (b *BaseTimestamp) Set(ms uint64) bool {
	if ms == 0 {
		return false
	}
	return b.v.CompareAndSwap(0, ms)
}

func (b *BaseTimestamp) Get() (uint64, bool) {
	v := b.v.Load()
	return v, v != 0
}

// Reset clears the value for a new epoch.
func (b *BaseTimestamp) Reset() {
	b.v.Store(0)
}

// Wait polls until the value is published. Every poll is a suspension
// point checked against g.
func (b *BaseTimestamp) Wait(ctx context.Context, g Guard, interval time.Duration) (uint64, error) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := g.Check(); err != nil {
			return 0, err
		}
		if v, ok := b.Get(); ok {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-g.done:
		case <-ticker.C:
		}
	}
}
