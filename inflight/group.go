// Package inflight deduplicates concurrent fetches per key. When several
// callers need the same key at once, only one fetch runs and every waiter
// receives its result.
package inflight

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"
)

// Func performs the shared fetch. The context it receives is detached from
// the cancellation of the caller that started it so that one caller giving
// up does not cancel the fetch for the other waiters.
type Func[T any] func(ctx context.Context) (T, error)

// Group deduplicates fetches for the same key using singleflight.
// A key's entry is removed as soon as its fetch returns, before any waiter
// observes the result, so the next Join after completion starts a new fetch.
type Group[T any] struct {
	group  singleflight.Group
	logger *slog.Logger
}

// Option configures a Group.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger for the group.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New creates a new Group.
func New[T any](opts ...Option) *Group[T] {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Group[T]{logger: o.logger}
}

// Call is a handle on a registered fetch.
type Call[T any] struct {
	ch <-chan singleflight.Result
}

// Join registers fn as the fetch for key, or joins the fetch already in
// flight. Registration is atomic with respect to other Join calls; the
// returned Call is awaited with Wait.
func (g *Group[T]) Join(ctx context.Context, key string, fn Func[T]) *Call[T] {
	detached := context.WithoutCancel(ctx)
	ch := g.group.DoChan(key, func() (v any, err error) {
		defer func() {
			if r := recover(); r != nil {
				g.logger.Error("fetch panicked", "key", key, "panic", r)
				err = fmt.Errorf("inflight: fetch for %q panicked: %v", key, r)
			}
		}()
		return fn(detached)
	})
	return &Call[T]{ch: ch}
}

// Wait blocks until the fetch completes or ctx is done.
// shared reports whether the result was delivered to more than one caller.
//
// If ctx is done first, Wait returns ctx.Err() and the fetch keeps running
// for the other waiters.
func (c *Call[T]) Wait(ctx context.Context) (v T, shared bool, err error) {
	select {
	case res := <-c.ch:
		if res.Err != nil {
			return v, res.Shared, res.Err
		}
		return res.Val.(T), res.Shared, nil
	case <-ctx.Done():
		return v, false, ctx.Err()
	}
}

// Do joins the fetch for key and waits for it.
func (g *Group[T]) Do(ctx context.Context, key string, fn Func[T]) (T, bool, error) {
	return g.Join(ctx, key, fn).Wait(ctx)
}
