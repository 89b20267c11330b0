package memoize

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/agentuity/go-memoize/store"
)

// PromiseTarget is the callable signature accepted by the promise adapter.
type PromiseTarget func(ctx context.Context, args ...any) (any, error)

// Promise is a write-once future produced by PromiseFunc.Call.
type Promise struct {
	done  chan struct{}
	value any
	err   error
}

func newSettledPromise(v any, err error) *Promise {
	p := &Promise{done: make(chan struct{})}
	p.settle(v, err)
	return p
}

func (p *Promise) settle(v any, err error) {
	p.value = v
	p.err = err
	close(p.done)
}

// Done returns a channel closed once the promise has settled.
func (p *Promise) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the promise settles or ctx is done, and returns the
// settled value and error.
func (p *Promise) Wait(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PromiseFunc is a memoized callable whose invocations settle asynchronously.
// Call returns immediately with a Promise that resolves with the cached or
// freshly computed value, or rejects with the target's error.
//
// No in-flight deduplication is performed: two concurrent calls with the same
// key that both miss will both invoke the target, and the later save simply
// overwrites the earlier one.
type PromiseFunc struct {
	*Engine
	target PromiseTarget
}

// NewPromise wraps target with a caching engine. Configuration errors are
// returned here, at wrap time.
func NewPromise(target PromiseTarget, opts ...Option) (*PromiseFunc, error) {
	if target == nil {
		return nil, errors.New("memoize: target must not be nil")
	}
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	return &PromiseFunc{Engine: newEngine(cfg), target: target}, nil
}

// Call invokes the memoized callable and returns a Promise for the result.
func (f *PromiseFunc) Call(ctx context.Context, args ...any) *Promise {
	p := &Promise{done: make(chan struct{})}
	go func() {
		p.settle(f.call(ctx, args))
	}()
	return p
}

func (f *PromiseFunc) call(ctx context.Context, args []any) (any, error) {
	if !f.Enabled() {
		return f.invoke(ctx, args)
	}
	key, resolved, err := f.keyFor(args)
	if err != nil {
		return nil, err
	}
	v, err := f.Retrieve(ctx, key, resolved)
	if err != nil {
		return nil, err
	}
	if store.IsCached(v) {
		return v, nil
	}
	out, err := f.invoke(ctx, args)
	if err != nil {
		return nil, err
	}
	if _, err := f.Save(ctx, key, out, resolved); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *PromiseFunc) invoke(ctx context.Context, args []any) (any, error) {
	return f.target(ctx, f.bindArgs(args)...)
}
