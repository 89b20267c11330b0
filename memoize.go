package memoize

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/agentuity/go-memoize/store"
)

// Target is the callable signature accepted by the synchronous adapter.
type Target func(args ...any) (any, error)

// Func is a synchronously memoized callable. Call returns the cached value on
// a hit; on a miss it invokes the target, stores the result, and returns it.
// Errors from the target propagate to the caller and are never cached.
//
// The embedded Engine exposes the full operation set: Key, Retrieve, Save,
// Delete, Empty, Enable, Disable, StoreContents, SetOptions, Hits.
type Func struct {
	*Engine
	target Target
}

// New wraps target with a caching engine. Configuration errors are returned
// here, at wrap time.
func New(target Target, opts ...Option) (*Func, error) {
	if target == nil {
		return nil, errors.New("memoize: target must not be nil")
	}
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	return &Func{Engine: newEngine(cfg), target: target}, nil
}

// Call invokes the memoized callable. While the engine is disabled the target
// is called directly, with no key derivation or storage at all.
func (f *Func) Call(ctx context.Context, args ...any) (any, error) {
	if !f.Enabled() {
		return f.invoke(args)
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
	out, err := f.invoke(args)
	if err != nil {
		return nil, err
	}
	if _, err := f.Save(ctx, key, out, resolved); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *Func) invoke(args []any) (any, error) {
	return f.target(f.bindArgs(args)...)
}

// bindArgs prepends the configured binding, when present, to the invocation
// argument list. Bindings never participate in key derivation.
func (e *Engine) bindArgs(args []any) []any {
	e.mu.Lock()
	hasBinding, binding := e.cfg.hasBinding, e.cfg.binding
	e.mu.Unlock()
	if !hasBinding {
		return args
	}
	bound := make([]any, 0, len(args)+1)
	bound = append(bound, binding)
	return append(bound, args...)
}
