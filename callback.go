package memoize

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/agentuity/go-memoize/store"
)

// Callback is the completion callback invoked exactly once with the error (if
// any) and the result values of a callback-mode target.
type Callback func(err error, results ...any)

// CallbackTarget is the callable signature accepted by the callback adapter.
// One of its arguments, at the configured callback index, is the completion
// callback.
type CallbackTarget func(args ...any)

// CallbackFunc is a memoized callable following the callback convention: the
// caller passes a Callback among the arguments (at WithCallbackIndex, default
// last), and the adapter invokes it exactly once with (error, results...).
//
// The callback argument never participates in key derivation. Because a
// callback may deliver multiple result values, stored values are always the
// full result slice, even for single-value results. An error-first completion
// is propagated to the caller's callback unmodified and never cached.
//
// No in-flight deduplication is performed; see PromiseFunc for the matching
// caveat.
type CallbackFunc struct {
	*Engine
	target CallbackTarget
}

// NewCallback wraps target with a caching engine. Configuration errors are
// returned here, at wrap time.
func NewCallback(target CallbackTarget, opts ...Option) (*CallbackFunc, error) {
	if target == nil {
		return nil, errors.New("memoize: target must not be nil")
	}
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	return &CallbackFunc{Engine: newEngine(cfg), target: target}, nil
}

// Call invokes the memoized callable. Errors that occur before the target is
// invoked (key derivation, storage retrieval) are delivered to the caller's
// callback rather than returned, preserving the callback contract.
//
// If no argument of type Callback exists at the resolved index, the target is
// invoked directly with the original arguments and nothing is cached: the
// wrapper never learns the outcome, so from its point of view the call
// silently never completes.
func (f *CallbackFunc) Call(ctx context.Context, args ...any) {
	idx := f.callbackIndexFor(len(args))
	var cb Callback
	if idx >= 0 && idx < len(args) {
		cb = asCallback(args[idx])
	}
	if cb == nil {
		f.target(f.bindArgs(args)...)
		return
	}
	if !f.Enabled() {
		f.target(f.bindArgs(args)...)
		return
	}

	// The callback itself contributes nothing to the key.
	bare := make([]any, 0, len(args)-1)
	bare = append(bare, args[:idx]...)
	bare = append(bare, args[idx+1:]...)

	key, resolved, err := f.keyFor(bare)
	if err != nil {
		cb(err)
		return
	}
	v, err := f.Retrieve(ctx, key, resolved)
	if err != nil {
		cb(err)
		return
	}
	if store.IsCached(v) {
		results, _ := v.([]any)
		cb(nil, results...)
		return
	}

	var once sync.Once
	wrapped := Callback(func(err error, results ...any) {
		once.Do(func() {
			if err != nil {
				cb(err, results...)
				return
			}
			stored := append([]any(nil), results...)
			if _, serr := f.Save(ctx, key, stored, resolved); serr != nil {
				cb(serr)
				return
			}
			cb(nil, results...)
		})
	})

	callArgs := make([]any, len(args))
	copy(callArgs, args)
	callArgs[idx] = wrapped
	f.target(f.bindArgs(callArgs)...)
}

// callbackIndexFor resolves the callback position for a call with argc
// arguments: the configured index clamped to the argument count, or the last
// positional argument when no index is configured.
func (f *CallbackFunc) callbackIndexFor(argc int) int {
	f.mu.Lock()
	idx := f.cfg.callbackIndex
	f.mu.Unlock()
	if idx < 0 {
		return argc - 1
	}
	if idx > argc {
		return argc
	}
	return idx
}

func asCallback(v any) Callback {
	switch cb := v.(type) {
	case Callback:
		return cb
	case func(error, ...any):
		return cb
	default:
		return nil
	}
}
