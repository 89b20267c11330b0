package memoize

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallbackCachesResults(t *testing.T) {
	ctx := context.Background()
	calls := 0
	fn, err := NewCallback(func(args ...any) {
		calls++
		x := args[0].(int)
		cb := args[1].(Callback)
		cb(nil, x*2)
	}, WithUID("test"))
	require.NoError(t, err)

	var got []any
	done := Callback(func(err error, results ...any) {
		require.NoError(t, err)
		got = results
	})

	fn.Call(ctx, 4, done)
	assert.Equal(t, []any{8}, got)
	assert.Equal(t, 1, calls)

	// Second call with the same argument hits without re-invoking.
	got = nil
	fn.Call(ctx, 4, done)
	assert.Equal(t, []any{8}, got)
	assert.Equal(t, 1, calls)

	// Stored values are always the full result slice.
	contents, err := fn.StoreContents(ctx)
	assert.NoError(t, err)
	assert.Len(t, contents, 1)
	for _, v := range contents {
		assert.Equal(t, []any{8}, v)
	}
}

func TestCallbackMultiValueResults(t *testing.T) {
	ctx := context.Background()
	fn, err := NewCallback(func(args ...any) {
		cb := args[1].(Callback)
		cb(nil, "a", "b", "c")
	}, WithUID("test"))
	require.NoError(t, err)

	var got []any
	fn.Call(ctx, 1, Callback(func(err error, results ...any) {
		require.NoError(t, err)
		got = results
	}))
	assert.Equal(t, []any{"a", "b", "c"}, got)

	got = nil
	fn.Call(ctx, 1, Callback(func(err error, results ...any) {
		require.NoError(t, err)
		got = results
	}))
	assert.Equal(t, []any{"a", "b", "c"}, got)
}

func TestCallbackErrorFirstNotCached(t *testing.T) {
	ctx := context.Background()
	calls := 0
	boom := errors.New("boom")
	fn, err := NewCallback(func(args ...any) {
		calls++
		cb := args[1].(Callback)
		cb(boom)
	}, WithUID("test"))
	require.NoError(t, err)

	var gotErr error
	done := Callback(func(err error, results ...any) { gotErr = err })

	fn.Call(ctx, 1, done)
	assert.ErrorIs(t, gotErr, boom)
	fn.Call(ctx, 1, done)
	assert.Equal(t, 2, calls)

	contents, err := fn.StoreContents(ctx)
	assert.NoError(t, err)
	assert.Empty(t, contents)
}

func TestCallbackInvokedExactlyOnce(t *testing.T) {
	// A target that misbehaves and completes twice only reaches the
	// caller's callback once.
	ctx := context.Background()
	fn, err := NewCallback(func(args ...any) {
		cb := args[0].(Callback)
		cb(nil, 1)
		cb(nil, 2)
	}, WithUID("test"))
	require.NoError(t, err)

	invocations := 0
	fn.Call(ctx, Callback(func(err error, results ...any) {
		invocations++
		assert.Equal(t, []any{1}, results)
	}))
	assert.Equal(t, 1, invocations)
}

func TestCallbackConfiguredIndex(t *testing.T) {
	ctx := context.Background()
	calls := 0
	fn, err := NewCallback(func(args ...any) {
		calls++
		cb := args[0].(Callback)
		cb(nil, args[1].(string)+"!")
	}, WithUID("test"), WithCallbackIndex(0))
	require.NoError(t, err)

	var got []any
	done := Callback(func(err error, results ...any) {
		require.NoError(t, err)
		got = results
	})

	fn.Call(ctx, done, "hey")
	assert.Equal(t, []any{"hey!"}, got)

	got = nil
	fn.Call(ctx, done, "hey")
	assert.Equal(t, []any{"hey!"}, got)
	assert.Equal(t, 1, calls)
}

func TestCallbackIndexClamped(t *testing.T) {
	// An index past the end of the argument list cannot identify a
	// callback; the target is invoked directly and nothing is cached.
	ctx := context.Background()
	calls := 0
	fn, err := NewCallback(func(args ...any) {
		calls++
	}, WithUID("test"), WithCallbackIndex(5))
	require.NoError(t, err)

	fn.Call(ctx, 1, 2)
	fn.Call(ctx, 1, 2)
	assert.Equal(t, 2, calls)

	contents, err := fn.StoreContents(ctx)
	assert.NoError(t, err)
	assert.Empty(t, contents)
}

func TestCallbackPlainFuncAccepted(t *testing.T) {
	ctx := context.Background()
	fn, err := NewCallback(func(args ...any) {
		cb := args[1].(Callback)
		cb(nil, true)
	}, WithUID("test"))
	require.NoError(t, err)

	var got []any
	fn.Call(ctx, 1, func(err error, results ...any) {
		require.NoError(t, err)
		got = results
	})
	assert.Equal(t, []any{true}, got)
}

func TestCallbackPreInvocationErrorDelivered(t *testing.T) {
	// Errors raised before the target runs go to the callback, not a panic
	// or a return value.
	ctx := context.Background()
	calls := 0
	fn, err := NewCallback(func(args ...any) {
		calls++
	}, WithUID("test"))
	require.NoError(t, err)

	var gotErr error
	fn.Call(ctx, make(chan int), Callback(func(err error, results ...any) {
		gotErr = err
	}))
	assert.Error(t, gotErr)
	assert.Zero(t, calls)
}

func TestCallbackDisabledBypasses(t *testing.T) {
	ctx := context.Background()
	calls := 0
	fn, err := NewCallback(func(args ...any) {
		calls++
		cb := args[1].(Callback)
		cb(nil, args[0])
	}, WithUID("test"))
	require.NoError(t, err)

	require.NoError(t, fn.Disable(ctx, false))
	fn.Call(ctx, 1, Callback(func(err error, results ...any) {}))
	fn.Call(ctx, 1, Callback(func(err error, results ...any) {}))
	assert.Equal(t, 2, calls)

	contents, err := fn.StoreContents(ctx)
	assert.NoError(t, err)
	assert.Empty(t, contents)
}
