package memoize

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesTarget(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestNewValidatesOptions(t *testing.T) {
	target := func(args ...any) (any, error) { return nil, nil }

	_, err := New(target, WithUID(""))
	assert.Error(t, err)
	_, err = New(target, WithMaxArgs(0))
	assert.Error(t, err)
	_, err = New(target, WithIgnoreArgs(-1))
	assert.Error(t, err)
	_, err = New(target, WithEvictPercent(0))
	assert.Error(t, err)
	_, err = New(target, WithEvictPercent(101))
	assert.Error(t, err)
	_, err = New(target, WithHistoryFactor(0))
	assert.Error(t, err)
	_, err = New(target, WithCallbackIndex(-2))
	assert.Error(t, err)
	_, err = New(target, WithController(nil))
	assert.Error(t, err)
	_, err = New(target, WithKeyGenerator(nil))
	assert.Error(t, err)
	_, err = New(target, WithCoerce(nil))
	assert.Error(t, err)
	_, err = New(target, WithTTLString("not-a-duration"))
	assert.Error(t, err)
}

func TestFuncCachesResults(t *testing.T) {
	ctx := context.Background()
	calls := 0
	fn, err := New(func(args ...any) (any, error) {
		calls++
		return args[0].(int) * 2, nil
	}, WithUID("test"))
	require.NoError(t, err)

	v, err := fn.Call(ctx, 21)
	assert.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)

	v, err = fn.Call(ctx, 21)
	assert.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)

	// A different argument misses.
	v, err = fn.Call(ctx, 5)
	assert.NoError(t, err)
	assert.Equal(t, 10, v)
	assert.Equal(t, 2, calls)
}

func TestFuncErrorsNotCached(t *testing.T) {
	ctx := context.Background()
	calls := 0
	boom := errors.New("boom")
	fn, err := New(func(args ...any) (any, error) {
		calls++
		return nil, boom
	}, WithUID("test"))
	require.NoError(t, err)

	_, err = fn.Call(ctx, 1)
	assert.ErrorIs(t, err, boom)
	_, err = fn.Call(ctx, 1)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestFuncNilResultCached(t *testing.T) {
	ctx := context.Background()
	calls := 0
	fn, err := New(func(args ...any) (any, error) {
		calls++
		return nil, nil
	}, WithUID("test"))
	require.NoError(t, err)

	v, err := fn.Call(ctx, "x")
	assert.NoError(t, err)
	assert.Nil(t, v)
	v, err = fn.Call(ctx, "x")
	assert.NoError(t, err)
	assert.Nil(t, v)
	assert.Equal(t, 1, calls)
}

func TestFuncDisableEnable(t *testing.T) {
	ctx := context.Background()
	calls := 0
	fn, err := New(func(args ...any) (any, error) {
		calls++
		return args[0], nil
	}, WithUID("test"))
	require.NoError(t, err)

	_, err = fn.Call(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	// While disabled every call re-invokes the target and stores nothing.
	require.NoError(t, fn.Disable(ctx, false))
	_, err = fn.Call(ctx, "a")
	require.NoError(t, err)
	_, err = fn.Call(ctx, "a")
	require.NoError(t, err)
	_, err = fn.Call(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 4, calls)

	// After re-enabling, the cache built before disabling is used again,
	// and the disabled-period calls were never stored.
	fn.Enable()
	_, err = fn.Call(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	_, err = fn.Call(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 5, calls)
}

func TestFuncBinding(t *testing.T) {
	ctx := context.Background()
	var got []any
	fn, err := New(func(args ...any) (any, error) {
		got = append([]any(nil), args...)
		return nil, nil
	}, WithUID("test"), WithBinding("receiver"))
	require.NoError(t, err)

	_, err = fn.Call(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []any{"receiver", 1, 2}, got)

	// The binding does not participate in the key: the same positional
	// arguments hit regardless.
	key1, err := fn.Key(1, 2)
	require.NoError(t, err)
	other, err := New(func(args ...any) (any, error) { return nil, nil }, WithUID("test"))
	require.NoError(t, err)
	key2, err := other.Key(1, 2)
	require.NoError(t, err)
	assert.Equal(t, key1, key2)
}

func TestFuncMaxArgsIgnoreArgsDegenerate(t *testing.T) {
	// maxArgs=1 with ignoreArgs=[0]: every call collapses to one entry.
	ctx := context.Background()
	calls := 0
	fn, err := New(func(args ...any) (any, error) {
		calls++
		return args[0], nil
	}, WithUID("test"), WithMaxArgs(1), WithIgnoreArgs(0))
	require.NoError(t, err)

	v, err := fn.Call(ctx, "first", 1)
	assert.NoError(t, err)
	assert.Equal(t, "first", v)

	v, err = fn.Call(ctx, "second", 2, 3)
	assert.NoError(t, err)
	assert.Equal(t, "first", v)
	assert.Equal(t, 1, calls)
}

func TestFuncCoercionDoesNotAffectInvocation(t *testing.T) {
	ctx := context.Background()
	var got any
	fn, err := New(func(args ...any) (any, error) {
		got = args[0]
		return args[0], nil
	}, WithUID("test"), WithCoerce(func(arg any, index int) any { return "coerced" }))
	require.NoError(t, err)

	_, err = fn.Call(ctx, "original")
	require.NoError(t, err)
	assert.Equal(t, "original", got)
}

func TestFuncStoreContents(t *testing.T) {
	ctx := context.Background()
	fn, err := New(func(args ...any) (any, error) {
		return args[0].(int) + 1, nil
	}, WithUID("test"))
	require.NoError(t, err)

	_, err = fn.Call(ctx, 1)
	require.NoError(t, err)
	_, err = fn.Call(ctx, 2)
	require.NoError(t, err)

	contents, err := fn.StoreContents(ctx)
	assert.NoError(t, err)
	assert.Len(t, contents, 2)
}
