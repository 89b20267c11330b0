package store

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	N int
}

func TestWeakRoundTrip(t *testing.T) {
	ctx := context.Background()
	w := NewWeak[payload]()

	v, err := w.Retrieve(ctx, "k", nil)
	assert.NoError(t, err)
	assert.False(t, IsCached(v))

	p := &payload{N: 1}
	saved, err := w.Save(ctx, "k", p, nil)
	assert.NoError(t, err)
	assert.Same(t, p, saved)

	// While the caller holds a strong reference, the entry survives GC.
	runtime.GC()
	v, err = w.Retrieve(ctx, "k", nil)
	assert.NoError(t, err)
	assert.Same(t, p, v)
	runtime.KeepAlive(p)
}

func TestWeakRejectsNonPointerValues(t *testing.T) {
	ctx := context.Background()
	w := NewWeak[payload]()
	_, err := w.Save(ctx, "k", payload{N: 1}, nil)
	assert.Error(t, err)
	_, err = w.Save(ctx, "k", 42, nil)
	assert.Error(t, err)
}

func TestWeakEntryCollected(t *testing.T) {
	ctx := context.Background()
	w := NewWeak[payload]()

	_, err := w.Save(ctx, "k", &payload{N: 1}, nil)
	require.NoError(t, err)

	// With no strong reference left, the entry becomes unretrievable after
	// collection. GC timing is not deterministic, so poll briefly.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		runtime.GC()
		v, err := w.Retrieve(ctx, "k", nil)
		require.NoError(t, err)
		if !IsCached(v) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("entry was never collected")
}

func TestWeakDelete(t *testing.T) {
	ctx := context.Background()
	w := NewWeak[payload]()
	p := &payload{N: 2}
	_, err := w.Save(ctx, "k", p, nil)
	require.NoError(t, err)

	v, err := w.Delete(ctx, "k", nil)
	assert.NoError(t, err)
	assert.Same(t, p, v)

	v, err = w.Delete(ctx, "k", nil)
	assert.NoError(t, err)
	assert.False(t, IsCached(v))
	runtime.KeepAlive(p)
}

func TestWeakEmptyAndContents(t *testing.T) {
	ctx := context.Background()
	w := NewWeak[payload]()
	p1, p2 := &payload{N: 1}, &payload{N: 2}
	_, err := w.Save(ctx, "a", p1, nil)
	require.NoError(t, err)
	_, err = w.Save(ctx, "b", p2, nil)
	require.NoError(t, err)

	contents, err := w.Contents(ctx)
	assert.NoError(t, err)
	assert.Len(t, contents, 2)

	assert.NoError(t, w.Empty(ctx))
	contents, err = w.Contents(ctx)
	assert.NoError(t, err)
	assert.Empty(t, contents)
	runtime.KeepAlive(p1)
	runtime.KeepAlive(p2)
}

func TestWeakOverwrite(t *testing.T) {
	ctx := context.Background()
	w := NewWeak[payload]()
	p1, p2 := &payload{N: 1}, &payload{N: 2}
	_, err := w.Save(ctx, "k", p1, nil)
	require.NoError(t, err)
	_, err = w.Save(ctx, "k", p2, nil)
	require.NoError(t, err)

	v, err := w.Retrieve(ctx, "k", nil)
	assert.NoError(t, err)
	assert.Same(t, p2, v)
	runtime.KeepAlive(p1)
	runtime.KeepAlive(p2)
}
