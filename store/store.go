package store

import (
	"context"
	"fmt"
)

// NotCached is the sentinel returned by Retrieve and Delete when no entry
// exists for a key. It is distinct from every cacheable value, including nil,
// so a target that legitimately returns nil can still be cached.
var NotCached any = notCached{}

type notCached struct{}

func (notCached) String() string { return "<not cached>" }

// IsCached reports whether v is an actual cached value rather than the
// NotCached sentinel.
func IsCached(v any) bool {
	_, miss := v.(notCached)
	return !miss
}

// Controller is the persistence boundary for a cache engine. The engine
// serializes all calls to a controller, so implementations only need their own
// locking when they are shared across engines or accessed directly.
//
// Retrieve and Delete return NotCached (not an error) when no entry exists.
// The args parameter carries the resolved argument list that produced the key;
// most controllers ignore it, but remote backends may use it for diagnostics.
type Controller interface {
	// Save stores value under key and returns the stored value.
	Save(ctx context.Context, key string, value any, args []any) (any, error)
	// Retrieve returns the value stored under key, or NotCached on miss.
	Retrieve(ctx context.Context, key string, args []any) (any, error)
	// Delete removes the entry for key and returns the removed value, or
	// NotCached when nothing was stored.
	Delete(ctx context.Context, key string, args []any) (any, error)
	// Empty removes every entry.
	Empty(ctx context.Context) error
	// Contents returns a read-only snapshot of all stored key/value pairs.
	Contents(ctx context.Context) (map[string]any, error)
}

// Unimplemented is the abstract base controller. Every operation panics so
// that using the base directly, or forgetting to implement an operation in an
// embedding type, fails fast as a programming error rather than degrading into
// a silent no-op.
type Unimplemented struct{}

var _ Controller = Unimplemented{}

func (Unimplemented) Save(context.Context, string, any, []any) (any, error) {
	panic(unimplemented("Save"))
}

func (Unimplemented) Retrieve(context.Context, string, []any) (any, error) {
	panic(unimplemented("Retrieve"))
}

func (Unimplemented) Delete(context.Context, string, []any) (any, error) {
	panic(unimplemented("Delete"))
}

func (Unimplemented) Empty(context.Context) error {
	panic(unimplemented("Empty"))
}

func (Unimplemented) Contents(context.Context) (map[string]any, error) {
	panic(unimplemented("Contents"))
}

func unimplemented(op string) string {
	return fmt.Sprintf("store: %s called on a controller that does not implement it", op)
}
