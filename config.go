package memoize

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	str2duration "github.com/xhit/go-str2duration/v2"
	"go.uber.org/zap"

	"github.com/agentuity/go-memoize/store"
)

// KeyMode selects how cache keys are derived from resolved arguments.
type KeyMode int

const (
	// KeyDefault serializes the resolved arguments into a canonical form
	// (map key order does not matter), prefixes the namespace, and hashes
	// the result into a fixed-width hex digest.
	KeyDefault KeyMode = iota
	// KeyPrimitive joins the stringified resolved arguments with a null
	// byte. No hashing; only suitable for primitive argument lists.
	KeyPrimitive
)

// CoerceFunc rewrites an argument before key derivation and storage. The
// target is always invoked with the original, un-coerced arguments.
type CoerceFunc func(arg any, index int) any

// KeyGeneratorFunc produces a cache key from the namespace and the resolved
// argument list. The caller takes full responsibility for uniqueness; the
// returned key is used verbatim.
type KeyGeneratorFunc func(uid string, args []any) string

const (
	// DefaultEvictPercent is the share of eviction candidates removed per
	// overflow pass.
	DefaultEvictPercent = 10
	// DefaultHistoryFactor controls how much of the recency table is
	// considered during eviction: the most recently accessed 1/factor
	// fraction of entries are the candidates.
	DefaultHistoryFactor = 2
	// MinTTL is the floor applied to configured TTLs.
	MinTTL = time.Millisecond
)

type config struct {
	uid           string
	ttl           time.Duration
	maxRecords    int // -1 = unset
	evictPercent  int
	historyFactor int
	maxArgs       int // -1 = unset
	ignoreArgs    []int
	coerce        CoerceFunc
	coerceEach    []CoerceFunc
	keyGenerator  KeyGeneratorFunc
	binding       any
	hasBinding    bool
	callbackIndex int // -1 = last positional argument
	keyMode       KeyMode
	controller    store.Controller
	notify        chan<- Event
	logger        *zap.Logger

	errs []error
}

// Option configures a wrapped callable.
type Option func(*config)

func defaultConfig() config {
	return config{
		uid:           uuid.NewString(),
		maxRecords:    -1,
		evictPercent:  DefaultEvictPercent,
		historyFactor: DefaultHistoryFactor,
		maxArgs:       -1,
		callbackIndex: -1,
		keyMode:       KeyDefault,
	}
}

func newConfig(opts []Option) (config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.controller == nil {
		cfg.controller = store.NewMemory()
	}
	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c *config) validate() error {
	if len(c.errs) > 0 {
		return c.errs[0]
	}
	if c.uid == "" {
		return errors.New("memoize: uid must not be empty")
	}
	if c.maxRecords != -1 && c.maxRecords < 0 {
		return errors.Newf("memoize: maxRecords must be non-negative, got %d", c.maxRecords)
	}
	if c.maxArgs != -1 && c.maxArgs < 1 {
		return errors.Newf("memoize: maxArgs must be positive, got %d", c.maxArgs)
	}
	if c.evictPercent < 1 || c.evictPercent > 100 {
		return errors.Newf("memoize: evictPercent must be in [1,100], got %d", c.evictPercent)
	}
	if c.historyFactor < 1 {
		return errors.Newf("memoize: historyFactor must be at least 1, got %d", c.historyFactor)
	}
	for _, i := range c.ignoreArgs {
		if i < 0 {
			return errors.Newf("memoize: ignoreArgs indices must be non-negative, got %d", i)
		}
	}
	if c.coerce != nil && c.coerceEach != nil {
		return errors.New("memoize: WithCoerce and WithCoerceEach are mutually exclusive")
	}
	if c.keyMode != KeyDefault && c.keyMode != KeyPrimitive {
		return errors.Newf("memoize: unknown key mode %d", c.keyMode)
	}
	return nil
}

func (c *config) fail(err error) {
	c.errs = append(c.errs, err)
}

// WithUID sets the namespace mixed into key derivation. Defaults to a random
// UUID per wrapped callable, which keeps distinct callables from colliding in
// a shared backing store but makes keys unstable across processes; set an
// explicit uid when using a persistent or remote controller.
func WithUID(uid string) Option {
	return func(c *config) { c.uid = uid }
}

// WithTTL sets the time-to-live for cached values. Expiry is enforced lazily
// on retrieval, not by an active timer. Values below MinTTL are clamped up.
func WithTTL(d time.Duration) Option {
	return func(c *config) {
		if d < MinTTL {
			d = MinTTL
		}
		c.ttl = d
	}
}

// WithTTLString sets the TTL from a duration string such as "1h30m" or "90s".
func WithTTLString(s string) Option {
	return func(c *config) {
		d, err := str2duration.ParseDuration(s)
		if err != nil {
			c.fail(errors.Wrapf(err, "memoize: parsing ttl %q", s))
			return
		}
		WithTTL(d)(c)
	}
}

// TTLFromEnv sets the TTL from the named environment variable when it is set.
func TTLFromEnv(name string) Option {
	return func(c *config) {
		if v := os.Getenv(name); v != "" {
			WithTTLString(v)(c)
		}
	}
}

// WithMaxRecords caps the number of stored records. Exceeding the cap runs a
// batch overflow eviction (see WithEvictPercent and WithHistoryFactor).
func WithMaxRecords(n int) Option {
	return func(c *config) { c.maxRecords = n }
}

// WithEvictPercent sets the percentage of eviction candidates removed per
// overflow pass. Defaults to DefaultEvictPercent.
func WithEvictPercent(p int) Option {
	return func(c *config) { c.evictPercent = p }
}

// WithHistoryFactor sets how much of the recency table is considered during
// eviction. Defaults to DefaultHistoryFactor.
func WithHistoryFactor(f int) Option {
	return func(c *config) { c.historyFactor = f }
}

// WithMaxArgs truncates the argument list to the first n arguments for key
// derivation and storage. This is a count, not an index.
func WithMaxArgs(n int) Option {
	return func(c *config) { c.maxArgs = n }
}

// WithIgnoreArgs excludes the arguments at the given indices from key
// derivation. Indices are evaluated against the post-truncation list.
func WithIgnoreArgs(indices ...int) Option {
	return func(c *config) { c.ignoreArgs = append([]int(nil), indices...) }
}

// WithCoerce applies fn to every argument before key derivation and storage.
func WithCoerce(fn CoerceFunc) Option {
	return func(c *config) {
		if fn == nil {
			c.fail(errors.New("memoize: WithCoerce requires a non-nil function"))
			return
		}
		c.coerce = fn
	}
}

// WithCoerceEach applies the function at each index to the argument at that
// index. Nil entries leave the matching argument untouched.
func WithCoerceEach(fns ...CoerceFunc) Option {
	return func(c *config) { c.coerceEach = append([]CoerceFunc(nil), fns...) }
}

// WithKeyGenerator replaces key derivation entirely with fn.
func WithKeyGenerator(fn KeyGeneratorFunc) Option {
	return func(c *config) {
		if fn == nil {
			c.fail(errors.New("memoize: WithKeyGenerator requires a non-nil function"))
			return
		}
		c.keyGenerator = fn
	}
}

// WithBinding prepends v to the target's argument list on every invocation.
// The binding never participates in key derivation.
func WithBinding(v any) Option {
	return func(c *config) {
		c.binding = v
		c.hasBinding = true
	}
}

// WithCallbackIndex fixes the position of the completion callback for
// callback-mode callables. By default the last positional argument is assumed
// to be the callback. Values past the end of an argument list are clamped.
func WithCallbackIndex(i int) Option {
	return func(c *config) {
		if i < 0 {
			c.fail(errors.Newf("memoize: callback index must be non-negative, got %d", i))
			return
		}
		c.callbackIndex = i
	}
}

// WithKeyMode selects the key derivation mode.
func WithKeyMode(m KeyMode) Option {
	return func(c *config) { c.keyMode = m }
}

// WithPrimitiveKeys is shorthand for WithKeyMode(KeyPrimitive).
func WithPrimitiveKeys() Option {
	return WithKeyMode(KeyPrimitive)
}

// WithController sets the storage controller. Defaults to store.NewMemory.
func WithController(ctrl store.Controller) Option {
	return func(c *config) {
		if ctrl == nil {
			c.fail(errors.New("memoize: WithController requires a non-nil controller"))
			return
		}
		c.controller = ctrl
	}
}

// WithNotify sets the channel engine events are delivered to. Sends never
// block; an event is dropped when the channel is full.
func WithNotify(ch chan<- Event) Option {
	return func(c *config) { c.notify = ch }
}

// WithLogger enables debug logging of engine events.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.logger = l }
}
