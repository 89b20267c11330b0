package memoize

import (
	"context"
	"math"
	"reflect"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentuity/go-memoize/store"
)

// accessRecord tracks frequency and recency for one key. Only maintained when
// maxRecords is configured.
type accessRecord struct {
	frequency  int
	lastAccess time.Time
}

// Engine owns the configuration, enable/disable state, TTL and LRU
// bookkeeping, and the storage controller for one wrapped callable. All three
// adapters embed an Engine and expose its fixed operation set directly.
//
// Every operation is serialized through a single mutex, including the storage
// controller call it wraps, so bookkeeping and store contents cannot drift
// apart under concurrent use.
type Engine struct {
	mu      sync.Mutex
	cfg     config
	enabled bool
	records int
	// access and created are allocated lazily: access only when maxRecords
	// is set, created only when ttl is set.
	access  map[string]*accessRecord
	created map[string]time.Time
	keyMemo map[uint64]string
}

func newEngine(cfg config) *Engine {
	e := &Engine{cfg: cfg, enabled: true}
	e.resetBookkeeping()
	return e
}

// resetBookkeeping reinitializes all tracking tables. Called with the mutex
// held (or before the engine is shared).
func (e *Engine) resetBookkeeping() {
	e.records = 0
	e.access = nil
	e.created = nil
	e.keyMemo = make(map[uint64]string)
	if e.cfg.maxRecords >= 0 {
		e.access = make(map[string]*accessRecord)
	}
	if e.cfg.ttl > 0 {
		e.created = make(map[string]time.Time)
	}
}

// UID returns the engine's namespace.
func (e *Engine) UID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.uid
}

// Enabled reports whether the engine is caching.
func (e *Engine) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// Enable turns caching back on. Redundant calls are no-ops but still emit an
// enable event, so subscribers can observe the attempt.
func (e *Engine) Enable() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = true
	e.emit(Event{Type: EventEnable})
}

// Disable turns caching off: while disabled every invocation bypasses the
// cache and calls the target directly. When emptyFirst is true the store is
// emptied before the transition. Redundant calls still emit a disable event.
func (e *Engine) Disable(ctx context.Context, emptyFirst bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if emptyFirst {
		if err := e.emptyLocked(ctx); err != nil {
			return err
		}
	}
	e.enabled = false
	e.emit(Event{Type: EventDisable})
	return nil
}

// Key resolves args and derives the cache key they map to.
func (e *Engine) Key(args ...any) (string, error) {
	key, _, err := e.keyFor(args)
	return key, err
}

// keyFor resolves args and derives their key, returning both.
func (e *Engine) keyFor(args []any) (string, []any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	resolved := resolveArgs(args, &e.cfg)
	key, err := deriveKey(&e.cfg, resolved, e.keyMemo)
	if err != nil {
		return "", nil, err
	}
	return key, resolved, nil
}

// Retrieve looks key up in the store. It returns store.NotCached on a miss,
// including the case where the entry existed but its TTL had lapsed — the
// stale entry is deleted as a side effect. A hit updates the entry's
// frequency and last-access bookkeeping when maxRecords is configured.
func (e *Engine) Retrieve(ctx context.Context, key string, args []any) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emit(Event{Type: EventRetrieve, Key: key, Args: args})

	v, err := e.cfg.controller.Retrieve(ctx, key, args)
	if err != nil {
		return nil, err
	}
	if !store.IsCached(v) {
		return store.NotCached, nil
	}
	if e.cfg.ttl > 0 {
		// Entries without a recorded creation time (preloaded by a
		// persistent controller) never expire.
		if created, ok := e.created[key]; ok && time.Since(created) >= e.cfg.ttl {
			if _, err := e.deleteLocked(ctx, key, args); err != nil {
				return nil, err
			}
			return store.NotCached, nil
		}
	}
	if rec, ok := e.access[key]; ok {
		rec.frequency++
		rec.lastAccess = time.Now()
	}
	e.emit(Event{Type: EventRetrieved, Key: key, Value: v, Args: args})
	return v, nil
}

// Save stores value under key, records TTL and capacity bookkeeping, and runs
// the overflow eviction when the record count exceeds maxRecords.
func (e *Engine) Save(ctx context.Context, key string, value any, args []any) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.cfg.controller.Save(ctx, key, value, args)
	if err != nil {
		return nil, err
	}
	e.emit(Event{Type: EventSave, Key: key, Value: v, Args: args})
	if e.cfg.ttl > 0 {
		e.created[key] = time.Now()
	}
	if e.cfg.maxRecords >= 0 {
		if _, tracked := e.access[key]; !tracked {
			e.access[key] = &accessRecord{lastAccess: time.Now()}
			e.records++
			if e.records > e.cfg.maxRecords {
				if err := e.evictOverflow(ctx); err != nil {
					return nil, err
				}
			}
		}
	}
	return v, nil
}

// Delete removes key from the store and clears its bookkeeping. It returns
// the removed value, or store.NotCached when nothing was stored.
func (e *Engine) Delete(ctx context.Context, key string, args []any) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deleteLocked(ctx, key, args)
}

func (e *Engine) deleteLocked(ctx context.Context, key string, args []any) (any, error) {
	e.emit(Event{Type: EventDelete, Key: key, Args: args})
	v, err := e.cfg.controller.Delete(ctx, key, args)
	if err != nil {
		return nil, err
	}
	if _, tracked := e.access[key]; tracked {
		delete(e.access, key)
		e.records--
	}
	delete(e.created, key)
	e.emit(Event{Type: EventDeleted, Key: key, Value: v, Args: args})
	return v, nil
}

// Empty clears the store and resets all bookkeeping.
func (e *Engine) Empty(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.emptyLocked(ctx)
}

func (e *Engine) emptyLocked(ctx context.Context) error {
	if err := e.cfg.controller.Empty(ctx); err != nil {
		return err
	}
	e.resetBookkeeping()
	e.emit(Event{Type: EventEmpty})
	return nil
}

// StoreContents returns a read-only snapshot of the stored key/value pairs.
// Entries past their TTL may still appear: expiry is enforced lazily on
// retrieval, not by a sweeper.
func (e *Engine) StoreContents(ctx context.Context) (map[string]any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.controller.Contents(ctx)
}

// Hits returns the tracked access frequency for key. Only meaningful when
// maxRecords is configured; otherwise it always reports false.
func (e *Engine) Hits(key string) (bool, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.access[key]
	if !ok {
		return false, 0
	}
	return true, rec.frequency
}

// SetOptions validates opts against the current configuration and applies
// them. When any of uid, the key generator, or the coercion functions change,
// previously stored keys are no longer derivable, so the store is emptied
// unconditionally; otherwise it is emptied only when clearStore is true.
//
// When the store is kept, so is the bookkeeping: live entries retain their
// creation times and access counters, a shrunk maxRecords evicts down to the
// new cap immediately, and newly enabled capacity tracking adopts the store's
// current entries.
func (e *Engine) SetOptions(ctx context.Context, clearStore bool, opts ...Option) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.cfg
	next.errs = nil
	for _, opt := range opts {
		opt(&next)
	}
	if err := next.validate(); err != nil {
		return err
	}

	invalidatesKeys := next.uid != e.cfg.uid ||
		funcChanged(next.keyGenerator, e.cfg.keyGenerator) ||
		funcChanged(next.coerce, e.cfg.coerce) ||
		coerceEachChanged(next.coerceEach, e.cfg.coerceEach)

	e.cfg = next
	if invalidatesKeys || clearStore {
		return e.emptyLocked(ctx)
	}
	return e.migrateBookkeeping(ctx)
}

// migrateBookkeeping reconciles the tracking tables with the configuration
// after a merge that keeps the store. Live entries keep their creation times
// and access counters; only tables made irrelevant by the new settings are
// dropped. Called with the mutex held.
func (e *Engine) migrateBookkeeping(ctx context.Context) error {
	if e.cfg.ttl <= 0 {
		e.created = nil
	} else if e.created == nil {
		// TTL newly enabled. Entries saved before now have no creation time
		// on record and follow the preloaded-entry rule: they never expire.
		e.created = make(map[string]time.Time)
	}

	switch {
	case e.cfg.maxRecords < 0:
		e.access = nil
		e.records = 0
	case e.access == nil:
		// Capacity tracking newly enabled: adopt the store's current entries
		// as zero-frequency records so they count against the cap.
		contents, err := e.cfg.controller.Contents(ctx)
		if err != nil {
			return err
		}
		now := time.Now()
		e.access = make(map[string]*accessRecord, len(contents))
		for key := range contents {
			e.access[key] = &accessRecord{lastAccess: now}
		}
		e.records = len(e.access)
	}

	// A shrunk maxRecords can leave the store over the cap by more than one
	// entry, so a single eviction batch may not be enough.
	for e.cfg.maxRecords >= 0 && e.records > e.cfg.maxRecords {
		if err := e.evictOverflow(ctx); err != nil {
			return err
		}
	}
	return nil
}

func funcChanged[T any](a, b T) bool {
	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	if av.IsNil() != bv.IsNil() {
		return true
	}
	if av.IsNil() {
		return false
	}
	return av.Pointer() != bv.Pointer()
}

func coerceEachChanged(a, b []CoerceFunc) bool {
	if len(a) != len(b) {
		return true
	}
	for i := range a {
		if funcChanged(a[i], b[i]) {
			return true
		}
	}
	return false
}

// evictOverflow runs the batch overflow eviction. Called with the mutex held.
//
// The most recently accessed 1/historyFactor fraction of tracked entries form
// the candidate set, biasing eviction away from recently touched entries even
// when they are low-frequency. Within the candidates, the least frequently
// used ceil(evictPercent% ) are deleted, after an overflow event naming them.
func (e *Engine) evictOverflow(ctx context.Context) error {
	type tracked struct {
		key string
		rec *accessRecord
	}
	all := make([]tracked, 0, len(e.access))
	for k, rec := range e.access {
		all = append(all, tracked{key: k, rec: rec})
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].rec.lastAccess.After(all[j].rec.lastAccess)
	})

	keep := int(math.Ceil(float64(len(all)) / float64(e.cfg.historyFactor)))
	if keep > len(all) {
		keep = len(all)
	}
	candidates := all[:keep]
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].rec.frequency < candidates[j].rec.frequency
	})

	deleteCount := int(math.Ceil(float64(e.cfg.evictPercent) * 0.01 * float64(len(candidates))))
	if deleteCount > len(candidates) {
		deleteCount = len(candidates)
	}
	victims := make([]string, deleteCount)
	for i := 0; i < deleteCount; i++ {
		victims[i] = candidates[i].key
	}

	e.emit(Event{Type: EventOverflow, Keys: victims})
	for _, key := range victims {
		if _, err := e.deleteLocked(ctx, key, nil); err != nil {
			return err
		}
	}
	return nil
}

// emit delivers ev to the configured channel without blocking and logs it at
// debug level when a logger is configured. Called with the mutex held.
func (e *Engine) emit(ev Event) {
	if e.cfg.notify != nil {
		select {
		case e.cfg.notify <- ev:
		default:
		}
	}
	if e.cfg.logger != nil {
		e.cfg.logger.Debug("memoize event",
			zap.Stringer("type", ev.Type),
			zap.String("key", ev.Key),
			zap.String("uid", e.cfg.uid),
		)
	}
}
