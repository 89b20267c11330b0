// Package memoize wraps callables with a transparent function-result cache,
// keyed by a normalized representation of each call's arguments, with TTL
// expiry, capacity-bounded eviction, and pluggable persistence.
//
// # Adapters
//
// Three adapters cover three calling conventions under one caching model:
//
//   - [New] — synchronous: Call returns the result directly, and target
//     errors propagate synchronously.
//   - [NewPromise] — asynchronous: Call returns a [Promise] that settles with
//     the cached or computed value, or rejects with the target's error.
//   - [NewCallback] — callback style: one argument is a [Callback] invoked
//     exactly once with (error, results...); error-first completions are
//     passed through and never cached.
//
// All three embed the same [Engine], which exposes the fixed operation set
// (Key, Retrieve, Save, Delete, Empty, Enable, Disable, StoreContents,
// SetOptions, Hits) on every wrapped callable.
//
// # Keys
//
// Arguments are first resolved — truncated to [WithMaxArgs], rewritten by
// [WithCoerce], stripped of [WithIgnoreArgs] positions — and then derived
// into a key. The default mode canonically serializes the resolved arguments
// (two structurally equal maps with different insertion orders produce the
// same key), prefixes the [WithUID] namespace, and hashes to a 128-bit hex
// digest. [WithPrimitiveKeys] instead joins the stringified arguments with a
// null byte, and [WithKeyGenerator] takes over derivation entirely.
//
// # Expiry and eviction
//
// [WithTTL] expiry is passive: a stale entry is noticed and removed on the
// next retrieval of that exact key, so it may linger in StoreContents until
// then. [WithMaxRecords] caps the store; once exceeded, a batch eviction
// removes the least frequently used entries among the most recently accessed
// 1/[WithHistoryFactor] fraction, [WithEvictPercent] percent at a time, and
// announces the victims in an overflow event first.
//
// # Storage
//
// The [store.Controller] interface is the persistence boundary. The store
// package ships in-memory (default), weak-reference, synchronous and
// asynchronous file-backed, Redis, and SQLite controllers; misses are the
// [store.NotCached] sentinel, never an error, so targets that legitimately
// return nil cache correctly.
//
// # Concurrency
//
// Each engine serializes its bookkeeping and storage access through one
// mutex. There is deliberately no in-flight deduplication: concurrent misses
// on the same key each invoke the target, and the last save wins. Wrap the
// target with singleflight first if duplicate execution is unacceptable.
//
// # Observability
//
// Engines emit typed [Event] values (retrieve, retrieved, save, overflow,
// delete, deleted, empty, enable, disable) to an optional [WithNotify]
// channel — sends never block — and to an optional [WithLogger] zap logger
// at debug level.
package memoize
