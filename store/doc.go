// Package store provides the storage controllers a memoization engine
// persists through.
//
// The [Controller] interface is the boundary: save, retrieve, delete, empty,
// and a contents snapshot. A miss is the [NotCached] sentinel, never an
// error, so nil is a perfectly cacheable value. [Unimplemented] is the
// abstract base; calling any of its operations is a programming error and
// panics.
//
// Implementations, in rough order of reach:
//
//   - [NewMemory] — mutex-guarded map, no serialization. The default.
//   - [NewWeak] — weak value references; entries vanish when the caller
//     drops the last strong reference to the stored pointer. Only sound
//     for pointer values the caller keeps alive.
//   - [NewFile] — line-oriented "key|json" file, loaded at construction,
//     mirrored with blocking writes.
//   - [NewFileAsync] — same format, but writes drain through a background
//     goroutine; requires an explicit Load before use and offers Flush.
//   - [NewRedis] — shared cache on a Redis instance, msgpack values.
//   - [NewSQLite] — single-file persistent cache, msgpack BLOBs, no CGO.
//
// The serialized controllers (file, Redis, SQLite) hand back decoded forms
// (map[string]any, []any, numeric widening per codec), not the original Go
// types; the in-memory controllers return stored values untouched.
package store
