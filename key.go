package memoize

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"runtime"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
)

// primitiveSeparator joins stringified arguments in KeyPrimitive mode.
const primitiveSeparator = "\x00"

// deriveKey turns a resolved argument list into a cache key.
//
// A configured key generator wins over everything and its result is used
// verbatim. KeyPrimitive joins the default string forms of the arguments.
// KeyDefault canonically serializes the arguments (map key order cannot affect
// the result), prefixes the namespace, and hashes to a 128-bit hex digest.
// Digests are memoized in memo, indexed by a 64-bit hash of the serialized
// signature, so bursts of identical calls skip repeated digesting.
func deriveKey(cfg *config, resolved []any, memo map[uint64]string) (string, error) {
	if cfg.keyGenerator != nil {
		return cfg.keyGenerator(cfg.uid, resolved), nil
	}
	if cfg.keyMode == KeyPrimitive {
		parts := make([]string, len(resolved))
		for i, a := range resolved {
			parts[i] = fmt.Sprint(a)
		}
		return strings.Join(parts, primitiveSeparator), nil
	}

	canonical, err := canonicalize(resolved)
	if err != nil {
		return "", err
	}
	payload := make([]byte, 0, len(cfg.uid)+len(canonical))
	payload = append(payload, cfg.uid...)
	payload = append(payload, canonical...)

	idx := xxhash.Sum64(payload)
	if memo != nil {
		if key, ok := memo[idx]; ok {
			return key, nil
		}
	}
	sum := md5.Sum(payload)
	key := hex.EncodeToString(sum[:])
	if memo != nil {
		memo[idx] = key
	}
	return key, nil
}

// canonicalize produces a deterministic serialization of v. Maps of any key
// type are rendered with their entries sorted by the canonical form of the
// key, so two structurally equal maps built in different orders serialize
// identically. Functions are rendered by their runtime name rather than their
// identity. Everything else goes through standard JSON encoding, which is
// already deterministic for structs and string-keyed maps.
func canonicalize(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func:
		name := runtime.FuncForPC(rv.Pointer()).Name()
		return json.Marshal(name)
	case reflect.Map:
		return canonicalizeMap(rv)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			break // []byte has a defined JSON form already
		}
		return canonicalizeSeq(rv)
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return []byte("null"), nil
		}
		return canonicalize(rv.Elem().Interface())
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(err, "memoize: serializing argument of type %T", v)
	}
	return data, nil
}

func canonicalizeMap(rv reflect.Value) ([]byte, error) {
	type entry struct {
		key []byte
		val []byte
	}
	entries := make([]entry, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k, err := canonicalize(iter.Key().Interface())
		if err != nil {
			return nil, err
		}
		v, err := canonicalize(iter.Value().Interface())
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry{key: k, val: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		return string(entries[i].key) < string(entries[j].key)
	})

	var b strings.Builder
	b.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			b.WriteByte(',')
		}
		b.Write(e.key)
		b.WriteByte(':')
		b.Write(e.val)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

func canonicalizeSeq(rv reflect.Value) ([]byte, error) {
	var b strings.Builder
	b.WriteByte('[')
	for i := 0; i < rv.Len(); i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		el, err := canonicalize(rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		b.Write(el)
	}
	b.WriteByte(']')
	return []byte(b.String()), nil
}
