package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultQueryTimeout is the per-operation timeout for controllers that
// perform network or disk I/O. Prevents indefinite hangs on slow or
// unresponsive storage.
const DefaultQueryTimeout = 5 * time.Second

// Redis is a controller backed by a Redis instance. Values are msgpack-encoded,
// so functions, channels, and unexported-only structs cannot be stored.
// An optional prefix namespaces keys when multiple engines share one instance.
// The caller owns the redis.Client lifecycle.
//
// Values retrieved from Redis are the msgpack-decoded forms (map[string]any,
// []any, int64, ...), not the original Go types.
type Redis struct {
	client       *redis.Client
	prefix       string
	queryTimeout time.Duration
}

var _ Controller = (*Redis)(nil)

// NewRedis returns a controller using client, namespacing keys with prefix
// when non-empty.
//
// An empty prefix means the controller assumes exclusive ownership of the
// database: Empty scans and deletes every key, including keys written by
// other clients. Pass a prefix whenever the database is shared.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{
		client:       client,
		prefix:       prefix,
		queryTimeout: DefaultQueryTimeout,
	}
}

func (r *Redis) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, r.queryTimeout)
}

func (r *Redis) prefixKey(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

func (r *Redis) Save(ctx context.Context, key string, value any, _ []any) (any, error) {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return nil, errors.Wrapf(err, "store: encoding value for key %q", key)
	}
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	if err := r.client.Set(qctx, r.prefixKey(key), data, 0).Err(); err != nil {
		return nil, errors.Wrap(err, "store: redis save")
	}
	return value, nil
}

func (r *Redis) Retrieve(ctx context.Context, key string, _ []any) (any, error) {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	data, err := r.client.Get(qctx, r.prefixKey(key)).Bytes()
	if err == redis.Nil {
		return NotCached, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "store: redis retrieve")
	}
	return decodeMsgpack(data, key)
}

func (r *Redis) Delete(ctx context.Context, key string, _ []any) (any, error) {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	data, err := r.client.GetDel(qctx, r.prefixKey(key)).Bytes()
	if err == redis.Nil {
		return NotCached, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "store: redis delete")
	}
	return decodeMsgpack(data, key)
}

func (r *Redis) Empty(ctx context.Context) error {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	var cursor uint64
	match := r.prefixKey("*")
	for {
		keys, next, err := r.client.Scan(qctx, cursor, match, 512).Result()
		if err != nil {
			return errors.Wrap(err, "store: redis empty")
		}
		if len(keys) > 0 {
			if err := r.client.Del(qctx, keys...).Err(); err != nil {
				return errors.Wrap(err, "store: redis empty")
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (r *Redis) Contents(ctx context.Context) (map[string]any, error) {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	snapshot := make(map[string]any)
	var cursor uint64
	match := r.prefixKey("*")
	strip := 0
	if r.prefix != "" {
		strip = len(r.prefix) + 1
	}
	for {
		keys, next, err := r.client.Scan(qctx, cursor, match, 512).Result()
		if err != nil {
			return nil, errors.Wrap(err, "store: redis contents")
		}
		for _, k := range keys {
			data, err := r.client.Get(qctx, k).Bytes()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return nil, errors.Wrap(err, "store: redis contents")
			}
			v, err := decodeMsgpack(data, k)
			if err != nil {
				return nil, err
			}
			snapshot[k[strip:]] = v
		}
		cursor = next
		if cursor == 0 {
			return snapshot, nil
		}
	}
}

func decodeMsgpack(data []byte, key string) (any, error) {
	var value any
	if err := msgpack.Unmarshal(data, &value); err != nil {
		return nil, errors.Wrapf(err, "store: decoding value for key %q", key)
	}
	return value, nil
}
