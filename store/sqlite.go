package store

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"
)

// SQLite is a controller backed by a SQLite database (pure Go driver, no CGO).
// Values are msgpack-encoded BLOBs. Supports both file-backed (persistent
// across restarts) and ":memory:" modes. WAL mode is enabled for concurrent
// read performance.
//
// Like the other serialized controllers, retrieved values are the decoded
// msgpack forms rather than the original Go types.
type SQLite struct {
	db *sql.DB
}

var _ Controller = (*SQLite)(nil)

// NewSQLite opens (creating if needed) a SQLite-backed controller at dbPath.
// An empty dbPath means ":memory:".
func NewSQLite(dbPath string) (*SQLite, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "store: opening sqlite store")
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "store: enabling WAL")
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS memo (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "store: creating memo table")
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultQueryTimeout)
}

func (s *SQLite) Save(ctx context.Context, key string, value any, _ []any) (any, error) {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return nil, errors.Wrapf(err, "store: encoding value for key %q", key)
	}
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	_, err = s.db.ExecContext(qctx,
		`INSERT INTO memo (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, data,
	)
	if err != nil {
		return nil, errors.Wrap(err, "store: sqlite save")
	}
	return value, nil
}

func (s *SQLite) Retrieve(ctx context.Context, key string, _ []any) (any, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	var data []byte
	err := s.db.QueryRowContext(qctx, `SELECT value FROM memo WHERE key = ?`, key).Scan(&data)
	if err == sql.ErrNoRows {
		return NotCached, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "store: sqlite retrieve")
	}
	return decodeMsgpack(data, key)
}

func (s *SQLite) Delete(ctx context.Context, key string, _ []any) (any, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	var data []byte
	err := s.db.QueryRowContext(qctx,
		`DELETE FROM memo WHERE key = ? RETURNING value`, key,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return NotCached, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "store: sqlite delete")
	}
	return decodeMsgpack(data, key)
}

func (s *SQLite) Empty(ctx context.Context) error {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	if _, err := s.db.ExecContext(qctx, `DELETE FROM memo`); err != nil {
		return errors.Wrap(err, "store: sqlite empty")
	}
	return nil
}

func (s *SQLite) Contents(ctx context.Context) (map[string]any, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(qctx, `SELECT key, value FROM memo`)
	if err != nil {
		return nil, errors.Wrap(err, "store: sqlite contents")
	}
	defer rows.Close()
	snapshot := make(map[string]any)
	for rows.Next() {
		var key string
		var data []byte
		if err := rows.Scan(&key, &data); err != nil {
			return nil, errors.Wrap(err, "store: sqlite contents")
		}
		v, err := decodeMsgpack(data, key)
		if err != nil {
			return nil, err
		}
		snapshot[key] = v
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "store: sqlite contents")
	}
	return snapshot, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
