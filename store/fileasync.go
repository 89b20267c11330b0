package store

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrNotLoaded is returned by FileAsync operations invoked before Load.
var ErrNotLoaded = errors.New("store: async file store used before Load")

type fileOpKind int

const (
	opAppend fileOpKind = iota
	opRewrite
	opFlush
)

type fileOp struct {
	kind     fileOpKind
	line     []byte
	snapshot [][]byte
	done     chan error
}

// FileAsync is the asynchronous variant of File. It shares the same on-disk
// format and load semantics, but mutations return as soon as the in-memory map
// is updated; the matching disk write is drained by a background goroutine
// with a periodic fsync, in the style of an append-only command log.
//
// Load must be called (and must succeed) before any other operation.
//
// Save, Delete, and Empty report only encoding and state errors; a mutation's
// disk write can still fail after the call returns. Durability errors surface
// at the next Flush, which blocks until every write issued so far has reached
// the file and reports the first disk error since the previous Flush, or at
// Close, which drains pending writes, syncs, and closes the file.
type FileAsync struct {
	mu      sync.Mutex
	path    string
	entries map[string]any
	ops     chan fileOp
	wg      sync.WaitGroup
	loaded  bool
	closed  bool
	diskErr error
}

var _ Controller = (*FileAsync)(nil)

// NewFileAsync returns an unloaded async file controller for path.
func NewFileAsync(path string) *FileAsync {
	return &FileAsync{
		path: path,
		ops:  make(chan fileOp, 256),
	}
}

// Load reads the backing file into memory and starts the background writer.
// It is an error to call Load twice.
func (s *FileAsync) Load(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return errors.New("store: async file store already loaded")
	}
	entries, err := loadRecords(s.path)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return errors.Wrap(err, "store: opening async file store")
	}
	s.entries = entries
	s.loaded = true
	s.wg.Add(1)
	go s.drain(f)
	return nil
}

func (s *FileAsync) drain(f *os.File) {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var diskErr error
	record := func(err error) {
		if err != nil && diskErr == nil {
			diskErr = err
		}
	}
	for {
		select {
		case op, ok := <-s.ops:
			if !ok {
				record(f.Sync())
				record(f.Close())
				s.mu.Lock()
				if s.diskErr == nil {
					s.diskErr = diskErr
				}
				s.mu.Unlock()
				return
			}
			switch op.kind {
			case opAppend:
				_, err := f.Write(op.line)
				record(err)
			case opRewrite:
				// Truncate-and-rewrite for deletes and empties so removed
				// entries do not resurrect on the next load.
				record(f.Close())
				nf, err := os.OpenFile(s.path, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0o600)
				if err != nil {
					record(err)
					continue
				}
				f = nf
				for _, line := range op.snapshot {
					_, err := f.Write(line)
					record(err)
				}
			case opFlush:
				record(f.Sync())
				op.done <- diskErr
				diskErr = nil
			}
		case <-ticker.C:
			record(f.Sync())
		}
	}
}

func (s *FileAsync) enqueue(op fileOp) {
	s.ops <- op
}

func (s *FileAsync) Save(_ context.Context, key string, value any, _ []any) (any, error) {
	line, err := encodeRecord(key, value)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if !s.loaded || s.closed {
		s.mu.Unlock()
		return nil, ErrNotLoaded
	}
	s.entries[key] = value
	s.enqueue(fileOp{kind: opAppend, line: line})
	s.mu.Unlock()
	return value, nil
}

func (s *FileAsync) Retrieve(_ context.Context, key string, _ []any) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return nil, ErrNotLoaded
	}
	if v, ok := s.entries[key]; ok {
		return v, nil
	}
	return NotCached, nil
}

func (s *FileAsync) Delete(_ context.Context, key string, _ []any) (any, error) {
	s.mu.Lock()
	if !s.loaded || s.closed {
		s.mu.Unlock()
		return nil, ErrNotLoaded
	}
	v, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return NotCached, nil
	}
	delete(s.entries, key)
	snapshot, err := s.snapshotLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.enqueue(fileOp{kind: opRewrite, snapshot: snapshot})
	s.mu.Unlock()
	return v, nil
}

func (s *FileAsync) Empty(_ context.Context) error {
	s.mu.Lock()
	if !s.loaded || s.closed {
		s.mu.Unlock()
		return ErrNotLoaded
	}
	s.entries = make(map[string]any)
	s.enqueue(fileOp{kind: opRewrite})
	s.mu.Unlock()
	return nil
}

func (s *FileAsync) Contents(_ context.Context) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return nil, ErrNotLoaded
	}
	snapshot := make(map[string]any, len(s.entries))
	for k, v := range s.entries {
		snapshot[k] = v
	}
	return snapshot, nil
}

// Flush blocks until all writes issued before the call have reached the file,
// or ctx is done. It returns the first disk error seen since the last Flush.
func (s *FileAsync) Flush(ctx context.Context) error {
	s.mu.Lock()
	if !s.loaded || s.closed {
		s.mu.Unlock()
		return ErrNotLoaded
	}
	s.mu.Unlock()
	done := make(chan error, 1)
	select {
	case s.ops <- fileOp{kind: opFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains pending writes, syncs, and closes the file. It returns the
// first disk error encountered over the controller's lifetime.
func (s *FileAsync) Close() error {
	s.mu.Lock()
	if !s.loaded || s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	close(s.ops)
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.diskErr
}

// snapshotLocked encodes the current entries for a rewrite op. Called with the
// mutex held.
func (s *FileAsync) snapshotLocked() ([][]byte, error) {
	lines := make([][]byte, 0, len(s.entries))
	for k, v := range s.entries {
		line, err := encodeRecord(k, v)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}
