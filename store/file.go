package store

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// Delimiter separates the key from the JSON-encoded value on each line of a
// file-backed store.
const Delimiter = "|"

// File is a synchronous file-backed controller. Construction reads the backing
// file (one "key|jsonValue" record per line, lines without a delimiter are
// skipped) into an in-memory map, and every mutation afterwards is mirrored to
// disk with blocking I/O before the call returns.
//
// Saves append to the file; later lines for the same key win on reload.
// Delete and Empty rewrite the file so removed entries do not resurrect.
// Values reloaded from disk are the JSON-decoded forms (map[string]any,
// []any, float64, ...), not the original Go types.
//
// Because every operation blocks on disk, avoid pairing this controller with
// latency-sensitive promise or callback targets; FileAsync covers that case.
type File struct {
	mu      sync.Mutex
	path    string
	f       *os.File
	entries map[string]any
}

var _ Controller = (*File)(nil)

// NewFile opens (creating if needed) the file at path and loads its records.
func NewFile(path string) (*File, error) {
	entries, err := loadRecords(path)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, errors.Wrap(err, "store: opening file store")
	}
	s := &File{path: path, f: f, entries: entries}
	if err := s.ensureTrailingNewline(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// loadRecords parses the line-oriented store format shared by File and
// FileAsync. A missing file yields an empty map.
func loadRecords(path string) (map[string]any, error) {
	entries := make(map[string]any)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, errors.Wrap(err, "store: reading file store")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		i := strings.Index(line, Delimiter)
		if i < 0 {
			continue
		}
		key := line[:i]
		var value any
		if err := json.Unmarshal([]byte(line[i+1:]), &value); err != nil {
			continue
		}
		entries[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "store: reading file store")
	}
	return entries, nil
}

func encodeRecord(key string, value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, errors.Wrapf(err, "store: encoding value for key %q", key)
	}
	line := make([]byte, 0, len(key)+1+len(data)+1)
	line = append(line, key...)
	line = append(line, Delimiter...)
	line = append(line, data...)
	line = append(line, '\n')
	return line, nil
}

func (s *File) ensureTrailingNewline() error {
	info, err := os.Stat(s.path)
	if err != nil || info.Size() == 0 {
		return nil
	}
	r, err := os.Open(s.path)
	if err != nil {
		return errors.Wrap(err, "store: checking file store terminator")
	}
	defer r.Close()
	buf := make([]byte, 1)
	if _, err := r.ReadAt(buf, info.Size()-1); err != nil {
		return errors.Wrap(err, "store: checking file store terminator")
	}
	if buf[0] != '\n' {
		if _, err := s.f.Write([]byte("\n")); err != nil {
			return errors.Wrap(err, "store: appending file store terminator")
		}
	}
	return nil
}

func (s *File) Save(_ context.Context, key string, value any, _ []any) (any, error) {
	line, err := encodeRecord(key, value)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(line); err != nil {
		return nil, errors.Wrap(err, "store: writing file store")
	}
	s.entries[key] = value
	return value, nil
}

func (s *File) Retrieve(_ context.Context, key string, _ []any) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.entries[key]; ok {
		return v, nil
	}
	return NotCached, nil
}

func (s *File) Delete(_ context.Context, key string, _ []any) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.entries[key]
	if !ok {
		return NotCached, nil
	}
	delete(s.entries, key)
	if err := s.rewrite(); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *File) Empty(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]any)
	return s.rewrite()
}

func (s *File) Contents(_ context.Context) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make(map[string]any, len(s.entries))
	for k, v := range s.entries {
		snapshot[k] = v
	}
	return snapshot, nil
}

// Close syncs and closes the backing file. The controller must not be used
// after Close.
func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.f.Sync(); err != nil {
		return errors.Wrap(err, "store: syncing file store")
	}
	return s.f.Close()
}

// rewrite replaces the file with the current in-memory contents. Called with
// the mutex held.
func (s *File) rewrite() error {
	if err := s.f.Close(); err != nil {
		return errors.Wrap(err, "store: rewriting file store")
	}
	f, err := os.OpenFile(s.path, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return errors.Wrap(err, "store: rewriting file store")
	}
	for k, v := range s.entries {
		line, err := encodeRecord(k, v)
		if err != nil {
			f.Close()
			return err
		}
		if _, err := f.Write(line); err != nil {
			f.Close()
			return errors.Wrap(err, "store: rewriting file store")
		}
	}
	s.f = f
	return nil
}
