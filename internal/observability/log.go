// Package observability implements the append-only JSONL event log and
// byte-cursor reader contract (§4.7, Design Note "Log cursors").
package observability

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/taskforge/orchestrator/contracts"
)

// JSONLSink is a single-writer, append-only JSONL event log with a
// monotonic byte-offset cursor reader. It implements contracts.LogSink.
type JSONLSink struct {
	mu   sync.Mutex
	path string
}

// NewJSONLSink opens (creating parent directories as needed) a JSONL sink
// at path. The file itself is created lazily on first Append.
func NewJSONLSink(path string) (*JSONLSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &JSONLSink{path: path}, nil
}

// Append marshals record as one JSON line and appends it, fsyncing before
// return so the write is durable before the caller proceeds (Design Note
// "Atomic snapshot writes" applies the same discipline here: publish only
// after fsync). Returns the byte offset at which the record begins.
func (s *JSONLSink) Append(record any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	offset := info.Size()

	data, err := json.Marshal(record)
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')

	if _, err := f.Write(data); err != nil {
		return 0, err
	}
	if err := f.Sync(); err != nil {
		return 0, err
	}
	return offset, nil
}

// Read returns the JSON lines appended at or after cursor (bytes from file
// start), and the cursor to resume from next. A cursor past EOF is
// tolerated and returns an empty result with nextCursor == cursor
// (Design Note "Log cursors"); rotation is not required within a single run.
func (s *JSONLSink) Read(cursor int64) ([]string, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, cursor, nil
	}
	if err != nil {
		return nil, cursor, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, cursor, err
	}
	size := info.Size()

	if cursor < 0 {
		cursor = 0
	}
	if cursor >= size {
		return nil, cursor, nil
	}

	if _, err := f.Seek(cursor, io.SeekStart); err != nil {
		return nil, cursor, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, cursor, err
	}

	nextCursor := cursor + int64(len(data))
	trimmed := strings.TrimRight(string(data), "\n")
	if trimmed == "" {
		return nil, nextCursor, nil
	}
	return strings.Split(trimmed, "\n"), nextCursor, nil
}

var _ contracts.LogSink = (*JSONLSink)(nil)
