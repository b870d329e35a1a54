package observability

import (
	"path/filepath"
	"testing"
)

func TestJSONLSink_AppendReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewJSONLSink(filepath.Join(dir, "orchestrator.jsonl"))
	if err != nil {
		t.Fatalf("NewJSONLSink: %v", err)
	}

	off1, err := sink.Append(map[string]string{"event": "run.started"})
	if err != nil {
		t.Fatalf("Append 1: %v", err)
	}
	if off1 != 0 {
		t.Fatalf("first offset = %d, want 0", off1)
	}

	off2, err := sink.Append(map[string]string{"event": "run.completed"})
	if err != nil {
		t.Fatalf("Append 2: %v", err)
	}
	if off2 <= off1 {
		t.Fatalf("second offset %d did not advance past first %d", off2, off1)
	}

	lines, cursor, err := sink.Read(0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if cursor != off2+int64(len(lines[1]))+1 {
		t.Fatalf("cursor = %d, want end of file", cursor)
	}

	more, cursor2, err := sink.Read(cursor)
	if err != nil {
		t.Fatalf("Read at EOF: %v", err)
	}
	if len(more) != 0 {
		t.Fatalf("expected no new lines, got %d", len(more))
	}
	if cursor2 != cursor {
		t.Fatalf("cursor should not advance on empty read: got %d want %d", cursor2, cursor)
	}
}

func TestJSONLSink_ReadTolerantOfPastEOFCursor(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewJSONLSink(filepath.Join(dir, "orchestrator.jsonl"))
	if err != nil {
		t.Fatalf("NewJSONLSink: %v", err)
	}
	if _, err := sink.Append(map[string]string{"event": "run.started"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	lines, cursor, err := sink.Read(1_000_000)
	if err != nil {
		t.Fatalf("Read past EOF: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("expected no lines past EOF, got %d", len(lines))
	}
	if cursor != 1_000_000 {
		t.Fatalf("cursor should be echoed back unchanged, got %d", cursor)
	}
}

func TestJSONLSink_ReadMissingFile(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewJSONLSink(filepath.Join(dir, "never-written.jsonl"))
	if err != nil {
		t.Fatalf("NewJSONLSink: %v", err)
	}

	lines, cursor, err := sink.Read(0)
	if err != nil {
		t.Fatalf("Read on missing file: %v", err)
	}
	if len(lines) != 0 || cursor != 0 {
		t.Fatalf("expected empty read on missing file, got lines=%v cursor=%d", lines, cursor)
	}
}
