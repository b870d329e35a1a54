// Package statestore implements durable, crash-safe storage of RunState
// snapshots keyed by (project, run_id), and discovery of the latest run for
// a project (§4.1).
package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/taskforge/orchestrator/contracts"
	"github.com/taskforge/orchestrator/internal/paths"
)

// schemaVersion is bumped whenever the persisted Run shape changes
// incompatibly; Load rejects a mismatched version with
// ErrSchemaVersionMismatch rather than guessing at a migration.
const schemaVersion = 1

// envelope wraps a persisted Run with the schema version it was written
// under.
type envelope struct {
	SchemaVersion int            `json:"schema_version"`
	Run           *contracts.Run `json:"run"`
}

// Store is a single-writer, atomic-publish StateStore. A single
// orchestrator process must be the exclusive writer; readers may observe a
// stale snapshot but never a torn one, since renameio publishes a complete
// file in one atomic rename.
type Store struct {
	paths *paths.Context
}

// New returns a Store rooted at p.
func New(p *paths.Context) *Store {
	return &Store{paths: p}
}

// Save atomically replaces the persisted snapshot for run.Project/run.ID.
// Writes to a sibling temp path then renames (via renameio), so a reader
// never observes a partial write. Caller is responsible for setting
// run.UpdatedAt to the current wall clock before calling Save.
func (s *Store) Save(ctx context.Context, run *contracts.Run) error {
	if run == nil {
		return contracts.ErrInvalidInput
	}

	target := s.paths.StateFile(run.Project, run.ID)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	data, err := json.Marshal(envelope{SchemaVersion: schemaVersion, Run: run})
	if err != nil {
		return fmt.Errorf("marshaling run state: %w", err)
	}

	t, err := renameio.TempFile("", target)
	if err != nil {
		return fmt.Errorf("opening temp state file: %w", err)
	}
	defer t.Cleanup()

	if _, err := t.Write(data); err != nil {
		return fmt.Errorf("writing state snapshot: %w", err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("publishing state snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot for (project, runID). Returns ErrStateNotFound if
// absent, ErrStateCorrupt if the file can't be parsed, and
// ErrSchemaVersionMismatch if the stored schema version doesn't match.
func (s *Store) Load(ctx context.Context, project contracts.ProjectName, runID contracts.RunID) (*contracts.Run, error) {
	path := s.paths.StateFile(project, runID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s/%s: %w", project, runID, contracts.ErrStateNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%s/%s: %w: %s", project, runID, contracts.ErrStateCorrupt, err)
	}
	if env.Run == nil {
		return nil, fmt.Errorf("%s/%s: %w: missing run payload", project, runID, contracts.ErrStateCorrupt)
	}
	if env.SchemaVersion != schemaVersion {
		return nil, fmt.Errorf("%s/%s: stored=%d current=%d: %w",
			project, runID, env.SchemaVersion, schemaVersion, contracts.ErrSchemaVersionMismatch)
	}
	return env.Run, nil
}

// Exists reports whether a snapshot for (project, runID) has been written.
func (s *Store) Exists(ctx context.Context, project contracts.ProjectName, runID contracts.RunID) (bool, error) {
	_, err := os.Stat(s.paths.StateFile(project, runID))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// FindLatestRunID scans the project's state directory and returns the
// lexicographically greatest run_id (run IDs are constructed so lexical
// order matches chronological order), or ok=false if the project has no
// runs yet.
func (s *Store) FindLatestRunID(ctx context.Context, project contracts.ProjectName) (contracts.RunID, bool, error) {
	dir := s.paths.StateDir(project)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	var runIDs []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "run-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		runIDs = append(runIDs, strings.TrimSuffix(strings.TrimPrefix(name, "run-"), ".json"))
	}
	if len(runIDs) == 0 {
		return "", false, nil
	}

	sort.Strings(runIDs)
	return contracts.RunID(runIDs[len(runIDs)-1]), true, nil
}

var _ contracts.StateStore = (*Store)(nil)
