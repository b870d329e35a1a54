// Package contracts defines the core types and interfaces for the run-execution engine.
package contracts

// RunID uniquely identifies a run within a project.
type RunID string

// TaskID uniquely identifies a task within a run.
type TaskID string

// BatchID identifies a batch within a run; monotonic per run.
type BatchID int64

// TokenCount represents a count of tokens.
type TokenCount int64

// Currency represents a currency code (e.g., "USD").
type Currency string

// Timestamp represents a Unix timestamp in milliseconds.
type Timestamp int64

// ProjectName identifies the project a run belongs to, used to namespace
// state/logs/workspaces under PathsContext's root.
type ProjectName string
