// Package audit provides the engine's ambient diagnostic logger.
//
// It is distinct from the durable per-run JSONL event stream (see
// internal/observability): this is operational trace for operators tailing
// process output, backed by a real leveled logger rather than bare
// log.Printf, in the key=value convention used throughout the engine.
package audit

import (
	"fmt"
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"
)

var (
	mu      sync.RWMutex
	current hclog.Logger = hclog.New(&hclog.LoggerOptions{
		Name:  "orchestrator",
		Level: hclog.Info,
		Output: os.Stderr,
	})
)

// SetLogger replaces the package-level logger. Tests use this to capture
// output or silence it (hclog.NewNullLogger()).
func SetLogger(l hclog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	current = l
}

func logger() hclog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Log writes an info-level audit event. The format string must already be
// in key=value form (event=... run_id=... ...); args are applied via
// fmt-style Printf, matching the call convention used across the engine.
func Log(format string, args ...interface{}) {
	logger().Info(sprintf(format, args...))
}

// Warn writes a warn-level audit event.
func Warn(format string, args ...interface{}) {
	logger().Warn(sprintf(format, args...))
}

// Error writes an error-level audit event.
func Error(format string, args ...interface{}) {
	logger().Error(sprintf(format, args...))
}

func sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
