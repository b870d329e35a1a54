package batch

import (
	"os"
	"path/filepath"
)

// moveDir atomically renames src to dst, creating dst's parent directory
// if needed. Used to move a task's directory from active/ to archive/
// (§4.5 step 4) without copying its contents.
func moveDir(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil // nothing to archive (e.g. task never wrote an active dir)
	}
	return os.Rename(src, dst)
}
