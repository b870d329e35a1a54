package paths

import (
	"strings"
	"testing"
)

func TestContext_StateFile(t *testing.T) {
	c := New("/home")
	got := c.StateFile("proj", "run-001")
	want := "/home/state/proj/run-run-001.json"
	if got != want {
		t.Fatalf("StateFile = %s, want %s", got, want)
	}
}

func TestContext_TaskWorkspace(t *testing.T) {
	c := New("/home")
	got := c.TaskWorkspace("proj", "run-001", "t1")
	if !strings.HasPrefix(got, "/home/workspaces/proj/run-run-001/task-t1") {
		t.Fatalf("TaskWorkspace = %s", got)
	}
}

func TestContext_ArchiveTaskDir(t *testing.T) {
	c := New("/home")
	got := c.ArchiveTaskDir("proj", "run-001", "t1", "add-widget")
	want := "/home/archive/proj/run-run-001/t1-add-widget"
	if got != want {
		t.Fatalf("ArchiveTaskDir = %s, want %s", got, want)
	}
}
