// Package vcs wraps the git binary for every version-control primitive the
// core consumes (§4.2). All operations shell out to `git` via os/exec — the
// idiom every pack repo that touches version control uses directly; none
// reach for a Go-native git library.
package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/taskforge/orchestrator/contracts"
)

// Git implements contracts.VCS by driving the git binary.
type Git struct {
	bin string
}

// New returns a Git adapter. bin is normally "git"; overridable for tests
// that stub the binary.
func New(bin string) *Git {
	if bin == "" {
		bin = "git"
	}
	return &Git{bin: bin}
}

func (g *Git) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.bin, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// EnsureCleanWorkingTree fails with ErrDirtyWorkingTree if any untracked or
// modified path exists in repoPath.
func (g *Git) EnsureCleanWorkingTree(ctx context.Context, repoPath string) error {
	out, err := g.run(ctx, repoPath, "status", "--porcelain")
	if err != nil {
		return err
	}
	if out != "" {
		return fmt.Errorf("%s: %w", repoPath, contracts.ErrDirtyWorkingTree)
	}
	return nil
}

// ResolveRunBaseSha returns the commit SHA the run treats as its base —
// the current tip of mainBranch.
func (g *Git) ResolveRunBaseSha(ctx context.Context, repoPath, mainBranch string) (string, error) {
	return g.run(ctx, repoPath, "rev-parse", mainBranch)
}

// CheckoutOrCreateBranch creates branch at baseSha if absent, else checks
// it out, inside workspacePath (an independent worktree pointing at the
// shared object database via EnsureWorktree).
func (g *Git) CheckoutOrCreateBranch(ctx context.Context, workspacePath, branch, baseSha string) error {
	if _, err := g.run(ctx, workspacePath, "rev-parse", "--verify", branch); err == nil {
		_, err := g.run(ctx, workspacePath, "checkout", branch)
		return err
	}
	_, err := g.run(ctx, workspacePath, "checkout", "-b", branch, baseSha)
	return err
}

// HeadSha returns the current tip of workspacePath.
func (g *Git) HeadSha(ctx context.Context, workspacePath string) (string, error) {
	return g.run(ctx, workspacePath, "rev-parse", "HEAD")
}

// IsAncestor reports whether ancestor is reachable from descendant.
func (g *Git) IsAncestor(ctx context.Context, repoPath, ancestor, descendant string) (bool, error) {
	cmd := exec.CommandContext(ctx, g.bin, "merge-base", "--is-ancestor", ancestor, descendant)
	cmd.Dir = repoPath
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, fmt.Errorf("git merge-base --is-ancestor: %w", err)
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

// ListChangedFiles returns repo-relative paths changed between baseRef and
// workspacePath's HEAD.
func (g *Git) ListChangedFiles(ctx context.Context, workspacePath, baseRef string) ([]string, error) {
	out, err := g.run(ctx, workspacePath, "diff", "--name-only", baseRef, "HEAD")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// MergeTaskBranches attempts to merge the listed task branches into
// mainBranch inside a temporary integration ref, never touching mainBranch
// directly (§4.2).
func (g *Git) MergeTaskBranches(ctx context.Context, req contracts.MergeRequest) (contracts.MergeResult, error) {
	integrationRef := "refs/orchestrator/integration/" + shortHash(req.Branches)

	base, err := g.run(ctx, req.RepoPath, "rev-parse", req.MainBranch)
	if err != nil {
		return contracts.MergeResult{}, err
	}
	if _, err := g.run(ctx, req.RepoPath, "update-ref", integrationRef, base); err != nil {
		return contracts.MergeResult{}, err
	}
	defer g.run(ctx, req.RepoPath, "update-ref", "-d", integrationRef)

	result := contracts.MergeResult{Status: "merged", Conflicts: map[string]string{}}
	for _, branch := range req.Branches {
		_, mergeErr := g.mergeIntoRef(ctx, req.RepoPath, integrationRef, branch)
		if mergeErr != nil {
			reason := strings.TrimSpace(mergeErr.Error())
			result.Conflicts[branch] = reason
			// abort so the integration ref stays clean for the next attempt
			g.run(ctx, req.RepoPath, "merge", "--abort")
			continue
		}
		result.Merged = append(result.Merged, branch)
	}

	if len(result.Conflicts) > 0 {
		result.Status = "conflict"
		return result, nil
	}

	commit, err := g.run(ctx, req.RepoPath, "rev-parse", integrationRef)
	if err != nil {
		return contracts.MergeResult{}, err
	}
	result.MergeCommit = commit
	return result, nil
}

// mergeIntoRef merges branch into ref using a detached checkout so the
// shared repo's working tree (not a task worktree) is the merge arena,
// serialized by BatchEngine per §4.2's concurrency note.
func (g *Git) mergeIntoRef(ctx context.Context, repoPath, ref, branch string) (string, error) {
	if _, err := g.run(ctx, repoPath, "checkout", "--detach", ref); err != nil {
		return "", err
	}
	out, err := g.run(ctx, repoPath, "merge", "--no-ff", "--no-edit", branch)
	if err != nil {
		return "", fmt.Errorf("%w: %s", contracts.ErrMergeConflict, err)
	}
	head, err := g.run(ctx, repoPath, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	if _, err := g.run(ctx, repoPath, "update-ref", ref, head); err != nil {
		return "", err
	}
	return out, nil
}

// FastForwardMainToMerge advances mainBranch to mergeCommit. Precondition:
// mergeCommit is an ancestor-compatible descendant of mainBranch's current
// tip; violating it returns ErrFastForwardFailed.
func (g *Git) FastForwardMainToMerge(ctx context.Context, repoPath, mainBranch, mergeCommit string) error {
	tip, err := g.run(ctx, repoPath, "rev-parse", mainBranch)
	if err != nil {
		return err
	}
	isAncestor, err := g.IsAncestor(ctx, repoPath, tip, mergeCommit)
	if err != nil {
		return err
	}
	if !isAncestor {
		return fmt.Errorf("%s is not a descendant of %s: %w", mergeCommit, mainBranch, contracts.ErrFastForwardFailed)
	}
	if _, err := g.run(ctx, repoPath, "update-ref", "refs/heads/"+mainBranch, mergeCommit); err != nil {
		return fmt.Errorf("%w: %s", contracts.ErrFastForwardFailed, err)
	}
	return nil
}

var unsafeBranchChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// BuildTaskBranchName returns a deterministic, filesystem-safe, collision-
// free branch name for taskID/taskName (§4.2).
func (g *Git) BuildTaskBranchName(taskID contracts.TaskID, taskName string) string {
	slug := unsafeBranchChars.ReplaceAllString(taskName, "-")
	slug = strings.Trim(strings.ToLower(slug), "-")
	if slug == "" {
		return fmt.Sprintf("task/%s", taskID)
	}
	return fmt.Sprintf("task/%s-%s", taskID, slug)
}

// EnsureWorktree creates an independent worktree at workspacePath pointing
// at repoPath's object database, checked out to branch (creating branch at
// baseSha if it doesn't exist).
func (g *Git) EnsureWorktree(ctx context.Context, repoPath, workspacePath, branch, baseSha string) error {
	if _, err := g.run(ctx, repoPath, "rev-parse", "--verify", branch); err == nil {
		_, err := g.run(ctx, repoPath, "worktree", "add", workspacePath, branch)
		return err
	}
	_, err := g.run(ctx, repoPath, "worktree", "add", "-b", branch, workspacePath, baseSha)
	return err
}

// RemoveWorktree tears down a worktree created by EnsureWorktree.
func (g *Git) RemoveWorktree(ctx context.Context, repoPath, workspacePath string) error {
	_, err := g.run(ctx, repoPath, "worktree", "remove", "--force", workspacePath)
	return err
}

func shortHash(branches []string) string {
	joined := strings.Join(branches, ",")
	h := 2166136261
	for _, c := range joined {
		h = (h ^ int(c)) * 16777619
	}
	return fmt.Sprintf("%x", uint32(h))
}

var _ contracts.VCS = (*Git)(nil)
