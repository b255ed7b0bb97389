package git

import (
	"context"
	"fmt"
	"strings"

	osexec "os/exec"

	"github.com/crewkit/crew/internal/exec"
)

// GitRunner implements Runner on top of a CommandRunner.
type GitRunner struct {
	repoPath string
	runner   exec.CommandRunner
}

// NewRunner creates a new git runner for the repository at the given path.
func NewRunner(repoPath string) *GitRunner {
	return &GitRunner{repoPath: repoPath, runner: exec.NewRunner()}
}

// NewRunnerWith creates a git runner with a custom CommandRunner (for testing).
func NewRunnerWith(repoPath string, runner exec.CommandRunner) *GitRunner {
	return &GitRunner{repoPath: repoPath, runner: runner}
}

// Verify GitRunner implements Runner at compile time.
var _ Runner = (*GitRunner)(nil)

// run executes a git command and returns its trimmed output.
func (r *GitRunner) run(args ...string) (string, error) {
	out, err := r.runner.Run(context.Background(), r.repoPath, "git", args...)
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, string(out))
	}
	return strings.TrimSpace(string(out)), nil
}

// runSilent executes a git command and ignores output.
func (r *GitRunner) runSilent(args ...string) error {
	out, err := r.runner.Run(context.Background(), r.repoPath, "git", args...)
	if err != nil {
		return fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, string(out))
	}
	return nil
}

// CurrentBranch returns the name of the current branch.
func (r *GitRunner) CurrentBranch() (string, error) {
	return r.run("rev-parse", "--abbrev-ref", "HEAD")
}

// BranchExists returns true if the branch exists.
func (r *GitRunner) BranchExists(name string) (bool, error) {
	_, err := r.runner.Run(context.Background(), r.repoPath, "git", "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	if err != nil {
		// Exit code 1 means branch doesn't exist (not an error)
		if exitErr, ok := err.(*osexec.ExitError); ok && exitErr.ExitCode() == 1 {
			return false, nil
		}
		return false, fmt.Errorf("check branch exists: %w", err)
	}
	return true, nil
}

// DeleteBranch deletes the specified branch.
func (r *GitRunner) DeleteBranch(name string) error {
	return r.runSilent("branch", "-D", name)
}

// WorktreeAddNewBranch creates a new worktree with a new branch.
func (r *GitRunner) WorktreeAddNewBranch(path, branch string) error {
	return r.runSilent("worktree", "add", "-b", branch, path)
}

// WorktreeRemove removes the worktree at the given path.
func (r *GitRunner) WorktreeRemove(path string) error {
	return r.runSilent("worktree", "remove", "--force", path)
}

// WorktreeListPorcelain returns the output of git worktree list --porcelain.
func (r *GitRunner) WorktreeListPorcelain() (string, error) {
	return r.run("worktree", "list", "--porcelain")
}

// WorktreePruneExpireNow prunes stale worktree references immediately.
func (r *GitRunner) WorktreePruneExpireNow() error {
	return r.runSilent("worktree", "prune", "--expire", "now")
}
