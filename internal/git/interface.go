// Package git provides an interface for git operations.
package git

// BranchOperations defines the interface for git branch operations.
type BranchOperations interface {
	// CurrentBranch returns the name of the current branch.
	CurrentBranch() (string, error)
	// BranchExists returns true if the branch exists.
	BranchExists(name string) (bool, error)
	// DeleteBranch deletes the specified branch (force delete).
	DeleteBranch(name string) error
}

// WorktreeOperations defines the interface for git worktree operations.
type WorktreeOperations interface {
	// WorktreeAddNewBranch creates a new worktree with a new branch (git worktree add -b).
	WorktreeAddNewBranch(path, branch string) error
	// WorktreeRemove removes the worktree at the given path (force).
	WorktreeRemove(path string) error
	// WorktreeListPorcelain returns the output of git worktree list --porcelain.
	WorktreeListPorcelain() (string, error)
	// WorktreePruneExpireNow prunes stale worktree references immediately.
	WorktreePruneExpireNow() error
}

// Runner combines the git operations crew needs.
// The interface allows mocking git in tests.
type Runner interface {
	BranchOperations
	WorktreeOperations
}
