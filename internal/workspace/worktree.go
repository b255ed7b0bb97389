// Package workspace manages isolated git worktrees for workers.
package workspace

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/crewkit/crew/internal/git"
)

// Worktree represents a git worktree managed by crew.
type Worktree struct {
	Path       string    // Absolute path to the worktree directory
	BranchName string    // Name of the branch associated with this worktree
	WorkerID   string    // ID of the worker that owns this worktree
	CreatedAt  time.Time // When the worktree was created
}

// Provider defines the interface for worktree management.
// This interface allows mocking worktree operations in tests.
type Provider interface {
	// Create creates a new worktree for the given worker.
	Create(workerID string) (*Worktree, error)
	// Remove removes a worktree at the given path.
	Remove(path string) error
	// List returns all worktrees managed by this repository.
	List() ([]*Worktree, error)
	// Prune removes references to worktrees that no longer exist on disk.
	Prune() error
	// CleanupOrphans removes worktrees whose workers are no longer active
	// and returns the count of removed worktrees.
	CleanupOrphans(activeWorkers []string) (int, error)
	// BaseDir returns the base directory where worktrees are created.
	BaseDir() string
}

// Verify Manager implements Provider at compile time.
var _ Provider = (*Manager)(nil)

// Manager handles git worktree operations for worker isolation.
// Each active worker gets an exclusive worktree; two concurrently running
// workers never share a working tree.
type Manager struct {
	baseDir  string // Base directory for worktrees (e.g., ~/.cache/crew/worktrees)
	repoPath string // Path to the main git repository
	git      git.Runner
	mu       sync.Mutex
}

// NewManager creates a new worktree Manager.
// baseDir is where worktrees will be created (defaults to ~/.cache/crew/worktrees).
// repoPath is the path to the main git repository.
func NewManager(baseDir, repoPath string) (*Manager, error) {
	return NewManagerWithRunner(baseDir, repoPath, git.NewRunner(repoPath))
}

// NewManagerWithRunner creates a Manager with a custom git runner (for testing).
func NewManagerWithRunner(baseDir, repoPath string, runner git.Runner) (*Manager, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".cache", "crew", "worktrees")
	}

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create worktree base directory: %w", err)
	}

	return &Manager{
		baseDir:  baseDir,
		repoPath: repoPath,
		git:      runner,
	}, nil
}

// Create creates a new worktree for the given worker.
func (m *Manager) Create(workerID string) (*Worktree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	branchName := fmt.Sprintf("crew-%s", workerID)
	worktreePath := filepath.Join(m.baseDir, branchName)

	if err := m.git.WorktreeAddNewBranch(worktreePath, branchName); err != nil {
		return nil, fmt.Errorf("create worktree: %w", err)
	}

	return &Worktree{
		Path:       worktreePath,
		BranchName: branchName,
		WorkerID:   workerID,
		CreatedAt:  time.Now(),
	}, nil
}

// Remove removes a worktree at the given path and deletes its branch.
// Teardown is best-effort; a leaked worktree is a warning, not fatal.
func (m *Manager) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.git.WorktreeRemove(path); err != nil {
		return fmt.Errorf("remove worktree: %w", err)
	}

	// Delete the branch if it follows our naming convention.
	branch := filepath.Base(path)
	if strings.HasPrefix(branch, "crew-") {
		_ = m.git.DeleteBranch(branch)
	}

	return nil
}

// List returns all worktrees managed by this repository.
func (m *Manager) List() ([]*Worktree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	output, err := m.git.WorktreeListPorcelain()
	if err != nil {
		return nil, fmt.Errorf("list worktrees: %w", err)
	}

	return parseWorktreeList(output), nil
}

// parseWorktreeList parses the output of 'git worktree list --porcelain'.
func parseWorktreeList(output string) []*Worktree {
	var worktrees []*Worktree
	var current *Worktree

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if current != nil {
				worktrees = append(worktrees, current)
				current = nil
			}
			continue
		}

		if strings.HasPrefix(line, "worktree ") {
			current = &Worktree{
				Path: strings.TrimPrefix(line, "worktree "),
			}
		} else if strings.HasPrefix(line, "branch ") && current != nil {
			// Format: branch refs/heads/<name>
			branchRef := strings.TrimPrefix(line, "branch ")
			current.BranchName = strings.TrimPrefix(branchRef, "refs/heads/")

			if strings.HasPrefix(current.BranchName, "crew-") {
				current.WorkerID = strings.TrimPrefix(current.BranchName, "crew-")
			}
		}
	}

	// The last entry may not be followed by a blank line.
	if current != nil {
		worktrees = append(worktrees, current)
	}

	return worktrees
}

// Prune removes references to worktrees that no longer exist on disk.
func (m *Manager) Prune() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.git.WorktreePruneExpireNow(); err != nil {
		return fmt.Errorf("prune worktrees: %w", err)
	}

	return nil
}

// CleanupOrphans removes crew worktrees whose worker IDs are not in
// activeWorkers and returns the count of removed worktrees. This recovers
// leaked worktrees after crashes.
func (m *Manager) CleanupOrphans(activeWorkers []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	output, err := m.git.WorktreeListPorcelain()
	if err != nil {
		return 0, fmt.Errorf("list worktrees: %w", err)
	}

	active := make(map[string]bool, len(activeWorkers))
	for _, id := range activeWorkers {
		active[id] = true
	}

	removed := 0
	for _, wt := range parseWorktreeList(output) {
		if wt.WorkerID == "" || active[wt.WorkerID] {
			continue
		}
		if wt.Path == m.repoPath {
			continue
		}

		if err := m.git.WorktreeRemove(wt.Path); err != nil {
			// Git may have lost track of it; fall back to direct removal.
			if err := os.RemoveAll(wt.Path); err != nil {
				continue
			}
		}
		_ = m.git.DeleteBranch(wt.BranchName)
		removed++
	}

	_ = m.git.WorktreePruneExpireNow()

	return removed, nil
}

// BaseDir returns the base directory where worktrees are created.
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// RepoPath returns the path to the main git repository.
func (m *Manager) RepoPath() string {
	return m.repoPath
}
