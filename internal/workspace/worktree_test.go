package workspace

import (
	"errors"
	"path/filepath"
	"testing"
)

// fakeGit is an in-memory git.Runner for worktree tests.
type fakeGit struct {
	added    map[string]string // path -> branch
	removed  []string
	deleted  []string
	pruned   int
	listOut  string
	listErr  error
	addErr   error
	remErr   error
	branches map[string]bool
}

func newFakeGit() *fakeGit {
	return &fakeGit{
		added:    make(map[string]string),
		branches: make(map[string]bool),
	}
}

func (g *fakeGit) CurrentBranch() (string, error) { return "main", nil }

func (g *fakeGit) BranchExists(name string) (bool, error) { return g.branches[name], nil }

func (g *fakeGit) DeleteBranch(name string) error {
	g.deleted = append(g.deleted, name)
	delete(g.branches, name)
	return nil
}

func (g *fakeGit) WorktreeAddNewBranch(path, branch string) error {
	if g.addErr != nil {
		return g.addErr
	}
	g.added[path] = branch
	g.branches[branch] = true
	return nil
}

func (g *fakeGit) WorktreeRemove(path string) error {
	if g.remErr != nil {
		return g.remErr
	}
	g.removed = append(g.removed, path)
	return nil
}

func (g *fakeGit) WorktreeListPorcelain() (string, error) {
	return g.listOut, g.listErr
}

func (g *fakeGit) WorktreePruneExpireNow() error {
	g.pruned++
	return nil
}

func newTestManager(t *testing.T, g *fakeGit) *Manager {
	t.Helper()
	m, err := NewManagerWithRunner(t.TempDir(), "/repo", g)
	if err != nil {
		t.Fatalf("NewManagerWithRunner: %v", err)
	}
	return m
}

func TestCreateWorktree(t *testing.T) {
	g := newFakeGit()
	m := newTestManager(t, g)

	wt, err := m.Create("a1b2c3d4")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if wt.BranchName != "crew-a1b2c3d4" {
		t.Errorf("branch = %s, want crew-a1b2c3d4", wt.BranchName)
	}
	if wt.WorkerID != "a1b2c3d4" {
		t.Errorf("worker ID = %s", wt.WorkerID)
	}
	if wt.Path != filepath.Join(m.BaseDir(), "crew-a1b2c3d4") {
		t.Errorf("path = %s, want under base dir", wt.Path)
	}
	if g.added[wt.Path] != wt.BranchName {
		t.Errorf("git invoked with %v", g.added)
	}
}

func TestCreateWorktreeGitFailure(t *testing.T) {
	g := newFakeGit()
	g.addErr = errors.New("fatal: branch exists")
	m := newTestManager(t, g)

	if _, err := m.Create("w1"); err == nil {
		t.Fatal("expected error when git fails")
	}
}

func TestRemoveWorktreeDeletesBranch(t *testing.T) {
	g := newFakeGit()
	m := newTestManager(t, g)

	path := filepath.Join(m.BaseDir(), "crew-w1")
	if err := m.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if len(g.removed) != 1 || g.removed[0] != path {
		t.Errorf("removed = %v", g.removed)
	}
	if len(g.deleted) != 1 || g.deleted[0] != "crew-w1" {
		t.Errorf("deleted branches = %v, want [crew-w1]", g.deleted)
	}
}

func TestRemoveForeignPathKeepsBranch(t *testing.T) {
	g := newFakeGit()
	m := newTestManager(t, g)

	if err := m.Remove("/somewhere/feature-x"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(g.deleted) != 0 {
		t.Errorf("deleted = %v, want no branch deletion for foreign paths", g.deleted)
	}
}

func TestParseWorktreeList(t *testing.T) {
	out := `worktree /repo
HEAD 1111111111111111111111111111111111111111
branch refs/heads/main

worktree /tmp/wt/crew-aaaa
HEAD 2222222222222222222222222222222222222222
branch refs/heads/crew-aaaa

worktree /tmp/wt/detached
HEAD 3333333333333333333333333333333333333333
detached
`

	wts := parseWorktreeList(out)
	if len(wts) != 3 {
		t.Fatalf("got %d worktrees, want 3", len(wts))
	}

	if wts[0].Path != "/repo" || wts[0].BranchName != "main" || wts[0].WorkerID != "" {
		t.Errorf("main entry = %+v", wts[0])
	}
	if wts[1].BranchName != "crew-aaaa" || wts[1].WorkerID != "aaaa" {
		t.Errorf("crew entry = %+v", wts[1])
	}
	if wts[2].Path != "/tmp/wt/detached" || wts[2].BranchName != "" {
		t.Errorf("detached entry = %+v", wts[2])
	}
}

func TestListUsesGitOutput(t *testing.T) {
	g := newFakeGit()
	g.listOut = "worktree /repo\nbranch refs/heads/main\n"
	m := newTestManager(t, g)

	wts, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(wts) != 1 || wts[0].Path != "/repo" {
		t.Errorf("worktrees = %+v", wts)
	}
}

func TestCleanupOrphans(t *testing.T) {
	g := newFakeGit()
	g.listOut = `worktree /repo
branch refs/heads/main

worktree /tmp/wt/crew-live
branch refs/heads/crew-live

worktree /tmp/wt/crew-dead
branch refs/heads/crew-dead
`
	m := newTestManager(t, g)

	removed, err := m.CleanupOrphans([]string{"live"})
	if err != nil {
		t.Fatalf("CleanupOrphans: %v", err)
	}

	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if len(g.removed) != 1 || g.removed[0] != "/tmp/wt/crew-dead" {
		t.Errorf("removed paths = %v, want only the orphan", g.removed)
	}
	if len(g.deleted) != 1 || g.deleted[0] != "crew-dead" {
		t.Errorf("deleted branches = %v", g.deleted)
	}
	if g.pruned == 0 {
		t.Error("cleanup should prune stale references")
	}
}

func TestCleanupOrphansSkipsMainRepo(t *testing.T) {
	g := newFakeGit()
	// A crew-named branch checked out in the main repo path must survive.
	g.listOut = "worktree /repo\nbranch refs/heads/crew-oops\n"
	m := newTestManager(t, g)

	removed, err := m.CleanupOrphans(nil)
	if err != nil {
		t.Fatalf("CleanupOrphans: %v", err)
	}
	if removed != 0 || len(g.removed) != 0 {
		t.Errorf("removed %d (%v), want main repo untouched", removed, g.removed)
	}
}
