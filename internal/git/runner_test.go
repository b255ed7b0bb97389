package git

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// fakeCommandRunner records invocations and returns scripted output.
type fakeCommandRunner struct {
	calls  [][]string
	output []byte
	err    error
}

func (f *fakeCommandRunner) Run(_ context.Context, workDir string, name string, args ...string) ([]byte, error) {
	call := append([]string{workDir, name}, args...)
	f.calls = append(f.calls, call)
	return f.output, f.err
}

func (f *fakeCommandRunner) LookPath(name string) (string, error) {
	return "/usr/bin/" + name, nil
}

func (f *fakeCommandRunner) lastCall() []string {
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

func TestCurrentBranch(t *testing.T) {
	fake := &fakeCommandRunner{output: []byte("main\n")}
	r := NewRunnerWith("/repo", fake)

	branch, err := r.CurrentBranch()
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if branch != "main" {
		t.Errorf("branch = %q, want main (trimmed)", branch)
	}

	call := fake.lastCall()
	want := []string{"/repo", "git", "rev-parse", "--abbrev-ref", "HEAD"}
	if strings.Join(call, " ") != strings.Join(want, " ") {
		t.Errorf("call = %v, want %v", call, want)
	}
}

func TestBranchExists(t *testing.T) {
	fake := &fakeCommandRunner{}
	r := NewRunnerWith("/repo", fake)

	exists, err := r.BranchExists("feature")
	if err != nil {
		t.Fatalf("BranchExists: %v", err)
	}
	if !exists {
		t.Error("zero exit should mean the branch exists")
	}

	call := fake.lastCall()
	if call[len(call)-1] != "refs/heads/feature" {
		t.Errorf("call = %v, want full ref as last arg", call)
	}
}

func TestBranchExistsOtherError(t *testing.T) {
	fake := &fakeCommandRunner{err: errors.New("not a git repository")}
	r := NewRunnerWith("/repo", fake)

	if _, err := r.BranchExists("feature"); err == nil {
		t.Fatal("non-exit errors should propagate")
	}
}

func TestWorktreeAddNewBranch(t *testing.T) {
	fake := &fakeCommandRunner{}
	r := NewRunnerWith("/repo", fake)

	if err := r.WorktreeAddNewBranch("/tmp/wt/crew-abc", "crew-abc"); err != nil {
		t.Fatalf("WorktreeAddNewBranch: %v", err)
	}

	call := fake.lastCall()
	want := "/repo git worktree add -b crew-abc /tmp/wt/crew-abc"
	if strings.Join(call, " ") != want {
		t.Errorf("call = %v, want %q", call, want)
	}
}

func TestWorktreeRemoveForces(t *testing.T) {
	fake := &fakeCommandRunner{}
	r := NewRunnerWith("/repo", fake)

	if err := r.WorktreeRemove("/tmp/wt/crew-abc"); err != nil {
		t.Fatalf("WorktreeRemove: %v", err)
	}

	call := strings.Join(fake.lastCall(), " ")
	if !strings.Contains(call, "worktree remove --force") {
		t.Errorf("call = %q, want forced removal", call)
	}
}

func TestDeleteBranchForces(t *testing.T) {
	fake := &fakeCommandRunner{}
	r := NewRunnerWith("/repo", fake)

	if err := r.DeleteBranch("crew-abc"); err != nil {
		t.Fatalf("DeleteBranch: %v", err)
	}

	call := strings.Join(fake.lastCall(), " ")
	if !strings.Contains(call, "branch -D crew-abc") {
		t.Errorf("call = %q, want force delete", call)
	}
}

func TestRunErrorIncludesOutput(t *testing.T) {
	fake := &fakeCommandRunner{output: []byte("fatal: bad revision"), err: errors.New("exit status 128")}
	r := NewRunnerWith("/repo", fake)

	_, err := r.CurrentBranch()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "fatal: bad revision") {
		t.Errorf("err = %v, want git output included", err)
	}
}
