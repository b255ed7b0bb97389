package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/crewkit/crew/pkg/models"
)

// writeScript writes an executable shell script for driving workers in tests.
func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+content), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

// eventCollector gathers emitted events for assertions.
type eventCollector struct {
	mu     sync.Mutex
	events []Event
}

func (c *eventCollector) emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *eventCollector) outputLines(stream string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var lines []string
	for _, ev := range c.events {
		if ev.Type == EventWorkerOutput && ev.Stream == stream {
			lines = append(lines, ev.Line)
		}
	}
	return lines
}

func waitResult(t *testing.T, w *StreamingWorker) WorkerResult {
	t.Helper()
	select {
	case res := <-w.Result():
		return res
	case <-time.After(10 * time.Second):
		t.Fatal("worker did not finish in time")
		return WorkerResult{}
	}
}

func testTask() *models.Task {
	return &models.Task{ID: "step-1", Description: "test step", Instructions: "ignored"}
}

func TestStreamingWorkerSuccess(t *testing.T) {
	script := writeScript(t, "echo out1\necho out2\necho err1 >&2\nexit 0\n")

	collector := &eventCollector{}
	w := NewStreamingWorker("w1", testTask(), models.WorkerClaude, script, nil, "", collector.emit, time.Second)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	res := waitResult(t, w)
	if !res.Success || res.State != models.WorkerCompleted {
		t.Errorf("result = %+v, want completed success", res)
	}
	if res.StepID != "step-1" {
		t.Errorf("step ID = %s, want step-1", res.StepID)
	}

	stdout := collector.outputLines("stdout")
	if len(stdout) != 2 || stdout[0] != "out1" || stdout[1] != "out2" {
		t.Errorf("stdout lines = %v, want [out1 out2]", stdout)
	}
	stderr := collector.outputLines("stderr")
	if len(stderr) != 1 || stderr[0] != "err1" {
		t.Errorf("stderr lines = %v, want [err1]", stderr)
	}

	if w.State() != models.WorkerCompleted {
		t.Errorf("state = %s, want completed", w.State())
	}
}

func TestStreamingWorkerNonZeroExit(t *testing.T) {
	script := writeScript(t, "echo failing\nexit 3\n")

	collector := &eventCollector{}
	w := NewStreamingWorker("w1", testTask(), models.WorkerClaude, script, nil, "", collector.emit, time.Second)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	res := waitResult(t, w)
	if res.Success {
		t.Error("non-zero exit should not be success")
	}
	if res.State != models.WorkerCompleted {
		t.Errorf("state = %s, want completed (exited on its own)", res.State)
	}
	if res.Err == nil {
		t.Error("expected an error describing the exit status")
	}
}

func TestStreamingWorkerSpawnFailure(t *testing.T) {
	collector := &eventCollector{}
	w := NewStreamingWorker("w1", testTask(), models.WorkerClaude, "/nonexistent/binary", nil, "", collector.emit, time.Second)

	if err := w.Start(context.Background()); err == nil {
		t.Fatal("expected spawn error for missing binary")
	}

	res := waitResult(t, w)
	if res.State != models.WorkerFailed {
		t.Errorf("state = %s, want failed", res.State)
	}
	if res.Err == nil {
		t.Error("expected spawn error in result")
	}
}

func TestStreamingWorkerCancelGraceful(t *testing.T) {
	script := writeScript(t, "sleep 30\n")

	collector := &eventCollector{}
	w := NewStreamingWorker("w1", testTask(), models.WorkerClaude, script, nil, "", collector.emit, 5*time.Second)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Give the shell a moment to start sleeping.
	time.Sleep(100 * time.Millisecond)
	w.Cancel(false)

	res := waitResult(t, w)
	if res.State != models.WorkerCancelled {
		t.Errorf("state = %s, want cancelled", res.State)
	}
}

func TestStreamingWorkerCancelForced(t *testing.T) {
	// Trap TERM so only SIGKILL can stop the script.
	script := writeScript(t, "trap '' TERM\nsleep 30\n")

	collector := &eventCollector{}
	w := NewStreamingWorker("w1", testTask(), models.WorkerClaude, script, nil, "", collector.emit, time.Second)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	w.Cancel(true)

	res := waitResult(t, w)
	if res.State != models.WorkerCancelled {
		t.Errorf("state = %s, want cancelled", res.State)
	}
}

func TestStreamingWorkerContextCancel(t *testing.T) {
	script := writeScript(t, "sleep 30\n")

	ctx, cancel := context.WithCancel(context.Background())
	collector := &eventCollector{}
	w := NewStreamingWorker("w1", testTask(), models.WorkerClaude, script, nil, "", collector.emit, 5*time.Second)

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	cancel()

	res := waitResult(t, w)
	if res.State != models.WorkerCancelled {
		t.Errorf("state = %s, want cancelled", res.State)
	}
}

func TestWorkerArgs(t *testing.T) {
	cases := []struct {
		kind models.WorkerKind
		last string
	}{
		{models.WorkerClaude, "do it"},
		{models.WorkerCodex, "do it"},
		{models.WorkerGemini, "do it"},
		{models.WorkerCursor, "do it"},
	}
	for _, c := range cases {
		args := WorkerArgs(c.kind, "do it", []string{"--extra"})
		if len(args) == 0 || args[len(args)-1] != c.last {
			t.Errorf("%s args = %v, want instructions last", c.kind, args)
		}
		found := false
		for _, a := range args {
			if a == "--extra" {
				found = true
			}
		}
		if !found {
			t.Errorf("%s args = %v, missing extra args", c.kind, args)
		}
	}
}
