package orchestrator

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSignalWatcherStop(t *testing.T) {
	repo := t.TempDir()

	sw, err := NewSignalWatcher(repo)
	if err != nil {
		t.Fatalf("NewSignalWatcher: %v", err)
	}
	defer sw.Close()

	if sw.ShouldStop() {
		t.Fatal("fresh watcher should not report stop")
	}

	if err := WriteStopSignal(repo, false); err != nil {
		t.Fatalf("WriteStopSignal: %v", err)
	}

	select {
	case <-sw.StopRequested():
	case <-time.After(5 * time.Second):
		t.Fatal("stop signal not observed")
	}
	if !sw.ShouldStop() {
		t.Error("ShouldStop should report true after the signal")
	}
}

func TestSignalWatcherPreexistingStop(t *testing.T) {
	repo := t.TempDir()
	if err := WriteStopSignal(repo, false); err != nil {
		t.Fatalf("WriteStopSignal: %v", err)
	}

	sw, err := NewSignalWatcher(repo)
	if err != nil {
		t.Fatalf("NewSignalWatcher: %v", err)
	}
	defer sw.Close()

	if !sw.ShouldStop() {
		t.Error("stop file present at startup should be honored")
	}
}

func TestSignalWatcherForceStop(t *testing.T) {
	repo := t.TempDir()

	sw, err := NewSignalWatcher(repo)
	if err != nil {
		t.Fatalf("NewSignalWatcher: %v", err)
	}
	defer sw.Close()

	if err := WriteStopSignal(repo, true); err != nil {
		t.Fatalf("WriteStopSignal: %v", err)
	}

	select {
	case <-sw.StopRequested():
	case <-time.After(5 * time.Second):
		t.Fatal("force stop signal not observed")
	}
	if !sw.ShouldStop() {
		t.Error("force stop should also report ShouldStop")
	}
	if !sw.StopForced() {
		t.Error("StopForced should report true after a force stop signal")
	}
}

func TestSignalWatcherGracefulStopIsNotForced(t *testing.T) {
	repo := t.TempDir()

	sw, err := NewSignalWatcher(repo)
	if err != nil {
		t.Fatalf("NewSignalWatcher: %v", err)
	}
	defer sw.Close()

	if err := WriteStopSignal(repo, false); err != nil {
		t.Fatal(err)
	}
	select {
	case <-sw.StopRequested():
	case <-time.After(5 * time.Second):
		t.Fatal("stop signal not observed")
	}
	if sw.StopForced() {
		t.Error("graceful stop must not report StopForced")
	}
}

func TestSignalWatcherPause(t *testing.T) {
	repo := t.TempDir()

	sw, err := NewSignalWatcher(repo)
	if err != nil {
		t.Fatalf("NewSignalWatcher: %v", err)
	}
	defer sw.Close()

	pausePath := filepath.Join(repo, ".crew", "signals", "pause")
	if err := os.WriteFile(pausePath, nil, 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for !sw.Paused() {
		if time.Now().After(deadline) {
			t.Fatal("pause signal not observed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := os.Remove(pausePath); err != nil {
		t.Fatal(err)
	}
	deadline = time.Now().Add(5 * time.Second)
	for sw.Paused() {
		if time.Now().After(deadline) {
			t.Fatal("pause removal not observed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSignalWatcherClear(t *testing.T) {
	repo := t.TempDir()

	sw, err := NewSignalWatcher(repo)
	if err != nil {
		t.Fatalf("NewSignalWatcher: %v", err)
	}
	defer sw.Close()

	if err := WriteStopSignal(repo, false); err != nil {
		t.Fatal(err)
	}
	if err := WriteStopSignal(repo, true); err != nil {
		t.Fatal(err)
	}
	sw.Clear()

	for _, name := range []string{"stop", "stop-force"} {
		if _, err := os.Stat(filepath.Join(repo, ".crew", "signals", name)); !os.IsNotExist(err) {
			t.Errorf("Clear should remove the %s file", name)
		}
	}
}
