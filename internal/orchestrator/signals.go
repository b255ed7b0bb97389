package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

const (
	stopSignalFile      = "stop"
	forceStopSignalFile = "stop-force"
	pauseSignalFile     = "pause"
)

// SignalWatcher watches the repo's .crew/signals directory for control files.
// Dropping a "stop" file requests a graceful stop of the run; "stop-force"
// requests an immediate kill of all workers; "pause" holds back new dispatches
// until the file is removed. This lets `crew stop` and external tooling steer
// a running orchestrator without IPC.
type SignalWatcher struct {
	dir     string
	watcher *fsnotify.Watcher

	mu     sync.Mutex
	stop   bool
	force  bool
	paused bool

	stopCh chan struct{}
	done   chan struct{}
}

// NewSignalWatcher creates a watcher over <repoPath>/.crew/signals, creating
// the directory if needed. Signal files left over from a previous run are
// honored immediately.
func NewSignalWatcher(repoPath string) (*SignalWatcher, error) {
	dir := filepath.Join(repoPath, ".crew", "signals")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create signals directory: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch signals directory: %w", err)
	}

	sw := &SignalWatcher{
		dir:     dir,
		watcher: fw,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}

	sw.scan()
	go sw.loop()

	return sw, nil
}

// loop processes filesystem events until the watcher is closed.
func (sw *SignalWatcher) loop() {
	defer close(sw.done)
	for {
		select {
		case ev, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				sw.scan()
			}
		case _, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// scan re-reads the signal directory and updates state.
func (sw *SignalWatcher) scan() {
	stopExists := fileExists(filepath.Join(sw.dir, stopSignalFile))
	forceExists := fileExists(filepath.Join(sw.dir, forceStopSignalFile))
	pauseExists := fileExists(filepath.Join(sw.dir, pauseSignalFile))

	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.paused = pauseExists

	if forceExists {
		sw.force = true
	}
	if (stopExists || forceExists) && !sw.stop {
		sw.stop = true
		debugLog("stop signal file detected in %s (force=%v)", sw.dir, forceExists)
		close(sw.stopCh)
	}
}

// ShouldStop returns true once a stop signal has been seen. A stop is sticky
// for the lifetime of the watcher.
func (sw *SignalWatcher) ShouldStop() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.stop
}

// StopRequested returns a channel closed when a stop signal arrives.
func (sw *SignalWatcher) StopRequested() <-chan struct{} {
	return sw.stopCh
}

// StopForced returns true once a force-stop signal has been seen. Like stop,
// force is sticky for the lifetime of the watcher.
func (sw *SignalWatcher) StopForced() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.force
}

// Paused returns true while a pause signal file is present.
func (sw *SignalWatcher) Paused() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.paused
}

// Clear removes any signal files so a finished run does not stop the next one.
func (sw *SignalWatcher) Clear() {
	os.Remove(filepath.Join(sw.dir, stopSignalFile))
	os.Remove(filepath.Join(sw.dir, forceStopSignalFile))
	os.Remove(filepath.Join(sw.dir, pauseSignalFile))
}

// Close stops watching. Signal files are left in place.
func (sw *SignalWatcher) Close() error {
	err := sw.watcher.Close()
	<-sw.done
	return err
}

// WriteStopSignal drops a stop file into the repo's signals directory. With
// force false the running orchestrator terminates workers gracefully; with
// force true workers are killed immediately.
func WriteStopSignal(repoPath string, force bool) error {
	dir := filepath.Join(repoPath, ".crew", "signals")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create signals directory: %w", err)
	}
	name := stopSignalFile
	if force {
		name = forceStopSignalFile
	}
	return os.WriteFile(filepath.Join(dir, name), []byte(name+"\n"), 0644)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
