package orchestrator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/crewkit/crew/pkg/models"
)

// heartbeatInterval is how often a running worker emits a heartbeat event,
// distinguishing "slow but alive" from "hung".
const heartbeatInterval = 15 * time.Second

// WorkerResult is the terminal outcome of one streaming worker.
type WorkerResult struct {
	// WorkerID is the worker that finished.
	WorkerID string
	// StepID is the plan step the worker was executing.
	StepID string
	// State is the terminal worker state.
	State models.WorkerState
	// Success is true when the process exited with code zero.
	Success bool
	// Err describes the failure for spawn errors and crashes.
	Err error
}

// StreamingWorker supervises one external process executing one plan step.
// It captures stdout/stderr as a live event stream, emits heartbeats, detects
// completion or failure, and supports graceful-then-forced cancellation.
//
// State machine: starting -> running -> {completed, failed, cancelled}.
type StreamingWorker struct {
	id      string
	stepID  string
	kind    models.WorkerKind
	cliPath string
	args    []string
	workDir string

	emit  func(Event)
	grace time.Duration

	cmd      *exec.Cmd
	resultCh chan WorkerResult

	mu        sync.Mutex
	state     models.WorkerState
	cancelled bool
	wg        sync.WaitGroup
}

// NewStreamingWorker creates a worker for one step. emit receives every
// output, heartbeat, and state-change event; grace bounds the window between
// the terminate signal and a forced kill during cancellation.
func NewStreamingWorker(id string, task *models.Task, kind models.WorkerKind, cliPath string, extraArgs []string, workDir string, emit func(Event), grace time.Duration) *StreamingWorker {
	return &StreamingWorker{
		id:       id,
		stepID:   task.ID,
		kind:     kind,
		cliPath:  cliPath,
		args:     WorkerArgs(kind, task.Instructions, extraArgs),
		workDir:  workDir,
		emit:     emit,
		grace:    grace,
		state:    models.WorkerStarting,
		resultCh: make(chan WorkerResult, 1),
	}
}

// WorkerArgs constructs the CLI arguments for a worker kind. Each kind has
// its own non-interactive invocation shape; extra args come from config.
func WorkerArgs(kind models.WorkerKind, instructions string, extra []string) []string {
	var args []string
	switch kind {
	case models.WorkerClaude:
		args = []string{"--print", "--dangerously-skip-permissions"}
		args = append(args, extra...)
		args = append(args, "-p", instructions)
	case models.WorkerCodex:
		args = []string{"exec", "--full-auto"}
		args = append(args, extra...)
		args = append(args, instructions)
	case models.WorkerGemini:
		args = []string{"--yolo"}
		args = append(args, extra...)
		args = append(args, "-p", instructions)
	case models.WorkerCursor:
		args = []string{"--print"}
		args = append(args, extra...)
		args = append(args, instructions)
	default:
		args = append(extra, instructions)
	}
	return args
}

// Start spawns the worker process. A spawn failure (binary missing,
// permission denied) resolves the worker as failed immediately and is never
// retried here; siblings are unaffected.
func (w *StreamingWorker) Start(ctx context.Context) error {
	w.cmd = exec.Command(w.cliPath, w.args...)
	if w.workDir != "" {
		w.cmd.Dir = w.workDir
	}
	// Own process group so cancellation reaps the whole tree, not just the
	// immediate child.
	w.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := w.cmd.StdoutPipe()
	if err != nil {
		return w.failStart(fmt.Errorf("create stdout pipe: %w", err))
	}
	stderr, err := w.cmd.StderrPipe()
	if err != nil {
		return w.failStart(fmt.Errorf("create stderr pipe: %w", err))
	}

	if err := w.cmd.Start(); err != nil {
		return w.failStart(fmt.Errorf("spawn %s: %w", w.cliPath, err))
	}

	w.setState(models.WorkerRunning)

	w.wg.Add(2)
	go w.readStream(stdout, "stdout")
	go w.readStream(stderr, "stderr")

	go w.supervise(ctx)

	return nil
}

// failStart resolves a worker that never got a process.
func (w *StreamingWorker) failStart(err error) error {
	w.setState(models.WorkerFailed)
	w.resultCh <- WorkerResult{
		WorkerID: w.id,
		StepID:   w.stepID,
		State:    models.WorkerFailed,
		Err:      err,
	}
	close(w.resultCh)
	return err
}

// readStream scans one output stream and emits each line immediately.
// The scanner buffer bounds line length; beyond that lines are split.
func (w *StreamingWorker) readStream(r io.Reader, name string) {
	defer w.wg.Done()

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		w.emit(Event{
			Type:     EventWorkerOutput,
			WorkerID: w.id,
			StepID:   w.stepID,
			Kind:     w.kind,
			Line:     scanner.Text(),
			Stream:   name,
		})
	}
}

// supervise waits for the process to exit, emitting heartbeats while it
// runs, and resolves the worker's terminal state.
func (w *StreamingWorker) supervise(ctx context.Context) {
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	waitDone := make(chan error, 1)
	go func() {
		w.wg.Wait() // drain pipes before Wait closes them
		waitDone <- w.cmd.Wait()
	}()

	for {
		select {
		case <-heartbeat.C:
			w.emit(Event{
				Type:     EventWorkerHeartbeat,
				WorkerID: w.id,
				StepID:   w.stepID,
				Kind:     w.kind,
			})
		case <-ctx.Done():
			// Context cancellation follows the same graceful-then-forced
			// path as an explicit Cancel.
			w.terminate()
			err := <-waitDone
			w.resolve(err)
			return
		case err := <-waitDone:
			w.resolve(err)
			return
		}
	}
}

// resolve converts the process exit into a terminal worker state and result.
func (w *StreamingWorker) resolve(waitErr error) {
	w.mu.Lock()
	cancelled := w.cancelled
	w.mu.Unlock()

	result := WorkerResult{
		WorkerID: w.id,
		StepID:   w.stepID,
	}

	switch {
	case cancelled:
		result.State = models.WorkerCancelled
	case waitErr == nil:
		result.State = models.WorkerCompleted
		result.Success = true
	default:
		if _, ok := waitErr.(*exec.ExitError); ok {
			// Non-zero exit is a completed-but-unsuccessful run.
			result.State = models.WorkerCompleted
			result.Err = fmt.Errorf("worker exited with error: %w", waitErr)
		} else {
			result.State = models.WorkerFailed
			result.Err = fmt.Errorf("worker crashed: %w", waitErr)
		}
	}

	w.setState(result.State)
	w.resultCh <- result
	close(w.resultCh)
}

// Cancel stops the worker: a terminate signal to the process group first,
// then a forced kill if it has not exited within the grace period. The
// process group is always reaped.
func (w *StreamingWorker) Cancel(force bool) {
	w.mu.Lock()
	if w.cancelled || w.state.Terminal() {
		w.mu.Unlock()
		return
	}
	w.cancelled = true
	w.mu.Unlock()

	if force {
		w.kill()
		return
	}
	w.terminate()
}

// terminate sends SIGTERM to the process group and arms the forced-kill timer.
func (w *StreamingWorker) terminate() {
	w.mu.Lock()
	w.cancelled = true
	w.mu.Unlock()

	pgid := w.pgid()
	if pgid <= 0 {
		return
	}
	_ = syscall.Kill(-pgid, syscall.SIGTERM)

	grace := w.grace
	if grace <= 0 {
		grace = 10 * time.Second
	}
	time.AfterFunc(grace, func() {
		w.mu.Lock()
		terminal := w.state.Terminal()
		w.mu.Unlock()
		if !terminal {
			w.kill()
		}
	})
}

// kill sends SIGKILL to the process group.
func (w *StreamingWorker) kill() {
	pgid := w.pgid()
	if pgid <= 0 {
		return
	}
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
}

// pgid returns the worker's process group ID, or 0 before the process starts.
func (w *StreamingWorker) pgid() int {
	if w.cmd == nil || w.cmd.Process == nil {
		return 0
	}
	pgid, err := syscall.Getpgid(w.cmd.Process.Pid)
	if err != nil {
		return w.cmd.Process.Pid
	}
	return pgid
}

// PID returns the process ID of the subprocess, or 0 if not started.
func (w *StreamingWorker) PID() int {
	if w.cmd != nil && w.cmd.Process != nil {
		return w.cmd.Process.Pid
	}
	return 0
}

// Result returns the channel carrying the worker's terminal result.
// The channel receives exactly one value and is then closed.
func (w *StreamingWorker) Result() <-chan WorkerResult {
	return w.resultCh
}

// State returns the worker's current lifecycle state.
func (w *StreamingWorker) State() models.WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// setState records a state transition and emits a state-change event.
func (w *StreamingWorker) setState(state models.WorkerState) {
	w.mu.Lock()
	w.state = state
	w.mu.Unlock()

	w.emit(Event{
		Type:     EventWorkerStateChanged,
		WorkerID: w.id,
		StepID:   w.stepID,
		Kind:     w.kind,
		State:    state,
	})
}
