package models

import "time"

// WorkerKind identifies a worker backend. The set is closed: crew itself via
// the claude CLI, plus the external CLI tools it knows how to drive.
type WorkerKind string

const (
	// WorkerClaude is the self-referential Claude Code CLI instance.
	WorkerClaude WorkerKind = "claude"
	// WorkerCodex is the OpenAI Codex CLI.
	WorkerCodex WorkerKind = "codex"
	// WorkerGemini is the Gemini CLI.
	WorkerGemini WorkerKind = "gemini"
	// WorkerCursor is the Cursor agent CLI.
	WorkerCursor WorkerKind = "cursor"
)

// AllWorkerKinds lists every known kind in enumeration order. The order is
// load-bearing: round-robin cycling and load-balanced tie-breaking follow it.
var AllWorkerKinds = []WorkerKind{WorkerClaude, WorkerCodex, WorkerGemini, WorkerCursor}

// Valid returns true if the kind is a known value.
func (k WorkerKind) Valid() bool {
	switch k {
	case WorkerClaude, WorkerCodex, WorkerGemini, WorkerCursor:
		return true
	default:
		return false
	}
}

// WorkerState represents the lifecycle state of a worker.
type WorkerState string

const (
	// WorkerStarting indicates the worker process is being launched.
	WorkerStarting WorkerState = "starting"
	// WorkerRunning indicates the worker process is executing.
	WorkerRunning WorkerState = "running"
	// WorkerCompleted indicates the worker process exited on its own.
	WorkerCompleted WorkerState = "completed"
	// WorkerFailed indicates the worker could not be spawned or crashed.
	WorkerFailed WorkerState = "failed"
	// WorkerCancelled indicates the worker was stopped by request.
	WorkerCancelled WorkerState = "cancelled"
)

// Terminal returns true if the state is a final state.
func (s WorkerState) Terminal() bool {
	switch s {
	case WorkerCompleted, WorkerFailed, WorkerCancelled:
		return true
	default:
		return false
	}
}

// Worker is the runtime record for one dispatched worker. The orchestration
// manager exclusively owns these records; workers report state transitions
// upward via events rather than being polled.
type Worker struct {
	// ID is the unique identifier for this worker.
	ID string `json:"id"`
	// StepID is the plan step this worker is executing.
	StepID string `json:"step_id"`
	// Kind is the worker backend.
	Kind WorkerKind `json:"kind"`
	// PID is the OS process ID, or 0 before the process starts.
	PID int `json:"pid,omitempty"`
	// State is the current lifecycle state.
	State WorkerState `json:"state"`
	// Success records the exit outcome once State is completed.
	Success bool `json:"success,omitempty"`
	// WorkspacePath is the isolated working directory, when worktrees are enabled.
	WorkspacePath string `json:"workspace_path,omitempty"`
	// StartedAt is when the worker was launched.
	StartedAt time.Time `json:"started_at"`
}

// Elapsed returns the time since the worker started.
func (w *Worker) Elapsed() time.Duration {
	if w.StartedAt.IsZero() {
		return 0
	}
	return time.Since(w.StartedAt)
}

// WorkerStrategy selects which worker kind runs a ready step.
type WorkerStrategy string

const (
	// StrategySingleWorker always uses the configured default worker.
	StrategySingleWorker WorkerStrategy = "single"
	// StrategyRoundRobin cycles through enabled workers in fixed order.
	StrategyRoundRobin WorkerStrategy = "round-robin"
	// StrategyTaskBased picks the most suitable enabled kind from step
	// content and complexity, falling back to the default.
	StrategyTaskBased WorkerStrategy = "task-based"
	// StrategyLoadBalanced picks the enabled kind with the fewest running
	// workers, ties broken by enumeration order.
	StrategyLoadBalanced WorkerStrategy = "load-balanced"
)

// Valid returns true if the strategy is a known value.
func (s WorkerStrategy) Valid() bool {
	switch s {
	case StrategySingleWorker, StrategyRoundRobin, StrategyTaskBased, StrategyLoadBalanced:
		return true
	default:
		return false
	}
}

// ExecutionMode governs how a plan's steps are carried out.
type ExecutionMode string

const (
	// ModeDirect runs steps sequentially in the current process.
	ModeDirect ExecutionMode = "direct"
	// ModeSubagent runs independent steps concurrently in-process.
	ModeSubagent ExecutionMode = "subagent"
	// ModeOrchestration runs steps as external worker processes.
	ModeOrchestration ExecutionMode = "orchestration"
)

// Valid returns true if the mode is a known value.
func (m ExecutionMode) Valid() bool {
	switch m {
	case ModeDirect, ModeSubagent, ModeOrchestration:
		return true
	default:
		return false
	}
}
