// Package models defines the core data types shared across crew.
package models

import "time"

// TaskStatus represents the current state of a plan step.
type TaskStatus string

const (
	// TaskStatusPending indicates the step has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning indicates the step is being worked on.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates the step completed successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the step failed.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusSkipped indicates the step was never started because an
	// upstream dependency failed.
	TaskStatusSkipped TaskStatus = "skipped"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is a final state.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// Complexity is the tier derived from a step's complexity score.
type Complexity string

const (
	// ComplexitySimple covers scores 0-30.
	ComplexitySimple Complexity = "simple"
	// ComplexityMedium covers scores 31-60.
	ComplexityMedium Complexity = "medium"
	// ComplexityComplex covers scores 61-100.
	ComplexityComplex Complexity = "complex"
)

// Assignment is the execution placement of a step.
type Assignment string

const (
	// AssignmentInline runs the step in the executing session itself.
	AssignmentInline Assignment = "inline"
	// AssignmentSubagent would hand the step to an in-process specialized
	// agent. Modeled but currently never assigned; see planner.AssignTask.
	AssignmentSubagent Assignment = "subagent"
	// AssignmentParallel would hand the step to an external parallel worker.
	// Modeled but currently never assigned; see planner.AssignTask.
	AssignmentParallel Assignment = "parallel"
)

// Task is one unit of work within a TaskPlan.
type Task struct {
	// ID is the unique identifier for this step, stable for the plan's lifetime.
	ID string `json:"id" yaml:"id"`
	// Description is the short human-readable summary.
	Description string `json:"description" yaml:"description"`
	// Instructions is the full instruction text handed to whatever executes the step.
	Instructions string `json:"instructions" yaml:"instructions"`
	// RelevantFiles lists path hints for the step, in order.
	RelevantFiles []string `json:"relevant_files,omitempty" yaml:"relevant_files,omitempty"`
	// DependsOn lists step IDs that must complete before this step may start.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	// PreferredWorker optionally hints which worker kind should run the step.
	PreferredWorker WorkerKind `json:"preferred_worker,omitempty" yaml:"preferred_worker,omitempty"`
	// Priority orders otherwise-ready steps; lower values are considered first.
	Priority int `json:"priority,omitempty" yaml:"priority,omitempty"`
	// ComplexityScore is the computed score in [0,100]. Never user-set.
	ComplexityScore int `json:"complexity_score" yaml:"complexity_score"`
	// Complexity is the tier derived from ComplexityScore.
	Complexity Complexity `json:"complexity" yaml:"complexity"`
	// Assignment is the execution placement for this step.
	Assignment Assignment `json:"assignment" yaml:"assignment"`
	// Status is the current state of the step.
	Status TaskStatus `json:"status" yaml:"status"`
	// Error contains the failure message when Status is failed.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
	// StartedAt is when the step began running, if it did.
	StartedAt *time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	// CompletedAt is when the step reached a terminal state, if it did.
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// PlanStatus represents the lifecycle state of a TaskPlan.
type PlanStatus string

const (
	// PlanStatusDraft indicates the plan is still being constructed.
	PlanStatusDraft PlanStatus = "draft"
	// PlanStatusAwaitingApproval indicates the plan is waiting for user approval.
	PlanStatusAwaitingApproval PlanStatus = "awaiting_approval"
	// PlanStatusApproved indicates the plan has been approved for execution.
	PlanStatusApproved PlanStatus = "approved"
	// PlanStatusRunning indicates the plan is executing.
	PlanStatusRunning PlanStatus = "running"
	// PlanStatusCompleted indicates every step completed successfully.
	PlanStatusCompleted PlanStatus = "completed"
	// PlanStatusRejected indicates the user rejected the plan.
	PlanStatusRejected PlanStatus = "rejected"
	// PlanStatusFailed indicates at least one step failed.
	PlanStatusFailed PlanStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s PlanStatus) Valid() bool {
	switch s {
	case PlanStatusDraft, PlanStatusAwaitingApproval, PlanStatusApproved,
		PlanStatusRunning, PlanStatusCompleted, PlanStatusRejected, PlanStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is a final state.
func (s PlanStatus) Terminal() bool {
	switch s {
	case PlanStatusCompleted, PlanStatusRejected, PlanStatusFailed:
		return true
	default:
		return false
	}
}

// TaskPlan is an ordered collection of steps plus plan-level status.
// The dependency graph over step IDs must be acyclic; a step may not depend
// on its own ID or on an ID not present in the plan. Once approved, the plan
// is immutable except for status and step-status transitions.
type TaskPlan struct {
	// ID is the unique identifier for this plan.
	ID string `json:"id" yaml:"id"`
	// Description summarizes the request the plan was built from.
	Description string `json:"description" yaml:"description"`
	// Mode is the execution mode the plan was built for.
	Mode ExecutionMode `json:"mode" yaml:"mode"`
	// Steps are the plan steps in declaration order.
	Steps []*Task `json:"steps" yaml:"steps"`
	// Status is the current lifecycle state of the plan.
	Status PlanStatus `json:"status" yaml:"status"`
	// CreatedAt is when the plan was produced.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Step returns the step with the given ID, or nil if not present.
func (p *TaskPlan) Step(id string) *Task {
	for _, t := range p.Steps {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Resolve sets the plan's terminal status from its step outcomes: completed
// only if every step completed, failed otherwise.
func (p *TaskPlan) Resolve() {
	for _, t := range p.Steps {
		if t.Status != TaskStatusCompleted {
			p.Status = PlanStatusFailed
			return
		}
	}
	p.Status = PlanStatusCompleted
}
