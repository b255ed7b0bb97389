// Package executor runs approved plans under one of the execution modes.
package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/crewkit/crew/pkg/models"
)

// PlanExecutor executes an approved plan to a terminal status. Execute
// returns an error only for setup failures; step failures are recorded on
// the plan itself.
type PlanExecutor interface {
	Execute(ctx context.Context, plan *models.TaskPlan) error
}

// StepRunner executes one step in-process. Direct and subagent executors run
// steps through a StepRunner instead of spawning supervised workers.
type StepRunner interface {
	RunStep(ctx context.Context, task *models.Task) error
}

// ErrNoExecutor indicates no executor is registered for the requested mode.
// A misconfigured mode surfaces here before any step runs; there is no
// silent fallback to a different mode.
type ErrNoExecutor struct {
	Mode models.ExecutionMode
}

func (e *ErrNoExecutor) Error() string {
	return fmt.Sprintf("no executor registered for mode %q", e.Mode)
}

// Registry maps execution modes to their executors.
type Registry struct {
	mu        sync.RWMutex
	executors map[models.ExecutionMode]PlanExecutor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[models.ExecutionMode]PlanExecutor),
	}
}

// Register binds an executor to a mode, replacing any previous binding.
func (r *Registry) Register(mode models.ExecutionMode, ex PlanExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[mode] = ex
}

// For returns the executor for a mode, or ErrNoExecutor if none is registered.
func (r *Registry) For(mode models.ExecutionMode) (PlanExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ex, ok := r.executors[mode]
	if !ok {
		return nil, &ErrNoExecutor{Mode: mode}
	}
	return ex, nil
}

// Modes returns the registered modes in enumeration order.
func (r *Registry) Modes() []models.ExecutionMode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var modes []models.ExecutionMode
	for _, m := range []models.ExecutionMode{models.ModeDirect, models.ModeSubagent, models.ModeOrchestration} {
		if _, ok := r.executors[m]; ok {
			modes = append(modes, m)
		}
	}
	return modes
}
