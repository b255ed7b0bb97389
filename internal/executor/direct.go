package executor

import (
	"context"
	"fmt"

	"github.com/crewkit/crew/internal/orchestrator"
	"github.com/crewkit/crew/pkg/models"
)

// DirectExecutor runs a plan's steps one at a time in dependency order.
// A failed step fails the plan and skips every transitive dependent; steps
// with no path from the failure still run.
type DirectExecutor struct {
	runner StepRunner
	events *orchestrator.Broadcaster
}

// NewDirectExecutor creates a sequential executor.
func NewDirectExecutor(runner StepRunner, events *orchestrator.Broadcaster) *DirectExecutor {
	return &DirectExecutor{runner: runner, events: events}
}

// Verify DirectExecutor implements PlanExecutor at compile time.
var _ PlanExecutor = (*DirectExecutor)(nil)

// Execute runs the plan to a terminal status.
func (e *DirectExecutor) Execute(ctx context.Context, plan *models.TaskPlan) error {
	if plan.Status != models.PlanStatusApproved {
		return fmt.Errorf("plan %s is %s, not approved", plan.ID, plan.Status)
	}

	graph := orchestrator.NewDependencyGraph()
	if err := graph.Build(plan.Steps); err != nil {
		return fmt.Errorf("build dependency graph: %w", err)
	}

	order, err := graph.TopologicalSort()
	if err != nil {
		return fmt.Errorf("order steps: %w", err)
	}

	plan.Status = models.PlanStatusRunning

	for _, id := range order {
		if err := ctx.Err(); err != nil {
			resolvePlan(e.events, plan)
			return err
		}

		task := graph.GetTask(id)
		if task.Status != models.TaskStatusPending {
			// Already skipped by an upstream failure.
			continue
		}

		markStarted(e.events, plan, task)

		if err := e.runner.RunStep(ctx, task); err != nil {
			markFailed(e.events, plan, task, err)
			cascadeSkips(e.events, graph, plan, task.ID)
			continue
		}

		markCompleted(e.events, plan, task)
		graph.MarkComplete(task.ID)
	}

	resolvePlan(e.events, plan)
	return nil
}
