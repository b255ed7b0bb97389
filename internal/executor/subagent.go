package executor

import (
	"context"
	"fmt"

	"github.com/crewkit/crew/internal/orchestrator"
	"github.com/crewkit/crew/pkg/models"
)

// SubagentExecutor runs independent steps concurrently in-process, bounded
// by a semaphore. Dependencies still serialize: a step starts only once all
// of its dependencies have completed.
type SubagentExecutor struct {
	runner        StepRunner
	events        *orchestrator.Broadcaster
	maxConcurrent int
}

// NewSubagentExecutor creates a concurrent in-process executor. maxConcurrent
// bounds simultaneously running steps; values below one are treated as one.
func NewSubagentExecutor(runner StepRunner, events *orchestrator.Broadcaster, maxConcurrent int) *SubagentExecutor {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &SubagentExecutor{
		runner:        runner,
		events:        events,
		maxConcurrent: maxConcurrent,
	}
}

// Verify SubagentExecutor implements PlanExecutor at compile time.
var _ PlanExecutor = (*SubagentExecutor)(nil)

// stepResult carries one finished step back to the scheduling loop.
type stepResult struct {
	taskID string
	err    error
}

// Execute runs the plan to a terminal status. The scheduling loop is the
// sole writer of graph and plan state; worker goroutines only run steps and
// report back.
func (e *SubagentExecutor) Execute(ctx context.Context, plan *models.TaskPlan) error {
	if plan.Status != models.PlanStatusApproved {
		return fmt.Errorf("plan %s is %s, not approved", plan.ID, plan.Status)
	}

	graph := orchestrator.NewDependencyGraph()
	if err := graph.Build(plan.Steps); err != nil {
		return fmt.Errorf("build dependency graph: %w", err)
	}

	plan.Status = models.PlanStatusRunning

	results := make(chan stepResult)
	inFlight := 0

	launch := func(task *models.Task) {
		markStarted(e.events, plan, task)
		inFlight++
		go func() {
			results <- stepResult{taskID: task.ID, err: e.runner.RunStep(ctx, task)}
		}()
	}

	for {
		if inFlight < e.maxConcurrent {
			for _, task := range graph.GetReady() {
				launch(task)
				if inFlight >= e.maxConcurrent {
					break
				}
			}
		}

		if inFlight == 0 {
			break
		}

		select {
		case res := <-results:
			inFlight--
			task := graph.GetTask(res.taskID)
			if res.err != nil {
				markFailed(e.events, plan, task, res.err)
				cascadeSkips(e.events, graph, plan, task.ID)
			} else {
				markCompleted(e.events, plan, task)
				graph.MarkComplete(task.ID)
			}
		case <-ctx.Done():
			// Let in-flight steps finish; their results are recorded but
			// nothing new starts.
			for inFlight > 0 {
				res := <-results
				inFlight--
				task := graph.GetTask(res.taskID)
				if res.err != nil {
					markFailed(e.events, plan, task, res.err)
					cascadeSkips(e.events, graph, plan, task.ID)
				} else {
					markCompleted(e.events, plan, task)
					graph.MarkComplete(task.ID)
				}
			}
			resolvePlan(e.events, plan)
			return ctx.Err()
		}
	}

	resolvePlan(e.events, plan)
	return nil
}
