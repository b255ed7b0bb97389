package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crewkit/crew/internal/orchestrator"
	"github.com/crewkit/crew/pkg/models"
)

// scheduleTick is the fallback re-scheduling interval. Scheduling is
// primarily completion-driven; the tick covers stagger expiry and external
// signal changes.
const scheduleTick = 500 * time.Millisecond

// OrchestrationExecutor runs plan steps as external worker processes through
// the orchestration manager. Ready steps are dispatched up to the admission
// limits; completions unblock dependents and trigger re-scheduling.
type OrchestrationExecutor struct {
	manager *orchestrator.Manager
	events  *orchestrator.Broadcaster
	signals *orchestrator.SignalWatcher
	logger  *orchestrator.DebugLogger
}

// NewOrchestrationExecutor creates an executor over the given manager.
// signals may be nil when external stop/pause control is not wanted.
func NewOrchestrationExecutor(manager *orchestrator.Manager, signals *orchestrator.SignalWatcher, logger *orchestrator.DebugLogger) *OrchestrationExecutor {
	if logger == nil {
		logger = orchestrator.NopLogger()
	}
	return &OrchestrationExecutor{
		manager: manager,
		events:  manager.Events(),
		signals: signals,
		logger:  logger,
	}
}

// Verify OrchestrationExecutor implements PlanExecutor at compile time.
var _ PlanExecutor = (*OrchestrationExecutor)(nil)

// Execute runs the plan to a terminal status. The loop is the single writer
// of plan and graph state; workers report outcomes through the manager's
// results channel.
func (e *OrchestrationExecutor) Execute(ctx context.Context, plan *models.TaskPlan) error {
	if plan.Status != models.PlanStatusApproved {
		return fmt.Errorf("plan %s is %s, not approved", plan.ID, plan.Status)
	}

	graph := orchestrator.NewDependencyGraph()
	if err := graph.Build(plan.Steps); err != nil {
		return fmt.Errorf("build dependency graph: %w", err)
	}

	plan.Status = models.PlanStatusRunning
	e.logger.Log("plan %s started: %d steps", plan.ID, len(plan.Steps))

	stepWorkers := make(map[string]string)
	var stopDone chan struct{}

	beginStop := func() {
		if stopDone != nil {
			return
		}
		force := e.signals != nil && e.signals.StopForced()
		e.logger.Log("plan %s: stop requested (force=%v), cancelling active workers", plan.ID, force)
		stopDone = make(chan struct{})
		go func() {
			// StopAll returns once every cancelled worker has resolved and
			// queued its result.
			e.manager.StopAll(force)
			close(stopDone)
		}()
	}

	ticker := time.NewTicker(scheduleTick)
	defer ticker.Stop()

	for !graph.Done() {
		if e.shouldStop(ctx) {
			beginStop()
		}

		if stopDone == nil && !e.paused() {
			e.dispatchReady(ctx, graph, plan, stepWorkers)
		}

		if stopDone != nil {
			select {
			case <-stopDone:
				e.drainResults(graph, plan)
				e.failRemaining(graph, plan, "stopped before execution")
			case result := <-e.manager.Results():
				e.recordResult(graph, plan, result)
				continue
			}
			break
		}

		select {
		case result := <-e.manager.Results():
			e.recordResult(graph, plan, result)
		case <-ticker.C:
		case <-ctx.Done():
			beginStop()
		}
	}

	resolvePlan(e.events, plan)
	e.logger.Log("plan %s finished: %s", plan.ID, plan.Status)

	if stopDone != nil {
		return context.Canceled
	}
	return nil
}

// shouldStop reports whether the run should wind down.
func (e *OrchestrationExecutor) shouldStop(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return e.signals != nil && e.signals.ShouldStop()
}

// paused reports whether new dispatches are held back.
func (e *OrchestrationExecutor) paused() bool {
	return e.signals != nil && e.signals.Paused()
}

// dispatchReady launches workers for ready steps until admission control
// pushes back.
func (e *OrchestrationExecutor) dispatchReady(ctx context.Context, graph *orchestrator.DependencyGraph, plan *models.TaskPlan, stepWorkers map[string]string) {
	for _, task := range graph.GetReady() {
		workerID, err := e.manager.Dispatch(ctx, task)
		if errors.Is(err, orchestrator.ErrNoCapacity) {
			return
		}
		if err != nil {
			// Setup failures (selection, worktree) fail the step itself.
			markFailed(e.events, plan, task, err)
			cascadeSkips(e.events, graph, plan, task.ID)
			continue
		}

		stepWorkers[task.ID] = workerID
		e.events.Publish(orchestrator.Event{
			Type:            orchestrator.EventStepStarted,
			PlanID:          plan.ID,
			StepID:          task.ID,
			StepDescription: task.Description,
			WorkerID:        workerID,
		})
	}
}

// drainResults records outcomes already queued from cancelled workers so no
// step is left in the running state after a stop.
func (e *OrchestrationExecutor) drainResults(graph *orchestrator.DependencyGraph, plan *models.TaskPlan) {
	for {
		select {
		case result := <-e.manager.Results():
			e.recordResult(graph, plan, result)
		default:
			return
		}
	}
}

// recordResult folds one worker outcome back into the plan.
func (e *OrchestrationExecutor) recordResult(graph *orchestrator.DependencyGraph, plan *models.TaskPlan, result orchestrator.WorkerResult) {
	task := graph.GetTask(result.StepID)
	if task == nil {
		return
	}

	if result.Success {
		markCompleted(e.events, plan, task)
		graph.MarkComplete(task.ID)
		return
	}

	err := result.Err
	if err == nil {
		err = fmt.Errorf("worker %s ended in state %s", result.WorkerID, result.State)
	}
	markFailed(e.events, plan, task, err)
	cascadeSkips(e.events, graph, plan, task.ID)
}

// failRemaining marks still-pending steps as skipped when a stop cuts the
// run short, so the plan reaches a terminal state.
func (e *OrchestrationExecutor) failRemaining(graph *orchestrator.DependencyGraph, plan *models.TaskPlan, reason string) {
	now := time.Now()
	for _, task := range plan.Steps {
		if task.Status.Terminal() || task.Status == models.TaskStatusRunning {
			continue
		}
		task.Status = models.TaskStatusSkipped
		task.CompletedAt = &now
		e.events.Publish(orchestrator.Event{
			Type:            orchestrator.EventStepSkipped,
			PlanID:          plan.ID,
			StepID:          task.ID,
			StepDescription: task.Description,
			Message:         "skipped: " + reason,
		})
	}
}
