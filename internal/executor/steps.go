package executor

import (
	"time"

	"github.com/crewkit/crew/internal/orchestrator"
	"github.com/crewkit/crew/pkg/models"
)

// markStarted transitions a step to running and emits the start event.
func markStarted(events *orchestrator.Broadcaster, plan *models.TaskPlan, task *models.Task) {
	now := time.Now()
	task.Status = models.TaskStatusRunning
	task.StartedAt = &now
	events.Publish(orchestrator.Event{
		Type:            orchestrator.EventStepStarted,
		PlanID:          plan.ID,
		StepID:          task.ID,
		StepDescription: task.Description,
	})
}

// markCompleted transitions a step to completed and emits the event.
func markCompleted(events *orchestrator.Broadcaster, plan *models.TaskPlan, task *models.Task) {
	now := time.Now()
	task.Status = models.TaskStatusCompleted
	task.CompletedAt = &now
	events.Publish(orchestrator.Event{
		Type:            orchestrator.EventStepCompleted,
		PlanID:          plan.ID,
		StepID:          task.ID,
		StepDescription: task.Description,
	})
}

// markFailed transitions a step to failed, records the error, and emits the
// event.
func markFailed(events *orchestrator.Broadcaster, plan *models.TaskPlan, task *models.Task, err error) {
	now := time.Now()
	task.Status = models.TaskStatusFailed
	task.CompletedAt = &now
	if err != nil {
		task.Error = err.Error()
	}
	events.Publish(orchestrator.Event{
		Type:            orchestrator.EventStepFailed,
		PlanID:          plan.ID,
		StepID:          task.ID,
		StepDescription: task.Description,
		Err:             err,
	})
}

// cascadeSkips marks every transitive dependent of a failed step as skipped
// and emits one event per skipped step.
func cascadeSkips(events *orchestrator.Broadcaster, graph *orchestrator.DependencyGraph, plan *models.TaskPlan, failedID string) {
	now := time.Now()
	for _, id := range graph.MarkFailed(failedID) {
		task := plan.Step(id)
		if task == nil {
			continue
		}
		task.CompletedAt = &now
		events.Publish(orchestrator.Event{
			Type:            orchestrator.EventStepSkipped,
			PlanID:          plan.ID,
			StepID:          id,
			StepDescription: task.Description,
			Message:         "skipped: dependency " + failedID + " failed",
		})
	}
}

// resolvePlan sets the plan's terminal status and emits the plan_done event.
// Exactly one plan_done event is emitted per execution.
func resolvePlan(events *orchestrator.Broadcaster, plan *models.TaskPlan) {
	plan.Resolve()
	events.Publish(orchestrator.Event{
		Type:    orchestrator.EventPlanDone,
		PlanID:  plan.ID,
		Message: string(plan.Status),
	})
}
