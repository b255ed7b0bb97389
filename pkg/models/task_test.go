package models

import (
	"testing"
	"time"
)

func TestTaskStatusTerminal(t *testing.T) {
	terminal := []TaskStatus{TaskStatusCompleted, TaskStatusFailed, TaskStatusSkipped}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}

	active := []TaskStatus{TaskStatusPending, TaskStatusRunning}
	for _, s := range active {
		if s.Terminal() {
			t.Errorf("expected %s to not be terminal", s)
		}
	}
}

func TestTaskStatusValid(t *testing.T) {
	if !TaskStatusPending.Valid() {
		t.Error("pending should be valid")
	}
	if TaskStatus("bogus").Valid() {
		t.Error("bogus status should not be valid")
	}
}

func TestPlanStep(t *testing.T) {
	plan := &TaskPlan{
		Steps: []*Task{
			{ID: "p1-step-1"},
			{ID: "p1-step-2"},
		},
	}

	if got := plan.Step("p1-step-2"); got == nil || got.ID != "p1-step-2" {
		t.Errorf("Step returned %v, want p1-step-2", got)
	}
	if got := plan.Step("missing"); got != nil {
		t.Errorf("Step for unknown ID returned %v, want nil", got)
	}
}

func TestPlanResolve(t *testing.T) {
	plan := &TaskPlan{
		Status: PlanStatusRunning,
		Steps: []*Task{
			{ID: "a", Status: TaskStatusCompleted},
			{ID: "b", Status: TaskStatusCompleted},
		},
	}
	plan.Resolve()
	if plan.Status != PlanStatusCompleted {
		t.Errorf("all steps completed: status = %s, want completed", plan.Status)
	}

	plan = &TaskPlan{
		Status: PlanStatusRunning,
		Steps: []*Task{
			{ID: "a", Status: TaskStatusCompleted},
			{ID: "b", Status: TaskStatusFailed},
			{ID: "c", Status: TaskStatusSkipped},
		},
	}
	plan.Resolve()
	if plan.Status != PlanStatusFailed {
		t.Errorf("with failed step: status = %s, want failed", plan.Status)
	}
}

func TestWorkerElapsed(t *testing.T) {
	w := &Worker{}
	if w.Elapsed() != 0 {
		t.Error("elapsed for unstarted worker should be zero")
	}

	w.StartedAt = time.Now().Add(-time.Minute)
	if w.Elapsed() < time.Minute {
		t.Errorf("elapsed = %s, want at least 1m", w.Elapsed())
	}
}

func TestWorkerKindValid(t *testing.T) {
	for _, k := range AllWorkerKinds {
		if !k.Valid() {
			t.Errorf("kind %s should be valid", k)
		}
	}
	if WorkerKind("copilot").Valid() {
		t.Error("unknown kind should not be valid")
	}
}

func TestExecutionModeValid(t *testing.T) {
	for _, m := range []ExecutionMode{ModeDirect, ModeSubagent, ModeOrchestration} {
		if !m.Valid() {
			t.Errorf("mode %s should be valid", m)
		}
	}
	if ExecutionMode("turbo").Valid() {
		t.Error("unknown mode should not be valid")
	}
}
