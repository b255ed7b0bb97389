package planner

import (
	"context"
	"strings"
	"testing"

	"github.com/crewkit/crew/pkg/models"
)

func TestHeuristicPlanEmptyRequest(t *testing.T) {
	p := NewHeuristicPlanner()
	if _, err := p.Plan(context.Background(), "   ", models.ModeDirect); err == nil {
		t.Fatal("expected error for empty request")
	}
}

func TestHeuristicPlanSingleClause(t *testing.T) {
	p := NewHeuristicPlanner()
	plan, err := p.Plan(context.Background(), "Fix the login bug", models.ModeDirect)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	if len(plan.Steps) != 1 {
		t.Fatalf("got %d steps, want 1", len(plan.Steps))
	}
	if plan.Status != models.PlanStatusDraft {
		t.Errorf("status = %s, want draft", plan.Status)
	}
	if plan.Mode != models.ModeDirect {
		t.Errorf("mode = %s, want direct", plan.Mode)
	}
	step := plan.Steps[0]
	if step.ComplexityScore == 0 {
		t.Error("step should be scored")
	}
	if !strings.HasPrefix(step.ID, plan.ID+"-step-") {
		t.Errorf("step ID %q should be derived from plan ID %q", step.ID, plan.ID)
	}
}

func TestHeuristicPlanDirectChains(t *testing.T) {
	p := NewHeuristicPlanner()
	plan, err := p.Plan(context.Background(), "Add the endpoint; then write tests; then update the docs", models.ModeDirect)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	if len(plan.Steps) != 3 {
		t.Fatalf("got %d steps, want 3", len(plan.Steps))
	}
	if len(plan.Steps[0].DependsOn) != 0 {
		t.Errorf("first step should have no deps, got %v", plan.Steps[0].DependsOn)
	}
	for i := 1; i < len(plan.Steps); i++ {
		deps := plan.Steps[i].DependsOn
		if len(deps) != 1 || deps[0] != plan.Steps[i-1].ID {
			t.Errorf("step %d deps = %v, want [%s]", i, deps, plan.Steps[i-1].ID)
		}
	}
}

func TestHeuristicPlanParallelAddsIntegrationStep(t *testing.T) {
	p := NewHeuristicPlanner()
	plan, err := p.Plan(context.Background(), "Update the parser; update the printer", models.ModeOrchestration)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	// Two clause steps plus one integration step.
	if len(plan.Steps) != 3 {
		t.Fatalf("got %d steps, want 3", len(plan.Steps))
	}

	for _, step := range plan.Steps[:2] {
		if len(step.DependsOn) != 0 {
			t.Errorf("clause step %s should be independent, deps = %v", step.ID, step.DependsOn)
		}
	}

	last := plan.Steps[2]
	if len(last.DependsOn) != 2 {
		t.Fatalf("integration step deps = %v, want both clause steps", last.DependsOn)
	}
}

func TestHeuristicPlanNumberedList(t *testing.T) {
	p := NewHeuristicPlanner()
	request := "1. Create the schema\n2. Build the repository layer\n3. Wire the handlers"
	plan, err := p.Plan(context.Background(), request, models.ModeDirect)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Steps) != 3 {
		t.Fatalf("got %d steps, want 3", len(plan.Steps))
	}
	if plan.Steps[1].Description != "Build the repository layer" {
		t.Errorf("step 2 description = %q", plan.Steps[1].Description)
	}
}

func TestExtractPathHints(t *testing.T) {
	hints := extractPathHints("Fix the bug in internal/cache/lru.go and update README.md.")
	want := map[string]bool{"internal/cache/lru.go": true, "README.md": true}
	if len(hints) != len(want) {
		t.Fatalf("hints = %v, want %v", hints, want)
	}
	for _, h := range hints {
		if !want[h] {
			t.Errorf("unexpected hint %q", h)
		}
	}
}

func TestFinalizeRejectsUnknownDependency(t *testing.T) {
	plan := &models.TaskPlan{
		ID: "test",
		Steps: []*models.Task{
			{ID: "a", Description: "a", DependsOn: []string{"ghost"}},
		},
	}
	if _, err := Finalize(plan); err == nil {
		t.Fatal("expected error for unknown dependency")
	}
}

func TestFinalizeRejectsSelfDependency(t *testing.T) {
	plan := &models.TaskPlan{
		ID: "test",
		Steps: []*models.Task{
			{ID: "a", Description: "a", DependsOn: []string{"a"}},
		},
	}
	if _, err := Finalize(plan); err == nil {
		t.Fatal("expected error for self dependency")
	}
}

func TestFinalizeRejectsCycle(t *testing.T) {
	plan := &models.TaskPlan{
		ID: "test",
		Steps: []*models.Task{
			{ID: "a", Description: "a", DependsOn: []string{"c"}},
			{ID: "b", Description: "b", DependsOn: []string{"a"}},
			{ID: "c", Description: "c", DependsOn: []string{"b"}},
		},
	}
	_, err := Finalize(plan)
	if err == nil {
		t.Fatal("expected error for cycle")
	}
	if !strings.Contains(err.Error(), "circular") {
		t.Errorf("error = %v, want mention of circular dependency", err)
	}
}

func TestFinalizeRejectsDuplicateIDs(t *testing.T) {
	plan := &models.TaskPlan{
		ID: "test",
		Steps: []*models.Task{
			{ID: "a", Description: "first"},
			{ID: "a", Description: "second"},
		},
	}
	if _, err := Finalize(plan); err == nil {
		t.Fatal("expected error for duplicate step IDs")
	}
}

func TestParseDecomposition(t *testing.T) {
	response := `Here is the breakdown:
[
  {"description": "Create the model", "instructions": "Define the data model.", "depends_on": []},
  {"description": "Build the API", "instructions": "Expose the model over HTTP.", "depends_on": ["Create the model"]}
]
Let me know if you need changes.`

	plan, err := parseDecomposition(response, "build a service", models.ModeOrchestration)
	if err != nil {
		t.Fatalf("parseDecomposition: %v", err)
	}

	if len(plan.Steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(plan.Steps))
	}
	if deps := plan.Steps[1].DependsOn; len(deps) != 1 || deps[0] != plan.Steps[0].ID {
		t.Errorf("dependency not resolved to step ID: %v", deps)
	}
}

func TestParseDecompositionUnknownDependency(t *testing.T) {
	response := `[{"description": "A", "instructions": "a", "depends_on": ["Nonexistent"]}]`
	if _, err := parseDecomposition(response, "req", models.ModeDirect); err == nil {
		t.Fatal("expected error for unresolvable dependency description")
	}
}

func TestParseDecompositionNoJSON(t *testing.T) {
	if _, err := parseDecomposition("sorry, I cannot help", "req", models.ModeDirect); err == nil {
		t.Fatal("expected error when response has no JSON array")
	}
}
