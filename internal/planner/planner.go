package planner

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/crewkit/crew/pkg/models"
)

// Planner produces a TaskPlan from a request. The planner is the only
// component that mints step IDs and dependency edges; every step is scored
// before the plan is returned. Planning never mutates an approved plan.
type Planner interface {
	Plan(ctx context.Context, request string, mode models.ExecutionMode) (*models.TaskPlan, error)
}

// HeuristicPlanner splits a request into steps without calling a model.
// It is deterministic and used as the default and as the fallback for the
// Claude-backed planner.
type HeuristicPlanner struct{}

// NewHeuristicPlanner creates a new HeuristicPlanner.
func NewHeuristicPlanner() *HeuristicPlanner {
	return &HeuristicPlanner{}
}

// Verify HeuristicPlanner implements Planner at compile time.
var _ Planner = (*HeuristicPlanner)(nil)

// clauseSplitter matches boundaries between request clauses: numbered list
// markers, "then"/"and then" connectives, and semicolons.
var clauseSplitter = regexp.MustCompile(`(?i)(?:^|\n)\s*\d+[.)]\s+|;\s+|\s+and then\s+|\s+then\s+`)

// Plan splits the request into clauses and builds a mode-aware plan:
// Direct-mode plans chain steps sequentially, while Subagent- and
// Orchestration-mode plans keep independent clauses parallel and add a final
// integration step that depends on all of them.
func (p *HeuristicPlanner) Plan(_ context.Context, request string, mode models.ExecutionMode) (*models.TaskPlan, error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return nil, fmt.Errorf("empty request")
	}

	clauses := splitClauses(request)

	plan := &models.TaskPlan{
		ID:          uuid.New().String()[:8],
		Description: request,
		Mode:        mode,
		Status:      models.PlanStatusDraft,
		CreatedAt:   time.Now(),
	}

	for i, clause := range clauses {
		task := &models.Task{
			ID:            fmt.Sprintf("%s-step-%d", plan.ID, i+1),
			Description:   clause,
			Instructions:  buildInstructions(clause, request),
			RelevantFiles: extractPathHints(clause),
			Priority:      i,
			Status:        models.TaskStatusPending,
		}

		// Direct mode assumes sequential execution: each step depends on
		// the previous one. Concurrent modes keep clauses independent.
		if mode == models.ModeDirect && i > 0 {
			task.DependsOn = []string{plan.Steps[i-1].ID}
		}

		plan.Steps = append(plan.Steps, task)
	}

	// Parallel modes get an integration step gated on every clause step, so
	// independent work is joined exactly once.
	if mode != models.ModeDirect && len(plan.Steps) > 1 {
		var deps []string
		for _, t := range plan.Steps {
			deps = append(deps, t.ID)
		}
		plan.Steps = append(plan.Steps, &models.Task{
			ID:           fmt.Sprintf("%s-step-%d", plan.ID, len(plan.Steps)+1),
			Description:  "Integrate and verify the combined changes",
			Instructions: fmt.Sprintf("Review the results of the preceding steps for the request below, resolve inconsistencies between them, and verify the combined outcome.\n\nOriginal request:\n%s", request),
			DependsOn:    deps,
			Priority:     len(plan.Steps),
			Status:       models.TaskStatusPending,
		})
	}

	return Finalize(plan)
}

// splitClauses breaks a request into per-step clauses.
// A request with no recognizable boundaries becomes a single step.
func splitClauses(request string) []string {
	parts := clauseSplitter.Split(request, -1)
	var clauses []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			clauses = append(clauses, part)
		}
	}
	if len(clauses) == 0 {
		clauses = []string{request}
	}
	return clauses
}

// buildInstructions expands a clause into the full instruction text handed
// to the executing worker.
func buildInstructions(clause, request string) string {
	if clause == request {
		return request
	}
	return fmt.Sprintf("%s\n\nThis step is part of a larger request:\n%s", clause, request)
}

// pathHintPattern matches tokens that look like file paths.
var pathHintPattern = regexp.MustCompile(`[\w./-]+\.[a-zA-Z]{1,8}\b|[\w.-]+/[\w./-]+`)

// extractPathHints pulls path-looking tokens out of a clause to seed the
// step's relevant files.
func extractPathHints(clause string) []string {
	matches := pathHintPattern.FindAllString(clause, -1)
	seen := make(map[string]bool, len(matches))
	var hints []string
	for _, m := range matches {
		m = strings.Trim(m, ".,;:")
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		hints = append(hints, m)
	}
	return hints
}

// Finalize validates a drafted plan and scores every step. It checks that
// dependency edges reference known step IDs, that no step depends on itself,
// and that the graph is acyclic.
func Finalize(plan *models.TaskPlan) (*models.TaskPlan, error) {
	ids := make(map[string]bool, len(plan.Steps))
	for _, t := range plan.Steps {
		if ids[t.ID] {
			return nil, fmt.Errorf("duplicate step id %q", t.ID)
		}
		ids[t.ID] = true
	}

	for _, t := range plan.Steps {
		for _, dep := range t.DependsOn {
			if dep == t.ID {
				return nil, fmt.Errorf("step %q depends on itself", t.ID)
			}
			if !ids[dep] {
				return nil, fmt.Errorf("step %q depends on unknown step %q", t.ID, dep)
			}
		}
	}

	if err := validateNoCycles(plan.Steps); err != nil {
		return nil, err
	}

	for _, t := range plan.Steps {
		ScoreTask(t)
	}

	return plan, nil
}

// validateNoCycles checks that there are no circular dependencies among steps.
func validateNoCycles(tasks []*models.Task) error {
	idToTask := make(map[string]*models.Task, len(tasks))
	for _, task := range tasks {
		idToTask[task.ID] = task
	}

	// Visit state: 0=unvisited, 1=visiting, 2=visited.
	state := make(map[string]int)

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		if state[id] == 2 {
			return nil
		}
		if state[id] == 1 {
			cycleStart := 0
			for i, p := range path {
				if p == id {
					cycleStart = i
					break
				}
			}
			cycle := append(path[cycleStart:], id)
			return fmt.Errorf("circular dependency detected: %s", strings.Join(cycle, " -> "))
		}

		state[id] = 1
		if task := idToTask[id]; task != nil {
			for _, depID := range task.DependsOn {
				if err := visit(depID, append(path, id)); err != nil {
					return err
				}
			}
		}
		state[id] = 2
		return nil
	}

	for _, task := range tasks {
		if state[task.ID] == 0 {
			if err := visit(task.ID, nil); err != nil {
				return err
			}
		}
	}

	return nil
}
