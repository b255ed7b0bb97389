package orchestrator

import (
	"errors"
	"fmt"
	"sort"

	"github.com/crewkit/crew/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the step graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// DependencyGraph represents a directed acyclic graph of step dependencies.
// Steps are nodes, and edges represent "blocked by" relationships.
type DependencyGraph struct {
	// nodes maps step ID to the step itself.
	nodes map[string]*models.Task
	// edges maps step ID to IDs of steps it depends on (is blocked by).
	edges map[string][]string
	// order preserves plan declaration order for deterministic iteration.
	order []string
	// completed tracks which steps have been marked complete.
	completed map[string]bool
}

// NewDependencyGraph creates a new empty dependency graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes:     make(map[string]*models.Task),
		edges:     make(map[string][]string),
		completed: make(map[string]bool),
	}
}

// Build constructs the dependency graph from a slice of steps.
// Returns an error if a cycle is detected or dependencies reference unknown steps.
func (g *DependencyGraph) Build(tasks []*models.Task) error {
	for _, task := range tasks {
		g.nodes[task.ID] = task
		g.edges[task.ID] = nil
		g.order = append(g.order, task.ID)
	}

	for _, task := range tasks {
		for _, depID := range task.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				return fmt.Errorf("step %s depends on unknown step %s", task.ID, depID)
			}
			if depID == task.ID {
				return fmt.Errorf("step %s depends on itself", task.ID)
			}
			g.edges[task.ID] = append(g.edges[task.ID], depID)
		}
	}

	if g.HasCycle() {
		return ErrCycleDetected
	}

	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
// Uses depth-first search with coloring to detect back edges.
func (g *DependencyGraph) HasCycle() bool {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				// Back edge: cycle.
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}

		colors[id] = 2
		return false
	}

	for id := range g.nodes {
		if colors[id] == 0 {
			if visit(id) {
				return true
			}
		}
	}

	return false
}

// TopologicalSort returns step IDs in an order where all dependencies come
// before the steps that depend on them. Among unordered steps, plan
// declaration order is preserved. Returns an error if the graph has a cycle.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	if g.HasCycle() {
		return nil, ErrCycleDetected
	}

	visited := make(map[string]bool, len(g.nodes))
	var result []string

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true

		for _, depID := range g.edges[id] {
			visit(depID)
		}

		result = append(result, id)
	}

	for _, id := range g.order {
		visit(id)
	}

	return result, nil
}

// GetReady returns steps that are pending, have every dependency completed,
// and are not blocked by a failure. Results are sorted by step priority,
// ties broken by declaration order, so the scheduler considers lower
// priority values first.
func (g *DependencyGraph) GetReady() []*models.Task {
	var ready []*models.Task

	for _, id := range g.order {
		task := g.nodes[id]
		if task.Status != models.TaskStatusPending {
			continue
		}

		allDepsComplete := true
		for _, depID := range g.edges[id] {
			if !g.completed[depID] {
				allDepsComplete = false
				break
			}
		}

		if allDepsComplete {
			ready = append(ready, task)
		}
	}

	sort.SliceStable(ready, func(i, j int) bool {
		return ready[i].Priority < ready[j].Priority
	})

	return ready
}

// MarkComplete marks a step as completed, unblocking its dependents.
func (g *DependencyGraph) MarkComplete(taskID string) {
	g.completed[taskID] = true
}

// MarkFailed marks a step as failed and cascades: every step that transitively
// depends on it is marked skipped without being started. Returns the IDs of
// the skipped steps in declaration order.
func (g *DependencyGraph) MarkFailed(taskID string) []string {
	// Transitive closure over dependents.
	blocked := map[string]bool{taskID: true}
	changed := true
	for changed {
		changed = false
		for _, id := range g.order {
			if blocked[id] {
				continue
			}
			for _, depID := range g.edges[id] {
				if blocked[depID] {
					blocked[id] = true
					changed = true
					break
				}
			}
		}
	}

	var skipped []string
	for _, id := range g.order {
		if id == taskID || !blocked[id] {
			continue
		}
		task := g.nodes[id]
		if task.Status == models.TaskStatusPending {
			task.Status = models.TaskStatusSkipped
			skipped = append(skipped, id)
		}
	}
	return skipped
}

// Done returns true when no step can make further progress: every step is in
// a terminal state or permanently blocked.
func (g *DependencyGraph) Done() bool {
	for _, task := range g.nodes {
		if !task.Status.Terminal() {
			return false
		}
	}
	return true
}

// GetTask returns the step for a given ID, or nil if not found.
func (g *DependencyGraph) GetTask(taskID string) *models.Task {
	return g.nodes[taskID]
}

// Size returns the number of steps in the graph.
func (g *DependencyGraph) Size() int {
	return len(g.nodes)
}

// GetDependencies returns the IDs of steps that the given step depends on.
func (g *DependencyGraph) GetDependencies(taskID string) []string {
	return g.edges[taskID]
}

// GetDependents returns the IDs of steps that directly depend on the given step.
func (g *DependencyGraph) GetDependents(taskID string) []string {
	var dependents []string
	for _, id := range g.order {
		for _, depID := range g.edges[id] {
			if depID == taskID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	return dependents
}
