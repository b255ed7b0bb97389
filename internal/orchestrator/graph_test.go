package orchestrator

import (
	"errors"
	"testing"

	"github.com/crewkit/crew/pkg/models"
)

func makeTask(id string, deps ...string) *models.Task {
	return &models.Task{
		ID:          id,
		Description: id,
		DependsOn:   deps,
		Status:      models.TaskStatusPending,
	}
}

func TestGraphBuildRejectsUnknownDep(t *testing.T) {
	g := NewDependencyGraph()
	err := g.Build([]*models.Task{makeTask("a", "ghost")})
	if err == nil {
		t.Fatal("expected error for unknown dependency")
	}
}

func TestGraphBuildRejectsSelfDep(t *testing.T) {
	g := NewDependencyGraph()
	err := g.Build([]*models.Task{makeTask("a", "a")})
	if err == nil {
		t.Fatal("expected error for self dependency")
	}
}

func TestGraphBuildRejectsCycle(t *testing.T) {
	g := NewDependencyGraph()
	err := g.Build([]*models.Task{
		makeTask("a", "c"),
		makeTask("b", "a"),
		makeTask("c", "b"),
	})
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("err = %v, want ErrCycleDetected", err)
	}
}

func TestTopologicalSort(t *testing.T) {
	g := NewDependencyGraph()
	err := g.Build([]*models.Task{
		makeTask("c", "a", "b"),
		makeTask("a"),
		makeTask("b", "a"),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("TopologicalSort: %v", err)
	}

	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	if pos["a"] > pos["b"] || pos["b"] > pos["c"] || pos["a"] > pos["c"] {
		t.Errorf("order %v violates dependencies", order)
	}
}

func TestGetReadyRespectsDepsAndPriority(t *testing.T) {
	low := makeTask("low")
	low.Priority = 2
	high := makeTask("high")
	high.Priority = 0
	blocked := makeTask("blocked", "low")

	g := NewDependencyGraph()
	if err := g.Build([]*models.Task{low, high, blocked}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	ready := g.GetReady()
	if len(ready) != 2 {
		t.Fatalf("got %d ready, want 2", len(ready))
	}
	if ready[0].ID != "high" || ready[1].ID != "low" {
		t.Errorf("ready order = [%s %s], want [high low]", ready[0].ID, ready[1].ID)
	}

	g.MarkComplete("low")
	low.Status = models.TaskStatusCompleted
	g.MarkComplete("high")
	high.Status = models.TaskStatusCompleted

	ready = g.GetReady()
	if len(ready) != 1 || ready[0].ID != "blocked" {
		t.Errorf("after completions ready = %v, want [blocked]", ready)
	}
}

func TestMarkFailedCascadesSkips(t *testing.T) {
	// a -> b -> c, and d independent.
	a := makeTask("a")
	b := makeTask("b", "a")
	c := makeTask("c", "b")
	d := makeTask("d")

	g := NewDependencyGraph()
	if err := g.Build([]*models.Task{a, b, c, d}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	a.Status = models.TaskStatusFailed
	skipped := g.MarkFailed("a")

	if len(skipped) != 2 {
		t.Fatalf("skipped = %v, want [b c]", skipped)
	}
	if b.Status != models.TaskStatusSkipped || c.Status != models.TaskStatusSkipped {
		t.Errorf("transitive dependents not skipped: b=%s c=%s", b.Status, c.Status)
	}
	if d.Status != models.TaskStatusPending {
		t.Errorf("independent step should be untouched, got %s", d.Status)
	}

	ready := g.GetReady()
	if len(ready) != 1 || ready[0].ID != "d" {
		t.Errorf("ready after failure = %v, want [d]", ready)
	}
}

func TestGraphDone(t *testing.T) {
	a := makeTask("a")
	b := makeTask("b", "a")

	g := NewDependencyGraph()
	if err := g.Build([]*models.Task{a, b}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	if g.Done() {
		t.Error("graph with pending steps should not be done")
	}

	a.Status = models.TaskStatusFailed
	g.MarkFailed("a")
	if !g.Done() {
		t.Error("graph should be done once every step is terminal")
	}
}

func TestGetDependents(t *testing.T) {
	g := NewDependencyGraph()
	err := g.Build([]*models.Task{
		makeTask("a"),
		makeTask("b", "a"),
		makeTask("c", "a"),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	deps := g.GetDependents("a")
	if len(deps) != 2 {
		t.Fatalf("dependents of a = %v, want [b c]", deps)
	}
}
