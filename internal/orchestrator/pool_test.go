package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/crewkit/crew/internal/config"
	"github.com/crewkit/crew/pkg/models"
)

func poolConfig() *config.Config {
	return &config.Config{
		Workers: map[string]config.WorkerConfig{
			"claude": {Path: "claude", MaxConcurrent: 2},
			"codex":  {Path: "codex", MaxConcurrent: 2},
		},
		MaxWorkers:    3,
		DefaultWorker: "claude",
		Strategy:      "single",
	}
}

func TestSelectKindSingle(t *testing.T) {
	p := NewWorkerPool(poolConfig())

	for i := 0; i < 3; i++ {
		kind, err := p.SelectKind(&models.Task{ID: "t"})
		if err != nil {
			t.Fatalf("SelectKind: %v", err)
		}
		if kind != models.WorkerClaude {
			t.Errorf("single strategy picked %s, want claude", kind)
		}
	}
}

func TestSelectKindRoundRobin(t *testing.T) {
	cfg := poolConfig()
	cfg.Strategy = "round-robin"
	p := NewWorkerPool(cfg)

	want := []models.WorkerKind{models.WorkerClaude, models.WorkerCodex, models.WorkerClaude, models.WorkerCodex}
	for i, w := range want {
		kind, err := p.SelectKind(&models.Task{ID: "t"})
		if err != nil {
			t.Fatalf("SelectKind: %v", err)
		}
		if kind != w {
			t.Errorf("round-robin pick %d = %s, want %s", i, kind, w)
		}
	}
}

func TestSelectKindLoadBalanced(t *testing.T) {
	cfg := poolConfig()
	cfg.Strategy = "load-balanced"
	p := NewWorkerPool(cfg)

	// Equal load ties break by enumeration order: claude first.
	kind, err := p.SelectKind(&models.Task{ID: "t"})
	if err != nil {
		t.Fatalf("SelectKind: %v", err)
	}
	if kind != models.WorkerClaude {
		t.Errorf("tie pick = %s, want claude", kind)
	}

	if !p.TryAcquire(models.WorkerClaude) {
		t.Fatal("acquire claude")
	}

	kind, err = p.SelectKind(&models.Task{ID: "t"})
	if err != nil {
		t.Fatalf("SelectKind: %v", err)
	}
	if kind != models.WorkerCodex {
		t.Errorf("loaded pick = %s, want codex", kind)
	}
}

func TestSelectKindTaskBased(t *testing.T) {
	cfg := poolConfig()
	cfg.Strategy = "task-based"
	p := NewWorkerPool(cfg)

	// Complex prefers claude.
	kind, err := p.SelectKind(&models.Task{ID: "t", Complexity: models.ComplexityComplex})
	if err != nil {
		t.Fatalf("SelectKind: %v", err)
	}
	if kind != models.WorkerClaude {
		t.Errorf("complex pick = %s, want claude", kind)
	}

	// Medium prefers codex.
	kind, err = p.SelectKind(&models.Task{ID: "t", Complexity: models.ComplexityMedium})
	if err != nil {
		t.Fatalf("SelectKind: %v", err)
	}
	if kind != models.WorkerCodex {
		t.Errorf("medium pick = %s, want codex", kind)
	}

	// Simple prefers gemini/cursor, neither enabled; falls back through
	// codex before the default.
	kind, err = p.SelectKind(&models.Task{ID: "t", Complexity: models.ComplexitySimple})
	if err != nil {
		t.Fatalf("SelectKind: %v", err)
	}
	if kind != models.WorkerCodex {
		t.Errorf("simple pick = %s, want codex", kind)
	}
}

func TestSelectKindPreferredWorkerWins(t *testing.T) {
	p := NewWorkerPool(poolConfig())

	kind, err := p.SelectKind(&models.Task{ID: "t", PreferredWorker: models.WorkerCodex})
	if err != nil {
		t.Fatalf("SelectKind: %v", err)
	}
	if kind != models.WorkerCodex {
		t.Errorf("preferred pick = %s, want codex", kind)
	}

	// Preferred kind not enabled falls through to the strategy.
	kind, err = p.SelectKind(&models.Task{ID: "t", PreferredWorker: models.WorkerGemini})
	if err != nil {
		t.Fatalf("SelectKind: %v", err)
	}
	if kind != models.WorkerClaude {
		t.Errorf("fallback pick = %s, want claude", kind)
	}
}

func TestSelectKindNoneEnabled(t *testing.T) {
	p := NewWorkerPool(&config.Config{Strategy: "single", DefaultWorker: "claude"})
	if _, err := p.SelectKind(&models.Task{ID: "t"}); err == nil {
		t.Fatal("expected error with no enabled workers")
	}
}

func TestTryAcquireLimits(t *testing.T) {
	p := NewWorkerPool(poolConfig())

	// Per-kind cap for claude is 2.
	if !p.TryAcquire(models.WorkerClaude) || !p.TryAcquire(models.WorkerClaude) {
		t.Fatal("first two claude acquires should succeed")
	}
	if p.TryAcquire(models.WorkerClaude) {
		t.Error("third claude acquire should hit the per-kind cap")
	}

	// Global cap is 3: one codex slot remains.
	if !p.TryAcquire(models.WorkerCodex) {
		t.Fatal("codex acquire should succeed")
	}
	if p.TryAcquire(models.WorkerCodex) {
		t.Error("acquire beyond the global cap should fail")
	}

	p.Release(models.WorkerClaude)
	if !p.TryAcquire(models.WorkerCodex) {
		t.Error("release should free a global slot for another kind")
	}

	if p.Total() != 3 {
		t.Errorf("total = %d, want 3", p.Total())
	}
	if p.RunningCount(models.WorkerCodex) != 2 {
		t.Errorf("codex count = %d, want 2", p.RunningCount(models.WorkerCodex))
	}
}

func TestStaggerWaitEnforcesFloor(t *testing.T) {
	cfg := poolConfig()
	cfg.StartDelay = 50 * time.Millisecond
	p := NewWorkerPool(cfg)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := p.StaggerWait(context.Background()); err != nil {
			t.Fatalf("StaggerWait: %v", err)
		}
	}
	elapsed := time.Since(start)

	// First launch is immediate; the next two wait 50ms each.
	if elapsed < 100*time.Millisecond {
		t.Errorf("three launches took %s, want at least 100ms", elapsed)
	}
}

func TestStaggerWaitCancellable(t *testing.T) {
	cfg := poolConfig()
	cfg.StartDelay = time.Minute
	p := NewWorkerPool(cfg)

	if err := p.StaggerWait(context.Background()); err != nil {
		t.Fatalf("first StaggerWait: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := p.StaggerWait(ctx); err == nil {
		t.Fatal("expected context error from cancelled stagger wait")
	}
}
