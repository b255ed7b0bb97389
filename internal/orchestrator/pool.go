package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/crewkit/crew/internal/config"
	"github.com/crewkit/crew/pkg/models"
)

// taskBasedPreferences maps a step's complexity to a kind preference order for
// the task-based strategy. The first enabled kind wins; if none of the
// preferred kinds is enabled the default worker is used.
var taskBasedPreferences = map[models.Complexity][]models.WorkerKind{
	models.ComplexitySimple:  {models.WorkerGemini, models.WorkerCursor, models.WorkerCodex},
	models.ComplexityMedium:  {models.WorkerCodex, models.WorkerClaude},
	models.ComplexityComplex: {models.WorkerClaude, models.WorkerCodex},
}

// WorkerPool tracks running worker counts and decides which kind executes a
// ready step. It enforces the global worker ceiling, per-kind concurrency
// budgets, and the launch stagger.
//
// The pool only counts; it does not own worker processes. The manager
// acquires a slot before launching and releases it when the worker's result
// arrives.
type WorkerPool struct {
	cfg *config.Config

	mu         sync.Mutex
	running    map[models.WorkerKind]int
	total      int
	rrIndex    int
	lastLaunch time.Time
}

// NewWorkerPool creates a pool for the given configuration snapshot.
func NewWorkerPool(cfg *config.Config) *WorkerPool {
	return &WorkerPool{
		cfg:     cfg,
		running: make(map[models.WorkerKind]int),
	}
}

// SelectKind picks the worker kind for a step according to the configured
// strategy. An explicit preferred worker on the step wins over any strategy
// when that kind is enabled.
func (p *WorkerPool) SelectKind(task *models.Task) (models.WorkerKind, error) {
	enabled := p.cfg.Enabled()
	if len(enabled) == 0 {
		return "", fmt.Errorf("no enabled workers")
	}

	if task != nil && task.PreferredWorker != "" {
		kind := models.WorkerKind(task.PreferredWorker)
		if isEnabled(kind, enabled) {
			return kind, nil
		}
		debugLog("preferred worker %s for step %s not enabled, falling through to strategy", kind, task.ID)
	}

	switch p.cfg.WorkerStrategy() {
	case models.StrategySingleWorker:
		return p.selectDefault(enabled)
	case models.StrategyRoundRobin:
		return p.selectRoundRobin(enabled), nil
	case models.StrategyTaskBased:
		return p.selectTaskBased(task, enabled)
	case models.StrategyLoadBalanced:
		return p.selectLoadBalanced(enabled), nil
	default:
		return "", fmt.Errorf("unknown worker strategy %q", p.cfg.Strategy)
	}
}

// selectDefault returns the configured default worker, requiring it enabled.
func (p *WorkerPool) selectDefault(enabled []models.WorkerKind) (models.WorkerKind, error) {
	kind := models.WorkerKind(p.cfg.DefaultWorker)
	if !isEnabled(kind, enabled) {
		return "", fmt.Errorf("default worker %q is not enabled", p.cfg.DefaultWorker)
	}
	return kind, nil
}

// selectRoundRobin cycles through enabled kinds in enumeration order.
func (p *WorkerPool) selectRoundRobin(enabled []models.WorkerKind) models.WorkerKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	kind := enabled[p.rrIndex%len(enabled)]
	p.rrIndex++
	return kind
}

// selectTaskBased picks a kind from the step's complexity preference table,
// falling back to the default worker when no preferred kind is enabled.
func (p *WorkerPool) selectTaskBased(task *models.Task, enabled []models.WorkerKind) (models.WorkerKind, error) {
	if task != nil {
		for _, kind := range taskBasedPreferences[task.Complexity] {
			if isEnabled(kind, enabled) {
				return kind, nil
			}
		}
	}
	return p.selectDefault(enabled)
}

// selectLoadBalanced picks the enabled kind with the fewest running workers.
// Ties break by enumeration order since enabled preserves it.
func (p *WorkerPool) selectLoadBalanced(enabled []models.WorkerKind) models.WorkerKind {
	p.mu.Lock()
	defer p.mu.Unlock()

	best := enabled[0]
	for _, kind := range enabled[1:] {
		if p.running[kind] < p.running[best] {
			best = kind
		}
	}
	return best
}

// TryAcquire reserves a slot for a worker of the given kind. It returns false
// when either the global ceiling or the kind's budget is exhausted; the
// caller retries after a completion frees a slot.
func (p *WorkerPool) TryAcquire(kind models.WorkerKind) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.total >= p.cfg.MaxWorkers {
		return false
	}
	if p.running[kind] >= p.cfg.MaxConcurrent(kind) {
		return false
	}

	p.running[kind]++
	p.total++
	return true
}

// Release frees a slot previously reserved with TryAcquire.
func (p *WorkerPool) Release(kind models.WorkerKind) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running[kind] > 0 {
		p.running[kind]--
	}
	if p.total > 0 {
		p.total--
	}
}

// StaggerWait blocks until at least the configured start delay has passed
// since the previous launch, then records this launch. Completions do not
// reset the clock; the delay is a hard floor between consecutive launches
// regardless of how fast slots free up.
func (p *WorkerPool) StaggerWait(ctx context.Context) error {
	p.mu.Lock()
	delay := p.cfg.StartDelay
	var wait time.Duration
	if !p.lastLaunch.IsZero() {
		elapsed := time.Since(p.lastLaunch)
		if elapsed < delay {
			wait = delay - elapsed
		}
	}
	// Claim the launch slot up front so concurrent dispatchers stack their
	// delays instead of launching together after one wait.
	p.lastLaunch = time.Now().Add(wait)
	p.mu.Unlock()

	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunningCount returns the number of running workers of a kind.
func (p *WorkerPool) RunningCount(kind models.WorkerKind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running[kind]
}

// Total returns the number of running workers across all kinds.
func (p *WorkerPool) Total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

func isEnabled(kind models.WorkerKind, enabled []models.WorkerKind) bool {
	for _, k := range enabled {
		if k == kind {
			return true
		}
	}
	return false
}
