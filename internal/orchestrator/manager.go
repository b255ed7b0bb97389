package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crewkit/crew/internal/config"
	"github.com/crewkit/crew/internal/workspace"
	"github.com/crewkit/crew/pkg/models"
)

// Manager owns the live state of a multi-worker run: the worker records, the
// pool counters, and the event broadcaster. It is the only writer of worker
// records; everything else observes through Statuses, Results, and events.
type Manager struct {
	cfg       *config.Config
	pool      *WorkerPool
	events    *Broadcaster
	worktrees workspace.Provider
	logger    *DebugLogger

	mu      sync.Mutex
	workers map[string]*models.Worker
	active  map[string]*StreamingWorker

	results chan WorkerResult
	wg      sync.WaitGroup
}

// NewManager creates a manager for one orchestration run. worktrees may be
// nil, in which case workers share the repo working directory.
func NewManager(cfg *config.Config, events *Broadcaster, worktrees workspace.Provider, logger *DebugLogger) *Manager {
	if logger == nil {
		logger = NopLogger()
	}
	return &Manager{
		cfg:       cfg,
		pool:      NewWorkerPool(cfg),
		events:    events,
		worktrees: worktrees,
		logger:    logger,
		workers:   make(map[string]*models.Worker),
		active:    make(map[string]*StreamingWorker),
		results:   make(chan WorkerResult, 64),
	}
}

// Pool exposes the admission pool, mainly for scheduling decisions and tests.
func (m *Manager) Pool() *WorkerPool {
	return m.pool
}

// Events exposes the broadcaster for subscribers.
func (m *Manager) Events() *Broadcaster {
	return m.events
}

// ErrNoCapacity is returned by Dispatch when every slot for the selected kind
// is busy. The caller retries after a result frees a slot.
var ErrNoCapacity = fmt.Errorf("no worker capacity available")

// Dispatch launches a worker for a ready step. It selects the kind per the
// configured strategy, enforces admission and launch stagger, optionally
// creates an isolated worktree, and starts the process. On success the step
// is marked running and the worker ID is returned.
func (m *Manager) Dispatch(ctx context.Context, task *models.Task) (string, error) {
	kind, err := m.pool.SelectKind(task)
	if err != nil {
		return "", err
	}

	wc, ok := m.cfg.WorkerFor(kind)
	if !ok {
		return "", fmt.Errorf("worker kind %q has no configured CLI path", kind)
	}

	if !m.pool.TryAcquire(kind) {
		return "", ErrNoCapacity
	}

	if err := m.pool.StaggerWait(ctx); err != nil {
		m.pool.Release(kind)
		return "", err
	}

	workerID := uuid.New().String()[:8]

	workDir := ""
	var worktreePath string
	if m.worktrees != nil && m.cfg.UseWorktrees {
		wt, err := m.worktrees.Create(workerID)
		if err != nil {
			m.pool.Release(kind)
			return "", fmt.Errorf("create worktree for worker %s: %w", workerID, err)
		}
		workDir = wt.Path
		worktreePath = wt.Path
	}

	emit := func(ev Event) {
		m.events.Publish(ev)
	}

	sw := NewStreamingWorker(workerID, task, kind, wc.Path, wc.ExtraArgs, workDir, emit, m.cfg.Shutdown.GracePeriod)

	record := &models.Worker{
		ID:            workerID,
		StepID:        task.ID,
		Kind:          kind,
		State:         models.WorkerStarting,
		WorkspacePath: worktreePath,
		StartedAt:     time.Now(),
	}

	m.mu.Lock()
	m.workers[workerID] = record
	m.active[workerID] = sw
	m.mu.Unlock()

	// The step is considered running from here either way: a spawn failure
	// resolves it through the normal reap path, and leaving it pending would
	// let the scheduler dispatch it again before that result lands.
	now := time.Now()
	task.Status = models.TaskStatusRunning
	task.StartedAt = &now

	if err := sw.Start(ctx); err != nil {
		// Spawn failure: the result channel already carries the failure;
		// reap it so the step resolves through the normal path. No started
		// event for a worker that never ran.
		m.logger.Log("worker %s spawn failed for step %s: %v", workerID, task.ID, err)
	} else {
		m.mu.Lock()
		record.PID = sw.PID()
		m.mu.Unlock()

		m.events.Publish(Event{
			Type:            EventWorkerStarted,
			StepID:          task.ID,
			StepDescription: task.Description,
			WorkerID:        workerID,
			Kind:            kind,
		})
		m.logger.Log("dispatched worker %s (kind=%s, pid=%d) for step %s", workerID, kind, sw.PID(), task.ID)
	}

	m.wg.Add(1)
	go m.reap(workerID, kind, worktreePath, sw)

	return workerID, nil
}

// reap waits for one worker's result, updates its record, tears down its
// worktree, releases its pool slot, and forwards the result.
func (m *Manager) reap(workerID string, kind models.WorkerKind, worktreePath string, sw *StreamingWorker) {
	defer m.wg.Done()

	result := <-sw.Result()

	m.mu.Lock()
	if record, ok := m.workers[workerID]; ok {
		record.State = result.State
		record.Success = result.Success
	}
	delete(m.active, workerID)
	m.mu.Unlock()

	if worktreePath != "" && m.worktrees != nil {
		if err := m.worktrees.Remove(worktreePath); err != nil {
			m.logger.Log("worktree teardown for worker %s failed: %v", workerID, err)
		}
	}

	// Publish before releasing the slot so subscribers never observe a new
	// launch ahead of the completion that freed its slot.
	m.events.Publish(Event{
		Type:     EventWorkerCompleted,
		StepID:   result.StepID,
		WorkerID: workerID,
		Kind:     kind,
		State:    result.State,
		Err:      result.Err,
	})

	m.pool.Release(kind)
	m.logger.Log("worker %s finished: state=%s success=%v err=%v", workerID, result.State, result.Success, result.Err)

	m.results <- result
}

// Results returns the channel carrying terminal worker results, one per
// dispatched worker.
func (m *Manager) Results() <-chan WorkerResult {
	return m.results
}

// Statuses returns a snapshot of all worker records, past and active.
func (m *Manager) Statuses() []models.Worker {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Worker, 0, len(m.workers))
	for _, w := range m.workers {
		out = append(out, *w)
	}
	return out
}

// ActiveCount returns the number of workers not yet in a terminal state.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// ActiveWorkerIDs returns the IDs of workers still running, for orphan cleanup.
func (m *Manager) ActiveWorkerIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	return ids
}

// StopAll stops every active worker. With force false each worker gets a
// terminate signal followed by a forced kill after the grace period; with
// force true workers are killed immediately. StopAll returns when all
// workers have resolved or the configured stop timeout elapses.
func (m *Manager) StopAll(force bool) error {
	m.mu.Lock()
	active := make([]*StreamingWorker, 0, len(m.active))
	for _, sw := range m.active {
		active = append(active, sw)
	}
	m.mu.Unlock()

	if len(active) == 0 {
		return nil
	}
	m.logger.Log("stopping %d active workers (force=%v)", len(active), force)

	for _, sw := range active {
		sw.Cancel(force)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	timeout := m.cfg.Shutdown.StopTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		// Escalate and give the kill a moment to land.
		for _, sw := range active {
			sw.Cancel(true)
		}
		select {
		case <-done:
			return nil
		case <-time.After(5 * time.Second):
			return fmt.Errorf("timed out waiting for %d workers to stop", m.ActiveCount())
		}
	}
}

// Close waits for in-flight reapers and closes the results channel. Call
// only after all dispatching has stopped.
func (m *Manager) Close() {
	m.wg.Wait()
	close(m.results)
}
