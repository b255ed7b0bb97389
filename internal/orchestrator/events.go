// Package orchestrator coordinates plan execution across worker processes.
package orchestrator

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/crewkit/crew/pkg/models"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventPlanCreated indicates a plan has been produced.
	EventPlanCreated EventType = "plan_created"
	// EventAwaitingApproval indicates a plan is waiting for user approval.
	EventAwaitingApproval EventType = "awaiting_approval"
	// EventPlanApproved indicates a plan has been approved.
	EventPlanApproved EventType = "plan_approved"
	// EventPlanRejected indicates a plan has been rejected.
	EventPlanRejected EventType = "plan_rejected"
	// EventPlanDone indicates the plan reached a terminal state.
	EventPlanDone EventType = "plan_done"
	// EventStepStarted indicates a step has started execution.
	EventStepStarted EventType = "step_started"
	// EventStepCompleted indicates a step completed successfully.
	EventStepCompleted EventType = "step_completed"
	// EventStepFailed indicates a step failed.
	EventStepFailed EventType = "step_failed"
	// EventStepSkipped indicates a step was skipped due to a failed dependency.
	EventStepSkipped EventType = "step_skipped"
	// EventWorkerStarted indicates a worker process has been launched.
	EventWorkerStarted EventType = "worker_started"
	// EventWorkerOutput carries one output line from a worker.
	EventWorkerOutput EventType = "worker_output"
	// EventWorkerHeartbeat indicates a worker is alive but quiet.
	EventWorkerHeartbeat EventType = "worker_heartbeat"
	// EventWorkerStateChanged indicates a worker changed lifecycle state.
	EventWorkerStateChanged EventType = "worker_state_changed"
	// EventWorkerCompleted indicates a worker reached a terminal state.
	EventWorkerCompleted EventType = "worker_completed"
	// EventError indicates an orchestrator-level error.
	EventError EventType = "error"
)

// Event represents an event emitted during orchestration. Events are used to
// update UIs and track progress; ordering is guaranteed per worker only.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// PlanID is the ID of the related plan, if applicable.
	PlanID string
	// StepID is the ID of the related step, if applicable.
	StepID string
	// StepDescription is the description of the related step, if applicable.
	StepDescription string
	// WorkerID is the ID of the related worker, if applicable.
	WorkerID string
	// Kind is the worker backend, if applicable.
	Kind models.WorkerKind
	// State is the worker's lifecycle state for state-change events.
	State models.WorkerState
	// Line is one output line for worker_output events.
	Line string
	// Stream names the source of Line: "stdout" or "stderr".
	Stream string
	// Message provides additional context about the event.
	Message string
	// Err contains error details for failure events.
	Err error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// subscriberBuffer is the per-subscriber channel capacity. A subscriber that
// falls this far behind starts losing events.
const subscriberBuffer = 256

// Broadcaster fans events out to any number of subscribers. A slow subscriber
// never blocks delivery to others or to the producer: when a subscriber's
// buffer is full, events for that subscriber are dropped and counted.
type Broadcaster struct {
	mu      sync.Mutex
	subs    map[int]chan Event
	nextID  int
	closed  bool
	dropped atomic.Uint64
}

// NewBroadcaster creates a new Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[int]chan Event),
	}
}

// Subscribe attaches a new subscriber and returns its channel and an
// unsubscribe function. The channel is closed on unsubscribe or Close.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Publish delivers an event to every subscriber without blocking.
func (b *Broadcaster) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		select {
		case sub <- ev:
		default:
			// Subscriber lagging: drop rather than back-pressure the source.
			b.dropped.Add(1)
		}
	}
}

// DroppedEventCount returns the total events dropped for lagging subscribers.
func (b *Broadcaster) DroppedEventCount() uint64 {
	return b.dropped.Load()
}

// Close closes every subscriber channel. Publish becomes a no-op.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub)
	}
}
