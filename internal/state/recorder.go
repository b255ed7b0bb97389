package state

import (
	"time"

	"github.com/crewkit/crew/internal/orchestrator"
	"github.com/crewkit/crew/pkg/models"
)

// Recorder persists run progress by consuming orchestrator events. It derives
// everything it writes from event fields, so it never races with the
// executor's ownership of plan state.
type Recorder struct {
	db   *DB
	done chan struct{}
}

// NewRecorder starts recording events from the broadcaster into the database.
// Recording stops when the subscription channel closes; call Wait before
// reading back final state.
func NewRecorder(db *DB, events *orchestrator.Broadcaster) *Recorder {
	ch, _ := events.Subscribe()

	r := &Recorder{
		db:   db,
		done: make(chan struct{}),
	}
	go r.consume(ch)
	return r
}

// consume applies events until the channel closes.
func (r *Recorder) consume(ch <-chan orchestrator.Event) {
	defer close(r.done)
	for ev := range ch {
		r.apply(ev)
	}
}

// apply writes one event's effect. Write errors are swallowed; history is
// best-effort and never interferes with the run.
func (r *Recorder) apply(ev orchestrator.Event) {
	switch ev.Type {
	case orchestrator.EventStepStarted:
		r.updateStep(ev, models.TaskStatusRunning)
	case orchestrator.EventStepCompleted:
		r.updateStep(ev, models.TaskStatusCompleted)
	case orchestrator.EventStepFailed:
		r.updateStep(ev, models.TaskStatusFailed)
	case orchestrator.EventStepSkipped:
		r.updateStep(ev, models.TaskStatusSkipped)
	case orchestrator.EventAwaitingApproval:
		_ = r.db.UpdatePlanStatus(ev.PlanID, models.PlanStatusAwaitingApproval)
	case orchestrator.EventPlanApproved:
		_ = r.db.UpdatePlanStatus(ev.PlanID, models.PlanStatusApproved)
	case orchestrator.EventPlanRejected:
		_ = r.db.UpdatePlanStatus(ev.PlanID, models.PlanStatusRejected)
	case orchestrator.EventPlanDone:
		status := models.PlanStatus(ev.Message)
		if status.Valid() {
			_ = r.db.UpdatePlanStatus(ev.PlanID, status)
		}
	case orchestrator.EventWorkerStarted:
		_ = r.db.SaveWorker(&models.Worker{
			ID:        ev.WorkerID,
			StepID:    ev.StepID,
			Kind:      ev.Kind,
			State:     models.WorkerRunning,
			StartedAt: ev.Timestamp,
		})
	case orchestrator.EventWorkerCompleted:
		_, _ = r.db.Exec(`UPDATE workers SET state = ?, success = ? WHERE id = ?`,
			string(ev.State), boolToInt(ev.State == models.WorkerCompleted && ev.Err == nil), ev.WorkerID)
	}
}

// updateStep writes a step status transition derived from an event.
func (r *Recorder) updateStep(ev orchestrator.Event, status models.TaskStatus) {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	switch status {
	case models.TaskStatusRunning:
		_, _ = r.db.Exec(`UPDATE steps SET status = ?, started_at = ? WHERE id = ?`,
			string(status), formatTime(ts), ev.StepID)
	default:
		var errMsg any
		if ev.Err != nil {
			errMsg = ev.Err.Error()
		}
		_, _ = r.db.Exec(`UPDATE steps SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
			string(status), errMsg, formatTime(ts), ev.StepID)
	}
}

// Wait blocks until the recorder has drained its subscription.
func (r *Recorder) Wait() {
	<-r.done
}
