package state

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/crewkit/crew/pkg/models"
)

// SavePlan inserts a plan and its steps, replacing any previous record with
// the same ID. Step dependency lists are stored comma-joined.
func (db *DB) SavePlan(plan *models.TaskPlan) error {
	return db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT OR REPLACE INTO plans (id, description, mode, status, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, plan.ID, plan.Description, string(plan.Mode), string(plan.Status), formatTime(plan.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert plan: %w", err)
		}

		for _, step := range plan.Steps {
			_, err := tx.Exec(`
				INSERT OR REPLACE INTO steps
					(id, plan_id, description, depends_on, complexity_score, complexity, status, error, started_at, completed_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, step.ID, plan.ID, step.Description, strings.Join(step.DependsOn, ","),
				step.ComplexityScore, string(step.Complexity), string(step.Status),
				nullableString(step.Error), nullableTime(step.StartedAt), nullableTime(step.CompletedAt))
			if err != nil {
				return fmt.Errorf("insert step %s: %w", step.ID, err)
			}
		}

		return nil
	})
}

// UpdatePlanStatus updates a plan's status, setting finished_at for terminal
// statuses.
func (db *DB) UpdatePlanStatus(planID string, status models.PlanStatus) error {
	var finishedAt any
	if status.Terminal() {
		finishedAt = formatTime(time.Now())
	}

	_, err := db.Exec(`
		UPDATE plans SET status = ?, finished_at = ? WHERE id = ?
	`, string(status), finishedAt, planID)
	if err != nil {
		return fmt.Errorf("update plan status: %w", err)
	}
	return nil
}

// UpdateStep persists one step's current status, error, and timestamps.
func (db *DB) UpdateStep(step *models.Task) error {
	_, err := db.Exec(`
		UPDATE steps SET status = ?, error = ?, started_at = ?, completed_at = ?
		WHERE id = ?
	`, string(step.Status), nullableString(step.Error),
		nullableTime(step.StartedAt), nullableTime(step.CompletedAt), step.ID)
	if err != nil {
		return fmt.Errorf("update step %s: %w", step.ID, err)
	}
	return nil
}

// SaveWorker inserts or updates a worker record.
func (db *DB) SaveWorker(w *models.Worker) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO workers (id, step_id, kind, pid, state, success, workspace_path, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, w.ID, w.StepID, string(w.Kind), w.PID, string(w.State), boolToInt(w.Success),
		nullableString(w.WorkspacePath), formatTime(w.StartedAt))
	if err != nil {
		return fmt.Errorf("save worker %s: %w", w.ID, err)
	}
	return nil
}

// PlanSummary is one row of run history.
type PlanSummary struct {
	ID          string
	Description string
	Mode        models.ExecutionMode
	Status      models.PlanStatus
	CreatedAt   time.Time
	FinishedAt  *time.Time
	StepCount   int
	FailedCount int
}

// RecentPlans returns the most recent plans, newest first.
func (db *DB) RecentPlans(limit int) ([]PlanSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.Query(`
		SELECT p.id, p.description, p.mode, p.status, p.created_at, p.finished_at,
			(SELECT COUNT(*) FROM steps s WHERE s.plan_id = p.id),
			(SELECT COUNT(*) FROM steps s WHERE s.plan_id = p.id AND s.status = 'failed')
		FROM plans p
		ORDER BY p.created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent plans: %w", err)
	}
	defer rows.Close()

	var plans []PlanSummary
	for rows.Next() {
		var (
			p          PlanSummary
			mode       string
			status     string
			createdAt  string
			finishedAt sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Description, &mode, &status, &createdAt, &finishedAt, &p.StepCount, &p.FailedCount); err != nil {
			return nil, fmt.Errorf("scan plan row: %w", err)
		}
		p.Mode = models.ExecutionMode(mode)
		p.Status = models.PlanStatus(status)
		if t, err := parseTime(createdAt); err == nil {
			p.CreatedAt = t
		}
		p.FinishedAt = parseNullableTime(finishedAt)
		plans = append(plans, p)
	}

	return plans, rows.Err()
}

// LoadPlan reads a plan and its steps back from the database.
func (db *DB) LoadPlan(planID string) (*models.TaskPlan, error) {
	var (
		plan      models.TaskPlan
		mode      string
		status    string
		createdAt string
	)
	row := db.QueryRow(`SELECT id, description, mode, status, created_at FROM plans WHERE id = ?`, planID)
	if err := row.Scan(&plan.ID, &plan.Description, &mode, &status, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("plan %s not found", planID)
		}
		return nil, fmt.Errorf("load plan: %w", err)
	}
	plan.Mode = models.ExecutionMode(mode)
	plan.Status = models.PlanStatus(status)
	if t, err := parseTime(createdAt); err == nil {
		plan.CreatedAt = t
	}

	rows, err := db.Query(`
		SELECT id, description, depends_on, complexity_score, complexity, status, error, started_at, completed_at
		FROM steps WHERE plan_id = ? ORDER BY rowid
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("load steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			step        models.Task
			dependsOn   sql.NullString
			complexity  string
			stepStatus  string
			stepErr     sql.NullString
			startedAt   sql.NullString
			completedAt sql.NullString
		)
		if err := rows.Scan(&step.ID, &step.Description, &dependsOn, &step.ComplexityScore,
			&complexity, &stepStatus, &stepErr, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan step row: %w", err)
		}
		if dependsOn.Valid && dependsOn.String != "" {
			step.DependsOn = strings.Split(dependsOn.String, ",")
		}
		step.Complexity = models.Complexity(complexity)
		step.Status = models.TaskStatus(stepStatus)
		if stepErr.Valid {
			step.Error = stepErr.String
		}
		step.StartedAt = parseNullableTime(startedAt)
		step.CompletedAt = parseNullableTime(completedAt)
		plan.Steps = append(plan.Steps, &step)
	}

	return &plan, rows.Err()
}

// WorkersForStep returns the worker records for one step, oldest first.
func (db *DB) WorkersForStep(stepID string) ([]models.Worker, error) {
	rows, err := db.Query(`
		SELECT id, step_id, kind, pid, state, success, workspace_path, started_at
		FROM workers WHERE step_id = ? ORDER BY started_at
	`, stepID)
	if err != nil {
		return nil, fmt.Errorf("query workers: %w", err)
	}
	defer rows.Close()

	var workers []models.Worker
	for rows.Next() {
		var (
			w         models.Worker
			kind      string
			state     string
			success   int
			workspace sql.NullString
			startedAt sql.NullString
		)
		if err := rows.Scan(&w.ID, &w.StepID, &kind, &w.PID, &state, &success, &workspace, &startedAt); err != nil {
			return nil, fmt.Errorf("scan worker row: %w", err)
		}
		w.Kind = models.WorkerKind(kind)
		w.State = models.WorkerState(state)
		w.Success = success != 0
		if workspace.Valid {
			w.WorkspacePath = workspace.String
		}
		if startedAt.Valid {
			if t, err := parseTime(startedAt.String); err == nil {
				w.StartedAt = t
			}
		}
		workers = append(workers, w)
	}

	return workers, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
