package planner

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/crewkit/crew/pkg/models"
)

// PlanDir returns the directory where plan files are written for a repo.
func PlanDir(repoPath string) string {
	return filepath.Join(repoPath, ".crew", "plans")
}

// SavePlanFile writes a plan awaiting approval as YAML and returns the path.
// The file is the handoff artifact between plan mode and act mode: a user
// reviews or edits it, then feeds it back with --approve.
func SavePlanFile(plan *models.TaskPlan, repoPath string) (string, error) {
	dir := PlanDir(repoPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create plan directory: %w", err)
	}

	plan.Status = models.PlanStatusAwaitingApproval

	data, err := yaml.Marshal(plan)
	if err != nil {
		return "", fmt.Errorf("marshal plan: %w", err)
	}

	path := filepath.Join(dir, plan.ID+".yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write plan file: %w", err)
	}

	return path, nil
}

// LoadPlanFile reads a plan file back and re-validates it. Users may have
// edited the file by hand, so the dependency and cycle checks run again and
// every step is re-scored.
func LoadPlanFile(path string) (*models.TaskPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}

	var plan models.TaskPlan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse plan file: %w", err)
	}

	if plan.ID == "" || len(plan.Steps) == 0 {
		return nil, fmt.Errorf("plan file %s has no id or steps", path)
	}
	if !plan.Mode.Valid() {
		return nil, fmt.Errorf("plan file %s has unknown mode %q", path, plan.Mode)
	}

	// Reset step statuses so an edited or re-approved plan starts clean.
	for _, step := range plan.Steps {
		step.Status = models.TaskStatusPending
		step.StartedAt = nil
		step.CompletedAt = nil
		step.Error = ""
	}

	return Finalize(&plan)
}
