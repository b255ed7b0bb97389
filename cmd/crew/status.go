package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/crewkit/crew/internal/state"
	"github.com/crewkit/crew/pkg/models"
)

var statusHistory int

var statusCmd = &cobra.Command{
	Use:   "status [plan-id]",
	Short: "Show run history",
	Long: `Display recent plan runs from the project's state database.

Without arguments, lists recent plans. With a plan ID, shows that plan's
steps and the workers that executed them.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusHistory, "history", 10, "Number of recent plans to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	repo, err := repoRoot()
	if err != nil {
		return err
	}

	dbPath := state.ProjectDBPath(repo)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No run history. Run 'crew run <request>' to start.")
		return nil
	}

	db, err := state.OpenProject(repo)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()

	if len(args) == 1 {
		return displayPlanDetail(db, args[0])
	}
	return displayRecentPlans(db)
}

func displayRecentPlans(db *state.DB) error {
	plans, err := db.RecentPlans(statusHistory)
	if err != nil {
		return fmt.Errorf("list recent plans: %w", err)
	}
	if len(plans) == 0 {
		fmt.Println("No run history. Run 'crew run <request>' to start.")
		return nil
	}

	fmt.Println("Recent plans:")
	for _, p := range plans {
		desc := p.Description
		if len(desc) > 60 {
			desc = desc[:57] + "..."
		}
		fmt.Printf("  %s  %s  %s (%d steps, %s ago)\n",
			p.ID, planStatusLabel(p.Status), desc, p.StepCount, formatDuration(time.Since(p.CreatedAt)))
	}
	fmt.Println("\nUse 'crew status <plan-id>' for step detail.")
	return nil
}

func displayPlanDetail(db *state.DB, planID string) error {
	plan, err := db.LoadPlan(planID)
	if err != nil {
		return err
	}

	fmt.Printf("Plan %s: %s\n", plan.ID, plan.Description)
	fmt.Printf("  Mode: %s  Status: %s  Created: %s ago\n\n",
		plan.Mode, planStatusLabel(plan.Status), formatDuration(time.Since(plan.CreatedAt)))

	for _, step := range plan.Steps {
		fmt.Printf("  %s %s\n", statusLabel(step.Status), step.Description)
		if step.Error != "" {
			fmt.Printf("      %s\n", color.RedString(step.Error))
		}

		workers, err := db.WorkersForStep(step.ID)
		if err != nil {
			continue
		}
		for _, w := range workers {
			fmt.Printf("      worker %s (%s): %s\n", w.ID, w.Kind, w.State)
		}
	}

	return nil
}

// planStatusLabel renders a plan status with color.
func planStatusLabel(status models.PlanStatus) string {
	switch status {
	case models.PlanStatusCompleted:
		return color.GreenString("%-17s", status)
	case models.PlanStatusFailed, models.PlanStatusRejected:
		return color.RedString("%-17s", status)
	case models.PlanStatusRunning:
		return color.CyanString("%-17s", status)
	default:
		return fmt.Sprintf("%-17s", status)
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}
