package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/crewkit/crew/internal/config"
	"github.com/crewkit/crew/internal/exec"
	"github.com/crewkit/crew/internal/executor"
	"github.com/crewkit/crew/internal/orchestrator"
	"github.com/crewkit/crew/internal/planner"
	"github.com/crewkit/crew/internal/state"
	"github.com/crewkit/crew/internal/workspace"
	"github.com/crewkit/crew/pkg/models"
)

var (
	runMode        string
	runStrategy    string
	runMaxWorkers  int
	runWorker      string
	runPlannerName string
	runPlanOnly    bool
	runApprove     string
	runYes         bool
	runNoTUI       bool
	runNoWorktrees bool
)

var runCmd = &cobra.Command{
	Use:   "run [request]",
	Short: "Plan and execute a coding request",
	Long: `Plan a coding request into steps and execute them.

By default the plan is shown for approval before execution. Use --plan to
only write the plan file for later review, and --approve to execute a
previously written (and possibly edited) plan file.

Examples:
  crew run "Fix the race in the cache and add a regression test"
  crew run --plan "Refactor the storage layer"
  crew run --approve .crew/plans/ab12cd34.yaml`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runMode, "mode", "", "Execution mode: direct, subagent, or orchestration")
	runCmd.Flags().StringVar(&runStrategy, "strategy", "", "Worker strategy: single, round-robin, task-based, or load-balanced")
	runCmd.Flags().IntVar(&runMaxWorkers, "max-workers", 0, "Global cap on concurrently running workers")
	runCmd.Flags().StringVar(&runWorker, "worker", "", "Default worker kind")
	runCmd.Flags().StringVar(&runPlannerName, "planner", "", "Plan backend: heuristic or claude")
	runCmd.Flags().BoolVar(&runPlanOnly, "plan", false, "Write the plan file and exit without executing")
	runCmd.Flags().StringVar(&runApprove, "approve", "", "Execute an approved plan file")
	runCmd.Flags().BoolVarP(&runYes, "yes", "y", false, "Approve the plan without prompting")
	runCmd.Flags().BoolVar(&runNoTUI, "no-tui", false, "Print events as plain text instead of the TUI")
	runCmd.Flags().BoolVar(&runNoWorktrees, "no-worktrees", false, "Run workers in the repo directory instead of worktrees")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyRunFlags(cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	repo, err := repoRoot()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := state.OpenProject(repo)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()

	// The broadcaster and recorder exist for the whole run, so plan lifecycle
	// events (created, awaiting approval, rejected) reach history even when
	// the run ends before execution.
	events := orchestrator.NewBroadcaster()
	recorder := state.NewRecorder(db, events)
	defer func() {
		events.Close()
		recorder.Wait()
	}()

	plan, err := buildPlan(ctx, cfg, repo, db, events, args)
	if err != nil || plan == nil {
		return err
	}

	if cfg.ExecutionMode() == models.ModeOrchestration {
		if err := checkWorkerCLIs(cfg); err != nil {
			return err
		}
	}

	return executePlan(ctx, cfg, repo, plan, db, events)
}

// applyRunFlags overlays command-line flags onto the loaded config.
func applyRunFlags(cfg *config.Config) {
	if runMode != "" {
		cfg.Mode = runMode
	}
	if runStrategy != "" {
		cfg.Strategy = runStrategy
	}
	if runMaxWorkers > 0 {
		cfg.MaxWorkers = runMaxWorkers
	}
	if runWorker != "" {
		cfg.DefaultWorker = runWorker
	}
	if runPlannerName != "" {
		cfg.Planner = runPlannerName
	}
	if runNoWorktrees {
		cfg.UseWorktrees = false
	}
}

// buildPlan produces an approved plan, from either a plan file or a fresh
// planning pass. Returns (nil, nil) when the run should end without
// executing, such as plan-only mode or a rejected plan.
func buildPlan(ctx context.Context, cfg *config.Config, repo string, db *state.DB, events *orchestrator.Broadcaster, args []string) (*models.TaskPlan, error) {
	if runApprove != "" {
		plan, err := planner.LoadPlanFile(runApprove)
		if err != nil {
			return nil, err
		}
		plan.Status = models.PlanStatusApproved
		fmt.Printf("Approved plan %s (%d steps) from %s\n", plan.ID, len(plan.Steps), runApprove)
		return plan, nil
	}

	request := strings.TrimSpace(strings.Join(args, " "))
	if request == "" {
		return nil, fmt.Errorf("no request given: crew run \"<request>\" or crew run --approve <plan file>")
	}

	p, err := selectPlanner(cfg)
	if err != nil {
		return nil, err
	}

	plan, err := p.Plan(ctx, request, cfg.ExecutionMode())
	if err != nil {
		return nil, fmt.Errorf("plan request: %w", err)
	}

	// The plan row has to exist before lifecycle events update it.
	if err := db.SavePlan(plan); err != nil {
		return nil, fmt.Errorf("record plan: %w", err)
	}
	events.Publish(orchestrator.Event{
		Type:   orchestrator.EventPlanCreated,
		PlanID: plan.ID,
	})

	if runPlanOnly {
		plan.Status = models.PlanStatusAwaitingApproval
		path, err := planner.SavePlanFile(plan, repo)
		if err != nil {
			return nil, err
		}
		events.Publish(orchestrator.Event{
			Type:   orchestrator.EventAwaitingApproval,
			PlanID: plan.ID,
		})
		printPlan(plan)
		fmt.Printf("\nPlan written to %s\n", path)
		fmt.Printf("Review or edit it, then execute with:\n  crew run --approve %s\n", path)
		return nil, nil
	}

	printPlan(plan)

	if !runYes {
		events.Publish(orchestrator.Event{
			Type:   orchestrator.EventAwaitingApproval,
			PlanID: plan.ID,
		})
		ok, err := promptApproval()
		if err != nil {
			return nil, err
		}
		if !ok {
			plan.Status = models.PlanStatusRejected
			events.Publish(orchestrator.Event{
				Type:   orchestrator.EventPlanRejected,
				PlanID: plan.ID,
			})
			fmt.Println("Plan rejected.")
			return nil, nil
		}
	}

	plan.Status = models.PlanStatusApproved
	return plan, nil
}

// selectPlanner picks the plan backend from config.
func selectPlanner(cfg *config.Config) (planner.Planner, error) {
	switch cfg.Planner {
	case "", "heuristic":
		return planner.NewHeuristicPlanner(), nil
	case "claude":
		return planner.NewClaudePlanner(cfg.Anthropic.APIKey, cfg.Anthropic.Model)
	default:
		return nil, fmt.Errorf("unknown planner %q (want heuristic or claude)", cfg.Planner)
	}
}

// printPlan renders the plan steps with complexity and dependencies.
func printPlan(plan *models.TaskPlan) {
	bold := color.New(color.Bold)
	bold.Printf("Plan %s (%s mode, %d steps)\n", plan.ID, plan.Mode, len(plan.Steps))

	for i, step := range plan.Steps {
		fmt.Printf("  %d. [%s] %s\n", i+1, complexityLabel(step), step.Description)
		if len(step.DependsOn) > 0 {
			fmt.Printf("     depends on: %s\n", strings.Join(step.DependsOn, ", "))
		}
	}
}

// complexityLabel renders a step's complexity tier with color.
func complexityLabel(step *models.Task) string {
	switch step.Complexity {
	case models.ComplexitySimple:
		return color.GreenString("%s %d", step.Complexity, step.ComplexityScore)
	case models.ComplexityMedium:
		return color.YellowString("%s %d", step.Complexity, step.ComplexityScore)
	default:
		return color.RedString("%s %d", step.Complexity, step.ComplexityScore)
	}
}

// promptApproval asks the user to approve the printed plan.
func promptApproval() (bool, error) {
	fmt.Print("\nExecute this plan? [y/N] ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("read approval: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

// executePlan wires up the executor stack for the configured mode and runs
// the plan to a terminal status.
func executePlan(ctx context.Context, cfg *config.Config, repo string, plan *models.TaskPlan, db *state.DB, events *orchestrator.Broadcaster) error {
	logger := orchestrator.NewDebugLoggerForRepo(repo)
	defer logger.Close()
	orchestrator.SetPackageLogger(logger)

	// Upsert, so approved plan files loaded with --approve get a row too.
	if err := db.SavePlan(plan); err != nil {
		return fmt.Errorf("record plan: %w", err)
	}

	events.Publish(orchestrator.Event{
		Type:   orchestrator.EventPlanApproved,
		PlanID: plan.ID,
	})

	registry := executor.NewRegistry()
	cliRunner, err := executor.NewCLIStepRunner(cfg, exec.NewRunner(), events, repo)
	if err != nil {
		return err
	}
	registry.Register(models.ModeDirect, executor.NewDirectExecutor(cliRunner, events))
	registry.Register(models.ModeSubagent, executor.NewSubagentExecutor(cliRunner, events, cfg.MaxWorkers))

	var signals *orchestrator.SignalWatcher
	if cfg.ExecutionMode() == models.ModeOrchestration {
		var worktrees workspace.Provider
		if cfg.UseWorktrees {
			wm, err := workspace.NewManager("", repo)
			if err != nil {
				return fmt.Errorf("init worktree manager: %w", err)
			}
			worktrees = wm
		}

		signals, err = orchestrator.NewSignalWatcher(repo)
		if err != nil {
			return fmt.Errorf("init signal watcher: %w", err)
		}
		signals.Clear()
		defer signals.Close()

		manager := orchestrator.NewManager(cfg, events, worktrees, logger)
		registry.Register(models.ModeOrchestration, executor.NewOrchestrationExecutor(manager, signals, logger))
	}

	ex, err := registry.For(cfg.ExecutionMode())
	if err != nil {
		return err
	}

	execErr := runWithOutput(ctx, ex, events, plan)

	if signals != nil {
		signals.Clear()
	}

	printSummary(plan)

	if execErr != nil && execErr != context.Canceled {
		return execErr
	}
	if plan.Status == models.PlanStatusFailed {
		return fmt.Errorf("plan %s failed", plan.ID)
	}
	return nil
}

// runWithOutput executes the plan under either the TUI or the plain printer.
func runWithOutput(ctx context.Context, ex executor.PlanExecutor, events *orchestrator.Broadcaster, plan *models.TaskPlan) error {
	if runNoTUI || !isTerminal() {
		printer := newEventPrinter(events)
		err := ex.Execute(ctx, plan)
		// No further events after execution; close so the printer drains.
		events.Close()
		printer.Wait()
		return err
	}
	return runWithTUI(ctx, ex, events, plan)
}

// isTerminal reports whether stdout is attached to a terminal.
func isTerminal() bool {
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// printSummary prints the final step outcomes.
func printSummary(plan *models.TaskPlan) {
	fmt.Println()
	for _, step := range plan.Steps {
		fmt.Printf("  %s %s\n", statusLabel(step.Status), step.Description)
		if step.Error != "" {
			fmt.Printf("      %s\n", color.RedString(step.Error))
		}
	}

	switch plan.Status {
	case models.PlanStatusCompleted:
		color.Green("\nPlan %s completed.", plan.ID)
	default:
		color.Red("\nPlan %s %s.", plan.ID, plan.Status)
	}
}

// statusLabel renders a step status as a colored marker.
func statusLabel(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusCompleted:
		return color.GreenString("✓")
	case models.TaskStatusFailed:
		return color.RedString("✗")
	case models.TaskStatusSkipped:
		return color.YellowString("-")
	default:
		return " "
	}
}
