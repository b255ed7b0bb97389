package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/crewkit/crew/internal/config"
	"github.com/crewkit/crew/internal/exec"
	"github.com/crewkit/crew/internal/orchestrator"
	"github.com/crewkit/crew/pkg/models"
)

// CLIStepRunner executes steps by invoking the default worker's CLI and
// waiting for it to finish. Unlike the orchestration mode's supervised
// workers there is no process group or heartbeat; the step is done when the
// command returns.
type CLIStepRunner struct {
	cfg    *config.Config
	runner exec.CommandRunner
	events *orchestrator.Broadcaster
	dir    string
}

// NewCLIStepRunner creates a runner invoking the configured default worker in
// dir. events may be nil when no one is listening for output.
func NewCLIStepRunner(cfg *config.Config, runner exec.CommandRunner, events *orchestrator.Broadcaster, dir string) (*CLIStepRunner, error) {
	kind := models.WorkerKind(cfg.DefaultWorker)
	if _, ok := cfg.WorkerFor(kind); !ok {
		return nil, fmt.Errorf("default worker %q has no configured CLI path", cfg.DefaultWorker)
	}
	return &CLIStepRunner{
		cfg:    cfg,
		runner: runner,
		events: events,
		dir:    dir,
	}, nil
}

// Verify CLIStepRunner implements StepRunner at compile time.
var _ StepRunner = (*CLIStepRunner)(nil)

// RunStep invokes the default worker CLI with the step's instructions and
// streams the captured output as worker output events once the command
// completes.
func (r *CLIStepRunner) RunStep(ctx context.Context, task *models.Task) error {
	kind := models.WorkerKind(r.cfg.DefaultWorker)
	wc, _ := r.cfg.WorkerFor(kind)

	args := orchestrator.WorkerArgs(kind, task.Instructions, wc.ExtraArgs)
	output, err := r.runner.Run(ctx, r.dir, wc.Path, args...)

	r.publishOutput(task, kind, output)

	if err != nil {
		return fmt.Errorf("run step %s with %s: %w", task.ID, kind, err)
	}
	return nil
}

// publishOutput emits each captured output line as an event.
func (r *CLIStepRunner) publishOutput(task *models.Task, kind models.WorkerKind, output []byte) {
	if r.events == nil || len(output) == 0 {
		return
	}
	for _, line := range strings.Split(strings.TrimRight(string(output), "\n"), "\n") {
		r.events.Publish(orchestrator.Event{
			Type:   orchestrator.EventWorkerOutput,
			StepID: task.ID,
			Kind:   kind,
			Line:   line,
			Stream: "stdout",
		})
	}
}
