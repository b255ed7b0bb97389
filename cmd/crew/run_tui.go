package main

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/crewkit/crew/internal/executor"
	"github.com/crewkit/crew/internal/orchestrator"
	"github.com/crewkit/crew/internal/tui"
	"github.com/crewkit/crew/pkg/models"
)

// runWithTUI executes the plan while rendering events in the TUI. The TUI
// stays up after completion so the user can read the result; q exits.
func runWithTUI(ctx context.Context, ex executor.PlanExecutor, events *orchestrator.Broadcaster, plan *models.TaskPlan) (retErr error) {
	// Log output corrupts the alt-screen display.
	originalOutput := log.Writer()
	log.SetOutput(io.Discard)
	defer log.SetOutput(originalOutput)

	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("panic in TUI run: %v", r)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tui.NewProgram(plan)

	ch, unsubscribe := events.Subscribe()
	defer unsubscribe()
	go func() {
		for ev := range ch {
			program.Send(tui.EventMsg{Event: ev})
		}
	}()

	execDone := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				execDone <- fmt.Errorf("panic in executor: %v", r)
			}
		}()
		execDone <- ex.Execute(ctx, plan)
	}()

	tuiDone := make(chan error, 1)
	go func() {
		_, err := program.Run()
		tuiDone <- err
	}()

	select {
	case err := <-execDone:
		if err != nil {
			program.Send(tui.DoneMsg{Success: false, Message: fmt.Sprintf("Plan %s: %v", plan.ID, err)})
		} else {
			program.Send(tui.DoneMsg{Success: true, Message: fmt.Sprintf("Plan %s %s", plan.ID, plan.Status)})
		}
		<-tuiDone
		return err

	case err := <-tuiDone:
		// User quit mid-run. Cancel execution and wait for workers to wind
		// down before tearing the stack down.
		cancel()
		execErr := <-execDone
		if err != nil {
			return err
		}
		if execErr != nil {
			return execErr
		}
		return context.Canceled
	}
}
