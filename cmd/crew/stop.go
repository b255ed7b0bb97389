package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crewkit/crew/internal/orchestrator"
)

var stopForce bool

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running orchestration",
	Long: `Request that a crew run in this repository stop.

This drops a stop signal file into .crew/signals. The running orchestrator
sends each active worker a terminate signal, escalating to a forced kill
after the configured grace period. With --force workers are killed
immediately. Steps that have not started are skipped.`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().BoolVar(&stopForce, "force", false, "Kill active workers immediately instead of terminating gracefully")
}

func runStop(cmd *cobra.Command, args []string) error {
	repo, err := repoRoot()
	if err != nil {
		return err
	}

	if err := orchestrator.WriteStopSignal(repo, stopForce); err != nil {
		return fmt.Errorf("write stop signal: %w", err)
	}

	if stopForce {
		fmt.Println("Force stop requested. Active workers will be killed immediately.")
	} else {
		fmt.Println("Stop requested. Active workers will be terminated gracefully.")
	}
	return nil
}
