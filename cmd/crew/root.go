package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/crewkit/crew/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "crew",
	Short: "Multi-worker coding agent orchestrator",
	Long: `Crew plans a coding request into dependency-ordered steps and executes
them with a pool of AI coding agents (claude, codex, gemini, cursor), each
isolated in its own git worktree.

Core capabilities:
- Decomposes requests into steps with complexity scoring
- Plan mode: review and approve the plan before anything runs
- Dispatches steps to worker CLIs under concurrency and stagger limits
- Streams worker output live and cascades failures to dependent steps`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// checkWorkerCLIs verifies that at least one enabled worker CLI is on PATH.
// Missing binaries for other kinds are reported but not fatal; dispatch to a
// missing binary fails that step only.
func checkWorkerCLIs(cfg *config.Config) error {
	enabled := cfg.Enabled()
	if len(enabled) == 0 {
		return fmt.Errorf("no enabled workers: configure at least one worker path\n\n" +
			"Example:\n" +
			"  crew config workers.claude.path claude")
	}

	found := 0
	for _, kind := range enabled {
		wc, _ := cfg.WorkerFor(kind)
		if _, err := exec.LookPath(wc.Path); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %s CLI %q not found in PATH\n", kind, wc.Path)
			continue
		}
		found++
	}

	if found == 0 {
		return fmt.Errorf("none of the enabled worker CLIs were found in PATH\n\n" +
			"Install the Claude Code CLI with:\n" +
			"  npm install -g @anthropic-ai/claude-code")
	}
	return nil
}

// repoRoot returns the current working directory, which crew treats as the
// repository root for signals, plans, and state.
func repoRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return cwd, nil
}
