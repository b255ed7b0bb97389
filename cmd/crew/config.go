package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/crewkit/crew/internal/config"
	"github.com/crewkit/crew/pkg/models"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify crew configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/crew/config.yaml
Project-specific overrides can be placed in .crew/config.yaml

Worker paths use keys like workers.claude.path and workers.codex.path.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	apiKeyDisplay := "(not set)"
	if cfg.Anthropic.APIKey != "" {
		apiKeyDisplay = "****"
	}

	fmt.Printf("mode: %s\n", cfg.Mode)
	fmt.Printf("strategy: %s\n", cfg.Strategy)
	fmt.Printf("max_workers: %d\n", cfg.MaxWorkers)
	fmt.Printf("default_worker: %s\n", cfg.DefaultWorker)
	fmt.Printf("enabled_workers: %s\n", strings.Join(cfg.EnabledWorkers, ","))
	fmt.Printf("use_worktrees: %t\n", cfg.UseWorktrees)
	fmt.Printf("auto_roles: %t\n", cfg.AutoRoles)
	fmt.Printf("hierarchical: %t\n", cfg.Hierarchical)
	fmt.Printf("start_delay: %s\n", cfg.StartDelay)
	fmt.Printf("planner: %s\n", cfg.Planner)
	fmt.Printf("anthropic.api_key: %s\n", apiKeyDisplay)
	fmt.Printf("anthropic.model: %s\n", cfg.Anthropic.Model)
	fmt.Printf("shutdown.grace_period: %s\n", cfg.Shutdown.GracePeriod)
	fmt.Printf("shutdown.stop_timeout: %s\n", cfg.Shutdown.StopTimeout)

	for _, kind := range models.AllWorkerKinds {
		if wc, ok := cfg.Workers[string(kind)]; ok {
			fmt.Printf("workers.%s.path: %s\n", kind, wc.Path)
			fmt.Printf("workers.%s.max_concurrent: %d\n", kind, wc.MaxConcurrent)
		}
	}
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	if kind, field, ok := workerKey(key); ok {
		wc, exists := cfg.Workers[kind]
		if !exists {
			return "(not set)", nil
		}
		switch field {
		case "path":
			return wc.Path, nil
		case "max_concurrent":
			return strconv.Itoa(wc.MaxConcurrent), nil
		case "extra_args":
			return strings.Join(wc.ExtraArgs, " "), nil
		}
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}

	switch strings.ToLower(key) {
	case "mode":
		return cfg.Mode, nil
	case "strategy":
		return cfg.Strategy, nil
	case "max_workers":
		return strconv.Itoa(cfg.MaxWorkers), nil
	case "default_worker":
		return cfg.DefaultWorker, nil
	case "enabled_workers":
		return strings.Join(cfg.EnabledWorkers, ","), nil
	case "use_worktrees":
		return strconv.FormatBool(cfg.UseWorktrees), nil
	case "auto_roles":
		return strconv.FormatBool(cfg.AutoRoles), nil
	case "hierarchical":
		return strconv.FormatBool(cfg.Hierarchical), nil
	case "start_delay":
		return cfg.StartDelay.String(), nil
	case "planner":
		return cfg.Planner, nil
	case "anthropic.api_key":
		if cfg.Anthropic.APIKey == "" {
			return "(not set)", nil
		}
		return "****", nil
	case "anthropic.model":
		return cfg.Anthropic.Model, nil
	case "shutdown.grace_period":
		return cfg.Shutdown.GracePeriod.String(), nil
	case "shutdown.stop_timeout":
		return cfg.Shutdown.StopTimeout.String(), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	if kind, field, ok := workerKey(key); ok {
		if !models.WorkerKind(kind).Valid() {
			return fmt.Errorf("unknown worker kind: %s", kind)
		}
		if cfg.Workers == nil {
			cfg.Workers = make(map[string]config.WorkerConfig)
		}
		wc := cfg.Workers[kind]
		switch field {
		case "path":
			wc.Path = value
		case "max_concurrent":
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid value for max_concurrent: %w", err)
			}
			wc.MaxConcurrent = n
		case "extra_args":
			wc.ExtraArgs = strings.Fields(value)
		default:
			return fmt.Errorf("unknown configuration key: %s", key)
		}
		cfg.Workers[kind] = wc
		return nil
	}

	switch strings.ToLower(key) {
	case "mode":
		if !models.ExecutionMode(value).Valid() {
			return fmt.Errorf("invalid mode: %s", value)
		}
		cfg.Mode = value
	case "strategy":
		if !models.WorkerStrategy(value).Valid() {
			return fmt.Errorf("invalid strategy: %s", value)
		}
		cfg.Strategy = value
	case "max_workers":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_workers: %w", err)
		}
		cfg.MaxWorkers = n
	case "default_worker":
		if !models.WorkerKind(value).Valid() {
			return fmt.Errorf("invalid worker kind: %s", value)
		}
		cfg.DefaultWorker = value
	case "enabled_workers":
		cfg.EnabledWorkers = nil
		for _, name := range strings.Split(value, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if !models.WorkerKind(name).Valid() {
				return fmt.Errorf("invalid worker kind: %s", name)
			}
			cfg.EnabledWorkers = append(cfg.EnabledWorkers, name)
		}
	case "use_worktrees":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for use_worktrees: %w", err)
		}
		cfg.UseWorktrees = b
	case "auto_roles":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for auto_roles: %w", err)
		}
		cfg.AutoRoles = b
	case "hierarchical":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for hierarchical: %w", err)
		}
		cfg.Hierarchical = b
	case "start_delay":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for start_delay: %w", err)
		}
		cfg.StartDelay = d
	case "planner":
		if value != "heuristic" && value != "claude" {
			return fmt.Errorf("invalid planner: %s (want heuristic or claude)", value)
		}
		cfg.Planner = value
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "shutdown.grace_period":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for grace_period: %w", err)
		}
		cfg.Shutdown.GracePeriod = d
	case "shutdown.stop_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for stop_timeout: %w", err)
		}
		cfg.Shutdown.StopTimeout = d
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

// workerKey splits a workers.<kind>.<field> key into its parts.
func workerKey(key string) (kind, field string, ok bool) {
	parts := strings.Split(strings.ToLower(key), ".")
	if len(parts) != 3 || parts[0] != "workers" {
		return "", "", false
	}
	return parts[1], parts[2], true
}
