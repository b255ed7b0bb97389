// Package config handles configuration loading and management for crew.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/crewkit/crew/pkg/models"
)

// WorkerConfig holds the launch settings for one worker kind.
// A kind with an empty Path is disabled.
type WorkerConfig struct {
	// Path is the CLI binary for this kind. Empty means the kind is disabled.
	Path string `mapstructure:"path"`
	// MaxConcurrent is this kind's concurrency budget.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// ExtraArgs are appended to every invocation of this kind.
	ExtraArgs []string `mapstructure:"extra_args"`
}

// Config holds all configuration for crew. It is constructed once at startup
// and treated as an immutable snapshot per orchestration run.
type Config struct {
	// Workers maps kind name to its launch settings.
	Workers map[string]WorkerConfig `mapstructure:"workers"`
	// MaxWorkers is the global ceiling on concurrently running workers.
	MaxWorkers int `mapstructure:"max_workers"`
	// DefaultWorker is the kind used by the single-worker strategy.
	DefaultWorker string `mapstructure:"default_worker"`
	// Strategy selects how ready steps are assigned to kinds.
	Strategy string `mapstructure:"strategy"`
	// EnabledWorkers whitelists kinds eligible for dispatch.
	// Empty means every configured kind is eligible.
	EnabledWorkers []string `mapstructure:"enabled_workers"`
	// UseWorktrees isolates each worker in a dedicated git worktree.
	UseWorktrees bool `mapstructure:"use_worktrees"`
	// AutoRoles tags dispatched workers with role-specialized instructions.
	// Accepted and persisted; dispatch currently treats all workers uniformly.
	AutoRoles bool `mapstructure:"auto_roles"`
	// Hierarchical nests coordinator workers above leaf workers.
	// Accepted and persisted; the pool currently runs a flat worker set.
	Hierarchical bool `mapstructure:"hierarchical"`
	// StartDelay is the minimum gap between any two worker launches.
	StartDelay time.Duration `mapstructure:"start_delay"`
	// Mode is the active execution mode (direct, subagent, orchestration).
	Mode string `mapstructure:"mode"`
	// Planner selects the plan backend ("heuristic" or "claude").
	Planner string `mapstructure:"planner"`
	// Anthropic holds API settings for the Claude planner backend.
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	// Shutdown holds shutdown timing settings.
	Shutdown ShutdownConfig `mapstructure:"shutdown"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// ShutdownConfig holds shutdown timing settings.
type ShutdownConfig struct {
	// GracePeriod is how long a worker gets between SIGTERM and SIGKILL.
	GracePeriod time.Duration `mapstructure:"grace_period"`
	// StopTimeout bounds how long StopAll waits for workers to exit.
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
}

// ExecutionMode returns the configured mode as a model value.
func (c *Config) ExecutionMode() models.ExecutionMode {
	return models.ExecutionMode(c.Mode)
}

// WorkerStrategy returns the configured strategy as a model value.
func (c *Config) WorkerStrategy() models.WorkerStrategy {
	return models.WorkerStrategy(c.Strategy)
}

// Enabled returns the kinds eligible for dispatch, in enumeration order.
// A kind is eligible when it has a configured path and either the whitelist
// is empty or names it.
func (c *Config) Enabled() []models.WorkerKind {
	whitelist := make(map[string]bool, len(c.EnabledWorkers))
	for _, name := range c.EnabledWorkers {
		whitelist[name] = true
	}

	var enabled []models.WorkerKind
	for _, kind := range models.AllWorkerKinds {
		wc, ok := c.Workers[string(kind)]
		if !ok || wc.Path == "" {
			continue
		}
		if len(c.EnabledWorkers) > 0 && !whitelist[string(kind)] {
			continue
		}
		enabled = append(enabled, kind)
	}
	return enabled
}

// WorkerFor returns the launch settings for a kind and whether it is configured.
func (c *Config) WorkerFor(kind models.WorkerKind) (WorkerConfig, bool) {
	wc, ok := c.Workers[string(kind)]
	if !ok || wc.Path == "" {
		return WorkerConfig{}, false
	}
	return wc, true
}

// MaxConcurrent returns the per-kind throttle limit for a kind.
// Kinds without an explicit limit fall back to the global MaxWorkers.
func (c *Config) MaxConcurrent(kind models.WorkerKind) int {
	if wc, ok := c.Workers[string(kind)]; ok && wc.MaxConcurrent > 0 {
		return wc.MaxConcurrent
	}
	return c.MaxWorkers
}

// Validate checks the configuration for errors that must surface before any
// planning or dispatch happens.
func (c *Config) Validate() error {
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("max_workers must be positive, got %d", c.MaxWorkers)
	}
	if !c.ExecutionMode().Valid() {
		return fmt.Errorf("unknown execution mode %q", c.Mode)
	}
	if !c.WorkerStrategy().Valid() {
		return fmt.Errorf("unknown worker strategy %q", c.Strategy)
	}
	if c.Mode == string(models.ModeOrchestration) {
		if len(c.Enabled()) == 0 {
			return fmt.Errorf("no enabled workers: configure at least one worker path")
		}
		if !models.WorkerKind(c.DefaultWorker).Valid() {
			return fmt.Errorf("unknown default worker %q", c.DefaultWorker)
		}
		if _, ok := c.WorkerFor(models.WorkerKind(c.DefaultWorker)); !ok {
			return fmt.Errorf("default worker %q has no configured CLI path", c.DefaultWorker)
		}
	}
	if c.StartDelay < 0 {
		return fmt.Errorf("start_delay must not be negative")
	}
	return nil
}

// Load loads configuration from XDG paths, project overrides, and environment
// variables. Precedence (highest to lowest):
//  1. Environment variables (CREW_ prefix, ANTHROPIC_API_KEY)
//  2. Project config (.crew/config.yaml in current directory or a parent)
//  3. User config (~/.config/crew/config.yaml)
//  4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("CREW")
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("max_workers", cfg.MaxWorkers)
	v.Set("default_worker", cfg.DefaultWorker)
	v.Set("strategy", cfg.Strategy)
	v.Set("enabled_workers", cfg.EnabledWorkers)
	v.Set("use_worktrees", cfg.UseWorktrees)
	v.Set("auto_roles", cfg.AutoRoles)
	v.Set("hierarchical", cfg.Hierarchical)
	v.Set("start_delay", cfg.StartDelay.String())
	v.Set("mode", cfg.Mode)
	v.Set("planner", cfg.Planner)
	v.Set("shutdown.grace_period", cfg.Shutdown.GracePeriod.String())
	v.Set("shutdown.stop_timeout", cfg.Shutdown.StopTimeout.String())
	for name, wc := range cfg.Workers {
		v.Set("workers."+name+".path", wc.Path)
		v.Set("workers."+name+".max_concurrent", wc.MaxConcurrent)
		if len(wc.ExtraArgs) > 0 {
			v.Set("workers."+name+".extra_args", wc.ExtraArgs)
		}
	}

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("max_workers", 4)
	v.SetDefault("default_worker", "claude")
	v.SetDefault("strategy", "single")
	v.SetDefault("use_worktrees", true)
	v.SetDefault("auto_roles", false)
	v.SetDefault("hierarchical", false)
	v.SetDefault("start_delay", "2s")
	v.SetDefault("mode", "orchestration")
	v.SetDefault("planner", "heuristic")
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("shutdown.grace_period", "10s")
	v.SetDefault("shutdown.stop_timeout", "30s")
	v.SetDefault("workers.claude.path", "claude")
	v.SetDefault("workers.claude.max_concurrent", 4)
}

// getUserConfigDir returns the XDG config directory for crew.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "crew")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "crew")
	}
	return filepath.Join(home, ".config", "crew")
}

// findProjectConfig searches for .crew/config.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".crew", "config.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Workers: map[string]WorkerConfig{
			"claude": {Path: "claude", MaxConcurrent: 4},
		},
		MaxWorkers:    4,
		DefaultWorker: "claude",
		Strategy:      "single",
		UseWorktrees:  true,
		StartDelay:    2 * time.Second,
		Mode:          "orchestration",
		Planner:       "heuristic",
		Anthropic: AnthropicConfig{
			Model: "claude-sonnet-4-20250514",
		},
		Shutdown: ShutdownConfig{
			GracePeriod: 10 * time.Second,
			StopTimeout: 30 * time.Second,
		},
	}
}
