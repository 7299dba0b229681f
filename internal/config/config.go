// Package config provides configuration management for quotio.
// Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (QUOTIO_*)
// 3. Project config (.quotio/config.yaml in cwd, or $QUOTIO_CONFIG)
// 4. Home config (~/.quotio/config.yaml)
// 5. Defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all quotio configuration.
type Config struct {
	// Output controls the default output format (table, json, yaml).
	Output string `yaml:"output,omitempty" json:"output"`

	// Verbose enables verbose output.
	Verbose bool `yaml:"verbose,omitempty" json:"verbose"`

	// Review settings
	Review ReviewConfig `yaml:"review,omitempty" json:"review"`

	// Server settings
	Server ServerConfig `yaml:"server,omitempty" json:"server"`
}

// ReviewConfig holds review queue settings. Durations use time.ParseDuration
// syntax ("30m", "1h").
type ReviewConfig struct {
	// CLICommand is the review CLI binary name or path. Default: "codex".
	CLICommand string `yaml:"cli_command,omitempty" json:"cli_command"`
	// MaxWorkers caps concurrently running review workers. Default: 8.
	MaxWorkers int `yaml:"max_workers,omitempty" json:"max_workers"`

	WorkerTimeout    string `yaml:"worker_timeout,omitempty" json:"worker_timeout"`
	AggregateTimeout string `yaml:"aggregate_timeout,omitempty" json:"aggregate_timeout"`
	FixTimeout       string `yaml:"fix_timeout,omitempty" json:"fix_timeout"`
	// GracePeriod is the SIGTERM to SIGKILL delay on cancellation.
	GracePeriod string `yaml:"grace_period,omitempty" json:"grace_period"`

	// Model is passed to the CLI with -m when set.
	Model string `yaml:"model,omitempty" json:"model"`

	// Booleans are pointers so an explicit false in a higher layer wins.
	FullAuto         *bool `yaml:"full_auto,omitempty" json:"full_auto,omitempty"`
	SkipGitRepoCheck *bool `yaml:"skip_git_repo_check,omitempty" json:"skip_git_repo_check,omitempty"`
	Ephemeral        *bool `yaml:"ephemeral,omitempty" json:"ephemeral,omitempty"`
}

// ServerConfig holds settings for `quotio serve`.
type ServerConfig struct {
	// Addr is the listen address. Default: 127.0.0.1:8765.
	Addr string `yaml:"addr,omitempty" json:"addr"`
}

// Default config values (used in resolution and validation).
const (
	defaultOutput           = "table"
	defaultCLICommand       = "codex"
	defaultMaxWorkers       = 8
	defaultWorkerTimeout    = "30m"
	defaultAggregateTimeout = "45m"
	defaultFixTimeout       = "1h"
	defaultGracePeriod      = "3s"
	defaultServerAddr       = "127.0.0.1:8765"
)

// ErrInvalidValue is returned for config values that cannot be parsed.
var ErrInvalidValue = errors.New("invalid config value")

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Output: defaultOutput,
		Review: ReviewConfig{
			CLICommand:       defaultCLICommand,
			MaxWorkers:       defaultMaxWorkers,
			WorkerTimeout:    defaultWorkerTimeout,
			AggregateTimeout: defaultAggregateTimeout,
			FixTimeout:       defaultFixTimeout,
			GracePeriod:      defaultGracePeriod,
			FullAuto:         Bool(false),
			SkipGitRepoCheck: Bool(false),
			Ephemeral:        Bool(false),
		},
		Server: ServerConfig{Addr: defaultServerAddr},
	}
}

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// Load loads configuration with proper precedence.
// Priority: flags > env > project > home > defaults.
// projectPath overrides the project config location when non-empty.
func Load(projectPath string, flagOverrides *Config) (*Config, error) {
	cfg := Default()

	if homeConfig, _ := loadFromPath(homeConfigPath()); homeConfig != nil {
		cfg = merge(cfg, homeConfig)
	}

	projectConfig, err := loadFromPath(resolveProjectPath(projectPath))
	if err != nil && (projectPath != "" || !errors.Is(err, os.ErrNotExist)) {
		return nil, fmt.Errorf("load project config: %w", err)
	}
	if projectConfig != nil {
		cfg = merge(cfg, projectConfig)
	}

	envConfig, err := fromEnv()
	if err != nil {
		return nil, err
	}
	cfg = merge(cfg, envConfig)

	if flagOverrides != nil {
		cfg = merge(cfg, flagOverrides)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that are stored as strings.
func (c *Config) Validate() error {
	switch c.Output {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("%w: output %q (want table, json or yaml)", ErrInvalidValue, c.Output)
	}
	if c.Review.MaxWorkers < 0 {
		return fmt.Errorf("%w: review.max_workers %d", ErrInvalidValue, c.Review.MaxWorkers)
	}
	for key, v := range map[string]string{
		"review.worker_timeout":    c.Review.WorkerTimeout,
		"review.aggregate_timeout": c.Review.AggregateTimeout,
		"review.fix_timeout":       c.Review.FixTimeout,
		"review.grace_period":      c.Review.GracePeriod,
	} {
		if _, err := ParseDuration(key, v); err != nil {
			return err
		}
	}

	worker, aggregate, fix, _ := c.Review.withDefaultTimeouts().Timeouts()
	if !(worker < aggregate && aggregate < fix) {
		return fmt.Errorf("%w: timeouts must increase worker < aggregate < fix (got %s, %s, %s)",
			ErrInvalidValue, worker, aggregate, fix)
	}
	return nil
}

// withDefaultTimeouts fills empty timeout settings from the defaults.
func (r ReviewConfig) withDefaultTimeouts() ReviewConfig {
	for _, f := range []struct {
		dst *string
		def string
	}{
		{&r.WorkerTimeout, defaultWorkerTimeout},
		{&r.AggregateTimeout, defaultAggregateTimeout},
		{&r.FixTimeout, defaultFixTimeout},
	} {
		if strings.TrimSpace(*f.dst) == "" {
			*f.dst = f.def
		}
	}
	return r
}

// ParseDuration parses a duration setting. Empty means zero (use the default).
func ParseDuration(key, value string) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: %s %q", ErrInvalidValue, key, value)
	}
	return d, nil
}

// Timeouts returns the parsed worker, aggregate and fix timeouts and the
// grace period. Call Validate first; unparseable values yield zero.
func (r ReviewConfig) Timeouts() (worker, aggregate, fix, grace time.Duration) {
	worker, _ = ParseDuration("worker_timeout", r.WorkerTimeout)
	aggregate, _ = ParseDuration("aggregate_timeout", r.AggregateTimeout)
	fix, _ = ParseDuration("fix_timeout", r.FixTimeout)
	grace, _ = ParseDuration("grace_period", r.GracePeriod)
	return worker, aggregate, fix, grace
}

// BoolValue dereferences p, treating nil as false.
func BoolValue(p *bool) bool { return p != nil && *p }

// homeConfigPath returns the home config path.
func homeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".quotio", "config.yaml")
}

// resolveProjectPath returns the project config path.
func resolveProjectPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if override := strings.TrimSpace(os.Getenv("QUOTIO_CONFIG")); override != "" {
		return override
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, ".quotio", "config.yaml")
}

// loadFromPath loads config from a YAML file.
func loadFromPath(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return &cfg, nil
}

// fromEnv builds a config layer holding only the QUOTIO_* variables that are set.
func fromEnv() (*Config, error) {
	cfg := &Config{}
	if v := os.Getenv("QUOTIO_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if v := os.Getenv("QUOTIO_VERBOSE"); v == "true" || v == "1" {
		cfg.Verbose = true
	}
	if v := os.Getenv("QUOTIO_CLI_COMMAND"); v != "" {
		cfg.Review.CLICommand = v
	}
	if v := os.Getenv("QUOTIO_MAX_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: QUOTIO_MAX_WORKERS %q", ErrInvalidValue, v)
		}
		cfg.Review.MaxWorkers = n
	}
	if v := os.Getenv("QUOTIO_WORKER_TIMEOUT"); v != "" {
		cfg.Review.WorkerTimeout = v
	}
	if v := os.Getenv("QUOTIO_AGGREGATE_TIMEOUT"); v != "" {
		cfg.Review.AggregateTimeout = v
	}
	if v := os.Getenv("QUOTIO_FIX_TIMEOUT"); v != "" {
		cfg.Review.FixTimeout = v
	}
	if v := os.Getenv("QUOTIO_GRACE_PERIOD"); v != "" {
		cfg.Review.GracePeriod = v
	}
	if v := os.Getenv("QUOTIO_MODEL"); v != "" {
		cfg.Review.Model = v
	}
	for key, dst := range map[string]**bool{
		"QUOTIO_FULL_AUTO":           &cfg.Review.FullAuto,
		"QUOTIO_SKIP_GIT_REPO_CHECK": &cfg.Review.SkipGitRepoCheck,
		"QUOTIO_EPHEMERAL":           &cfg.Review.Ephemeral,
	} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %q", ErrInvalidValue, key, v)
		}
		*dst = Bool(b)
	}
	if v := os.Getenv("QUOTIO_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	return cfg, nil
}

// mergeStr overwrites dst with src when src is non-empty.
func mergeStr(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// mergeInt overwrites dst with src when src is non-zero.
func mergeInt(dst *int, src int) {
	if src != 0 {
		*dst = src
	}
}

// mergeBool overwrites dst when src was set explicitly.
func mergeBool(dst **bool, src *bool) {
	if src != nil {
		*dst = Bool(*src)
	}
}

// merge merges src into dst, with src values taking precedence.
func merge(dst, src *Config) *Config {
	mergeStr(&dst.Output, src.Output)
	if src.Verbose {
		dst.Verbose = true
	}
	mergeReview(&dst.Review, &src.Review)
	mergeStr(&dst.Server.Addr, src.Server.Addr)
	return dst
}

// mergeReview merges review queue fields.
func mergeReview(dst, src *ReviewConfig) {
	mergeStr(&dst.CLICommand, src.CLICommand)
	mergeInt(&dst.MaxWorkers, src.MaxWorkers)
	mergeStr(&dst.WorkerTimeout, src.WorkerTimeout)
	mergeStr(&dst.AggregateTimeout, src.AggregateTimeout)
	mergeStr(&dst.FixTimeout, src.FixTimeout)
	mergeStr(&dst.GracePeriod, src.GracePeriod)
	mergeStr(&dst.Model, src.Model)
	mergeBool(&dst.FullAuto, src.FullAuto)
	mergeBool(&dst.SkipGitRepoCheck, src.SkipGitRepoCheck)
	mergeBool(&dst.Ephemeral, src.Ephemeral)
}
