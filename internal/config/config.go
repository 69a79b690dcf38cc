package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alertdesk/alarm-console/internal/console/reconcile"
)

// BackfillConfig is the retry policy for backfill requests.
type BackfillConfig struct {
	// InitialInterval is the delay before the first backfill retry.
	InitialInterval time.Duration `yaml:"initial_interval"`
	// MaxInterval caps the doubling retry interval.
	MaxInterval time.Duration `yaml:"max_interval"`
	// MaxAttempts bounds backfill requests per gap episode before the
	// category is marked degraded.
	MaxAttempts int `yaml:"max_attempts"`
}

// Config holds connection parameters shared by the console binaries.
type Config struct {
	// ServerAddress is the gRPC address of the broadcast feed.
	ServerAddress string `yaml:"server_addr"`
	// AgentID identifies this agent in optimistic updates. Generated at
	// runtime when empty.
	AgentID string `yaml:"agent_id"`
	// Timeout is the duration for network operations.
	Timeout time.Duration `yaml:"timeout"`
	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
	// Backfill is the backfill retry policy.
	Backfill BackfillConfig `yaml:"backfill"`
}

const (
	// DefaultConfigFilename is the default filename for connection settings.
	DefaultConfigFilename = "alarm-console-settings.yaml"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 5 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errServerSocketRequired is returned when server address is missing.
	errServerSocketRequired = errors.New("server address must be provided")
)

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and formatting,
// filling unset fields with defaults.
func Validate(cfg *Config) error {
	if cfg.ServerAddress == "" {
		return errServerSocketRequired
	}

	if _, err := net.ResolveTCPAddr("tcp", cfg.ServerAddress); err != nil {
		return fmt.Errorf("invalid server socket: %w", err)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.Backfill.InitialInterval <= 0 {
		cfg.Backfill.InitialInterval = reconcile.DefaultInitialInterval
	}

	if cfg.Backfill.MaxInterval <= 0 {
		cfg.Backfill.MaxInterval = reconcile.DefaultMaxInterval
	}

	if cfg.Backfill.MaxInterval < cfg.Backfill.InitialInterval {
		return fmt.Errorf("backfill max_interval %s is below initial_interval %s",
			cfg.Backfill.MaxInterval, cfg.Backfill.InitialInterval)
	}

	if cfg.Backfill.MaxAttempts <= 0 {
		cfg.Backfill.MaxAttempts = reconcile.DefaultMaxAttempts
	}

	return nil
}

// RetryConfig converts the backfill settings into the reconciler's config.
func (c *Config) RetryConfig() reconcile.Config {
	return reconcile.Config{
		InitialInterval: c.Backfill.InitialInterval,
		MaxInterval:     c.Backfill.MaxInterval,
		MaxAttempts:     c.Backfill.MaxAttempts,
	}
}
