// Package config loads and validates meetingbot's layered configuration:
// built-in defaults merged with a user meetingbot.yaml, environment
// variable expansion, then struct validation (Initialize -> load ->
// expand -> merge -> validate).
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Config is the fully resolved, validated configuration for all
// cmd/meetingbot subcommands.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Worker    WorkerConfig    `yaml:"worker"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Storage   StorageConfig   `yaml:"storage"`
	Launcher  LauncherConfig  `yaml:"launcher"`
}

// DatabaseConfig configures the pgxpool connection.
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DispatcherConfig configures the dispatcher tick loop.
type DispatcherConfig struct {
	TickInterval       time.Duration `yaml:"tick_interval"`         // <= 5s
	PreRoll            time.Duration `yaml:"pre_roll"`              // default 60s
	HeartbeatTimeout   time.Duration `yaml:"heartbeat_timeout"`     // T_heartbeat, default 120s
	LaunchRetryWindow  time.Duration `yaml:"launch_retry_window"`   // T_launch_retry, default 10m
	ShardCount         int           `yaml:"shard_count"`
}

// WorkerConfig configures the per-bot Bot Controller.
type WorkerConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"` // 15s
	ShutdownGuard     time.Duration `yaml:"shutdown_guard"`     // T_shutdown, 120s
	FlushTimeout      time.Duration `yaml:"flush_timeout"`      // T_flush, 30s
	AdapterLeaveDeadline time.Duration `yaml:"adapter_leave_deadline"` // 60s

	AutoLeave AutoLeaveDefaults `yaml:"auto_leave"`
}

// AutoLeaveDefaults are the default thresholds overridable
// per-Bot via models.BotSettings.AutoLeave.
type AutoLeaveDefaults struct {
	OnlyParticipant time.Duration `yaml:"only_participant"` // T_only, 60s
	Silence         time.Duration `yaml:"silence"`          // T_silence, 600s
	MaxDuration     time.Duration `yaml:"max_duration"`     // T_max, 4h
	WaitingRoom     time.Duration `yaml:"waiting_room"`     // T_waiting
}

// WebhookConfig configures the delivery engine.
type WebhookConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout"` // 10s
	TotalTimeout   time.Duration `yaml:"total_timeout"`   // 30s
	WorkerCount    int           `yaml:"worker_count"`
	MaxBodyBytes   int           `yaml:"max_body_bytes"` // 4 KiB truncation
}

// StorageConfig selects and configures the object storage backend.
type StorageConfig struct {
	Backend         string `yaml:"backend"` // "s3" | "swift"
	Bucket          string `yaml:"bucket"`
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
	SwiftAuthURL    string `yaml:"swift_auth_url"`
	SwiftContainer  string `yaml:"swift_container"`
}

// LauncherConfig selects and configures the worker launcher.
type LauncherConfig struct {
	Kind            string `yaml:"kind"` // "process" | "container"
	WorkerBinary    string `yaml:"worker_binary"`
	ContainerImage  string `yaml:"container_image"`
	DockerHost      string `yaml:"docker_host"`
}

// Initialize loads, validates, and returns ready-to-use configuration:
//  1. Start from built-in defaults.
//  2. Load and env-expand the user YAML file, if present.
//  3. Merge user values over defaults with dario.cat/mergo.
//  4. Validate.
func Initialize(ctx context.Context, path string) (*Config, error) {
	log := slog.With("config_path", path)
	log.InfoContext(ctx, "initializing configuration")

	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			user, err := load(path)
			if err != nil {
				return nil, fmt.Errorf("failed to load configuration: %w", err)
			}
			if err := mergo.Merge(&cfg, user, mergo.WithOverride); err != nil {
				return nil, fmt.Errorf("failed to merge configuration: %w", err)
			}
		} else {
			log.InfoContext(ctx, "no user config file found, using defaults")
		}
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// load reads a YAML file, expands ${VAR}/$VAR environment references in its
// scalars, and unmarshals it into a Config.
func load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	expanded := expandEnv(string(raw))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}
