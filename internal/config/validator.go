package config

import (
	"fmt"
	"time"
)

// Validate enforces the structural invariants Initialize depends on before
// handing a Config to the rest of the system.
func Validate(c *Config) error {
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database.database is required")
	}
	if c.Dispatcher.TickInterval <= 0 || c.Dispatcher.TickInterval > tickIntervalMax {
		return fmt.Errorf("dispatcher.tick_interval must be in (0, %s]", tickIntervalMax)
	}
	if c.Worker.HeartbeatInterval <= 0 {
		return fmt.Errorf("worker.heartbeat_interval must be positive")
	}
	if c.Dispatcher.HeartbeatTimeout <= c.Worker.HeartbeatInterval {
		return fmt.Errorf("dispatcher.heartbeat_timeout must exceed worker.heartbeat_interval")
	}
	switch c.Storage.Backend {
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the s3 backend")
		}
	case "swift":
		if c.Storage.SwiftContainer == "" {
			return fmt.Errorf("storage.swift_container is required for the swift backend")
		}
	default:
		return fmt.Errorf("storage.backend must be 's3' or 'swift', got %q", c.Storage.Backend)
	}
	switch c.Launcher.Kind {
	case "process", "container":
	default:
		return fmt.Errorf("launcher.kind must be 'process' or 'container', got %q", c.Launcher.Kind)
	}
	if c.Webhook.WorkerCount <= 0 {
		return fmt.Errorf("webhook.worker_count must be positive")
	}
	return nil
}

// tickIntervalMax bounds the dispatcher tick interval to 5s.
const tickIntervalMax = 5 * time.Second
