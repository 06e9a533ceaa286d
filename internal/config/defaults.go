package config

import "time"

// Defaults returns the built-in configuration: pre_roll=60s,
// heartbeat_timeout=120s, launch_retry_window=10m, only_participant=60s,
// silence=600s, max_duration=4h, flush_timeout=30s, shutdown_guard=120s,
// adapter leave deadline=60s.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "meetingbot",
			Database:        "meetingbot",
			SSLMode:         "disable",
			MaxConns:        20,
			MinConns:        2,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Dispatcher: DispatcherConfig{
			TickInterval:      5 * time.Second,
			PreRoll:           60 * time.Second,
			HeartbeatTimeout:  120 * time.Second,
			LaunchRetryWindow: 10 * time.Minute,
			ShardCount:        1,
		},
		Worker: WorkerConfig{
			HeartbeatInterval:    15 * time.Second,
			ShutdownGuard:        120 * time.Second,
			FlushTimeout:         30 * time.Second,
			AdapterLeaveDeadline: 60 * time.Second,
			AutoLeave: AutoLeaveDefaults{
				OnlyParticipant: 60 * time.Second,
				Silence:         600 * time.Second,
				MaxDuration:     4 * time.Hour,
				WaitingRoom:     600 * time.Second,
			},
		},
		Webhook: WebhookConfig{
			ConnectTimeout: 10 * time.Second,
			TotalTimeout:   30 * time.Second,
			WorkerCount:    4,
			MaxBodyBytes:   4 * 1024,
		},
		Storage: StorageConfig{
			Backend: "s3",
		},
		Launcher: LauncherConfig{
			Kind:         "process",
			WorkerBinary: "meetingbot",
		},
	}
}
