package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/meetingbot/core/internal/config"
	"github.com/meetingbot/core/internal/credit"
	"github.com/meetingbot/core/internal/services"
	"github.com/meetingbot/core/internal/store"
	"github.com/meetingbot/core/internal/webhook"
)

// loadConfig wraps config.Initialize with the shared --config flag.
func loadConfig(ctx context.Context) (*config.Config, error) {
	return config.Initialize(ctx, configPath)
}

// dsn builds a libpq-style connection string from cfg, the same shape
// internal/store.Config.dsn builds internally — internal/realtime's
// Listener needs its own dedicated (non-pooled) connection, so it takes a
// raw string rather than going through store.Open's pool.
func dsn(cfg config.DatabaseConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
}

// openStore connects to Postgres and applies migrations.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (*store.Store, error) {
	return store.Open(ctx, store.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxConns:        cfg.MaxConns,
		MinConns:        cfg.MinConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
}

// newCredentialService builds the process-wide CredentialService from the
// AES-256 key in MEETINGBOT_CREDENTIAL_KEY.
func newCredentialService(s *store.Store) (*services.CredentialService, error) {
	key := os.Getenv("MEETINGBOT_CREDENTIAL_KEY")
	if len(key) != 32 {
		return nil, fmt.Errorf("MEETINGBOT_CREDENTIAL_KEY must be exactly 32 bytes, got %d", len(key))
	}
	return services.NewCredentialService(s, []byte(key))
}

func newAccounting(s *store.Store) *credit.Accounting {
	return credit.New(s)
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func webhookEngine(s *store.Store) *webhook.Engine {
	return webhook.New(s)
}

// asrGRPCAddr returns the in-cluster ASR backend's address for
// transcription.GRPCProvider, or "" if no such backend is configured
// (Deepgram-only deployments never set this).
func asrGRPCAddr() string {
	return os.Getenv("MEETINGBOT_ASR_GRPC_ADDR")
}
