// Package storage puts finished recording artifacts into durable object
// storage and hands back the signed URLs a client uses to retrieve them.
// Two backends are supported, selected by internal/config.StorageConfig's
// Backend field: S3-compatible (aws-sdk-go-v2) and OpenStack Swift (plain
// net/http, see swift.go for why).
package storage

import (
	"context"
	"fmt"

	"github.com/meetingbot/core/internal/config"
)

// Store puts, fetches, deletes, and signs URLs for recording artifacts
// keyed by the object key layout in keys.go.
type Store interface {
	// Put uploads the file at localPath under objectKey and reports the
	// number of bytes written. It matches internal/controller.Uploader's
	// signature so a *Store can be passed to it directly.
	Put(ctx context.Context, objectKey, localPath string) (bytesUploaded int64, err error)
	// Get downloads objectKey to localPath.
	Get(ctx context.Context, objectKey, localPath string) error
	// Delete removes objectKey, if present.
	Delete(ctx context.Context, objectKey string) error
	// SignedURL returns a time-limited URL a client can fetch objectKey
	// from directly, without proxying bytes through the API.
	SignedURL(ctx context.Context, objectKey string) (string, error)
	// Exists reports whether objectKey has already been written.
	Exists(ctx context.Context, objectKey string) (bool, error)
}

// New builds the Store selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "s3", "":
		return newS3Store(ctx, cfg)
	case "swift":
		return newSwiftStore(cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
