package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/meetingbot/core/internal/config"
)

// presignTTL is how long a SignedURL stays valid. Recording downloads are
// triggered by a dashboard click or a webhook-driven fetch shortly after a
// Bot ends, not hours later, so this stays short.
const presignTTL = 15 * time.Minute

// s3Store implements Store against any S3-compatible API (AWS S3, MinIO,
// Cloudflare R2) via aws-sdk-go-v2. ForcePathStyle and a custom Endpoint
// let it target a non-AWS-hosted service without another client library.
type s3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

func newS3Store(ctx context.Context, cfg config.StorageConfig) (*s3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage: s3 backend requires a bucket")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if key := os.Getenv("MEETINGBOT_S3_ACCESS_KEY_ID"); key != "" {
		secret := os.Getenv("MEETINGBOT_S3_SECRET_ACCESS_KEY")
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(key, secret, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &s3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
	}, nil
}

func (s *s3Store) Put(ctx context.Context, objectKey, localPath string) (int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s for upload: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &objectKey,
		Body:   f,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to put %s: %w", objectKey, err)
	}
	return info.Size(), nil
}

func (s *s3Store) Get(ctx context.Context, objectKey, localPath string) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &objectKey,
	})
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", objectKey, err)
	}
	defer out.Body.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", localPath, err)
	}
	defer f.Close()

	if _, err := f.ReadFrom(out.Body); err != nil {
		return fmt.Errorf("failed to write %s: %w", localPath, err)
	}
	return nil
}

func (s *s3Store) Delete(ctx context.Context, objectKey string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &objectKey,
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", objectKey, err)
	}
	return nil
}

func (s *s3Store) SignedURL(ctx context.Context, objectKey string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &objectKey,
	}, s3.WithPresignExpires(presignTTL))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", objectKey, err)
	}
	return req.URL, nil
}

func (s *s3Store) Exists(ctx context.Context, objectKey string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &objectKey,
	})
	if err == nil {
		return true, nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
		return false, nil
	}
	return false, fmt.Errorf("failed to head %s: %w", objectKey, err)
}
