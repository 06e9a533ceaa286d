package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/meetingbot/core/internal/config"
)

// swiftStore implements Store against an OpenStack Swift container using
// its plain HTTP object API (PUT/GET/DELETE/HEAD, X-Auth-Token). None of
// the dependency corpus this module was grounded on vendors a Swift/Keystone
// client, and Swift's object API is a handful of stdlib net/http calls, so
// this backend is built directly on net/http rather than importing an
// unrelated client library to cover a single concern — see DESIGN.md.
type swiftStore struct {
	http      *http.Client
	authURL   string
	container string
	token     string
	tokenAt   time.Time
}

func newSwiftStore(cfg config.StorageConfig) (*swiftStore, error) {
	if cfg.SwiftAuthURL == "" || cfg.SwiftContainer == "" {
		return nil, errors.New("storage: swift backend requires swift_auth_url and swift_container")
	}
	return &swiftStore{
		http:      &http.Client{Timeout: 30 * time.Second},
		authURL:   cfg.SwiftAuthURL,
		container: cfg.SwiftContainer,
	}, nil
}

// authToken returns a Keystone X-Auth-Token, re-authenticating if the last
// one is more than an hour old. Swift tokens are typically valid for 24h;
// this stays well inside that without adding a refresh scheduler.
func (s *swiftStore) authToken(ctx context.Context) (string, error) {
	if s.token != "" && time.Since(s.tokenAt) < time.Hour {
		return s.token, nil
	}

	user, key := os.Getenv("MEETINGBOT_SWIFT_USER"), os.Getenv("MEETINGBOT_SWIFT_KEY")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.authURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build swift auth request: %w", err)
	}
	req.Header.Set("X-Auth-User", user)
	req.Header.Set("X-Auth-Key", key)

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to authenticate with swift: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("swift auth returned %d", resp.StatusCode)
	}

	token := resp.Header.Get("X-Auth-Token")
	if token == "" {
		return "", errors.New("swift auth response carried no X-Auth-Token")
	}
	s.token, s.tokenAt = token, time.Now()
	return token, nil
}

func (s *swiftStore) objectURL(objectKey string) string {
	return fmt.Sprintf("%s/%s/%s", s.authURL, s.container, objectKey)
}

func (s *swiftStore) Put(ctx context.Context, objectKey, localPath string) (int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s for upload: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	token, err := s.authToken(ctx)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.objectURL(objectKey), f)
	if err != nil {
		return 0, fmt.Errorf("failed to build swift put request: %w", err)
	}
	req.Header.Set("X-Auth-Token", token)
	req.ContentLength = info.Size()

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to put %s: %w", objectKey, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return 0, fmt.Errorf("swift put %s returned %d", objectKey, resp.StatusCode)
	}
	return info.Size(), nil
}

func (s *swiftStore) Get(ctx context.Context, objectKey, localPath string) error {
	token, err := s.authToken(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.objectURL(objectKey), nil)
	if err != nil {
		return fmt.Errorf("failed to build swift get request: %w", err)
	}
	req.Header.Set("X-Auth-Token", token)

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", objectKey, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("swift get %s returned %d", objectKey, resp.StatusCode)
	}

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", localPath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("failed to write %s: %w", localPath, err)
	}
	return nil
}

func (s *swiftStore) Delete(ctx context.Context, objectKey string) error {
	token, err := s.authToken(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.objectURL(objectKey), nil)
	if err != nil {
		return fmt.Errorf("failed to build swift delete request: %w", err)
	}
	req.Header.Set("X-Auth-Token", token)

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", objectKey, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("swift delete %s returned %d", objectKey, resp.StatusCode)
	}
	return nil
}

// SignedURL is unsupported on this backend: Swift's TempURL feature needs
// a shared key configured on the container, which this driver does not
// assume is present. Callers fall back to proxying the download through
// the API; Exists and Get still work directly.
func (s *swiftStore) SignedURL(ctx context.Context, objectKey string) (string, error) {
	return "", errors.New("storage: signed URLs are not supported on the swift backend without a configured TempURL key")
}

func (s *swiftStore) Exists(ctx context.Context, objectKey string) (bool, error) {
	token, err := s.authToken(ctx)
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.objectURL(objectKey), nil)
	if err != nil {
		return false, fmt.Errorf("failed to build swift head request: %w", err)
	}
	req.Header.Set("X-Auth-Token", token)

	resp, err := s.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to head %s: %w", objectKey, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("swift head %s returned %d", objectKey, resp.StatusCode)
	}
	return true, nil
}
