package services

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/meetingbot/core/internal/models"
)

// CredentialService encrypts provider secrets before they reach
// internal/store and decrypts them for callers that need the plaintext
// (the launcher injecting a Zoom OAuth token, the transcription
// coordinator's Deepgram API key, the storage backend's S3/Swift
// credentials). No other package is allowed to see a Credential's
// plaintext, or its AES key.
//
// There is no secrets-management client (Vault, KMS SDK, age) anywhere in
// the dependency corpus this module was grounded on, so encryption is
// built directly on crypto/aes + crypto/cipher (AES-256-GCM) rather than
// wrapping a third-party library — see DESIGN.md.
type CredentialService struct {
	store credentialStore
	gcm   cipher.AEAD
}

// credentialStore is the slice of *store.Store CredentialService needs,
// narrowed to an interface so the AES round trip can be unit-tested
// without a live Postgres connection.
type credentialStore interface {
	UpsertCredential(ctx context.Context, c *models.Credential) error
	GetCredential(ctx context.Context, projectID string, provider models.Provider) (*models.Credential, error)
}

// NewCredentialService builds a CredentialService. key must be 32 bytes
// (AES-256); it is provided by internal/config, sourced from the
// MEETINGBOT_CREDENTIAL_KEY environment variable.
func NewCredentialService(s credentialStore, key []byte) (*CredentialService, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init credential cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to init credential GCM mode: %w", err)
	}
	return &CredentialService{store: s, gcm: gcm}, nil
}

// PutCredential encrypts secret and upserts it for (projectID, provider).
func (s *CredentialService) PutCredential(ctx context.Context, projectID string, provider models.Provider, secret string) error {
	if projectID == "" {
		return NewValidationError("project_id", "required")
	}
	if secret == "" {
		return NewValidationError("secret", "required")
	}

	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate credential nonce: %w", err)
	}
	ciphertext := s.gcm.Seal(nonce, nonce, []byte(secret), nil)

	cred := &models.Credential{
		ID:         uuid.NewString(),
		ProjectID:  projectID,
		Provider:   provider,
		Ciphertext: ciphertext,
	}
	if err := s.store.UpsertCredential(ctx, cred); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// GetCredential loads and decrypts the secret stored for (projectID, provider).
func (s *CredentialService) GetCredential(ctx context.Context, projectID string, provider models.Provider) (string, error) {
	cred, err := s.store.GetCredential(ctx, projectID, provider)
	if err != nil {
		return "", translateStoreErr(err)
	}

	nonceSize := s.gcm.NonceSize()
	if len(cred.Ciphertext) < nonceSize {
		return "", fmt.Errorf("stored credential ciphertext is shorter than a nonce")
	}
	nonce, sealed := cred.Ciphertext[:nonceSize], cred.Ciphertext[nonceSize:]
	plaintext, err := s.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt credential: %w", err)
	}
	return string(plaintext), nil
}
