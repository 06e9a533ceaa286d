package models

import "time"

// Organization owns Projects and carries the credit balance debited for
// Bot runtime.
type Organization struct {
	ID                    string
	Name                  string
	Credits               float64 // signed; may go negative after overruns
	AllowNegativeCredits  bool
	CreditRateOverrides   map[string]float64 // platform -> rate override
	CreditsLowThreshold   float64
	CreditsLowNotifiedAt  *time.Time // makes the "once per threshold crossing" webhook durable
	FeatureFlags          map[string]bool
	CreatedAt             time.Time
}

// Project is the tenancy boundary for Bots, Credentials, and Webhook
// Subscriptions within an Organization.
type Project struct {
	ID             string
	OrganizationID string
	Name           string
	CreatedAt      time.Time
}

// Provider identifies which external system a Credential authenticates to.
type Provider string

const (
	ProviderZoomOAuth  Provider = "zoom_oauth"
	ProviderDeepgram   Provider = "deepgram"
	ProviderS3         Provider = "s3"
	ProviderSwift      Provider = "swift"
	ProviderGRPCASR    Provider = "grpc_asr"
)

// Credential holds an encrypted provider secret, keyed by (project, provider).
// Only the encryption layer in internal/services reads and writes
// Ciphertext; every other caller goes through that layer's decrypted
// accessor rather than touching the field directly.
type Credential struct {
	ID         string
	ProjectID  string
	Provider   Provider
	Ciphertext []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
