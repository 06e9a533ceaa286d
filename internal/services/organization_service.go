package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/meetingbot/core/internal/models"
	"github.com/meetingbot/core/internal/store"
)

// organizationServiceStore is the slice of *store.Store OrganizationService
// needs, narrowed to an interface so validation logic can be unit-tested
// without a live Postgres connection.
type organizationServiceStore interface {
	CreateOrganization(ctx context.Context, o *models.Organization) error
	GetOrganization(ctx context.Context, id string) (*models.Organization, error)
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
}

// OrganizationService is the validated entry point for organization and
// project lifecycle operations. The api and cmd layers go through here
// rather than calling internal/store directly, so request validation lives
// in one place instead of being re-derived at every call site.
type OrganizationService struct {
	store organizationServiceStore
}

// NewOrganizationService builds an OrganizationService over s.
func NewOrganizationService(s organizationServiceStore) *OrganizationService {
	return &OrganizationService{store: s}
}

// CreateOrganizationRequest is the validated input to CreateOrganization.
type CreateOrganizationRequest struct {
	Name                 string
	AllowNegativeCredits  bool
	CreditRateOverrides   map[string]float64
	CreditsLowThreshold   float64
}

// CreateOrganization validates req and inserts a new Organization with a
// zero starting credit balance — operators top up balances out of band.
func (s *OrganizationService) CreateOrganization(ctx context.Context, req CreateOrganizationRequest) (*models.Organization, error) {
	if req.Name == "" {
		return nil, NewValidationError("name", "required")
	}
	if req.CreditsLowThreshold < 0 {
		return nil, NewValidationError("credits_low_threshold", "must be >= 0")
	}

	org := &models.Organization{
		ID:                   uuid.NewString(),
		Name:                 req.Name,
		AllowNegativeCredits: req.AllowNegativeCredits,
		CreditRateOverrides:  req.CreditRateOverrides,
		CreditsLowThreshold:  req.CreditsLowThreshold,
		FeatureFlags:         map[string]bool{},
	}
	if err := s.store.CreateOrganization(ctx, org); err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}
	return org, nil
}

// GetOrganization loads an Organization by ID.
func (s *OrganizationService) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	org, err := s.store.GetOrganization(ctx, id)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return org, nil
}

// CreateProjectRequest is the validated input to CreateProject.
type CreateProjectRequest struct {
	OrganizationID string
	Name           string
}

// CreateProject validates req and inserts a new Project scoped to an
// existing Organization.
func (s *OrganizationService) CreateProject(ctx context.Context, req CreateProjectRequest) (*models.Project, error) {
	if req.OrganizationID == "" {
		return nil, NewValidationError("organization_id", "required")
	}
	if req.Name == "" {
		return nil, NewValidationError("name", "required")
	}
	if _, err := s.store.GetOrganization(ctx, req.OrganizationID); err != nil {
		return nil, translateStoreErr(err)
	}

	p := &models.Project{ID: uuid.NewString(), OrganizationID: req.OrganizationID, Name: req.Name}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return p, nil
}

// GetProject loads a Project by ID.
func (s *OrganizationService) GetProject(ctx context.Context, id string) (*models.Project, error) {
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return p, nil
}

// translateStoreErr maps internal/store's sentinel errors onto this
// package's, so callers only ever need to check against services.ErrNotFound
// etc. regardless of which store function produced the error.
func translateStoreErr(err error) error {
	switch err {
	case store.ErrNotFound:
		return ErrNotFound
	case store.ErrAlreadyExists:
		return ErrAlreadyExists
	default:
		return err
	}
}
