package services

import (
	"context"
	"testing"

	"github.com/meetingbot/core/internal/models"
	"github.com/meetingbot/core/internal/store"
)

type fakeOrganizationServiceStore struct {
	orgs     map[string]*models.Organization
	projects map[string]*models.Project
}

func newFakeOrganizationServiceStore() *fakeOrganizationServiceStore {
	return &fakeOrganizationServiceStore{
		orgs:     make(map[string]*models.Organization),
		projects: make(map[string]*models.Project),
	}
}

func (f *fakeOrganizationServiceStore) CreateOrganization(_ context.Context, o *models.Organization) error {
	f.orgs[o.ID] = o
	return nil
}

func (f *fakeOrganizationServiceStore) GetOrganization(_ context.Context, id string) (*models.Organization, error) {
	o, ok := f.orgs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrganizationServiceStore) CreateProject(_ context.Context, p *models.Project) error {
	f.projects[p.ID] = p
	return nil
}

func (f *fakeOrganizationServiceStore) GetProject(_ context.Context, id string) (*models.Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func TestCreateOrganizationRequiresName(t *testing.T) {
	svc := NewOrganizationService(newFakeOrganizationServiceStore())
	if _, err := svc.CreateOrganization(context.Background(), CreateOrganizationRequest{}); !IsValidationError(err) {
		t.Fatalf("expected validation error for missing name, got %v", err)
	}
}

func TestCreateOrganizationRejectsNegativeThreshold(t *testing.T) {
	svc := NewOrganizationService(newFakeOrganizationServiceStore())
	_, err := svc.CreateOrganization(context.Background(), CreateOrganizationRequest{Name: "acme", CreditsLowThreshold: -1})
	if !IsValidationError(err) {
		t.Fatalf("expected validation error for negative threshold, got %v", err)
	}
}

func TestCreateOrganizationStartsAtZeroCredits(t *testing.T) {
	svc := NewOrganizationService(newFakeOrganizationServiceStore())
	org, err := svc.CreateOrganization(context.Background(), CreateOrganizationRequest{Name: "acme"})
	if err != nil {
		t.Fatalf("CreateOrganization: %v", err)
	}
	if org.Credits != 0 {
		t.Fatalf("expected new organization to start at 0 credits, got %v", org.Credits)
	}
}

// CreateProject requires the referenced Organization to already exist.
func TestCreateProjectRequiresExistingOrganization(t *testing.T) {
	svc := NewOrganizationService(newFakeOrganizationServiceStore())
	_, err := svc.CreateProject(context.Background(), CreateProjectRequest{OrganizationID: "missing-org", Name: "proj"})
	if err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestCreateProjectRoundTrip(t *testing.T) {
	fake := newFakeOrganizationServiceStore()
	fake.orgs["org-1"] = &models.Organization{ID: "org-1", Name: "acme"}
	svc := NewOrganizationService(fake)

	p, err := svc.CreateProject(context.Background(), CreateProjectRequest{OrganizationID: "org-1", Name: "proj"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	got, err := svc.GetProject(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.OrganizationID != "org-1" {
		t.Fatalf("expected organization_id org-1, got %s", got.OrganizationID)
	}
}
