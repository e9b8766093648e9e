package facility

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/carehq/care/internal/platform/auth"
	"github.com/carehq/care/internal/platform/db"
)

// ValidationError reports a rejected request body.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type Service struct {
	repo Repository
	tx   db.TxRunner
}

func NewService(repo Repository, tx db.TxRunner) *Service {
	return &Service{repo: repo, tx: tx}
}

func validate(f *Facility) error {
	f.Name = strings.TrimSpace(f.Name)
	if f.Name == "" {
		return &ValidationError{Field: "name", Message: "this field is required"}
	}
	if len(f.Name) > 1000 {
		return &ValidationError{Field: "name", Message: "must be at most 1000 characters"}
	}
	if f.FacilityType < 0 {
		return &ValidationError{Field: "facility_type", Message: "must not be negative"}
	}
	return nil
}

// Create stores the facility and makes its creator a Facility Admin member
// in the same transaction.
func (s *Service) Create(ctx context.Context, f *Facility, creator *auth.Principal) error {
	if err := validate(f); err != nil {
		return err
	}
	f.CreatedBy = &creator.ID
	return s.tx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, f); err != nil {
			return fmt.Errorf("create facility: %w", err)
		}
		if err := s.repo.AddMemberByID(ctx, f.ID, creator.ID, auth.RoleFacilityAdmin); err != nil {
			return fmt.Errorf("link creator to facility: %w", err)
		}
		return nil
	})
}

func (s *Service) Update(ctx context.Context, f *Facility) error {
	if err := validate(f); err != nil {
		return err
	}
	return s.repo.Update(ctx, f)
}

// Get returns a facility the principal can see, or ErrNotFound.
func (s *Service) Get(ctx context.Context, p *auth.Principal, externalID uuid.UUID) (*Facility, error) {
	return s.repo.GetVisible(ctx, ScopeFor(p, auth.UserTypeDistrictLabAdmin), externalID)
}

func (s *Service) List(ctx context.Context, p *auth.Principal, filter ListFilter, limit, offset int) ([]*Facility, int, error) {
	return s.repo.List(ctx, ScopeFor(p, auth.UserTypeDistrictLabAdmin), filter, limit, offset)
}

func (s *Service) AddMember(ctx context.Context, f *Facility, username, role string) error {
	if username == "" {
		return &ValidationError{Field: "username", Message: "this field is required"}
	}
	if !auth.ValidRole(role) {
		return &ValidationError{Field: "role", Message: fmt.Sprintf("%q is not a valid role", role)}
	}
	return s.repo.AddMember(ctx, f.ID, username, role)
}

func (s *Service) Members(ctx context.Context, f *Facility, username string, limit, offset int) ([]*Member, int, error) {
	return s.repo.Members(ctx, f.ID, username, limit, offset)
}
