package patient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carehq/care/internal/domain/facility"
)

// ValidationError reports a rejected request body.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var validGenders = map[int]bool{1: true, 2: true, 3: true}

var validStatuses = map[string]bool{
	StatusPlanned: true, StatusInProgress: true, StatusOnHold: true, StatusDischarged: true,
	StatusCompleted: true, StatusCancelled: true, StatusDiscontinued: true, StatusEnteredInError: true,
}

var validClasses = map[string]bool{
	"imp": true, "amb": true, "obsenc": true, "emer": true, "vr": true, "hh": true,
}

var validSuggestions = map[string]bool{
	"": true, SuggestionHomeIsolation: true, "A": true, "R": true, "OP": true, "DC": true, "DD": true,
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient, f *facility.Facility, createdBy int64) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return &ValidationError{Field: "name", Message: "this field is required"}
	}
	if !validGenders[p.Gender] {
		return &ValidationError{Field: "gender", Message: "must be 1, 2 or 3"}
	}
	if p.YearOfBirth != nil && (*p.YearOfBirth < 1900 || *p.YearOfBirth > s.now().Year()) {
		return &ValidationError{Field: "year_of_birth", Message: "out of range"}
	}
	p.FacilityID = f.ID
	p.Facility = f.ExternalID
	p.IsActive = true
	p.CreatedBy = &createdBy
	return s.repo.CreatePatient(ctx, p)
}

// SetActive flips the active flag. Discharged patients drop out of the
// facility summaries on the next run.
func (s *Service) SetActive(ctx context.Context, p *Patient, active bool) error {
	if err := s.repo.SetActive(ctx, p.ID, active); err != nil {
		return err
	}
	p.IsActive = active
	return nil
}

func (s *Service) CreateEncounter(ctx context.Context, e *Encounter, p *Patient, createdBy int64) error {
	if e.Status == "" {
		e.Status = StatusInProgress
	}
	if !validStatuses[e.Status] {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("%q is not a valid choice", e.Status)}
	}
	if e.EncounterClass == "" {
		e.EncounterClass = "amb"
	}
	if !validClasses[e.EncounterClass] {
		return &ValidationError{Field: "encounter_class", Message: fmt.Sprintf("%q is not a valid choice", e.EncounterClass)}
	}
	e.PatientID = p.ID
	e.Patient = p.ExternalID
	e.FacilityID = p.FacilityID
	e.Facility = p.Facility
	e.CreatedBy = &createdBy
	return s.repo.CreateEncounter(ctx, e)
}

func (s *Service) UpdateEncounterStatus(ctx context.Context, e *Encounter, status string) error {
	if !validStatuses[status] {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("%q is not a valid choice", status)}
	}
	e.Status = status
	return s.repo.UpdateEncounterStatus(ctx, e)
}

func (s *Service) CreateConsultation(ctx context.Context, c *Consultation, p *Patient, createdBy int64) error {
	if c.AdmittedTo != nil && *c.AdmittedTo <= 0 {
		return &ValidationError{Field: "admitted_to", Message: "must be a positive code"}
	}
	if !validSuggestions[c.Suggestion] {
		return &ValidationError{Field: "suggestion", Message: fmt.Sprintf("%q is not a valid choice", c.Suggestion)}
	}
	c.PatientID = p.ID
	c.Patient = p.ExternalID
	c.FacilityID = p.FacilityID
	c.Facility = p.Facility
	c.CreatedBy = &createdBy
	return s.repo.CreateConsultation(ctx, c)
}

func (s *Service) GetPatient(ctx context.Context, externalID uuid.UUID) (*Patient, error) {
	return s.repo.GetPatient(ctx, externalID)
}

func (s *Service) ListPatients(ctx context.Context, f *facility.Facility, limit, offset int) ([]*Patient, int, error) {
	return s.repo.ListPatients(ctx, f.ID, limit, offset)
}

func (s *Service) GetEncounter(ctx context.Context, externalID uuid.UUID) (*Encounter, error) {
	return s.repo.GetEncounter(ctx, externalID)
}

func (s *Service) ListConsultations(ctx context.Context, p *Patient, limit, offset int) ([]*Consultation, int, error) {
	return s.repo.ListConsultations(ctx, p.ID, limit, offset)
}
