package clinical

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/carehq/care/internal/domain/patient"
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

// Records looks up the patient and encounter an allergy hangs off.
type Records interface {
	GetPatient(ctx context.Context, externalID uuid.UUID) (*patient.Patient, error)
	GetEncounter(ctx context.Context, externalID uuid.UUID) (*patient.Encounter, error)
}

type Service struct {
	allergies AllergyRepository
	records   Records
	tx        db.TxRunner
}

func NewService(allergies AllergyRepository, records Records, tx db.TxRunner) *Service {
	return &Service{allergies: allergies, records: records, tx: tx}
}

func oneOf(field, value string, choices []string) error {
	for _, c := range choices {
		if value == c {
			return nil
		}
	}
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("%q is not a valid choice, expected one of %s", value, strings.Join(choices, ", ")),
	}
}

// validate checks enumerated fields. On create every enum and the code are
// required; on update only the supplied fields are checked.
func validate(req *AllergyRequest, create bool) error {
	enums := []struct {
		field, value string
		choices      []string
	}{
		{"clinical_status", req.ClinicalStatus, clinicalStatuses},
		{"verification_status", req.VerificationStatus, verificationStatuses},
		{"category", req.Category, categories},
		{"criticality", req.Criticality, criticalities},
	}
	for _, e := range enums {
		if e.value == "" && !create {
			continue
		}
		if e.value == "" {
			return &ValidationError{Field: e.field, Message: "this field is required"}
		}
		if err := oneOf(e.field, e.value, e.choices); err != nil {
			return err
		}
	}
	if req.Encounter == uuid.Nil {
		return &ValidationError{Field: "encounter", Message: "this field is required"}
	}
	if create && (req.Code == nil || req.Code.Code == "") {
		return &ValidationError{Field: "code", Message: "this field is required"}
	}
	if req.Onset != nil && req.Onset.OnsetAge != nil && *req.Onset.OnsetAge < 0 {
		return &ValidationError{Field: "onset.onset_age", Message: "must not be negative"}
	}
	return nil
}

// Patient resolves the patient named in the route.
func (s *Service) Patient(ctx context.Context, externalID uuid.UUID) (*patient.Patient, error) {
	return s.records.GetPatient(ctx, externalID)
}

// Encounter resolves the encounter named in a write body. A missing
// encounter is a validation error, as is one that belongs to another patient.
func (s *Service) Encounter(ctx context.Context, pat *patient.Patient, externalID uuid.UUID) (*patient.Encounter, error) {
	enc, err := s.records.GetEncounter(ctx, externalID)
	if errors.Is(err, patient.ErrEncounterNotFound) {
		return nil, &ValidationError{Field: "encounter", Message: "Encounter not found"}
	}
	if err != nil {
		return nil, err
	}
	if enc.PatientID != pat.ID {
		return nil, &ValidationError{Field: "encounter", Message: "Encounter does not belong to this patient"}
	}
	return enc, nil
}

// Create stores a new allergy against the encounter's patient.
func (s *Service) Create(ctx context.Context, enc *patient.Encounter, req *AllergyRequest, by int64) (*AllergyIntolerance, error) {
	if err := validate(req, true); err != nil {
		return nil, err
	}
	a := &AllergyIntolerance{
		PatientID:          enc.PatientID,
		EncounterID:        enc.ID,
		Encounter:          enc.ExternalID,
		ClinicalStatus:     req.ClinicalStatus,
		VerificationStatus: req.VerificationStatus,
		Category:           req.Category,
		Criticality:        req.Criticality,
		Code:               *req.Code,
		LastOccurrence:     req.LastOccurrence,
		RecordedDate:       req.RecordedDate,
		Note:               req.Note,
		CreatedByID:        &by,
		UpdatedByID:        &by,
	}
	if req.Onset != nil {
		a.Onset = *req.Onset
	}
	if err := s.allergies.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create allergy: %w", err)
	}
	return s.allergies.Get(ctx, a.PatientID, a.ExternalID)
}

func (s *Service) Get(ctx context.Context, pat *patient.Patient, externalID uuid.UUID) (*AllergyIntolerance, error) {
	return s.allergies.Get(ctx, pat.ID, externalID)
}

func (s *Service) List(ctx context.Context, pat *patient.Patient, clinicalStatus string, limit, offset int) ([]*AllergyIntolerance, int, error) {
	if clinicalStatus != "" {
		if err := oneOf("clinical_status", clinicalStatus, clinicalStatuses); err != nil {
			return nil, 0, err
		}
	}
	return s.allergies.List(ctx, pat.ID, clinicalStatus, limit, offset)
}

// Update applies the supplied fields. The patient and encounter links of an
// existing allergy never change.
func (s *Service) Update(ctx context.Context, a *AllergyIntolerance, req *AllergyRequest, by int64) (*AllergyIntolerance, error) {
	if err := validate(req, false); err != nil {
		return nil, err
	}
	if req.ClinicalStatus != "" {
		a.ClinicalStatus = req.ClinicalStatus
	}
	if req.VerificationStatus != "" {
		a.VerificationStatus = req.VerificationStatus
	}
	if req.Category != "" {
		a.Category = req.Category
	}
	if req.Criticality != "" {
		a.Criticality = req.Criticality
	}
	if req.Code != nil && req.Code.Code != "" {
		a.Code = *req.Code
	}
	if req.Onset != nil {
		a.Onset = *req.Onset
	}
	if req.LastOccurrence != nil {
		a.LastOccurrence = req.LastOccurrence
	}
	if req.RecordedDate != nil {
		a.RecordedDate = req.RecordedDate
	}
	if req.Note != nil {
		a.Note = req.Note
	}
	a.UpdatedByID = &by
	if err := s.allergies.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("update allergy: %w", err)
	}
	return s.allergies.Get(ctx, a.PatientID, a.ExternalID)
}

// Delete soft deletes the allergy.
func (s *Service) Delete(ctx context.Context, a *AllergyIntolerance, by int64) error {
	return s.allergies.Delete(ctx, a.ID, by)
}

// Atomically runs fn in one transaction; upserts use it so a failing
// datapoint rolls back the ones before it.
func (s *Service) Atomically(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.tx(ctx, fn)
}
