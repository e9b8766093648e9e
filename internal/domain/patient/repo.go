package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("patient not found")
	ErrEncounterNotFound = errors.New("encounter not found")
)

// Repository defines the persistence interface for patients and the
// records hanging off them.
type Repository interface {
	CreatePatient(ctx context.Context, p *Patient) error
	GetPatient(ctx context.Context, externalID uuid.UUID) (*Patient, error)
	ListPatients(ctx context.Context, facilityID int64, limit, offset int) ([]*Patient, int, error)
	SetActive(ctx context.Context, id int64, active bool) error

	CreateEncounter(ctx context.Context, e *Encounter) error
	GetEncounter(ctx context.Context, externalID uuid.UUID) (*Encounter, error)
	UpdateEncounterStatus(ctx context.Context, e *Encounter) error

	CreateConsultation(ctx context.Context, c *Consultation) error
	ListConsultations(ctx context.Context, patientID int64, limit, offset int) ([]*Consultation, int, error)
}
