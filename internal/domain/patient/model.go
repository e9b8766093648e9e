package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patient table.
type Patient struct {
	ID           int64     `db:"id" json:"-"`
	ExternalID   uuid.UUID `db:"external_id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Gender       int       `db:"gender" json:"gender"`
	YearOfBirth  *int      `db:"year_of_birth" json:"year_of_birth"`
	PhoneNumber  string    `db:"phone_number" json:"phone_number"`
	FacilityID   int64     `db:"facility_id" json:"-"`
	Facility     uuid.UUID `json:"facility"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedBy    *int64    `db:"created_by" json:"-"`
	CreatedDate  time.Time `db:"created_date" json:"created_date"`
	ModifiedDate time.Time `db:"modified_date" json:"modified_date"`
}

func (p *Patient) OwningFacilityID() int64 { return p.FacilityID }

const (
	StatusPlanned        = "planned"
	StatusInProgress     = "in_progress"
	StatusOnHold         = "on_hold"
	StatusDischarged     = "discharged"
	StatusCompleted      = "completed"
	StatusCancelled      = "cancelled"
	StatusDiscontinued   = "discontinued"
	StatusEnteredInError = "entered_in_error"
)

// Encounter maps to the encounter table.
type Encounter struct {
	ID             int64     `db:"id" json:"-"`
	ExternalID     uuid.UUID `db:"external_id" json:"id"`
	PatientID      int64     `db:"patient_id" json:"-"`
	Patient        uuid.UUID `json:"patient"`
	FacilityID     int64     `db:"facility_id" json:"-"`
	Facility       uuid.UUID `json:"facility"`
	Status         string    `db:"status" json:"status"`
	EncounterClass string    `db:"encounter_class" json:"encounter_class"`
	CreatedBy      *int64    `db:"created_by" json:"-"`
	CreatedDate    time.Time `db:"created_date" json:"created_date"`
	ModifiedDate   time.Time `db:"modified_date" json:"modified_date"`
}

func (e *Encounter) OwningFacilityID() int64 { return e.FacilityID }

// Closed reports whether the encounter has ended and no longer accepts
// clinical writes.
func (e *Encounter) Closed() bool {
	switch e.Status {
	case StatusCompleted, StatusCancelled, StatusDiscontinued, StatusEnteredInError:
		return true
	}
	return false
}

// Consultation admission codes.
const (
	AdmittedIsolation  = 1
	AdmittedICU        = 2
	AdmittedVentilator = 3
)

// SuggestionHomeIsolation marks a consultation that sent the patient home.
const SuggestionHomeIsolation = "HI"

// Consultation maps to the patient_consultation table.
type Consultation struct {
	ID           int64     `db:"id" json:"-"`
	ExternalID   uuid.UUID `db:"external_id" json:"id"`
	PatientID    int64     `db:"patient_id" json:"-"`
	Patient      uuid.UUID `json:"patient"`
	FacilityID   int64     `db:"facility_id" json:"-"`
	Facility     uuid.UUID `json:"facility"`
	AdmittedTo   *int      `db:"admitted_to" json:"admitted_to"`
	Suggestion   string    `db:"suggestion" json:"suggestion"`
	CreatedBy    *int64    `db:"created_by" json:"-"`
	CreatedDate  time.Time `db:"created_date" json:"created_date"`
	ModifiedDate time.Time `db:"modified_date" json:"modified_date"`
}
