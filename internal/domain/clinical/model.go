package clinical

import (
	"time"

	"github.com/google/uuid"

	"github.com/carehq/care/internal/domain/users"
)

// Coding identifies a concept in a code system.
type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// Onset describes when an allergy started. Any combination may be set.
type Onset struct {
	OnsetDatetime *time.Time `json:"onset_datetime,omitempty"`
	OnsetAge      *int       `json:"onset_age,omitempty"`
	OnsetString   string     `json:"onset_string,omitempty"`
	Note          string     `json:"note,omitempty"`
}

// AllergyIntolerance maps to the allergy_intolerance table. Code and Onset
// are stored as JSONB.
type AllergyIntolerance struct {
	ID                 int64          `db:"id" json:"-"`
	ExternalID         uuid.UUID      `db:"external_id" json:"id"`
	PatientID          int64          `db:"patient_id" json:"-"`
	EncounterID        int64          `db:"encounter_id" json:"-"`
	Encounter          uuid.UUID      `json:"encounter"`
	ClinicalStatus     string         `db:"clinical_status" json:"clinical_status"`
	VerificationStatus string         `db:"verification_status" json:"verification_status"`
	Category           string         `db:"category" json:"category"`
	Criticality        string         `db:"criticality" json:"criticality"`
	Code               Coding         `db:"code" json:"code"`
	Onset              Onset          `db:"onset" json:"onset"`
	LastOccurrence     *time.Time     `db:"last_occurrence" json:"last_occurrence"`
	RecordedDate       *time.Time     `db:"recorded_date" json:"recorded_date"`
	Note               *string        `db:"note" json:"note"`
	CreatedByID        *int64         `db:"created_by" json:"-"`
	UpdatedByID        *int64         `db:"updated_by" json:"-"`
	CreatedBy          *users.Summary `json:"created_by"`
	UpdatedBy          *users.Summary `json:"updated_by"`
	CreatedDate        time.Time      `db:"created_date" json:"created_date"`
	ModifiedDate       time.Time      `db:"modified_date" json:"modified_date"`
}

var (
	clinicalStatuses     = []string{"active", "inactive", "resolved"}
	verificationStatuses = []string{"unconfirmed", "presumed", "confirmed", "refuted", "entered-in-error"}
	categories           = []string{"food", "medication", "environment", "biologic"}
	criticalities        = []string{"low", "high", "unable-to-assess"}
)

// AllergyRequest is the write body for create, update and each upsert
// datapoint. On update, empty fields keep their stored value.
type AllergyRequest struct {
	ID                 *uuid.UUID `json:"id,omitempty"`
	Encounter          uuid.UUID  `json:"encounter"`
	ClinicalStatus     string     `json:"clinical_status"`
	VerificationStatus string     `json:"verification_status"`
	Category           string     `json:"category"`
	Criticality        string     `json:"criticality"`
	Code               *Coding    `json:"code"`
	Onset              *Onset     `json:"onset"`
	LastOccurrence     *time.Time `json:"last_occurrence"`
	RecordedDate       *time.Time `json:"recorded_date"`
	Note               *string    `json:"note"`
}

// UpsertRequest carries several datapoints written in one transaction.
type UpsertRequest struct {
	Datapoints []AllergyRequest `json:"datapoints"`
}
