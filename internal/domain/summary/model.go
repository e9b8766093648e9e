package summary

import (
	"time"

	"github.com/google/uuid"
)

// TypePatient is the s_type of the per-facility patient summary.
const TypePatient = "PatientSummary"

// StampLayout formats Data.ModifiedDate (day-month-year hour:minute).
const StampLayout = "02-01-2006 15:04"

// Counts holds one set of patient category counters.
type Counts struct {
	ICU            int
	Ventilator     int
	Isolation      int
	HomeQuarantine int
}

// Data is the JSONB payload of a patient summary snapshot.
type Data struct {
	FacilityName string `json:"facility_name"`
	District     string `json:"district"`

	TotalICU            int `json:"total_patients_icu"`
	TotalVentilator     int `json:"total_patients_ventilator"`
	TotalIsolation      int `json:"total_patients_isolation"`
	TotalHomeQuarantine int `json:"total_patients_home_quarantine"`

	TodayICU            int `json:"today_patients_icu"`
	TodayVentilator     int `json:"today_patients_ventilator"`
	TodayIsolation      int `json:"today_patients_isolation"`
	TodayHomeQuarantine int `json:"today_patients_home_quarantine"`

	ModifiedDate string `json:"modified_date,omitempty"`
}

// NewData builds an unstamped payload for a facility.
func NewData(f FacilityRef, total, today Counts) Data {
	return Data{
		FacilityName:        f.Name,
		District:            f.District,
		TotalICU:            total.ICU,
		TotalVentilator:     total.Ventilator,
		TotalIsolation:      total.Isolation,
		TotalHomeQuarantine: total.HomeQuarantine,
		TodayICU:            today.ICU,
		TodayVentilator:     today.Ventilator,
		TodayIsolation:      today.Isolation,
		TodayHomeQuarantine: today.HomeQuarantine,
	}
}

// SameCounts compares two payloads ignoring the modification stamp.
func (d Data) SameCounts(other Data) bool {
	d.ModifiedDate, other.ModifiedDate = "", ""
	return d == other
}

// Stamped returns a copy of d with ModifiedDate set from t.
func (d Data) Stamped(t time.Time) Data {
	d.ModifiedDate = t.Format(StampLayout)
	return d
}

// Snapshot maps to the facility_related_summary table. The read shape omits
// the internal id, s_type and facility.
type Snapshot struct {
	ID           int64     `db:"id" json:"-"`
	ExternalID   uuid.UUID `db:"external_id" json:"id"`
	FacilityID   int64     `db:"facility_id" json:"-"`
	SType        string    `db:"s_type" json:"-"`
	Data         Data      `db:"data" json:"data"`
	CreatedDate  time.Time `db:"created_date" json:"created_date"`
	ModifiedDate time.Time `db:"modified_date" json:"modified_date"`
}

// FacilityRef is what the job needs to know about a facility it summarises.
type FacilityRef struct {
	ID       int64
	Name     string
	District string
}
