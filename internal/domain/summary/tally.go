package summary

import (
	"time"

	"github.com/carehq/care/internal/domain/patient"
)

// Admission is the latest consultation of one active patient.
type Admission struct {
	AdmittedTo  *int
	Suggestion  string
	CreatedDate time.Time
}

func (c *Counts) add(a Admission) {
	if a.AdmittedTo != nil {
		switch *a.AdmittedTo {
		case patient.AdmittedICU:
			c.ICU++
		case patient.AdmittedVentilator:
			c.Ventilator++
		case patient.AdmittedIsolation:
			c.Isolation++
		}
	}
	if a.Suggestion == patient.SuggestionHomeIsolation {
		c.HomeQuarantine++
	}
}

// Day is a half-open calendar day [Start, End).
type Day struct {
	Start, End time.Time
}

// DayOf returns the calendar day containing t in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	y, m, d := t.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return Day{Start: start, End: start.AddDate(0, 0, 1)}
}

func (d Day) Contains(t time.Time) bool {
	return !t.Before(d.Start) && t.Before(d.End)
}

// Tally counts admissions per category over all time and over today. With
// legacyToday set the today counters repeat the all-time ones, which is how
// summaries were produced before the date filter was applied.
func Tally(admissions []Admission, today Day, legacyToday bool) (total, todays Counts) {
	for _, a := range admissions {
		total.add(a)
		if today.Contains(a.CreatedDate) {
			todays.add(a)
		}
	}
	if legacyToday {
		todays = total
	}
	return total, todays
}
