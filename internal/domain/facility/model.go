package facility

import (
	"time"

	"github.com/google/uuid"
)

// Facility maps to the facility table.
type Facility struct {
	ID           int64     `db:"id" json:"-"`
	ExternalID   uuid.UUID `db:"external_id" json:"id"`
	Name         string    `db:"name" json:"name"`
	FacilityType int       `db:"facility_type" json:"facility_type"`
	PhoneNumber  string    `db:"phone_number" json:"phone_number"`
	Address      string    `db:"address" json:"address"`
	DistrictID   *int64    `db:"district_id" json:"district"`
	StateID      *int64    `db:"state_id" json:"state"`
	IsPublic     bool      `db:"is_public" json:"is_public"`
	CreatedBy    *int64    `db:"created_by" json:"-"`
	CreatedDate  time.Time `db:"created_date" json:"created_date"`
	ModifiedDate time.Time `db:"modified_date" json:"modified_date"`
}

func (f *Facility) OwningFacilityID() int64 { return f.ID }

// Member is an active user linked to a facility, as listed by get_users.
type Member struct {
	UserID     int64     `json:"-"`
	ExternalID uuid.UUID `json:"id"`
	Username   string    `json:"username"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	UserType   string    `json:"user_type"`
	Role       string    `json:"role"`
}
