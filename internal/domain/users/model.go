package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/carehq/care/internal/platform/auth"
)

// User maps to the users table.
type User struct {
	ID           int64         `db:"id" json:"-"`
	ExternalID   uuid.UUID     `db:"external_id" json:"id"`
	Username     string        `db:"username" json:"username"`
	FirstName    string        `db:"first_name" json:"first_name"`
	LastName     string        `db:"last_name" json:"last_name"`
	Email        string        `db:"email" json:"email"`
	PhoneNumber  string        `db:"phone_number" json:"phone_number"`
	UserType     auth.UserType `db:"user_type" json:"user_type"`
	DistrictID   *int64        `db:"district_id" json:"district,omitempty"`
	StateID      *int64        `db:"state_id" json:"state,omitempty"`
	IsSuperuser  bool          `db:"is_superuser" json:"is_superuser"`
	IsActive     bool          `db:"is_active" json:"is_active"`
	CreatedDate  time.Time     `db:"created_date" json:"created_date"`
	ModifiedDate time.Time     `db:"modified_date" json:"modified_date"`
}

// Principal returns the authorization view of the user.
func (u *User) Principal() *auth.Principal {
	return &auth.Principal{
		ID:          u.ID,
		ExternalID:  u.ExternalID,
		Username:    u.Username,
		UserType:    u.UserType,
		DistrictID:  u.DistrictID,
		StateID:     u.StateID,
		IsSuperuser: u.IsSuperuser,
	}
}

// Summary is the compact user shape embedded in other resources.
type Summary struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	UserType  string    `json:"user_type"`
}

func (u *User) Summary() *Summary {
	return &Summary{
		ID:        u.ExternalID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		UserType:  u.UserType.String(),
	}
}
