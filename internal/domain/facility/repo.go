package facility

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("facility not found")
	ErrUserNotFound = errors.New("user not found")
)

// ListFilter narrows a facility listing.
type ListFilter struct {
	// Name matches case-insensitively anywhere in the facility name.
	Name string
	// ExcludeUser drops facilities the named user is a member of.
	ExcludeUser string
}

// Repository defines the persistence interface for facilities and their
// memberships. It also answers the authorization directory questions.
type Repository interface {
	Create(ctx context.Context, f *Facility) error
	Update(ctx context.Context, f *Facility) error
	GetByID(ctx context.Context, id int64) (*Facility, error)
	GetVisible(ctx context.Context, scope Scope, externalID uuid.UUID) (*Facility, error)
	List(ctx context.Context, scope Scope, filter ListFilter, limit, offset int) ([]*Facility, int, error)

	AddMember(ctx context.Context, facilityID int64, username, role string) error
	AddMemberByID(ctx context.Context, facilityID, userID int64, role string) error
	// Members lists active members only; username filters exactly.
	Members(ctx context.Context, facilityID int64, username string, limit, offset int) ([]*Member, int, error)

	MemberRole(ctx context.Context, userID, facilityID int64) (string, error)
	FacilityArea(ctx context.Context, facilityID int64) (districtID, stateID *int64, err error)
}
