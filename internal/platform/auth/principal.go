package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// UserType is the legacy user tier stored on every account. Tiers are
// ordered: a higher value carries wider geographic reach.
type UserType int

const (
	UserTypeTransportation        UserType = 2
	UserTypePharmacist            UserType = 3
	UserTypeVolunteer             UserType = 4
	UserTypeStaffReadOnly         UserType = 5
	UserTypeStaff                 UserType = 10
	UserTypeNurseReadOnly         UserType = 13
	UserTypeNurse                 UserType = 14
	UserTypeDoctor                UserType = 15
	UserTypeReserved              UserType = 20
	UserTypeWardAdmin             UserType = 21
	UserTypeLocalBodyAdmin        UserType = 23
	UserTypeDistrictLabAdmin      UserType = 25
	UserTypeDistrictReadOnlyAdmin UserType = 29
	UserTypeDistrictAdmin         UserType = 30
	UserTypeStateLabAdmin         UserType = 35
	UserTypeStateReadOnlyAdmin    UserType = 39
	UserTypeStateAdmin            UserType = 40
)

var userTypeNames = map[UserType]string{
	UserTypeTransportation:        "Transportation",
	UserTypePharmacist:            "Pharmacist",
	UserTypeVolunteer:             "Volunteer",
	UserTypeStaffReadOnly:         "StaffReadOnly",
	UserTypeStaff:                 "Staff",
	UserTypeNurseReadOnly:         "NurseReadOnly",
	UserTypeNurse:                 "Nurse",
	UserTypeDoctor:                "Doctor",
	UserTypeReserved:              "Reserved",
	UserTypeWardAdmin:             "WardAdmin",
	UserTypeLocalBodyAdmin:        "LocalBodyAdmin",
	UserTypeDistrictLabAdmin:      "DistrictLabAdmin",
	UserTypeDistrictReadOnlyAdmin: "DistrictReadOnlyAdmin",
	UserTypeDistrictAdmin:         "DistrictAdmin",
	UserTypeStateLabAdmin:         "StateLabAdmin",
	UserTypeStateReadOnlyAdmin:    "StateReadOnlyAdmin",
	UserTypeStateAdmin:            "StateAdmin",
}

func (t UserType) String() string {
	if name, ok := userTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UserType(%d)", int(t))
}

func (t UserType) Valid() bool {
	_, ok := userTypeNames[t]
	return ok
}

// ParseUserType accepts a tier name such as "DistrictAdmin".
func ParseUserType(name string) (UserType, error) {
	for t, n := range userTypeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown user type %q", name)
}

// LegacyRole maps a tier onto the facility role it implies.
func (t UserType) LegacyRole() string {
	switch {
	case t >= UserTypeWardAdmin:
		return RoleGeoAdmin
	case t >= UserTypeDoctor:
		return RoleDoctor
	case t >= UserTypeNurseReadOnly:
		return RoleNurse
	default:
		return RoleStaff
	}
}

// Principal is the authenticated user a request acts on behalf of.
type Principal struct {
	ID          int64
	ExternalID  uuid.UUID
	Username    string
	UserType    UserType
	DistrictID  *int64
	StateID     *int64
	IsSuperuser bool
}

// InDistrict reports whether the principal is assigned to district id.
func (p *Principal) InDistrict(id *int64) bool {
	return p.DistrictID != nil && id != nil && *p.DistrictID == *id
}

// InState reports whether the principal is assigned to state id.
func (p *Principal) InState(id *int64) bool {
	return p.StateID != nil && id != nil && *p.StateID == *id
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the authenticated principal or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}
