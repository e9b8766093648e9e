package facility

import (
	"fmt"

	"github.com/carehq/care/internal/platform/auth"
)

// Scope restricts facility-owned rows to those a principal may see. Exactly
// one of the modes applies; the zero Scope matches nothing.
type Scope struct {
	All        bool
	StateID    *int64
	DistrictID *int64
	MemberID   int64
	byState    bool
	byDistrict bool
}

// ScopeFor picks the widest reach the principal's tier grants. districtTier
// is the lowest tier that sees its whole district: facility listings use
// DistrictLabAdmin, patient summaries use DistrictAdmin. State reach always
// starts at StateLabAdmin and is checked first.
func ScopeFor(p *auth.Principal, districtTier auth.UserType) Scope {
	switch {
	case p == nil:
		return Scope{}
	case p.IsSuperuser:
		return Scope{All: true}
	case p.UserType >= auth.UserTypeStateLabAdmin:
		return Scope{StateID: p.StateID, byState: true}
	case p.UserType >= districtTier:
		return Scope{DistrictID: p.DistrictID, byDistrict: true}
	default:
		return Scope{MemberID: p.ID}
	}
}

// Where renders the scope as a predicate over the facility aliased f. next
// is the number of the first placeholder it may use.
func (s Scope) Where(f string, next int) (string, []interface{}) {
	switch {
	case s.All:
		return "TRUE", nil
	case s.byState:
		return fmt.Sprintf("%s.state_id = $%d", f, next), []interface{}{s.StateID}
	case s.byDistrict:
		return fmt.Sprintf("%s.district_id = $%d", f, next), []interface{}{s.DistrictID}
	case s.MemberID != 0:
		return fmt.Sprintf(
			"EXISTS (SELECT 1 FROM facility_user fu WHERE fu.facility_id = %s.id AND fu.user_id = $%d)",
			f, next), []interface{}{s.MemberID}
	default:
		return "FALSE", nil
	}
}

// Contains evaluates the scope in memory for a facility in the given
// district and state; member reports whether the scoped user belongs to it.
func (s Scope) Contains(districtID, stateID *int64, member bool) bool {
	switch {
	case s.All:
		return true
	case s.byState:
		return sameID(s.StateID, stateID)
	case s.byDistrict:
		return sameID(s.DistrictID, districtID)
	case s.MemberID != 0:
		return member
	default:
		return false
	}
}

func sameID(a, b *int64) bool {
	return a != nil && b != nil && *a == *b
}
