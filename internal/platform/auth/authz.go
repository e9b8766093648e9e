package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrPermissionDenied  = errors.New("permission denied")
	ErrUnknownCapability = errors.New("unknown authorization capability")
)

// Capability names a check registered on a Controller.
type Capability string

const (
	CanCreateFacility     Capability = "can_create_facility"
	CanReadFacilityObj    Capability = "can_read_facility_obj"
	CanUpdateFacilityObj  Capability = "can_update_facility_obj"
	CanListFacilityUsers  Capability = "can_list_facility_users"
	CanWritePatientObj    Capability = "can_write_patient_obj"
	CanViewClinicalData   Capability = "can_view_clinical_data"
	CanUpdateEncounterObj Capability = "can_update_encounter_obj"
)

// Rule decides a capability for a principal and an optional object.
type Rule func(ctx context.Context, p *Principal, obj any) (bool, error)

// FacilityScoped is implemented by records owned by a facility: the
// facility itself, patients, encounters.
type FacilityScoped interface {
	OwningFacilityID() int64
}

// Closable is implemented by records that stop accepting writes, such as a
// completed encounter.
type Closable interface {
	Closed() bool
}

// FacilityDirectory answers the membership and geography questions rules need.
type FacilityDirectory interface {
	// MemberRole returns the user's role in the facility, or "" if the user
	// is not a member.
	MemberRole(ctx context.Context, userID, facilityID int64) (string, error)
	FacilityArea(ctx context.Context, facilityID int64) (districtID, stateID *int64, err error)
}

type Controller struct {
	mu    sync.RWMutex
	rules map[Capability]Rule
}

// NewController returns a controller with the facility-role rules registered.
func NewController(dir FacilityDirectory) *Controller {
	c := &Controller{rules: make(map[Capability]Rule)}
	g := &facilityGuard{dir: dir}

	c.Register(CanCreateFacility, func(_ context.Context, p *Principal, _ any) (bool, error) {
		if p.IsSuperuser {
			return true, nil
		}
		return roleGrants("can_create_facility", p.UserType.LegacyRole()), nil
	})
	c.Register(CanReadFacilityObj, g.rule("can_read_facility"))
	c.Register(CanUpdateFacilityObj, g.rule("can_update_facility"))
	c.Register(CanListFacilityUsers, g.rule("can_list_facility_users"))
	c.Register(CanWritePatientObj, g.rule("can_write_patient"))
	c.Register(CanViewClinicalData, g.rule("can_view_clinical_data"))

	update := g.rule("can_update_encounter")
	c.Register(CanUpdateEncounterObj, func(ctx context.Context, p *Principal, obj any) (bool, error) {
		if cl, ok := obj.(Closable); ok && cl.Closed() {
			return false, nil
		}
		return update(ctx, p, obj)
	})
	return c
}

// Register adds or replaces the rule for a capability.
func (c *Controller) Register(name Capability, rule Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules[name] = rule
}

// Call evaluates a capability. A nil principal is always denied; an
// unregistered capability is an error, never an allow.
func (c *Controller) Call(ctx context.Context, name Capability, p *Principal, obj any) (bool, error) {
	c.mu.RLock()
	rule, ok := c.rules[name]
	c.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownCapability, name)
	}
	if p == nil {
		return false, nil
	}
	return rule(ctx, p, obj)
}

// Authorize checks the capability for the principal stored in ctx and
// returns ErrPermissionDenied when it does not hold.
func (c *Controller) Authorize(ctx context.Context, name Capability, obj any) error {
	ok, err := c.Call(ctx, name, PrincipalFromContext(ctx), obj)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPermissionDenied
	}
	return nil
}

type facilityGuard struct {
	dir FacilityDirectory
}

func (g *facilityGuard) rule(permission string) Rule {
	return func(ctx context.Context, p *Principal, obj any) (bool, error) {
		if p.IsSuperuser {
			return true, nil
		}
		scoped, ok := obj.(FacilityScoped)
		if !ok {
			return false, fmt.Errorf("authorize %s: %T is not facility scoped", permission, obj)
		}
		facilityID := scoped.OwningFacilityID()

		if p.UserType >= UserTypeDistrictLabAdmin && roleGrants(permission, RoleGeoAdmin) {
			district, state, err := g.dir.FacilityArea(ctx, facilityID)
			if err != nil {
				return false, fmt.Errorf("authorize %s: facility area: %w", permission, err)
			}
			if p.UserType >= UserTypeStateLabAdmin && p.InState(state) {
				return true, nil
			}
			if p.InDistrict(district) {
				return true, nil
			}
		}

		role, err := g.dir.MemberRole(ctx, p.ID, facilityID)
		if err != nil {
			return false, fmt.Errorf("authorize %s: member role: %w", permission, err)
		}
		return role != "" && roleGrants(permission, role), nil
	}
}
