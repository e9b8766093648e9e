package auth

// Facility roles held through facility membership.
const (
	RoleVolunteer     = "Volunteer"
	RoleDoctor        = "Doctor"
	RoleNurse         = "Nurse"
	RoleStaff         = "Staff"
	RoleGeoAdmin      = "Geo Admin"
	RoleFacilityAdmin = "Facility Admin"
	RoleAdmin         = "Admin"
)

// AllRoles lists the assignable membership roles.
var AllRoles = []string{
	RoleVolunteer, RoleDoctor, RoleNurse, RoleStaff, RoleGeoAdmin, RoleFacilityAdmin, RoleAdmin,
}

func ValidRole(role string) bool {
	for _, r := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

// permissionRoles lists the roles granting each permission inside a facility.
var permissionRoles = map[string][]string{
	"can_create_facility": {RoleGeoAdmin, RoleAdmin},
	"can_read_facility": {
		RoleFacilityAdmin, RoleGeoAdmin, RoleAdmin, RoleStaff, RoleDoctor, RoleNurse, RoleVolunteer,
	},
	"can_update_facility": {RoleFacilityAdmin, RoleGeoAdmin, RoleAdmin, RoleStaff},
	"can_list_facility_users": {
		RoleFacilityAdmin, RoleGeoAdmin, RoleAdmin, RoleStaff, RoleDoctor, RoleNurse, RoleVolunteer,
	},
	"can_write_patient": {
		RoleFacilityAdmin, RoleGeoAdmin, RoleAdmin, RoleStaff, RoleDoctor, RoleNurse,
	},
	"can_view_clinical_data": {
		RoleFacilityAdmin, RoleGeoAdmin, RoleAdmin, RoleStaff, RoleDoctor, RoleNurse,
	},
	"can_update_encounter": {
		RoleFacilityAdmin, RoleGeoAdmin, RoleAdmin, RoleStaff, RoleDoctor, RoleNurse,
	},
}

func roleGrants(permission, role string) bool {
	for _, r := range permissionRoles[permission] {
		if r == role {
			return true
		}
	}
	return false
}
