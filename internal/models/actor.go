package models

const (
	RoleSuperAdmin  = "SuperAdmin"
	RoleAgencyAdmin = "AgencyAdmin"
	RoleAgent       = "Agent"
)

// Actor identifies who is calling. AgencyID scopes every operation.
type Actor struct {
	AgencyID string `json:"agency_id"`
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
}

func (a Actor) IsSuperAdmin() bool { return a.Role == RoleSuperAdmin }

// CanManage reports whether the actor may edit a resource owned by agencyID.
func (a Actor) CanManage(agencyID string) bool {
	return a.IsSuperAdmin() || a.AgencyID == agencyID
}
