package model

// Principal is the authenticated identity attached to a single request.
type Principal struct {
	ID          int64
	DisplayName string
	Email       string
	Roles       []Role
}

func (p *Principal) HasRole(role Role) bool {
	return p != nil && hasRole(p.Roles, role)
}

func (p *Principal) IsAdmin() bool {
	return p.HasRole(RoleAdmin)
}
