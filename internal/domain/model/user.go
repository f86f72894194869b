package model

import (
	"sort"
	"time"
)

type Role string

const (
	RoleEmployee Role = "ROLE_EMPLOYEE"
	RoleAdmin    Role = "ROLE_ADMIN"
)

// Column limits of the users table, in characters.
const (
	MaxNameLength  = 100
	MaxEmailLength = 255
)

type User struct {
	ID             int64     `json:"id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"-"` // Not exposed
	Roles          []Role    `json:"authorities"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

func (u *User) HasRole(role Role) bool {
	return hasRole(u.Roles, role)
}

func (u *User) IsAdmin() bool {
	return u.HasRole(RoleAdmin)
}

// Principal returns the request-scoped identity for u.
func (u *User) Principal() *Principal {
	return &Principal{
		ID:          u.ID,
		DisplayName: u.FullName(),
		Email:       u.Email,
		Roles:       append([]Role(nil), u.Roles...),
	}
}

// InitialRoles is the role set of a newly registered account. Only the very
// first account gets ADMIN.
func InitialRoles(firstAccount bool) []Role {
	if firstAccount {
		return []Role{RoleAdmin, RoleEmployee}
	}
	return []Role{RoleEmployee}
}

// AdminRoles replaces whatever roles an account had when it is promoted.
func AdminRoles() []Role {
	return []Role{RoleAdmin, RoleEmployee}
}

// NormalizeRoles returns roles deduplicated and sorted.
func NormalizeRoles(roles []Role) []Role {
	seen := make(map[Role]struct{}, len(roles))
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		if _, ok := seen[r]; ok || r == "" {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID          int64  `json:"id"`
	FullName    string `json:"full_name"`
	Email       string `json:"email"`
	Authorities []Role `json:"authorities"`
}

func NewUserResponse(u *User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		FullName:    u.FullName(),
		Email:       u.Email,
		Authorities: append([]Role(nil), u.Roles...),
	}
}

func hasRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
