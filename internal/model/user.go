package model

import "time"

// Role names stored in the roles table.
const (
	RoleAdmin     = "ADMIN"
	RoleMember    = "MEMBER"
	RoleAffiliate = "AFFILIATE"
	RolePress     = "PRESS"
	RoleProducer  = "PRODUCER"
)

// rolePrecedence orders roles from most to least privileged. The first
// role a user holds in this list is reported as their primary role.
var rolePrecedence = []string{RoleAdmin, RoleProducer, RoleAffiliate, RolePress, RoleMember}

// IsRole reports whether name is one of the known role names.
func IsRole(name string) bool {
	for _, r := range rolePrecedence {
		if r == name {
			return true
		}
	}
	return false
}

// User mirrors a row of the users table together with its role names.
type User struct {
	ID           uint64
	Login        string
	PasswordHash string
	Firstname    string
	Lastname     string
	Email        string
	Langue       string
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasRole reports whether the user holds role.
func (u User) HasRole(role string) bool {
	return HasAnyRole(u.Roles, role)
}

// PrimaryRole returns the most privileged role of the user, MEMBER when
// the user has none.
func (u User) PrimaryRole() string {
	return PrimaryRole(u.Roles)
}

// Profile is the public projection of the user.
func (u User) Profile() UserProfile {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return UserProfile{
		ID:        u.ID,
		Login:     u.Login,
		Firstname: u.Firstname,
		Lastname:  u.Lastname,
		Email:     u.Email,
		Langue:    u.Langue,
		Role:      u.PrimaryRole(),
		Roles:     roles,
		CreatedAt: u.CreatedAt,
	}
}

// UserProfile is returned by the profile, login, register and admin user
// endpoints.
type UserProfile struct {
	ID        uint64    `json:"id"`
	Login     string    `json:"login"`
	Firstname string    `json:"firstname"`
	Lastname  string    `json:"lastname"`
	Email     string    `json:"email"`
	Langue    string    `json:"langue"`
	Role      string    `json:"role"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasAnyRole reports whether held shares at least one role with wanted.
func HasAnyRole(held []string, wanted ...string) bool {
	for _, h := range held {
		for _, w := range wanted {
			if h == w {
				return true
			}
		}
	}
	return false
}

// PrimaryRole picks the most privileged of roles.
func PrimaryRole(roles []string) string {
	for _, r := range rolePrecedence {
		if HasAnyRole(roles, r) {
			return r
		}
	}
	return RoleMember
}

// RefreshToken models an entry in the refresh_tokens table. The plain token
// is never stored, only its SHA-256 hash.
type RefreshToken struct {
	ID        uint64
	UserID    uint64
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}
