package users

import (
	"strings"
	"time"
)

// Role represents a user's system role.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole maps a stored role string onto a Role, defaulting to RoleUser for
// anything unrecognised so a corrupted row can never grant admin.
func ParseRole(s string) Role {
	if Role(strings.ToLower(s)) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}

func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
