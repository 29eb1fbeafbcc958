package domain

import "time"

// Role es el conjunto cerrado de roles de usuario.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reporta si el rol pertenece al conjunto permitido.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	DisplayName         string     `json:"display_name,omitempty"`
	Role                Role       `json:"role"`
	PasswordHash        string     `json:"-"`
	PasswordChangedAt   time.Time  `json:"-"`
	ResetTokenHash      string     `json:"-"`
	ResetTokenExpiresAt *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
}
