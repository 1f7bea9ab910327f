package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents a user's role.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
)

// User represents an account that can upload videos.
type User struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	Password   string    `json:"-"`
	FullName   string    `json:"full_name"`
	Role       Role      `json:"role"`
	TrustLevel int       `json:"trust_level"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// UserPublic is User without sensitive fields for API responses.
type UserPublic struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	FullName   string    `json:"full_name"`
	Role       Role      `json:"role"`
	TrustLevel int       `json:"trust_level"`
	CreatedAt  time.Time `json:"created_at"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:         u.ID,
		Email:      u.Email,
		FullName:   u.FullName,
		Role:       u.Role,
		TrustLevel: u.TrustLevel,
		CreatedAt:  u.CreatedAt,
	}
}
