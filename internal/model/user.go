package model

import (
	"time"
)

// Role represents a user's role within a tenant
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// User represents the core user identity record
type User struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenantId"`
	Email         string     `json:"email"`
	Name          string     `json:"name"`
	Role          Role       `json:"role"`
	PasswordHash  string     `json:"-"` // never expose password hash
	Active        bool       `json:"active"`
	EmailVerified bool       `json:"emailVerified"`
	// TokenVersion is embedded in every issued session token and compared
	// on validation; incrementing it revokes all outstanding tokens.
	TokenVersion int        `json:"-"`
	TOTPSecret   *string    `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	DeletedAt    *time.Time `json:"-"`
}

// HasTOTP reports whether two-factor authentication is enrolled
func (u *User) HasTOTP() bool {
	return u.TOTPSecret != nil && *u.TOTPSecret != ""
}

// Tenant represents an organization account
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}
