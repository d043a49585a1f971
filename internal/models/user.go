package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is a coarse access level used by the RBAC gate.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
	RoleParent  Role = "parent"
)

// User is an account in the system; students, teachers and parents all share
// the table, discriminated by Role.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	FullName     string     `db:"full_name" json:"full_name"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Role         Role       `db:"role" json:"role"`
	SchoolID     *string    `db:"school_id" json:"school_id,omitempty"`
	Active       bool       `db:"active" json:"active"`
	LastLoginAt  *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	AuditFields
}

// JWTClaims is the token payload carried through request context and used for
// audit stamping (created_by / updated_by).
type JWTClaims struct {
	UserID   string  `json:"uid"`
	Email    string  `json:"email"`
	Role     Role    `json:"role"`
	SchoolID *string `json:"school_id,omitempty"`
	jwt.RegisteredClaims
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued access token.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        *User     `json:"user"`
}

// AuditLog records a mutating request for traceability.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	NewValues  []byte    `db:"new_values" json:"-"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Subject is a taught discipline referenced by schedules, grades and
// assignments.
type Subject struct {
	ID       string  `db:"id" json:"id"`
	Name     string  `db:"name" json:"name"`
	Code     string  `db:"code" json:"code"`
	SchoolID *string `db:"school_id" json:"school_id,omitempty"`
	IsActive bool    `db:"is_active" json:"is_active"`
	AuditFields
}
