package models

import (
	"fmt"
	"strings"
	"time"
)

// UserRole is the closed set of portal roles.
type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleFaculty UserRole = "faculty"
	RoleAlumni  UserRole = "alumni"
	RoleAdmin   UserRole = "admin"
)

// Valid reports whether r is one of the declared roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleStudent, RoleFaculty, RoleAlumni, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseUserRole accepts any casing and surrounding whitespace.
func ParseUserRole(raw string) (UserRole, error) {
	role := UserRole(strings.ToLower(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", raw)
	}
	return role, nil
}

// User represents an application user stored in the users table.
type User struct {
	ID                 string     `db:"id" json:"id"`
	Email              string     `db:"email" json:"email"`
	ExternalSubject    *string    `db:"external_subject" json:"-"`
	Username           string     `db:"username" json:"username"`
	Phone              *string    `db:"phone" json:"phone,omitempty"`
	Branch             *string    `db:"branch" json:"branch,omitempty"`
	PasswordHash       string     `db:"password_hash" json:"-"`
	Role               UserRole   `db:"role" json:"role"`
	Approved           bool       `db:"approved" json:"approved"`
	MustChangePassword bool       `db:"must_change_password" json:"must_change_password"`
	LastLogin          *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Approved  *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// UpdateUserRequest is the admin PATCH payload. Nil fields are left unchanged.
type UpdateUserRequest struct {
	Role     *UserRole `json:"role" validate:"omitempty,oneof=student faculty alumni admin"`
	Approved *bool     `json:"approved"`
	Username *string   `json:"username" validate:"omitempty,min=2,max=64"`
	Phone    *string   `json:"phone" validate:"omitempty,max=32"`
	Branch   *string   `json:"branch" validate:"omitempty,max=128"`
}

// UpdateProfileRequest is the self-service payload.
type UpdateProfileRequest struct {
	Username *string `json:"username" validate:"omitempty,min=2,max=64"`
	Phone    *string `json:"phone" validate:"omitempty,max=32"`
	Branch   *string `json:"branch" validate:"omitempty,max=128"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

// NewPagination fills TotalPages from total and pageSize.
func NewPagination(page, pageSize, total int) *Pagination {
	pages := 0
	if pageSize > 0 {
		pages = (total + pageSize - 1) / pageSize
	}
	return &Pagination{Page: page, PageSize: pageSize, TotalCount: total, TotalPages: pages}
}
