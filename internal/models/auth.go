package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SignupRequest registers a local account pending admin approval.
type SignupRequest struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=8"`
	Username string  `json:"username" validate:"required,min=2,max=64"`
	Role     string  `json:"role" validate:"omitempty,oneof=student faculty alumni"`
	Phone    *string `json:"phone" validate:"omitempty,max=32"`
	Branch   *string `json:"branch" validate:"omitempty,max=128"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued token and user info.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	User        UserInfo  `json:"user"`
	IssuedAt    time.Time `json:"issued_at"`
}

// ChangePasswordRequest payload for updating password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,nefield=OldPassword"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID                 string   `json:"id"`
	Email              string   `json:"email"`
	Username           string   `json:"username"`
	Role               UserRole `json:"role"`
	Approved           bool     `json:"approved"`
	MustChangePassword bool     `json:"must_change_password"`
}

// InfoOf projects u into the response shape.
func InfoOf(u *User) UserInfo {
	return UserInfo{
		ID:                 u.ID,
		Email:              u.Email,
		Username:           u.Username,
		Role:               u.Role,
		Approved:           u.Approved,
		MustChangePassword: u.MustChangePassword,
	}
}

// JWTClaims is the payload of locally issued session tokens.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email"`
	jwt.RegisteredClaims
}
