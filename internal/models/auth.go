package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the access token payload issued by the identity provider.
type JWTClaims struct {
	UserID    string   `json:"user_id"`
	Role      UserRole `json:"role"`
	ProgramID string   `json:"program_id,omitempty"`
	Email     string   `json:"email,omitempty"`
	jwt.RegisteredClaims
}
