package models

import (
	"fmt"
	"strings"
)

// UserRole is the role string carried by access tokens.
type UserRole string

const (
	RoleSuperAdmin  UserRole = "SUPERADMIN"
	RoleAdmin       UserRole = "ADMIN"
	RoleCoordinator UserRole = "COORDINATOR"
	RoleTeacher     UserRole = "TEACHER"
	RoleStudent     UserRole = "STUDENT"
)

// Caller is the closed set of principals the scope selector understands:
// AdminCaller, CoordinatorCaller and StandardCaller. The unexported marker keeps
// other packages from adding variants.
type Caller interface {
	UserID() string
	isCaller()
}

// AdminCaller sees every program unless it asks for one.
type AdminCaller struct {
	ID string
}

// CoordinatorCaller is pinned to the program it coordinates.
type CoordinatorCaller struct {
	ID        string
	ProgramID string
}

// StandardCaller only sees records it owns.
type StandardCaller struct {
	ID string
}

func (c AdminCaller) UserID() string       { return c.ID }
func (c CoordinatorCaller) UserID() string { return c.ID }
func (c StandardCaller) UserID() string    { return c.ID }

func (AdminCaller) isCaller()       {}
func (CoordinatorCaller) isCaller() {}
func (StandardCaller) isCaller()    {}

// CallerFromClaims maps token claims onto a caller variant.
func CallerFromClaims(claims *JWTClaims) (Caller, error) {
	if claims == nil || strings.TrimSpace(claims.UserID) == "" {
		return nil, fmt.Errorf("missing caller identity")
	}
	switch UserRole(strings.ToUpper(string(claims.Role))) {
	case RoleAdmin, RoleSuperAdmin:
		return AdminCaller{ID: claims.UserID}, nil
	case RoleCoordinator:
		if strings.TrimSpace(claims.ProgramID) == "" {
			return nil, fmt.Errorf("coordinator %s has no assigned program", claims.UserID)
		}
		return CoordinatorCaller{ID: claims.UserID, ProgramID: claims.ProgramID}, nil
	case "":
		return nil, fmt.Errorf("missing caller role")
	default:
		return StandardCaller{ID: claims.UserID}, nil
	}
}
