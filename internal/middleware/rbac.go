package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/room-assignment-api/internal/models"
	appErrors "github.com/noah-isme/room-assignment-api/pkg/errors"
	"github.com/noah-isme/room-assignment-api/pkg/response"
)

// RBAC admits requests whose token role matches one of allowed, case-insensitively.
// It must run after JWT.
func RBAC(allowed ...string) gin.HandlerFunc {
	allowedRoles := make(map[models.UserRole]struct{}, len(allowed))
	for _, a := range allowed {
		allowedRoles[models.UserRole(strings.ToUpper(a))] = struct{}{}
	}

	return func(c *gin.Context) {
		claims, ok := c.Value(ContextUserKey).(*models.JWTClaims)
		if !ok || claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowedRoles[models.UserRole(strings.ToUpper(string(claims.Role)))]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role "+string(claims.Role)+" may not access this resource"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRoles is RBAC over typed roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make([]string, len(roles))
	for i, r := range roles {
		allowed[i] = string(r)
	}
	return RBAC(allowed...)
}

// ImportRoles are the roles allowed to load teaching data.
var ImportRoles = []models.UserRole{models.RoleSuperAdmin, models.RoleAdmin, models.RoleCoordinator, models.RoleTeacher}

// RequireImporter admits callers holding one of ImportRoles.
func RequireImporter() gin.HandlerFunc {
	return RequireRoles(ImportRoles...)
}

// RequireAdmin admits only callers resolved to the admin variant, whatever role
// spelling their token used.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := CallerFromContext(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, isAdmin := caller.(models.AdminCaller); !isAdmin {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "administrator access required"))
			c.Abort()
			return
		}
		c.Next()
	}
}
