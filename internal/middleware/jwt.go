package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/room-assignment-api/internal/models"
	appErrors "github.com/noah-isme/room-assignment-api/pkg/errors"
	"github.com/noah-isme/room-assignment-api/pkg/response"
)

const (
	// ContextUserKey is the gin context key storing JWT claims.
	ContextUserKey = "currentUser"
	// ContextCallerKey stores the caller variant derived from the claims.
	ContextCallerKey = "currentCaller"
)

type tokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// JWT protects routes by requiring a valid access token whose claims map onto a caller.
func JWT(tokens tokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := tokens.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		caller, err := models.CallerFromClaims(claims)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, err.Error()))
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Set(ContextCallerKey, caller)
		c.Next()
	}
}

// CallerFromContext returns the caller attached by JWT.
func CallerFromContext(c *gin.Context) (models.Caller, bool) {
	value, exists := c.Get(ContextCallerKey)
	if !exists {
		return nil, false
	}
	caller, ok := value.(models.Caller)
	return caller, ok
}
