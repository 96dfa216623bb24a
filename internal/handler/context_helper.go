package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/room-assignment-api/internal/middleware"
	"github.com/noah-isme/room-assignment-api/internal/models"
	appErrors "github.com/noah-isme/room-assignment-api/pkg/errors"
)

func callerFromContext(c *gin.Context) (models.Caller, error) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok || caller == nil {
		return nil, appErrors.ErrUnauthorized
	}
	return caller, nil
}
