package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/room-assignment-api/internal/dto"
	"github.com/noah-isme/room-assignment-api/internal/models"
	"github.com/noah-isme/room-assignment-api/internal/service"
	appErrors "github.com/noah-isme/room-assignment-api/pkg/errors"
	"github.com/noah-isme/room-assignment-api/pkg/response"
)

type importReconciler interface {
	Preview(ctx context.Context, caller models.Caller, req dto.ImportPreviewRequest) (*dto.ImportPreviewResponse, error)
	Confirm(ctx context.Context, caller models.Caller, req dto.ImportConfirmRequest) (*dto.ImportConfirmResponse, error)
}

// ImportHandler exposes batch import endpoints.
type ImportHandler struct {
	imports importReconciler
}

// NewImportHandler constructs the handler.
func NewImportHandler(imports *service.ImportService) *ImportHandler {
	return &ImportHandler{imports: imports}
}

// Preview godoc
// @Summary Preview an import batch
// @Description Validates extracted tuples and reports duplicates and conflicts without writing anything.
// @Tags Imports
// @Accept json
// @Produce json
// @Param payload body dto.ImportPreviewRequest true "Import batch"
// @Success 200 {object} response.Envelope
// @Router /imports/preview [post]
func (h *ImportHandler) Preview(c *gin.Context) {
	caller, err := callerFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.ImportPreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid import payload"))
		return
	}
	result, err := h.imports.Preview(c.Request.Context(), caller, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Confirm godoc
// @Summary Confirm an import batch
// @Description Persists a previewed batch, or inline items, applying one decision per detected duplicate.
// @Tags Imports
// @Accept json
// @Produce json
// @Param payload body dto.ImportConfirmRequest true "Confirmation"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /imports/confirm [post]
func (h *ImportHandler) Confirm(c *gin.Context) {
	caller, err := callerFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.ImportConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid confirm payload"))
		return
	}
	result, err := h.imports.Confirm(c.Request.Context(), caller, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}
