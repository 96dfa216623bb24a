package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/room-assignment-api/internal/dto"
	"github.com/noah-isme/room-assignment-api/internal/middleware"
	"github.com/noah-isme/room-assignment-api/internal/models"
	"github.com/noah-isme/room-assignment-api/internal/service"
	appErrors "github.com/noah-isme/room-assignment-api/pkg/errors"
	"github.com/noah-isme/room-assignment-api/pkg/response"
)

type assignmentManager interface {
	Run(ctx context.Context, caller models.Caller, req dto.RunAssignmentRequest) (*dto.RunAssignmentResponse, error)
	Undo(ctx context.Context, caller models.Caller, req dto.UndoAssignmentRequest) (*dto.UndoAssignmentResponse, error)
	List(ctx context.Context, caller models.Caller, query dto.AssignmentQuery) ([]models.AssignmentDetail, error)
}

type assignmentExporter interface {
	Export(ctx context.Context, caller models.Caller, query dto.AssignmentQuery) (*service.ExportFile, error)
}

// AssignmentHandler exposes room allocation endpoints.
type AssignmentHandler struct {
	assignments assignmentManager
	exports     assignmentExporter
}

// NewAssignmentHandler constructs the handler.
func NewAssignmentHandler(assignments *service.AssignmentService, exports *service.ExportService) *AssignmentHandler {
	return &AssignmentHandler{assignments: assignments, exports: exports}
}

// Run godoc
// @Summary Run room allocation for the caller's scope
// @Description Replaces every assignment visible to the caller with a fresh allocation. Meetings without a feasible room are returned as unassigned.
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body dto.RunAssignmentRequest true "Run payload"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /assignments/run [post]
func (h *AssignmentHandler) Run(c *gin.Context) {
	caller, err := callerFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.RunAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid run payload"))
		return
	}
	result, err := h.assignments.Run(c.Request.Context(), caller, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "assigned", result.Stats.Assigned)
	middleware.SetMeta(c, "unassigned", result.UnassignedCount)
	response.JSON(c, http.StatusOK, result, middleware.ExtractMeta(c))
}

// Undo godoc
// @Summary Remove the caller's assignments
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body dto.UndoAssignmentRequest true "Undo payload"
// @Success 200 {object} response.Envelope
// @Router /assignments/undo [post]
func (h *AssignmentHandler) Undo(c *gin.Context) {
	caller, err := callerFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.UndoAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid undo payload"))
		return
	}
	result, err := h.assignments.Undo(c.Request.Context(), caller, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// List godoc
// @Summary List the caller's assignments
// @Tags Assignments
// @Produce json
// @Param periodId query string true "Period ID"
// @Param programId query string false "Program ID"
// @Success 200 {object} response.Envelope
// @Router /assignments [get]
func (h *AssignmentHandler) List(c *gin.Context) {
	caller, query, ok := h.bindQuery(c)
	if !ok {
		return
	}
	rows, err := h.assignments.List(c.Request.Context(), caller, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "count", len(rows))
	response.JSON(c, http.StatusOK, rows, middleware.ExtractMeta(c))
}

// Export godoc
// @Summary Download the caller's assignments
// @Tags Assignments
// @Produce text/csv
// @Produce application/pdf
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Produce text/calendar
// @Param periodId query string true "Period ID"
// @Param programId query string false "Program ID"
// @Param format query string false "csv, pdf, xlsx or ics"
// @Success 200 {file} file
// @Router /assignments/export [get]
func (h *AssignmentHandler) Export(c *gin.Context) {
	caller, query, ok := h.bindQuery(c)
	if !ok {
		return
	}
	file, err := h.exports.Export(c.Request.Context(), caller, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Data)
}

func (h *AssignmentHandler) bindQuery(c *gin.Context) (models.Caller, dto.AssignmentQuery, bool) {
	var query dto.AssignmentQuery
	caller, err := callerFromContext(c)
	if err != nil {
		response.Error(c, err)
		return nil, query, false
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment query"))
		return nil, query, false
	}
	return caller, query, true
}
