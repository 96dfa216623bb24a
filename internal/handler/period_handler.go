package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/room-assignment-api/internal/models"
	"github.com/noah-isme/room-assignment-api/pkg/response"
)

type periodLister interface {
	List() []models.Period
}

// PeriodHandler lists configured academic periods.
type PeriodHandler struct {
	periods periodLister
}

// NewPeriodHandler constructs the handler.
func NewPeriodHandler(periods periodLister) *PeriodHandler {
	return &PeriodHandler{periods: periods}
}

// List godoc
// @Summary List academic periods
// @Tags Periods
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /periods [get]
func (h *PeriodHandler) List(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.periods.List(), nil)
}
