package service

import (
	"strings"

	"github.com/noah-isme/room-assignment-api/internal/models"
	"github.com/noah-isme/room-assignment-api/pkg/config"
	appErrors "github.com/noah-isme/room-assignment-api/pkg/errors"
)

// PeriodService resolves period identifiers to their storage descriptors.
type PeriodService struct {
	ordered []models.Period
	byID    map[string]models.Period
}

// NewPeriodService builds the registry from the configured period table.
func NewPeriodService(periods []config.PeriodConfig) *PeriodService {
	svc := &PeriodService{byID: make(map[string]models.Period, len(periods))}
	for _, p := range periods {
		period := models.Period{ID: p.ID, Label: p.Label, Suffix: p.Suffix}
		svc.ordered = append(svc.ordered, period)
		svc.byID[period.ID] = period
	}
	return svc
}

// List returns every configured period in declaration order.
func (s *PeriodService) List() []models.Period {
	out := make([]models.Period, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// Resolve returns the period with the given id.
func (s *PeriodService) Resolve(id string) (models.Period, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.Period{}, appErrors.Clone(appErrors.ErrValidation, "periodId is required")
	}
	period, ok := s.byID[id]
	if !ok {
		return models.Period{}, appErrors.Clone(appErrors.ErrNotFound, "period "+id+" is not configured")
	}
	return period, nil
}

// Suffixes lists the table suffixes of every period.
func (s *PeriodService) Suffixes() []string {
	out := make([]string, 0, len(s.ordered))
	for _, p := range s.ordered {
		out = append(out, p.Suffix)
	}
	return out
}
