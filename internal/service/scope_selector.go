package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/room-assignment-api/internal/models"
	appErrors "github.com/noah-isme/room-assignment-api/pkg/errors"
)

type scopeSubjectReader interface {
	List(ctx context.Context, period models.Period, filter models.SubjectFilter) ([]models.Subject, error)
}

type scopeGroupReader interface {
	ListBySubjects(ctx context.Context, period models.Period, subjectIDs []string) ([]models.Group, error)
}

type scopeRoomReader interface {
	List(ctx context.Context, filter models.RoomFilter) ([]models.Room, error)
}

// ScopeSelector narrows subjects, groups and rooms to what a caller may schedule.
type ScopeSelector struct {
	subjects scopeSubjectReader
	groups   scopeGroupReader
	rooms    scopeRoomReader
	logger   *zap.Logger
}

// Scope is the resolved input of one allocation or undo run.
type Scope struct {
	Period     models.Period
	Key        string
	Subjects   []models.Subject
	SubjectIDs []string
	Groups     []models.Group
	Rooms      []models.Room
}

// NewScopeSelector wires the selector's readers.
func NewScopeSelector(subjects scopeSubjectReader, groups scopeGroupReader, rooms scopeRoomReader, logger *zap.Logger) *ScopeSelector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScopeSelector{subjects: subjects, groups: groups, rooms: rooms, logger: logger}
}

// ScopeKey names the visible subset of a caller; callers with equal keys see the same subjects.
func ScopeKey(caller models.Caller, programID *string) (string, error) {
	switch c := caller.(type) {
	case models.AdminCaller:
		if programID != nil {
			return "program:" + *programID, nil
		}
		return "all", nil
	case models.CoordinatorCaller:
		return "program:" + c.ProgramID, nil
	case models.StandardCaller:
		return "owner:" + c.ID, nil
	default:
		return "", unsupportedCaller(caller)
	}
}

// VisibleSubjects returns the period's subjects the caller may see. Admins see everything
// unless they name a program; coordinators always see their own program regardless of the
// requested one; anyone else sees only subjects they own.
func (s *ScopeSelector) VisibleSubjects(ctx context.Context, period models.Period, caller models.Caller, programID *string) ([]models.Subject, error) {
	var filter models.SubjectFilter
	switch c := caller.(type) {
	case models.AdminCaller:
		filter.ProgramID = programID
	case models.CoordinatorCaller:
		program := c.ProgramID
		filter.ProgramID = &program
	case models.StandardCaller:
		owner := c.ID
		filter.OwnerID = &owner
	default:
		return nil, unsupportedCaller(caller)
	}

	subjects, err := s.subjects.List(ctx, period, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load visible subjects")
	}
	return subjects, nil
}

// subjectVisible applies the VisibleSubjects rule to a single subject, with admins seeing
// every program.
func subjectVisible(caller models.Caller, subject models.Subject) bool {
	switch c := caller.(type) {
	case models.AdminCaller:
		return true
	case models.CoordinatorCaller:
		return subject.ProgramID != nil && *subject.ProgramID == c.ProgramID
	case models.StandardCaller:
		return subject.OwnerID != nil && *subject.OwnerID == c.ID
	default:
		return false
	}
}

// visibleSubjects filters subjects down to the ones caller may see.
func visibleSubjects(caller models.Caller, subjects []models.Subject) []models.Subject {
	out := make([]models.Subject, 0, len(subjects))
	for _, subject := range subjects {
		if subjectVisible(caller, subject) {
			out = append(out, subject)
		}
	}
	return out
}

// VisibleGroups returns the groups, with slots, of the given subjects.
func (s *ScopeSelector) VisibleGroups(ctx context.Context, period models.Period, subjectIDs []string) ([]models.Group, error) {
	groups, err := s.groups.ListBySubjects(ctx, period, subjectIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load groups")
	}
	return groups, nil
}

// VisibleRooms returns shared rooms plus the rooms of the caller's effective program. An
// admin without a program sees every room and a standard caller only ever sees shared rooms.
// roomIDs optionally narrows the result further.
func (s *ScopeSelector) VisibleRooms(ctx context.Context, caller models.Caller, programID *string, roomIDs []string) ([]models.Room, error) {
	filter := models.RoomFilter{IDs: roomIDs}
	switch c := caller.(type) {
	case models.AdminCaller:
		filter.ProgramID = programID
		filter.AllPrograms = programID == nil
	case models.CoordinatorCaller:
		program := c.ProgramID
		filter.ProgramID = &program
	case models.StandardCaller:
		// shared rooms only
	default:
		return nil, unsupportedCaller(caller)
	}

	rooms, err := s.rooms.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rooms")
	}
	return rooms, nil
}

// SelectSubjects resolves the subject part of a scope, failing with ErrScopeEmpty when the
// caller sees nothing.
func (s *ScopeSelector) SelectSubjects(ctx context.Context, period models.Period, caller models.Caller, programID *string) (*Scope, error) {
	key, err := ScopeKey(caller, programID)
	if err != nil {
		return nil, err
	}
	subjects, err := s.VisibleSubjects(ctx, period, caller, programID)
	if err != nil {
		return nil, err
	}
	if len(subjects) == 0 {
		return nil, appErrors.Clone(appErrors.ErrScopeEmpty, fmt.Sprintf("no visible subjects in period %s", period.ID))
	}
	scope := &Scope{Period: period, Key: key, Subjects: subjects, SubjectIDs: make([]string, 0, len(subjects))}
	for _, subject := range subjects {
		scope.SubjectIDs = append(scope.SubjectIDs, subject.ID)
	}
	return scope, nil
}

// Select resolves a full allocation scope. Any empty part fails with ErrScopeEmpty.
func (s *ScopeSelector) Select(ctx context.Context, period models.Period, caller models.Caller, programID *string, roomIDs []string) (*Scope, error) {
	scope, err := s.SelectSubjects(ctx, period, caller, programID)
	if err != nil {
		return nil, err
	}

	groups, err := s.VisibleGroups(ctx, period, scope.SubjectIDs)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, appErrors.Clone(appErrors.ErrScopeEmpty, fmt.Sprintf("no groups for the %d visible subjects in period %s", len(scope.SubjectIDs), period.ID))
	}
	scope.Groups = groups

	rooms, err := s.VisibleRooms(ctx, caller, programID, roomIDs)
	if err != nil {
		return nil, err
	}
	if len(rooms) == 0 {
		return nil, appErrors.Clone(appErrors.ErrScopeEmpty, "no rooms available for the requested scope")
	}
	scope.Rooms = rooms

	s.logger.Debug("scope selected",
		zap.String("period", period.ID),
		zap.String("scope", scope.Key),
		zap.Int("subjects", len(scope.Subjects)),
		zap.Int("groups", len(groups)),
		zap.Int("rooms", len(rooms)),
	)
	return scope, nil
}

func unsupportedCaller(caller models.Caller) error {
	return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("unsupported caller type %T", caller))
}
