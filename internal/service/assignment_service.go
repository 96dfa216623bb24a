package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/room-assignment-api/internal/allocator"
	"github.com/noah-isme/room-assignment-api/internal/dto"
	"github.com/noah-isme/room-assignment-api/internal/models"
	appErrors "github.com/noah-isme/room-assignment-api/pkg/errors"
	applog "github.com/noah-isme/room-assignment-api/pkg/logger"
	"github.com/noah-isme/room-assignment-api/pkg/messaging"
)

type assignmentStore interface {
	DeleteBySubjects(ctx context.Context, exec sqlx.ExtContext, period models.Period, subjectIDs []string) (int64, error)
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, period models.Period, rows []models.Assignment) ([]models.Assignment, error)
	ListBySubjects(ctx context.Context, period models.Period, subjectIDs []string) ([]models.AssignmentDetail, error)
	ListExcludingSubjects(ctx context.Context, period models.Period, subjectIDs []string) ([]models.Assignment, error)
}

type scopeResolver interface {
	Select(ctx context.Context, period models.Period, caller models.Caller, programID *string, roomIDs []string) (*Scope, error)
	SelectSubjects(ctx context.Context, period models.Period, caller models.Caller, programID *string) (*Scope, error)
}

type periodResolver interface {
	Resolve(id string) (models.Period, error)
}

// txRunner runs fn inside one database transaction.
type txRunner interface {
	WithTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error
}

// AssignmentConfig governs allocation passes.
type AssignmentConfig struct {
	Policy         allocator.Policy
	ShiftPartition bool
	// AtomicReplace runs clearing and persisting in one transaction.
	AtomicReplace bool
	ListCacheTTL  time.Duration
}

// AssignmentService runs, undoes and lists room allocation passes per scope.
type AssignmentService struct {
	periods   periodResolver
	scopes    scopeResolver
	store     assignmentStore
	tx        txRunner
	cache     *CacheService
	metrics   *MetricsService
	events    messaging.Publisher
	validator *validator.Validate
	logger    *zap.Logger
	cfg       AssignmentConfig
}

// NewAssignmentService wires the assignment manager.
func NewAssignmentService(
	periods periodResolver,
	scopes scopeResolver,
	store assignmentStore,
	tx txRunner,
	cache *CacheService,
	metrics *MetricsService,
	events messaging.Publisher,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg AssignmentConfig,
) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = messaging.NopPublisher{}
	}
	if cfg.Policy == "" {
		cfg.Policy = allocator.PolicyBestFit
	}
	if cfg.ListCacheTTL <= 0 {
		cfg.ListCacheTTL = 5 * time.Minute
	}
	return &AssignmentService{
		periods:   periods,
		scopes:    scopes,
		store:     store,
		tx:        tx,
		cache:     cache,
		metrics:   metrics,
		events:    events,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run selects the caller's scope, allocates rooms to every meeting in it and replaces the
// scope's previous assignments with the result. Nothing is deleted unless the pass produced
// at least one assignment.
func (s *AssignmentService) Run(ctx context.Context, caller models.Caller, req dto.RunAssignmentRequest) (*dto.RunAssignmentResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment run payload")
	}
	policy := s.cfg.Policy
	if req.Policy != "" {
		parsed, err := allocator.ParsePolicy(req.Policy)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
		}
		policy = parsed
	}
	period, err := s.periods.Resolve(req.PeriodID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := s.run(ctx, caller, period, policy, req)
	outcome := runOutcomeSuccess
	if err != nil {
		outcome = appErrors.FromError(err).Code
	}
	var stats allocator.Stats
	if resp != nil {
		stats = resp.Stats
	}
	s.metrics.ObserveAllocationRun(policy, outcome, stats, time.Since(start))
	if err != nil {
		return nil, err
	}
	resp.DurationMillis = time.Since(start).Milliseconds()

	s.invalidate(ctx, period.ID)
	s.publish(ctx, dto.AssignmentEvent{
		Type:       dto.EventAssignmentsCompleted,
		PeriodID:   period.ID,
		ProgramID:  req.ProgramID,
		ActorID:    caller.UserID(),
		Assigned:   resp.Stats.Assigned,
		Unassigned: resp.Stats.Unassigned,
	})
	return resp, nil
}

func (s *AssignmentService) run(ctx context.Context, caller models.Caller, period models.Period, policy allocator.Policy, req dto.RunAssignmentRequest) (*dto.RunAssignmentResponse, error) {
	logger := applog.FromContext(ctx, s.logger).With(zap.String("period", period.ID), zap.String("actor", caller.UserID()), zap.String("policy", string(policy)))
	logger.Info("assignment run started")

	scope, err := s.scopes.Select(ctx, period, caller, req.ProgramID, req.RoomIDs)
	if err != nil {
		logger.Warn("assignment run halted while selecting scope", zap.Error(err))
		return nil, err
	}

	// Rooms are shared across scopes, so bookings held by other subjects stay blocked.
	reserved, err := s.store.ListExcludingSubjects(ctx, period, scope.SubjectIDs)
	if err != nil {
		logger.Error("failed to load bookings outside scope", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load existing room bookings")
	}

	result := allocator.New(allocator.Options{
		Policy:         policy,
		ShiftPartition: s.cfg.ShiftPartition,
		Reserved:       reserved,
	}).Allocate(scope.Groups, scope.Rooms)
	if len(result.Assignments) == 0 {
		logger.Warn("assignment run produced no assignments", zap.Int("skipped", len(result.Skipped)))
		return nil, appErrors.WithDetails(appErrors.ErrNoAssignments,
			fmt.Sprintf("no assignments produced for %d groups; %d slots were malformed", len(scope.Groups), len(result.Skipped)),
			map[string]interface{}{"skippedSlots": result.Skipped})
	}
	logger.Info("allocation computed",
		zap.String("scope", scope.Key),
		zap.Int("assigned", result.Stats.Assigned),
		zap.Int("unassigned", result.Stats.Unassigned),
		zap.Int("skipped", result.Stats.Skipped),
	)

	persisted, err := s.replace(ctx, logger, scope, result.Assignments)
	if err != nil {
		return nil, err
	}

	unassigned := make([]models.Assignment, 0, len(result.Unassigned))
	for _, row := range persisted {
		if !row.Assigned() {
			unassigned = append(unassigned, row)
		}
	}

	return &dto.RunAssignmentResponse{
		PeriodID:        period.ID,
		Policy:          string(policy),
		Assignments:     persisted,
		UnassignedCount: len(unassigned),
		Unassigned:      unassigned,
		SkippedSlots:    result.Skipped,
		Stats:           result.Stats,
	}, nil
}

// replace clears the scope and writes rows, either inside one transaction or as two
// independent steps depending on configuration.
func (s *AssignmentService) replace(ctx context.Context, logger *zap.Logger, scope *Scope, rows []models.Assignment) ([]models.Assignment, error) {
	if s.cfg.AtomicReplace && s.tx != nil {
		var persisted []models.Assignment
		err := s.tx.WithTx(ctx, func(exec sqlx.ExtContext) error {
			removed, err := s.store.DeleteBySubjects(ctx, exec, scope.Period, scope.SubjectIDs)
			if err != nil {
				return errClearing{err: err}
			}
			logger.Info("assignments cleared", zap.Int64("removed", removed))
			persisted, err = s.persist(ctx, exec, scope, rows)
			return err
		})
		if err != nil {
			var clearing errClearing
			if errors.As(err, &clearing) {
				logger.Error("assignment run halted while clearing", zap.Error(clearing.err))
				return nil, appErrors.Wrap(clearing.err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear previous assignments")
			}
			logger.Error("assignment run rolled back", zap.Error(err))
			return nil, appErrors.WithDetails(appErrors.ErrPersistencePartial,
				"failed to persist assignments; previous assignments were preserved",
				map[string]interface{}{"preserved": true, "cause": err.Error()})
		}
		logger.Info("assignments persisted", zap.Int("rows", len(persisted)))
		return persisted, nil
	}

	removed, err := s.store.DeleteBySubjects(ctx, nil, scope.Period, scope.SubjectIDs)
	if err != nil {
		logger.Error("assignment run halted while clearing", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear previous assignments")
	}
	logger.Info("assignments cleared", zap.Int64("removed", removed))

	persisted, err := s.persist(ctx, nil, scope, rows)
	if err != nil {
		logger.Error("assignment run left scope partially persisted",
			zap.Int64("cleared", removed), zap.Int("written", len(persisted)), zap.Int("expected", len(rows)), zap.Error(err))
		return nil, appErrors.WithDetails(appErrors.ErrPersistencePartial,
			fmt.Sprintf("previous assignments were cleared but only %d of %d new assignments were written", len(persisted), len(rows)),
			map[string]interface{}{"preserved": false, "cleared": removed, "written": len(persisted), "expected": len(rows), "cause": err.Error()})
	}
	logger.Info("assignments persisted", zap.Int("rows", len(persisted)))
	return persisted, nil
}

func (s *AssignmentService) persist(ctx context.Context, exec sqlx.ExtContext, scope *Scope, rows []models.Assignment) ([]models.Assignment, error) {
	persisted, err := s.store.InsertBatch(ctx, exec, scope.Period, rows)
	if err != nil {
		return persisted, err
	}
	if len(persisted) != len(rows) {
		return persisted, fmt.Errorf("wrote %d of %d assignments", len(persisted), len(rows))
	}
	return persisted, nil
}

type errClearing struct{ err error }

func (e errClearing) Error() string { return "clear assignments: " + e.err.Error() }
func (e errClearing) Unwrap() error { return e.err }

// Undo removes every assignment of the caller's visible subjects in the period.
func (s *AssignmentService) Undo(ctx context.Context, caller models.Caller, req dto.UndoAssignmentRequest) (*dto.UndoAssignmentResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment undo payload")
	}
	period, err := s.periods.Resolve(req.PeriodID)
	if err != nil {
		return nil, err
	}

	scope, err := s.scopes.SelectSubjects(ctx, period, caller, req.ProgramID)
	if err != nil {
		return nil, err
	}

	removed, err := s.store.DeleteBySubjects(ctx, nil, period, scope.SubjectIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove assignments")
	}
	applog.FromContext(ctx, s.logger).Info("assignments undone",
		zap.String("period", period.ID),
		zap.String("scope", scope.Key),
		zap.String("actor", caller.UserID()),
		zap.Int64("removed", removed),
	)
	s.metrics.ObserveUndo(removed)
	s.invalidate(ctx, period.ID)
	s.publish(ctx, dto.AssignmentEvent{
		Type:      dto.EventAssignmentsUndone,
		PeriodID:  period.ID,
		ProgramID: req.ProgramID,
		ActorID:   caller.UserID(),
		Removed:   removed,
	})
	return &dto.UndoAssignmentResponse{PeriodID: period.ID, Removed: removed}, nil
}

// List returns the assignments of the caller's visible subjects, served from cache when possible.
func (s *AssignmentService) List(ctx context.Context, caller models.Caller, query dto.AssignmentQuery) ([]models.AssignmentDetail, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment query")
	}
	period, err := s.periods.Resolve(query.PeriodID)
	if err != nil {
		return nil, err
	}

	key, err := ScopeKey(caller, query.ProgramID)
	if err != nil {
		return nil, err
	}
	return readThrough(ctx, s.cache, assignmentListKey(period.ID, key), s.cfg.ListCacheTTL, func(ctx context.Context) ([]models.AssignmentDetail, error) {
		scope, err := s.scopes.SelectSubjects(ctx, period, caller, query.ProgramID)
		if err != nil {
			if errors.Is(err, appErrors.ErrScopeEmpty) {
				return []models.AssignmentDetail{}, nil
			}
			return nil, err
		}
		list, err := s.store.ListBySubjects(ctx, period, scope.SubjectIDs)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
		}
		return list, nil
	})
}

func (s *AssignmentService) invalidate(ctx context.Context, periodID string) {
	if err := s.cache.InvalidateAssignments(ctx, periodID); err != nil {
		s.logger.Warn("failed to invalidate assignment cache", zap.String("period", periodID), zap.Error(err))
	}
}

// publish notifies downstream consumers. Failures are logged and never fail the request.
func (s *AssignmentService) publish(ctx context.Context, event dto.AssignmentEvent) {
	if err := s.events.Publish(ctx, event.Type, event); err != nil {
		s.logger.Warn("failed to publish assignment event", zap.String("type", event.Type), zap.Error(err))
	}
}
