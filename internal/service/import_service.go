package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/room-assignment-api/internal/allocator"
	"github.com/noah-isme/room-assignment-api/internal/dto"
	"github.com/noah-isme/room-assignment-api/internal/models"
	appErrors "github.com/noah-isme/room-assignment-api/pkg/errors"
	applog "github.com/noah-isme/room-assignment-api/pkg/logger"
)

type instructorStore interface {
	FindByNameCI(ctx context.Context, exec sqlx.ExtContext, name string) ([]models.Instructor, error)
	Create(ctx context.Context, exec sqlx.ExtContext, instructor *models.Instructor) error
	Update(ctx context.Context, exec sqlx.ExtContext, instructor *models.Instructor) error
}

type subjectStore interface {
	FindByNameCI(ctx context.Context, exec sqlx.ExtContext, period models.Period, name string) ([]models.Subject, error)
	Create(ctx context.Context, exec sqlx.ExtContext, period models.Period, subject *models.Subject) error
	Update(ctx context.Context, exec sqlx.ExtContext, period models.Period, subject *models.Subject) error
}

type groupWriter interface {
	CreateWithSlots(ctx context.Context, exec sqlx.ExtContext, period models.Period, group *models.Group) error
}

// ImportConfig governs batch retention and duplicate naming.
type ImportConfig struct {
	BatchTTL        time.Duration
	DuplicateSuffix string
}

// ImportService reconciles imported subject, instructor and group tuples with existing records.
type ImportService struct {
	periods     periodResolver
	instructors instructorStore
	subjects    subjectStore
	groups      groupWriter
	tx          txRunner
	batches     importBatchStore
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         ImportConfig
}

// NewImportService wires the reconciler. Pending batches live in Redis when the cache is
// enabled and in process memory otherwise.
func NewImportService(
	periods periodResolver,
	instructors instructorStore,
	subjects subjectStore,
	groups groupWriter,
	tx txRunner,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg ImportConfig,
) *ImportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchTTL <= 0 {
		cfg.BatchTTL = 30 * time.Minute
	}
	if cfg.DuplicateSuffix == "" {
		cfg.DuplicateSuffix = " (imported)"
	}
	var batches importBatchStore = newMemoryBatchStore(cfg.BatchTTL)
	if cache.Enabled() {
		batches = &cacheBatchStore{cache: cache, ttl: cfg.BatchTTL}
	}
	return &ImportService{
		periods:     periods,
		instructors: instructors,
		subjects:    subjects,
		groups:      groups,
		tx:          tx,
		batches:     batches,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
	}
}

// Preview validates a batch, reports duplicates and ambiguous matches, and stores the batch
// so it can be confirmed by id. Nothing is written to the database.
func (s *ImportService) Preview(ctx context.Context, caller models.Caller, req dto.ImportPreviewRequest) (*dto.ImportPreviewResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid import preview payload")
	}
	period, err := s.periods.Resolve(req.PeriodID)
	if err != nil {
		return nil, err
	}

	accepted, rejected := validateImportItems(req.Items)
	scan, err := s.scanDuplicates(ctx, caller, period, req.Items, accepted)
	if err != nil {
		return nil, err
	}

	batch := dto.ImportBatch{ID: uuid.NewString(), PeriodID: period.ID, Items: req.Items}
	if err := s.batches.Save(ctx, batch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store import batch")
	}
	applog.FromContext(ctx, s.logger).Info("import batch previewed",
		zap.String("batch", batch.ID),
		zap.String("period", period.ID),
		zap.String("actor", caller.UserID()),
		zap.Int("items", len(req.Items)),
		zap.Int("duplicates", len(scan.duplicates)),
		zap.Int("conflicts", len(scan.conflicts)),
	)

	return &dto.ImportPreviewResponse{
		BatchID:    batch.ID,
		PeriodID:   period.ID,
		Accepted:   len(accepted),
		Duplicates: scan.duplicates,
		Conflicts:  scan.conflicts,
		Rejected:   rejected,
		ExpiresIn:  int64(s.cfg.BatchTTL.Seconds()),
	}, nil
}

// Confirm persists a batch, resolving each detected duplicate with the caller's decision.
// Items are processed strictly in order inside one transaction so later items observe the
// identities assigned to earlier ones.
func (s *ImportService) Confirm(ctx context.Context, caller models.Caller, req dto.ImportConfirmRequest) (*dto.ImportConfirmResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid import confirm payload")
	}
	period, err := s.periods.Resolve(req.PeriodID)
	if err != nil {
		return nil, err
	}

	items := req.Items
	if req.BatchID != "" {
		batch, ok, err := s.batches.Get(ctx, req.BatchID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load import batch")
		}
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "import batch not found or expired")
		}
		if batch.PeriodID != period.ID {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("import batch belongs to period %s", batch.PeriodID))
		}
		items = batch.Items
	}

	decisions, err := indexDecisions(req.Decisions, len(items))
	if err != nil {
		return nil, err
	}

	accepted, rejected := validateImportItems(items)
	scan, err := s.scanDuplicates(ctx, caller, period, items, accepted)
	if err != nil {
		return nil, err
	}
	if len(scan.conflicts) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrReconciliationConflict,
			fmt.Sprintf("%d import items match more than one existing record", len(scan.conflicts)),
			map[string]interface{}{"conflicts": scan.conflicts})
	}
	var undecided []dto.ImportDuplicate
	for _, dup := range scan.duplicates {
		if _, ok := decisions[decisionKey{index: dup.Index, kind: dup.Kind}]; !ok {
			undecided = append(undecided, dup)
		}
	}
	if len(undecided) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrValidation,
			fmt.Sprintf("%d duplicates have no decision", len(undecided)),
			map[string]interface{}{"duplicates": undecided})
	}

	resp := &dto.ImportConfirmResponse{
		PeriodID: period.ID,
		Resolved: make([]dto.ResolvedImportItem, 0, len(accepted)),
		Rejected: rejected,
	}
	run := &importRun{
		svc:         s,
		period:      period,
		caller:      caller,
		decisions:   decisions,
		instructors: make(map[string]string),
		subjects:    make(map[string]string),
		resp:        resp,
	}

	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	err = s.tx.WithTx(ctx, func(exec sqlx.ExtContext) error {
		for _, index := range accepted {
			if err := run.apply(ctx, exec, index, items[index]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist import batch")
	}

	if req.BatchID != "" {
		if err := s.batches.Delete(ctx, req.BatchID); err != nil {
			s.logger.Warn("failed to drop confirmed import batch", zap.String("batch", req.BatchID), zap.Error(err))
		}
	}
	if err := s.cache.InvalidateAssignments(ctx, period.ID); err != nil {
		s.logger.Warn("failed to invalidate assignment cache", zap.String("period", period.ID), zap.Error(err))
	}
	s.metrics.ObserveImportItems("created", resp.SubjectsCreated+resp.InstructorsCreated+resp.GroupsCreated)
	s.metrics.ObserveImportItems("replaced", resp.SubjectsReplaced+resp.InstructorsReplaced)
	s.metrics.ObserveImportItems("rejected", len(rejected))

	applog.FromContext(ctx, s.logger).Info("import batch confirmed",
		zap.String("period", period.ID),
		zap.String("actor", caller.UserID()),
		zap.Int("subjects_created", resp.SubjectsCreated),
		zap.Int("instructors_created", resp.InstructorsCreated),
		zap.Int("groups_created", resp.GroupsCreated),
		zap.Int("rejected", len(rejected)),
	)
	return resp, nil
}

type decisionKey struct {
	index int
	kind  string
}

func indexDecisions(decisions []dto.DuplicateDecision, items int) (map[decisionKey]string, error) {
	out := make(map[decisionKey]string, len(decisions))
	for _, d := range decisions {
		if d.Index < 0 || d.Index >= items {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("decision index %d is out of range", d.Index))
		}
		key := decisionKey{index: d.Index, kind: d.Kind}
		if _, dup := out[key]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("more than one %s decision for item %d", d.Kind, d.Index))
		}
		out[key] = d.Action
	}
	return out, nil
}

type duplicateScan struct {
	duplicates []dto.ImportDuplicate
	conflicts  []dto.ImportDuplicate
}

// scanDuplicates looks up each distinct name once, in batch order. Only the first item
// carrying a name needs a decision; later items reuse what it resolved to. Subjects the
// caller cannot see never count as duplicates.
func (s *ImportService) scanDuplicates(ctx context.Context, caller models.Caller, period models.Period, items []dto.ImportItem, accepted []int) (*duplicateScan, error) {
	scan := &duplicateScan{duplicates: []dto.ImportDuplicate{}, conflicts: []dto.ImportDuplicate{}}
	seenInstructors := make(map[string]bool)
	seenSubjects := make(map[string]bool)

	for _, index := range accepted {
		item := items[index]

		instructorName := strings.TrimSpace(item.InstructorName)
		if key := normaliseName(instructorName); !seenInstructors[key] {
			seenInstructors[key] = true
			matches, err := s.instructors.FindByNameCI(ctx, nil, instructorName)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up instructors")
			}
			ids := make([]string, 0, len(matches))
			for _, m := range matches {
				ids = append(ids, m.ID)
			}
			scan.record(index, dto.DuplicateInstructor, instructorName, ids)
		}

		subjectName := strings.TrimSpace(item.SubjectName)
		if key := normaliseName(subjectName); !seenSubjects[key] {
			seenSubjects[key] = true
			matches, err := s.subjects.FindByNameCI(ctx, nil, period, subjectName)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up subjects")
			}
			matches = visibleSubjects(caller, matches)
			ids := make([]string, 0, len(matches))
			for _, m := range matches {
				ids = append(ids, m.ID)
			}
			scan.record(index, dto.DuplicateSubject, subjectName, ids)
		}
	}
	return scan, nil
}

func (d *duplicateScan) record(index int, kind, name string, ids []string) {
	switch {
	case len(ids) == 1:
		d.duplicates = append(d.duplicates, dto.ImportDuplicate{Index: index, Kind: kind, Name: name, ExistingID: ids[0]})
	case len(ids) > 1:
		d.conflicts = append(d.conflicts, dto.ImportDuplicate{Index: index, Kind: kind, Name: name, Candidates: ids})
	}
}

// importRun carries the identities resolved so far in one confirmation.
type importRun struct {
	svc         *ImportService
	period      models.Period
	caller      models.Caller
	decisions   map[decisionKey]string
	instructors map[string]string
	subjects    map[string]string
	resp        *dto.ImportConfirmResponse
}

func (r *importRun) apply(ctx context.Context, exec sqlx.ExtContext, index int, item dto.ImportItem) error {
	instructorID, err := r.resolveInstructor(ctx, exec, index, strings.TrimSpace(item.InstructorName))
	if err != nil {
		return err
	}
	subjectID, err := r.resolveSubject(ctx, exec, index, item, instructorID)
	if err != nil {
		return err
	}

	shift, _ := models.ParseShift(item.Shift)
	group := &models.Group{
		SubjectID: subjectID,
		Label:     strings.TrimSpace(item.GroupLabel),
		Students:  item.Students,
		Shift:     shift,
		Slots:     make([]models.MeetingSlot, 0, len(item.Slots)),
	}
	for _, slot := range item.Slots {
		interval, err := allocator.ParseInterval(slot.DayOfWeek, slot.StartTime, slot.EndTime)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrMalformedSlot.Code, appErrors.ErrMalformedSlot.Status, fmt.Sprintf("item %d: %v", index, err))
		}
		group.Slots = append(group.Slots, models.MeetingSlot{
			DayOfWeek: allocator.DayName(interval.Day),
			StartTime: interval.Start.String(),
			EndTime:   interval.End.String(),
		})
	}
	if err := r.svc.groups.CreateWithSlots(ctx, exec, r.period, group); err != nil {
		return fmt.Errorf("item %d: %w", index, err)
	}
	r.resp.GroupsCreated++
	r.resp.Resolved = append(r.resp.Resolved, dto.ResolvedImportItem{
		Index:        index,
		InstructorID: instructorID,
		SubjectID:    subjectID,
		GroupID:      group.ID,
	})
	return nil
}

func (r *importRun) resolveInstructor(ctx context.Context, exec sqlx.ExtContext, index int, name string) (string, error) {
	key := normaliseName(name)
	if id, ok := r.instructors[key]; ok {
		return id, nil
	}

	matches, err := r.svc.instructors.FindByNameCI(ctx, exec, name)
	if err != nil {
		return "", fmt.Errorf("item %d: %w", index, err)
	}
	var id string
	switch len(matches) {
	case 0:
		created := &models.Instructor{FullName: name}
		if err := r.svc.instructors.Create(ctx, exec, created); err != nil {
			return "", fmt.Errorf("item %d: %w", index, err)
		}
		r.resp.InstructorsCreated++
		id = created.ID
	case 1:
		existing := matches[0]
		switch r.decisions[decisionKey{index: index, kind: dto.DuplicateInstructor}] {
		case dto.DecisionSkip:
			id = existing.ID
		case dto.DecisionReplace:
			existing.FullName = name
			if err := r.svc.instructors.Update(ctx, exec, &existing); err != nil {
				return "", fmt.Errorf("item %d: %w", index, err)
			}
			r.resp.InstructorsReplaced++
			id = existing.ID
		case dto.DecisionKeepBoth:
			created := &models.Instructor{FullName: name + r.svc.cfg.DuplicateSuffix}
			if err := r.svc.instructors.Create(ctx, exec, created); err != nil {
				return "", fmt.Errorf("item %d: %w", index, err)
			}
			r.resp.InstructorsCreated++
			id = created.ID
		default:
			return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("item %d: instructor %q has no duplicate decision", index, name))
		}
	default:
		return "", appErrors.Clone(appErrors.ErrReconciliationConflict, fmt.Sprintf("item %d: instructor %q matches %d records", index, name, len(matches)))
	}
	r.instructors[key] = id
	return id, nil
}

func (r *importRun) resolveSubject(ctx context.Context, exec sqlx.ExtContext, index int, item dto.ImportItem, instructorID string) (string, error) {
	name := strings.TrimSpace(item.SubjectName)
	key := normaliseName(name)
	if id, ok := r.subjects[key]; ok {
		return id, nil
	}

	programID := item.ProgramID
	if coordinator, ok := r.caller.(models.CoordinatorCaller); ok {
		program := coordinator.ProgramID
		programID = &program
	}
	owner := r.caller.UserID()
	instructor := instructorID

	matches, err := r.svc.subjects.FindByNameCI(ctx, exec, r.period, name)
	if err != nil {
		return "", fmt.Errorf("item %d: %w", index, err)
	}
	matches = visibleSubjects(r.caller, matches)
	var id string
	switch len(matches) {
	case 0:
		created := &models.Subject{Name: name, InstructorID: &instructor, ProgramID: programID, OwnerID: &owner}
		if err := r.svc.subjects.Create(ctx, exec, r.period, created); err != nil {
			return "", fmt.Errorf("item %d: %w", index, err)
		}
		r.resp.SubjectsCreated++
		id = created.ID
	case 1:
		existing := matches[0]
		switch r.decisions[decisionKey{index: index, kind: dto.DuplicateSubject}] {
		case dto.DecisionSkip:
			id = existing.ID
		case dto.DecisionReplace:
			existing.Name = name
			existing.InstructorID = &instructor
			existing.ProgramID = programID
			if err := r.svc.subjects.Update(ctx, exec, r.period, &existing); err != nil {
				return "", fmt.Errorf("item %d: %w", index, err)
			}
			r.resp.SubjectsReplaced++
			id = existing.ID
		case dto.DecisionKeepBoth:
			created := &models.Subject{Name: name + r.svc.cfg.DuplicateSuffix, InstructorID: &instructor, ProgramID: programID, OwnerID: &owner}
			if err := r.svc.subjects.Create(ctx, exec, r.period, created); err != nil {
				return "", fmt.Errorf("item %d: %w", index, err)
			}
			r.resp.SubjectsCreated++
			id = created.ID
		default:
			return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("item %d: subject %q has no duplicate decision", index, name))
		}
	default:
		return "", appErrors.Clone(appErrors.ErrReconciliationConflict, fmt.Sprintf("item %d: subject %q matches %d records", index, name, len(matches)))
	}
	r.subjects[key] = id
	return id, nil
}

// validateImportItems splits a batch into accepted indices and rejections.
func validateImportItems(items []dto.ImportItem) ([]int, []dto.ImportRejection) {
	accepted := make([]int, 0, len(items))
	rejected := make([]dto.ImportRejection, 0)
	for i, item := range items {
		if reason := importItemProblem(item); reason != "" {
			rejected = append(rejected, dto.ImportRejection{Index: i, Reason: reason})
			continue
		}
		accepted = append(accepted, i)
	}
	return accepted, rejected
}

func importItemProblem(item dto.ImportItem) string {
	switch {
	case strings.TrimSpace(item.SubjectName) == "":
		return "subject name is required"
	case strings.TrimSpace(item.InstructorName) == "":
		return "instructor name is required"
	case strings.TrimSpace(item.GroupLabel) == "":
		return "group label is required"
	case item.Students < 0:
		return "student count must not be negative"
	case len(item.Slots) == 0:
		return "at least one meeting slot is required"
	}
	if _, ok := models.ParseShift(item.Shift); !ok {
		return fmt.Sprintf("unknown shift %q", item.Shift)
	}
	for i, slot := range item.Slots {
		if _, err := allocator.ParseInterval(slot.DayOfWeek, slot.StartTime, slot.EndTime); err != nil {
			return fmt.Sprintf("slot %d: %v", i, err)
		}
	}
	return ""
}

func normaliseName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
