package service

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/room-assignment-api/internal/allocator"
	"github.com/noah-isme/room-assignment-api/internal/dto"
	"github.com/noah-isme/room-assignment-api/internal/models"
	appErrors "github.com/noah-isme/room-assignment-api/pkg/errors"
)

type assignmentFixture struct {
	db     *memoryDB
	tx     *memoryTx
	cache  *memoryCacheRepo
	events *recordingPublisher
	svc    *AssignmentService
}

func newAssignmentFixture(t *testing.T, cfg AssignmentConfig) *assignmentFixture {
	t.Helper()
	db := newMemoryDB()
	db.addRoom("r30", 30, nil)
	db.addRoom("r50", 50, nil)
	db.addSubject(testPeriod, models.Subject{ID: "s-math", Name: "Algebra", ProgramID: strPtr("math"), OwnerID: strPtr("u-1")})
	db.addSubject(testPeriod, models.Subject{ID: "s-bio", Name: "Botany", ProgramID: strPtr("bio"), OwnerID: strPtr("u-2")})
	db.addGroup(testPeriod, models.Group{ID: "g-1", SubjectID: "s-math", Label: "A", Students: 25, Shift: models.ShiftMorning,
		Slots: []models.MeetingSlot{slot("MONDAY", "08:00", "10:00")}})
	db.addGroup(testPeriod, models.Group{ID: "g-2", SubjectID: "s-math", Label: "B", Students: 45, Shift: models.ShiftMorning,
		Slots: []models.MeetingSlot{slot("MONDAY", "09:00", "11:00")}})
	db.addGroup(testPeriod, models.Group{ID: "g-3", SubjectID: "s-bio", Label: "A", Students: 20, Shift: models.ShiftMorning,
		Slots: []models.MeetingSlot{slot("TUE", "8:00", "10:00")}})

	fx := &assignmentFixture{db: db, tx: &memoryTx{db: db}, cache: newMemoryCacheRepo(), events: &recordingPublisher{}}
	cache := NewCacheService(fx.cache, nil, 0, nil, true)
	selector := NewScopeSelector(memorySubjects{db}, memoryGroups{db}, memoryRooms{db}, nil)
	fx.svc = NewAssignmentService(testPeriods(), selector, memoryAssignments{db}, fx.tx, cache, NewMetricsService(), fx.events, nil, nil, cfg)
	return fx
}

func placements(rows []models.Assignment) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		room := "-"
		if row.RoomID != nil {
			room = *row.RoomID
		}
		out = append(out, row.GroupID+"@"+room+"/"+row.DayOfWeek+" "+row.StartTime+"-"+row.EndTime)
	}
	sort.Strings(out)
	return out
}

func errorDetails(t *testing.T, err error) map[string]interface{} {
	t.Helper()
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	details, ok := appErr.Details.(map[string]interface{})
	require.True(t, ok)
	return details
}

var adminCaller = models.AdminCaller{ID: "admin"}

func TestAssignmentServiceRunPersistsScope(t *testing.T) {
	fx := newAssignmentFixture(t, AssignmentConfig{AtomicReplace: true})

	resp, err := fx.svc.Run(context.Background(), adminCaller, dto.RunAssignmentRequest{PeriodID: testPeriod.ID})
	require.NoError(t, err)

	assert.Equal(t, string(allocator.PolicyBestFit), resp.Policy)
	assert.Equal(t, 3, resp.Stats.Assigned)
	assert.Equal(t, 0, resp.UnassignedCount)
	assert.Empty(t, resp.Unassigned)
	assert.Equal(t, []string{
		"g-1@r30/MONDAY 08:00-10:00",
		"g-2@r50/MONDAY 09:00-11:00",
		"g-3@r30/TUESDAY 08:00-10:00",
	}, placements(resp.Assignments))
	assert.Equal(t, placements(resp.Assignments), placements(fx.db.assignmentsOf(testPeriod)))
	assert.Equal(t, 1, fx.tx.calls)
	assert.Equal(t, []string{dto.EventAssignmentsCompleted}, fx.events.events)
}

func TestAssignmentServiceRunReportsUnassigned(t *testing.T) {
	fx := newAssignmentFixture(t, AssignmentConfig{AtomicReplace: true})
	fx.db.addGroup(testPeriod, models.Group{ID: "g-4", SubjectID: "s-bio", Label: "Huge", Students: 120, Shift: models.ShiftMorning,
		Slots: []models.MeetingSlot{slot("WEDNESDAY", "08:00", "09:00")}})

	resp, err := fx.svc.Run(context.Background(), adminCaller, dto.RunAssignmentRequest{PeriodID: testPeriod.ID})
	require.NoError(t, err)

	assert.Equal(t, 1, resp.UnassignedCount)
	require.Len(t, resp.Unassigned, 1)
	assert.Equal(t, "g-4", resp.Unassigned[0].GroupID)
	assert.Nil(t, resp.Unassigned[0].RoomID)
	assert.Len(t, fx.db.assignmentsOf(testPeriod), 4)
}

func TestAssignmentServiceRunPolicyOverride(t *testing.T) {
	fx := newAssignmentFixture(t, AssignmentConfig{AtomicReplace: true})

	resp, err := fx.svc.Run(context.Background(), adminCaller, dto.RunAssignmentRequest{PeriodID: testPeriod.ID, Policy: "first_descending"})
	require.NoError(t, err)
	assert.Equal(t, string(allocator.PolicyFirstDescending), resp.Policy)
	assert.Contains(t, placements(resp.Assignments), "g-3@r50/TUESDAY 08:00-10:00")
}

func TestAssignmentServiceRunIsIdempotent(t *testing.T) {
	fx := newAssignmentFixture(t, AssignmentConfig{AtomicReplace: true})
	ctx := context.Background()

	_, err := fx.svc.Run(ctx, adminCaller, dto.RunAssignmentRequest{PeriodID: testPeriod.ID})
	require.NoError(t, err)
	first := placements(fx.db.assignmentsOf(testPeriod))

	_, err = fx.svc.Run(ctx, adminCaller, dto.RunAssignmentRequest{PeriodID: testPeriod.ID})
	require.NoError(t, err)
	assert.Equal(t, first, placements(fx.db.assignmentsOf(testPeriod)))
}

func TestAssignmentServiceRunKeepsOtherScopesBookings(t *testing.T) {
	fx := newAssignmentFixture(t, AssignmentConfig{AtomicReplace: true})
	fx.db.rooms = nil
	fx.db.addRoom("r30", 30, nil)
	fx.db.addGroup(testPeriod, models.Group{ID: "g-5", SubjectID: "s-bio", Label: "B", Students: 20, Shift: models.ShiftMorning,
		Slots: []models.MeetingSlot{slot("MONDAY", "08:00", "10:00")}})
	ctx := context.Background()
	math := models.CoordinatorCaller{ID: "coord-math", ProgramID: "math"}
	bio := models.CoordinatorCaller{ID: "coord-bio", ProgramID: "bio"}

	_, err := fx.svc.Run(ctx, math, dto.RunAssignmentRequest{PeriodID: testPeriod.ID})
	require.NoError(t, err)

	resp, err := fx.svc.Run(ctx, bio, dto.RunAssignmentRequest{PeriodID: testPeriod.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"g-3@r30/TUESDAY 08:00-10:00",
		"g-5@-/MONDAY 08:00-10:00",
	}, placements(resp.Assignments))
	require.Len(t, resp.Unassigned, 1)
	assert.Equal(t, "g-5", resp.Unassigned[0].GroupID)

	// A rerun of the first scope only sees the other scope's rows as bookings, never its own.
	_, err = fx.svc.Run(ctx, math, dto.RunAssignmentRequest{PeriodID: testPeriod.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"g-1@r30/MONDAY 08:00-10:00",
		"g-2@-/MONDAY 09:00-11:00",
		"g-3@r30/TUESDAY 08:00-10:00",
		"g-5@-/MONDAY 08:00-10:00",
	}, placements(fx.db.assignmentsOf(testPeriod)))
}

func TestAssignmentServiceRunEmptyScopeLeavesDataUntouched(t *testing.T) {
	fx := newAssignmentFixture(t, AssignmentConfig{AtomicReplace: true})
	ctx := context.Background()
	_, err := fx.svc.Run(ctx, adminCaller, dto.RunAssignmentRequest{PeriodID: testPeriod.ID})
	require.NoError(t, err)
	before := placements(fx.db.assignmentsOf(testPeriod))
	deletes := fx.db.deleteCalls

	_, err = fx.svc.Run(ctx, models.StandardCaller{ID: "nobody"}, dto.RunAssignmentRequest{PeriodID: testPeriod.ID})
	assert.ErrorIs(t, err, appErrors.ErrScopeEmpty)
	assert.Equal(t, deletes, fx.db.deleteCalls)
	assert.Equal(t, before, placements(fx.db.assignmentsOf(testPeriod)))
}

func TestAssignmentServiceRunWithoutAssignmentsLeavesDataUntouched(t *testing.T) {
	fx := newAssignmentFixture(t, AssignmentConfig{AtomicReplace: true})
	fx.db.addSubject(testPeriod, models.Subject{ID: "s-chem", Name: "Chemistry", ProgramID: strPtr("chem")})
	fx.db.addGroup(testPeriod, models.Group{ID: "g-chem", SubjectID: "s-chem", Label: "A", Students: 10, Shift: models.ShiftMorning,
		Slots: []models.MeetingSlot{slot("FUNDAY", "08:00", "09:00"), slot("MONDAY", "10:00", "09:00")}})
	room := "r30"
	fx.db.assignments[testPeriod.ID] = []models.Assignment{{ID: "old", GroupID: "g-chem", SubjectID: "s-chem", RoomID: &room, DayOfWeek: "FRIDAY", StartTime: "08:00", EndTime: "09:00"}}

	_, err := fx.svc.Run(context.Background(), models.CoordinatorCaller{ID: "coord", ProgramID: "chem"}, dto.RunAssignmentRequest{PeriodID: testPeriod.ID})
	assert.ErrorIs(t, err, appErrors.ErrNoAssignments)
	skipped, ok := errorDetails(t, err)["skippedSlots"].([]allocator.SkippedSlot)
	require.True(t, ok)
	assert.Len(t, skipped, 2)
	assert.Equal(t, 0, fx.db.deleteCalls)
	require.Len(t, fx.db.assignmentsOf(testPeriod), 1)
	assert.Equal(t, "old", fx.db.assignmentsOf(testPeriod)[0].ID)
	assert.Empty(t, fx.events.events)
}

func TestAssignmentServiceAtomicReplaceRollsBack(t *testing.T) {
	fx := newAssignmentFixture(t, AssignmentConfig{AtomicReplace: true})
	ctx := context.Background()
	_, err := fx.svc.Run(ctx, adminCaller, dto.RunAssignmentRequest{PeriodID: testPeriod.ID})
	require.NoError(t, err)
	before := placements(fx.db.assignmentsOf(testPeriod))

	fx.db.insertLimit = 1
	_, err = fx.svc.Run(ctx, adminCaller, dto.RunAssignmentRequest{PeriodID: testPeriod.ID, Policy: "first_descending"})
	assert.ErrorIs(t, err, appErrors.ErrPersistencePartial)
	assert.Equal(t, true, errorDetails(t, err)["preserved"])
	assert.Equal(t, before, placements(fx.db.assignmentsOf(testPeriod)))
}

func TestAssignmentServiceNonAtomicReplaceReportsPartialWrite(t *testing.T) {
	fx := newAssignmentFixture(t, AssignmentConfig{AtomicReplace: false})
	ctx := context.Background()
	_, err := fx.svc.Run(ctx, adminCaller, dto.RunAssignmentRequest{PeriodID: testPeriod.ID})
	require.NoError(t, err)
	assert.Equal(t, 0, fx.tx.calls)

	fx.db.insertLimit = 1
	_, err = fx.svc.Run(ctx, adminCaller, dto.RunAssignmentRequest{PeriodID: testPeriod.ID})
	assert.ErrorIs(t, err, appErrors.ErrPersistencePartial)
	details := errorDetails(t, err)
	assert.Equal(t, false, details["preserved"])
	assert.Equal(t, int64(3), details["cleared"])
	assert.Equal(t, 1, details["written"])
	assert.Equal(t, 3, details["expected"])
	assert.Len(t, fx.db.assignmentsOf(testPeriod), 1)
}

func TestAssignmentServiceClearingFailure(t *testing.T) {
	fx := newAssignmentFixture(t, AssignmentConfig{AtomicReplace: true})
	fx.db.deleteErr = errors.New("relation locked")

	_, err := fx.svc.Run(context.Background(), adminCaller, dto.RunAssignmentRequest{PeriodID: testPeriod.ID})
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	assert.Empty(t, fx.db.assignmentsOf(testPeriod))
}

func TestAssignmentServiceUndoIsScoped(t *testing.T) {
	fx := newAssignmentFixture(t, AssignmentConfig{AtomicReplace: true})
	ctx := context.Background()
	_, err := fx.svc.Run(ctx, adminCaller, dto.RunAssignmentRequest{PeriodID: testPeriod.ID})
	require.NoError(t, err)

	resp, err := fx.svc.Undo(ctx, models.CoordinatorCaller{ID: "coord", ProgramID: "math"}, dto.UndoAssignmentRequest{PeriodID: testPeriod.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), resp.Removed)
	remaining := fx.db.assignmentsOf(testPeriod)
	require.Len(t, remaining, 1)
	assert.Equal(t, "s-bio", remaining[0].SubjectID)

	resp, err = fx.svc.Undo(ctx, adminCaller, dto.UndoAssignmentRequest{PeriodID: testPeriod.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Removed)
	assert.Empty(t, fx.db.assignmentsOf(testPeriod))
	assert.Equal(t, []string{dto.EventAssignmentsCompleted, dto.EventAssignmentsUndone, dto.EventAssignmentsUndone}, fx.events.events)
}

func TestAssignmentServiceUndoEmptyScope(t *testing.T) {
	fx := newAssignmentFixture(t, AssignmentConfig{AtomicReplace: true})
	_, err := fx.svc.Undo(context.Background(), models.StandardCaller{ID: "nobody"}, dto.UndoAssignmentRequest{PeriodID: testPeriod.ID})
	assert.ErrorIs(t, err, appErrors.ErrScopeEmpty)
}

func TestAssignmentServiceListUsesCache(t *testing.T) {
	fx := newAssignmentFixture(t, AssignmentConfig{AtomicReplace: true})
	ctx := context.Background()
	_, err := fx.svc.Run(ctx, adminCaller, dto.RunAssignmentRequest{PeriodID: testPeriod.ID})
	require.NoError(t, err)

	query := dto.AssignmentQuery{PeriodID: testPeriod.ID}
	list, err := fx.svc.List(ctx, adminCaller, query)
	require.NoError(t, err)
	require.Len(t, list, 3)
	key := assignmentListKey(testPeriod.ID, "all")
	assert.True(t, fx.cache.has(key))

	fx.db.assignments[testPeriod.ID] = nil
	cached, err := fx.svc.List(ctx, adminCaller, query)
	require.NoError(t, err)
	assert.Len(t, cached, 3)

	_, err = fx.svc.Undo(ctx, models.CoordinatorCaller{ID: "coord", ProgramID: "bio"}, dto.UndoAssignmentRequest{PeriodID: testPeriod.ID})
	require.NoError(t, err)
	assert.False(t, fx.cache.has(key))
	list, err = fx.svc.List(ctx, adminCaller, query)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAssignmentServiceListEmptyScope(t *testing.T) {
	fx := newAssignmentFixture(t, AssignmentConfig{AtomicReplace: true})
	list, err := fx.svc.List(context.Background(), models.StandardCaller{ID: "nobody"}, dto.AssignmentQuery{PeriodID: testPeriod.ID})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAssignmentServiceValidation(t *testing.T) {
	fx := newAssignmentFixture(t, AssignmentConfig{AtomicReplace: true})
	ctx := context.Background()

	_, err := fx.svc.Run(ctx, adminCaller, dto.RunAssignmentRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = fx.svc.Run(ctx, adminCaller, dto.RunAssignmentRequest{PeriodID: testPeriod.ID, Policy: "random"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = fx.svc.Run(ctx, adminCaller, dto.RunAssignmentRequest{PeriodID: "1999-9"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = fx.svc.Run(ctx, adminCaller, dto.RunAssignmentRequest{PeriodID: testPeriod.ID, RoomIDs: []string{"r30"}})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Empty(t, fx.db.assignmentsOf(testPeriod))
}
