package dto

import (
	"github.com/noah-isme/room-assignment-api/internal/allocator"
	"github.com/noah-isme/room-assignment-api/internal/models"
)

// RunAssignmentRequest starts an allocation pass for one scope.
type RunAssignmentRequest struct {
	PeriodID  string   `json:"periodId" validate:"required"`
	ProgramID *string  `json:"programId" validate:"omitempty,min=1"`
	RoomIDs   []string `json:"roomIds" validate:"omitempty,dive,uuid"`
	Policy    string   `json:"policy" validate:"omitempty,oneof=best_fit first_descending"`
}

// RunAssignmentResponse reports every emitted assignment and the meetings left without a room.
type RunAssignmentResponse struct {
	PeriodID        string                  `json:"periodId"`
	Policy          string                  `json:"policy"`
	Assignments     []models.Assignment     `json:"assignments"`
	UnassignedCount int                     `json:"unassignedCount"`
	Unassigned      []models.Assignment     `json:"unassigned"`
	SkippedSlots    []allocator.SkippedSlot `json:"skippedSlots"`
	Stats           allocator.Stats         `json:"stats"`
	DurationMillis  int64                   `json:"durationMs"`
}

// UndoAssignmentRequest removes the assignments visible to the caller.
type UndoAssignmentRequest struct {
	PeriodID  string  `json:"periodId" validate:"required"`
	ProgramID *string `json:"programId" validate:"omitempty,min=1"`
}

// UndoAssignmentResponse reports how many rows were removed.
type UndoAssignmentResponse struct {
	PeriodID string `json:"periodId"`
	Removed  int64  `json:"removed"`
}

// AssignmentQuery filters the assignment listing and export.
type AssignmentQuery struct {
	PeriodID  string  `form:"periodId" json:"periodId" validate:"required"`
	ProgramID *string `form:"programId" json:"programId" validate:"omitempty,min=1"`
	Format    string  `form:"format" json:"format" validate:"omitempty,oneof=csv pdf xlsx ics"`
}

// AssignmentEvent is published after a run or undo completes.
type AssignmentEvent struct {
	Type       string  `json:"type"`
	PeriodID   string  `json:"periodId"`
	ProgramID  *string `json:"programId,omitempty"`
	ActorID    string  `json:"actorId"`
	Assigned   int     `json:"assigned"`
	Unassigned int     `json:"unassigned"`
	Removed    int64   `json:"removed"`
}

// Assignment event types.
const (
	EventAssignmentsCompleted = "assignments.completed"
	EventAssignmentsUndone    = "assignments.undone"
)
