package models

import "time"

// Subject represents a course offered in one academic period.
type Subject struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	InstructorID *string   `db:"instructor_id" json:"instructor_id,omitempty"`
	ProgramID    *string   `db:"program_id" json:"program_id,omitempty"`
	OwnerID      *string   `db:"owner_id" json:"owner_id,omitempty"`
	PeriodID     string    `db:"-" json:"period_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// SubjectFilter narrows subjects by program or owner. A nil field is not filtered.
type SubjectFilter struct {
	ProgramID *string
	OwnerID   *string
}
