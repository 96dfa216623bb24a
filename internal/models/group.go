package models

import (
	"strings"
	"time"
)

// Shift is the coarse time-of-day partition a group belongs to.
type Shift string

const (
	ShiftMorning   Shift = "MORNING"
	ShiftAfternoon Shift = "AFTERNOON"
)

// ParseShift normalises a shift label, reporting whether it is known.
func ParseShift(raw string) (Shift, bool) {
	switch shift := Shift(strings.ToUpper(strings.TrimSpace(raw))); shift {
	case ShiftMorning, ShiftAfternoon:
		return shift, true
	default:
		return "", false
	}
}

// Group is one section of a subject with its own enrolment and weekly meetings.
type Group struct {
	ID        string        `db:"id" json:"id"`
	SubjectID string        `db:"subject_id" json:"subject_id"`
	Label     string        `db:"label" json:"label"`
	Students  int           `db:"students" json:"students"`
	Shift     Shift         `db:"shift" json:"shift"`
	PeriodID  string        `db:"-" json:"period_id"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	Slots     []MeetingSlot `db:"-" json:"slots"`
}

// MeetingSlot is one weekly occurrence of a group. Values are stored as entered and
// validated when an allocation pass reads them.
type MeetingSlot struct {
	ID        string `db:"id" json:"id"`
	GroupID   string `db:"group_id" json:"group_id"`
	Position  int    `db:"position" json:"position"`
	DayOfWeek string `db:"day_of_week" json:"day_of_week"`
	StartTime string `db:"start_time" json:"start_time"`
	EndTime   string `db:"end_time" json:"end_time"`
}
