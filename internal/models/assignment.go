package models

import "time"

// Assignment binds one meeting slot of a group to a room. A nil RoomID marks a meeting
// the pass could not place.
type Assignment struct {
	ID        string    `db:"id" json:"id"`
	GroupID   string    `db:"group_id" json:"group_id"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	PeriodID  string    `db:"-" json:"period_id"`
	RoomID    *string   `db:"room_id" json:"room_id"`
	DayOfWeek string    `db:"day_of_week" json:"day_of_week"`
	StartTime string    `db:"start_time" json:"start_time"`
	EndTime   string    `db:"end_time" json:"end_time"`
	Shift     Shift     `db:"shift" json:"shift"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Assigned reports whether the meeting received a room.
func (a Assignment) Assigned() bool {
	return a.RoomID != nil && *a.RoomID != ""
}

// AssignmentDetail enriches an assignment with the names used by listings and exports.
type AssignmentDetail struct {
	Assignment
	SubjectName    string  `db:"subject_name" json:"subject_name"`
	GroupLabel     string  `db:"group_label" json:"group_label"`
	Students       int     `db:"students" json:"students"`
	InstructorName *string `db:"instructor_name" json:"instructor_name,omitempty"`
	RoomName       *string `db:"room_name" json:"room_name,omitempty"`
	RoomCapacity   *int    `db:"room_capacity" json:"room_capacity,omitempty"`
}
