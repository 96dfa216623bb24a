package models

import "time"

// Room is a physical teaching space. Rooms without a program are shared by every program.
type Room struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Capacity  int       `db:"capacity" json:"capacity"`
	ProgramID *string   `db:"program_id" json:"program_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// RoomFilter narrows the rooms offered to an allocation pass.
type RoomFilter struct {
	// AllPrograms skips program filtering entirely.
	AllPrograms bool
	// ProgramID adds the program's own rooms to the shared ones.
	ProgramID *string
	IDs       []string
}
