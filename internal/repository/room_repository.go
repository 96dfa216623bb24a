package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/room-assignment-api/internal/models"
)

// RoomRepository reads the shared room inventory.
type RoomRepository struct {
	db *sqlx.DB
}

// NewRoomRepository constructs a RoomRepository.
func NewRoomRepository(db *sqlx.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// List returns rooms matching the filter ordered by name so allocation input is stable.
func (r *RoomRepository) List(ctx context.Context, filter models.RoomFilter) ([]models.Room, error) {
	var conditions []string
	var args []interface{}

	if !filter.AllPrograms {
		if filter.ProgramID != nil {
			conditions = append(conditions, fmt.Sprintf("(program_id IS NULL OR program_id = $%d)", len(args)+1))
			args = append(args, *filter.ProgramID)
		} else {
			conditions = append(conditions, "program_id IS NULL")
		}
	}
	if len(filter.IDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("id = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(filter.IDs))
	}

	query := "SELECT id, name, capacity, program_id, created_at, updated_at FROM rooms"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY name ASC, id ASC"

	var rooms []models.Room
	if err := r.db.SelectContext(ctx, &rooms, query, args...); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}
