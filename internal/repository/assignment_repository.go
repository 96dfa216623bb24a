package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/room-assignment-api/internal/models"
)

// AssignmentRepository persists the rows produced by allocation passes.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs an AssignmentRepository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

func (r *AssignmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// DeleteBySubjects removes every assignment of the given subjects and reports the row count.
func (r *AssignmentRepository) DeleteBySubjects(ctx context.Context, exec sqlx.ExtContext, period models.Period, subjectIDs []string) (int64, error) {
	if len(subjectIDs) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE subject_id = ANY($1)", period.Table("assignments"))
	res, err := r.exec(exec).ExecContext(ctx, query, pq.Array(subjectIDs))
	if err != nil {
		return 0, fmt.Errorf("delete assignments: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete assignments rows affected: %w", err)
	}
	return affected, nil
}

// InsertBatch writes the rows in order, assigning ids. On failure it returns the rows that
// were written before the error.
func (r *AssignmentRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, period models.Period, rows []models.Assignment) ([]models.Assignment, error) {
	target := r.exec(exec)
	now := time.Now().UTC()
	query := fmt.Sprintf(`INSERT INTO %s (id, group_id, subject_id, room_id, day_of_week, start_time, end_time, shift, created_at) VALUES (:id, :group_id, :subject_id, :room_id, :day_of_week, :start_time, :end_time, :shift, :created_at)`, period.Table("assignments"))

	inserted := make([]models.Assignment, 0, len(rows))
	for _, row := range rows {
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		row.CreatedAt = now
		row.PeriodID = period.ID
		res, err := sqlx.NamedExecContext(ctx, target, query, row)
		if err != nil {
			return inserted, fmt.Errorf("insert assignment for group %s: %w", row.GroupID, err)
		}
		if affected, err := res.RowsAffected(); err == nil && affected == 0 {
			return inserted, fmt.Errorf("insert assignment for group %s: no row written", row.GroupID)
		}
		inserted = append(inserted, row)
	}
	return inserted, nil
}

// ListBySubjects returns the assignments of the given subjects joined with display names.
func (r *AssignmentRepository) ListBySubjects(ctx context.Context, period models.Period, subjectIDs []string) ([]models.AssignmentDetail, error) {
	if len(subjectIDs) == 0 {
		return []models.AssignmentDetail{}, nil
	}
	query := fmt.Sprintf(`SELECT a.id, a.group_id, a.subject_id, a.room_id, a.day_of_week, a.start_time, a.end_time, a.shift, a.created_at, s.name AS subject_name, g.label AS group_label, g.students, i.full_name AS instructor_name, rm.name AS room_name, rm.capacity AS room_capacity FROM %s a JOIN %s s ON s.id = a.subject_id JOIN %s g ON g.id = a.group_id LEFT JOIN instructors i ON i.id = s.instructor_id LEFT JOIN rooms rm ON rm.id = a.room_id WHERE a.subject_id = ANY($1) ORDER BY s.name ASC, g.label ASC, a.created_at ASC, a.id ASC`,
		period.Table("assignments"), period.Table("subjects"), period.Table("groups"))

	var details []models.AssignmentDetail
	if err := r.db.SelectContext(ctx, &details, query, pq.Array(subjectIDs)); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	for i := range details {
		details[i].PeriodID = period.ID
	}
	return details, nil
}

// ListExcludingSubjects returns the roomed assignments of every subject outside subjectIDs.
// Allocation passes use them as bookings they must not overlap.
func (r *AssignmentRepository) ListExcludingSubjects(ctx context.Context, period models.Period, subjectIDs []string) ([]models.Assignment, error) {
	if subjectIDs == nil {
		subjectIDs = []string{}
	}
	query := fmt.Sprintf(`SELECT id, group_id, subject_id, room_id, day_of_week, start_time, end_time, shift, created_at FROM %s WHERE room_id IS NOT NULL AND NOT (subject_id = ANY($1)) ORDER BY room_id ASC, day_of_week ASC, start_time ASC`, period.Table("assignments"))

	var rows []models.Assignment
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(subjectIDs)); err != nil {
		return nil, fmt.Errorf("list reserved assignments: %w", err)
	}
	for i := range rows {
		rows[i].PeriodID = period.ID
	}
	return rows, nil
}
