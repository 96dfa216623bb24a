package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/room-assignment-api/internal/models"
)

// InstructorRepository manages persistence for instructors.
type InstructorRepository struct {
	db *sqlx.DB
}

// NewInstructorRepository constructs an InstructorRepository.
func NewInstructorRepository(db *sqlx.DB) *InstructorRepository {
	return &InstructorRepository{db: db}
}

func (r *InstructorRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByNameCI returns every instructor whose name equals the given one ignoring case.
func (r *InstructorRepository) FindByNameCI(ctx context.Context, exec sqlx.ExtContext, name string) ([]models.Instructor, error) {
	const query = `SELECT id, full_name, email, created_at, updated_at FROM instructors WHERE LOWER(full_name) = LOWER($1) ORDER BY created_at ASC, id ASC`
	var instructors []models.Instructor
	if err := sqlx.SelectContext(ctx, r.exec(exec), &instructors, query, name); err != nil {
		return nil, fmt.Errorf("find instructors by name: %w", err)
	}
	return instructors, nil
}

// Create inserts a new instructor.
func (r *InstructorRepository) Create(ctx context.Context, exec sqlx.ExtContext, instructor *models.Instructor) error {
	if instructor.ID == "" {
		instructor.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	instructor.CreatedAt = now
	instructor.UpdatedAt = now

	const query = `INSERT INTO instructors (id, full_name, email, created_at, updated_at) VALUES (:id, :full_name, :email, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, instructor); err != nil {
		return fmt.Errorf("create instructor: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of an instructor.
func (r *InstructorRepository) Update(ctx context.Context, exec sqlx.ExtContext, instructor *models.Instructor) error {
	instructor.UpdatedAt = time.Now().UTC()
	const query = `UPDATE instructors SET full_name = :full_name, email = :email, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, instructor); err != nil {
		return fmt.Errorf("update instructor: %w", err)
	}
	return nil
}
