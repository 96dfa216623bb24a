package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/room-assignment-api/internal/models"
)

// SubjectRepository manages the subjects of each period.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository constructs a SubjectRepository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

func (r *SubjectRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const subjectColumns = "id, name, instructor_id, program_id, owner_id, created_at, updated_at"

// List returns the subjects of a period matching the filter.
func (r *SubjectRepository) List(ctx context.Context, period models.Period, filter models.SubjectFilter) ([]models.Subject, error) {
	var conditions []string
	var args []interface{}

	if filter.ProgramID != nil {
		conditions = append(conditions, fmt.Sprintf("program_id = $%d", len(args)+1))
		args = append(args, *filter.ProgramID)
	}
	if filter.OwnerID != nil {
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)+1))
		args = append(args, *filter.OwnerID)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", subjectColumns, period.Table("subjects"))
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY name ASC, id ASC"

	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, args...); err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	for i := range subjects {
		subjects[i].PeriodID = period.ID
	}
	return subjects, nil
}

// FindByNameCI returns every subject of the period whose name equals the given one ignoring case.
func (r *SubjectRepository) FindByNameCI(ctx context.Context, exec sqlx.ExtContext, period models.Period, name string) ([]models.Subject, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE LOWER(name) = LOWER($1) ORDER BY created_at ASC, id ASC", subjectColumns, period.Table("subjects"))
	var subjects []models.Subject
	if err := sqlx.SelectContext(ctx, r.exec(exec), &subjects, query, name); err != nil {
		return nil, fmt.Errorf("find subjects by name: %w", err)
	}
	for i := range subjects {
		subjects[i].PeriodID = period.ID
	}
	return subjects, nil
}

// Create inserts a subject into the period.
func (r *SubjectRepository) Create(ctx context.Context, exec sqlx.ExtContext, period models.Period, subject *models.Subject) error {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	subject.CreatedAt = now
	subject.UpdatedAt = now
	subject.PeriodID = period.ID

	query := fmt.Sprintf(`INSERT INTO %s (id, name, instructor_id, program_id, owner_id, created_at, updated_at) VALUES (:id, :name, :instructor_id, :program_id, :owner_id, :created_at, :updated_at)`, period.Table("subjects"))
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, subject); err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of a subject, keeping its identity.
func (r *SubjectRepository) Update(ctx context.Context, exec sqlx.ExtContext, period models.Period, subject *models.Subject) error {
	subject.UpdatedAt = time.Now().UTC()
	subject.PeriodID = period.ID
	query := fmt.Sprintf(`UPDATE %s SET name = :name, instructor_id = :instructor_id, program_id = :program_id, owner_id = :owner_id, updated_at = :updated_at WHERE id = :id`, period.Table("subjects"))
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, subject); err != nil {
		return fmt.Errorf("update subject: %w", err)
	}
	return nil
}
