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

// GroupRepository manages subject groups and their meeting slots.
type GroupRepository struct {
	db *sqlx.DB
}

// NewGroupRepository constructs a GroupRepository.
func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

func (r *GroupRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListBySubjects loads the groups of the given subjects with their slots in position order.
func (r *GroupRepository) ListBySubjects(ctx context.Context, period models.Period, subjectIDs []string) ([]models.Group, error) {
	if len(subjectIDs) == 0 {
		return []models.Group{}, nil
	}

	groupQuery := fmt.Sprintf("SELECT id, subject_id, label, students, shift, created_at FROM %s WHERE subject_id = ANY($1) ORDER BY created_at ASC, id ASC", period.Table("groups"))
	var groups []models.Group
	if err := r.db.SelectContext(ctx, &groups, groupQuery, pq.Array(subjectIDs)); err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	if len(groups) == 0 {
		return groups, nil
	}

	ids := make([]string, 0, len(groups))
	index := make(map[string]int, len(groups))
	for i := range groups {
		groups[i].PeriodID = period.ID
		groups[i].Slots = []models.MeetingSlot{}
		ids = append(ids, groups[i].ID)
		index[groups[i].ID] = i
	}

	slotQuery := fmt.Sprintf("SELECT id, group_id, position, day_of_week, start_time, end_time FROM %s WHERE group_id = ANY($1) ORDER BY group_id ASC, position ASC", period.Table("group_slots"))
	var slots []models.MeetingSlot
	if err := r.db.SelectContext(ctx, &slots, slotQuery, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list group slots: %w", err)
	}
	for _, slot := range slots {
		if i, ok := index[slot.GroupID]; ok {
			groups[i].Slots = append(groups[i].Slots, slot)
		}
	}
	return groups, nil
}

// CreateWithSlots inserts a group and its slots. Slot positions follow slice order.
func (r *GroupRepository) CreateWithSlots(ctx context.Context, exec sqlx.ExtContext, period models.Period, group *models.Group) error {
	target := r.exec(exec)
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	group.CreatedAt = time.Now().UTC()
	group.PeriodID = period.ID

	groupQuery := fmt.Sprintf(`INSERT INTO %s (id, subject_id, label, students, shift, created_at) VALUES (:id, :subject_id, :label, :students, :shift, :created_at)`, period.Table("groups"))
	if _, err := sqlx.NamedExecContext(ctx, target, groupQuery, group); err != nil {
		return fmt.Errorf("create group: %w", err)
	}

	slotQuery := fmt.Sprintf(`INSERT INTO %s (id, group_id, position, day_of_week, start_time, end_time) VALUES (:id, :group_id, :position, :day_of_week, :start_time, :end_time)`, period.Table("group_slots"))
	for i := range group.Slots {
		slot := &group.Slots[i]
		if slot.ID == "" {
			slot.ID = uuid.NewString()
		}
		slot.GroupID = group.ID
		slot.Position = i
		if _, err := sqlx.NamedExecContext(ctx, target, slotQuery, slot); err != nil {
			return fmt.Errorf("create group slot: %w", err)
		}
	}
	return nil
}
