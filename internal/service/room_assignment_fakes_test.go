package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/room-assignment-api/internal/allocator"
	"github.com/noah-isme/room-assignment-api/internal/models"
	"github.com/noah-isme/room-assignment-api/pkg/config"
	appErrors "github.com/noah-isme/room-assignment-api/pkg/errors"
)

// memoryDB is an in-memory stand-in for the per-period tables and the shared ones.
type memoryDB struct {
	mu          sync.Mutex
	seq         int
	instructors []models.Instructor
	rooms       []models.Room
	subjects    map[string][]models.Subject
	groups      map[string][]models.Group
	assignments map[string][]models.Assignment

	// insertLimit makes InsertBatch fail after writing that many rows. Negative disables it.
	insertLimit int
	deleteErr   error
	deleteCalls int
}

func newMemoryDB() *memoryDB {
	return &memoryDB{
		subjects:    make(map[string][]models.Subject),
		groups:      make(map[string][]models.Group),
		assignments: make(map[string][]models.Assignment),
		insertLimit: -1,
	}
}

func (db *memoryDB) nextID(prefix string) string {
	db.seq++
	return fmt.Sprintf("%s-%d", prefix, db.seq)
}

type memorySnapshot struct {
	instructors []models.Instructor
	subjects    map[string][]models.Subject
	groups      map[string][]models.Group
	assignments map[string][]models.Assignment
}

func (db *memoryDB) snapshot() memorySnapshot {
	db.mu.Lock()
	defer db.mu.Unlock()
	snap := memorySnapshot{
		instructors: append([]models.Instructor(nil), db.instructors...),
		subjects:    make(map[string][]models.Subject, len(db.subjects)),
		groups:      make(map[string][]models.Group, len(db.groups)),
		assignments: make(map[string][]models.Assignment, len(db.assignments)),
	}
	for k, v := range db.subjects {
		snap.subjects[k] = append([]models.Subject(nil), v...)
	}
	for k, v := range db.groups {
		snap.groups[k] = append([]models.Group(nil), v...)
	}
	for k, v := range db.assignments {
		snap.assignments[k] = append([]models.Assignment(nil), v...)
	}
	return snap
}

func (db *memoryDB) restore(snap memorySnapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.instructors = snap.instructors
	db.subjects = snap.subjects
	db.groups = snap.groups
	db.assignments = snap.assignments
}

func (db *memoryDB) addRoom(id string, capacity int, programID *string) {
	db.rooms = append(db.rooms, models.Room{ID: id, Name: strings.ToUpper(id), Capacity: capacity, ProgramID: programID})
}

func (db *memoryDB) addSubject(period models.Period, subject models.Subject) {
	subject.PeriodID = period.ID
	db.subjects[period.ID] = append(db.subjects[period.ID], subject)
}

func (db *memoryDB) addGroup(period models.Period, group models.Group) {
	group.PeriodID = period.ID
	db.groups[period.ID] = append(db.groups[period.ID], group)
}

func (db *memoryDB) assignmentsOf(period models.Period) []models.Assignment {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]models.Assignment(nil), db.assignments[period.ID]...)
}

func (db *memoryDB) subjectsOf(period models.Period) []models.Subject {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]models.Subject(nil), db.subjects[period.ID]...)
}

func (db *memoryDB) groupsOf(period models.Period) []models.Group {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]models.Group(nil), db.groups[period.ID]...)
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func samePtr(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

// memorySubjects implements the subject reader and writer.
type memorySubjects struct{ db *memoryDB }

func (r memorySubjects) List(_ context.Context, period models.Period, filter models.SubjectFilter) ([]models.Subject, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]models.Subject, 0)
	for _, s := range r.db.subjects[period.ID] {
		if filter.ProgramID != nil && !samePtr(s.ProgramID, filter.ProgramID) {
			continue
		}
		if filter.OwnerID != nil && !samePtr(s.OwnerID, filter.OwnerID) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (r memorySubjects) FindByNameCI(_ context.Context, _ sqlx.ExtContext, period models.Period, name string) ([]models.Subject, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.Subject
	for _, s := range r.db.subjects[period.ID] {
		if strings.EqualFold(strings.TrimSpace(s.Name), strings.TrimSpace(name)) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r memorySubjects) Create(_ context.Context, _ sqlx.ExtContext, period models.Period, subject *models.Subject) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	subject.ID = r.db.nextID("subject")
	subject.PeriodID = period.ID
	r.db.subjects[period.ID] = append(r.db.subjects[period.ID], *subject)
	return nil
}

func (r memorySubjects) Update(_ context.Context, _ sqlx.ExtContext, period models.Period, subject *models.Subject) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for i, s := range r.db.subjects[period.ID] {
		if s.ID == subject.ID {
			r.db.subjects[period.ID][i] = *subject
			return nil
		}
	}
	return errors.New("subject not found")
}

// memoryGroups implements the group reader and writer.
type memoryGroups struct{ db *memoryDB }

func (r memoryGroups) ListBySubjects(_ context.Context, period models.Period, subjectIDs []string) ([]models.Group, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]models.Group, 0)
	for _, g := range r.db.groups[period.ID] {
		if containsID(subjectIDs, g.SubjectID) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r memoryGroups) CreateWithSlots(_ context.Context, _ sqlx.ExtContext, period models.Period, group *models.Group) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	group.ID = r.db.nextID("group")
	group.PeriodID = period.ID
	for i := range group.Slots {
		group.Slots[i].ID = r.db.nextID("slot")
		group.Slots[i].GroupID = group.ID
		group.Slots[i].Position = i
	}
	r.db.groups[period.ID] = append(r.db.groups[period.ID], *group)
	return nil
}

// memoryRooms implements the room reader.
type memoryRooms struct{ db *memoryDB }

func (r memoryRooms) List(_ context.Context, filter models.RoomFilter) ([]models.Room, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]models.Room, 0)
	for _, room := range r.db.rooms {
		if !filter.AllPrograms && room.ProgramID != nil && !samePtr(room.ProgramID, filter.ProgramID) {
			continue
		}
		if len(filter.IDs) > 0 && !containsID(filter.IDs, room.ID) {
			continue
		}
		out = append(out, room)
	}
	return out, nil
}

// memoryInstructors implements the instructor store.
type memoryInstructors struct{ db *memoryDB }

func (r memoryInstructors) FindByNameCI(_ context.Context, _ sqlx.ExtContext, name string) ([]models.Instructor, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.Instructor
	for _, in := range r.db.instructors {
		if strings.EqualFold(strings.TrimSpace(in.FullName), strings.TrimSpace(name)) {
			out = append(out, in)
		}
	}
	return out, nil
}

func (r memoryInstructors) Create(_ context.Context, _ sqlx.ExtContext, instructor *models.Instructor) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	instructor.ID = r.db.nextID("instructor")
	r.db.instructors = append(r.db.instructors, *instructor)
	return nil
}

func (r memoryInstructors) Update(_ context.Context, _ sqlx.ExtContext, instructor *models.Instructor) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for i, in := range r.db.instructors {
		if in.ID == instructor.ID {
			r.db.instructors[i] = *instructor
			return nil
		}
	}
	return errors.New("instructor not found")
}

// memoryAssignments implements the assignment store.
type memoryAssignments struct{ db *memoryDB }

func (r memoryAssignments) DeleteBySubjects(_ context.Context, _ sqlx.ExtContext, period models.Period, subjectIDs []string) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.deleteCalls++
	if r.db.deleteErr != nil {
		return 0, r.db.deleteErr
	}
	kept := make([]models.Assignment, 0, len(r.db.assignments[period.ID]))
	var removed int64
	for _, a := range r.db.assignments[period.ID] {
		if containsID(subjectIDs, a.SubjectID) {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	r.db.assignments[period.ID] = kept
	return removed, nil
}

func (r memoryAssignments) InsertBatch(_ context.Context, _ sqlx.ExtContext, period models.Period, rows []models.Assignment) ([]models.Assignment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	written := make([]models.Assignment, 0, len(rows))
	for _, row := range rows {
		if r.db.insertLimit >= 0 && len(written) >= r.db.insertLimit {
			return written, errors.New("insert assignment: connection reset")
		}
		row.ID = r.db.nextID("assignment")
		row.PeriodID = period.ID
		r.db.assignments[period.ID] = append(r.db.assignments[period.ID], row)
		written = append(written, row)
	}
	return written, nil
}

func (r memoryAssignments) ListBySubjects(_ context.Context, period models.Period, subjectIDs []string) ([]models.AssignmentDetail, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]models.AssignmentDetail, 0)
	for _, a := range r.db.assignments[period.ID] {
		if !containsID(subjectIDs, a.SubjectID) {
			continue
		}
		detail := models.AssignmentDetail{Assignment: a}
		for _, s := range r.db.subjects[period.ID] {
			if s.ID == a.SubjectID {
				detail.SubjectName = s.Name
			}
		}
		for _, g := range r.db.groups[period.ID] {
			if g.ID == a.GroupID {
				detail.GroupLabel = g.Label
				detail.Students = g.Students
			}
		}
		for _, room := range r.db.rooms {
			if a.RoomID != nil && room.ID == *a.RoomID {
				name, capacity := room.Name, room.Capacity
				detail.RoomName = &name
				detail.RoomCapacity = &capacity
			}
		}
		out = append(out, detail)
	}
	return out, nil
}

// memoryTx rolls every table back when fn fails.
type memoryTx struct {
	db    *memoryDB
	calls int
}

func (t *memoryTx) WithTx(_ context.Context, fn func(exec sqlx.ExtContext) error) error {
	t.calls++
	snap := t.db.snapshot()
	if err := fn(nil); err != nil {
		t.db.restore(snap)
		return err
	}
	return nil
}

// memoryCacheRepo keeps JSON payloads in a map and supports glob invalidation.
type memoryCacheRepo struct {
	mu      sync.Mutex
	entries map[string][]byte
	gets    int
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: make(map[string][]byte)}
}

func (c *memoryCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memoryCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.entries[key] = raw
	c.mu.Unlock()
	return nil
}

func (c *memoryCacheRepo) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

func (c *memoryCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if ok, _ := path.Match(pattern, key); ok {
			delete(c.entries, key)
		}
	}
	return nil
}

func (c *memoryCacheRepo) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// recordingPublisher captures published event types.
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, _ interface{}) error {
	p.mu.Lock()
	p.events = append(p.events, eventType)
	p.mu.Unlock()
	return nil
}

var testPeriod = models.Period{ID: "2025-1", Label: "Semester 2025-1", Suffix: "s2025_1"}

func testPeriods() *PeriodService {
	return NewPeriodService([]config.PeriodConfig{
		{ID: testPeriod.ID, Label: testPeriod.Label, Suffix: testPeriod.Suffix},
		{ID: "2025-2", Label: "Semester 2025-2", Suffix: "s2025_2"},
	})
}

func strPtr(v string) *string { return &v }

func slot(day, start, end string) models.MeetingSlot {
	return models.MeetingSlot{DayOfWeek: day, StartTime: start, EndTime: end}
}

func allocatorStats(assigned, unassigned, skipped int) allocator.Stats {
	return allocator.Stats{Assigned: assigned, Unassigned: unassigned, Skipped: skipped}
}

func (r memoryAssignments) ListExcludingSubjects(_ context.Context, period models.Period, subjectIDs []string) ([]models.Assignment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]models.Assignment, 0)
	for _, a := range r.db.assignments[period.ID] {
		if a.RoomID == nil || containsID(subjectIDs, a.SubjectID) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
