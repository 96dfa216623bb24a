// Package allocator matches weekly class meetings to rooms with a single greedy pass.
package allocator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/room-assignment-api/internal/models"
)

// Policy selects which feasible room a meeting receives.
type Policy string

const (
	// PolicyBestFit picks the smallest feasible room.
	PolicyBestFit Policy = "best_fit"
	// PolicyFirstDescending scans rooms from largest to smallest and takes the first feasible one.
	PolicyFirstDescending Policy = "first_descending"
)

// ParsePolicy normalises a policy name. Empty input yields PolicyBestFit.
func ParsePolicy(raw string) (Policy, error) {
	switch policy := Policy(strings.ToLower(strings.TrimSpace(raw))); policy {
	case "":
		return PolicyBestFit, nil
	case PolicyBestFit, PolicyFirstDescending:
		return policy, nil
	default:
		return "", fmt.Errorf("unsupported allocation policy %q", raw)
	}
}

// Options tunes a pass.
type Options struct {
	Policy Policy
	// ShiftPartition limits conflict checks to bookings of the same shift.
	ShiftPartition bool
	// Reserved holds room bookings made outside this pass. They block their room for the
	// interval but are never emitted. Entries without a room or with unreadable times are ignored.
	Reserved []models.Assignment
}

// SkippedSlot records a meeting slot that could not be read and took no part in the pass.
type SkippedSlot struct {
	GroupID   string `json:"group_id"`
	SubjectID string `json:"subject_id"`
	SlotID    string `json:"slot_id,omitempty"`
	Position  int    `json:"position"`
	DayOfWeek string `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Reason    string `json:"reason"`
}

// Stats summarises a pass.
type Stats struct {
	Groups     int `json:"groups"`
	Slots      int `json:"slots"`
	Rooms      int `json:"rooms"`
	Assigned   int `json:"assigned"`
	Unassigned int `json:"unassigned"`
	Skipped    int `json:"skipped"`
}

// Result is the outcome of one pass. Assignments holds every emitted record, including the
// ones without a room, which are repeated in Unassigned.
type Result struct {
	Assignments []models.Assignment
	Unassigned  []models.Assignment
	Skipped     []SkippedSlot
	Stats       Stats
}

// Allocator runs allocation passes with fixed options. It holds no state between calls.
type Allocator struct {
	opts Options
}

// New constructs an Allocator, defaulting to PolicyBestFit.
func New(opts Options) *Allocator {
	if opts.Policy == "" {
		opts.Policy = PolicyBestFit
	}
	return &Allocator{opts: opts}
}

// Policy reports the configured policy.
func (a *Allocator) Policy() Policy {
	return a.opts.Policy
}

type booking struct {
	interval Interval
	shift    models.Shift
}

// ledger holds the bookings made so far in one pass, keyed by room id.
type ledger struct {
	byRoom         map[string][]booking
	shiftPartition bool
}

func newLedger(shiftPartition bool) *ledger {
	return &ledger{byRoom: make(map[string][]booking), shiftPartition: shiftPartition}
}

func (l *ledger) free(roomID string, candidate booking) bool {
	for _, existing := range l.byRoom[roomID] {
		if l.shiftPartition && existing.shift != candidate.shift {
			continue
		}
		if Overlaps(existing.interval, candidate.interval) {
			return false
		}
	}
	return true
}

func (l *ledger) reserve(roomID string, b booking) {
	l.byRoom[roomID] = append(l.byRoom[roomID], b)
}

func (l *ledger) seed(existing []models.Assignment) {
	for _, a := range existing {
		if a.RoomID == nil || *a.RoomID == "" {
			continue
		}
		interval, err := ParseInterval(a.DayOfWeek, a.StartTime, a.EndTime)
		if err != nil {
			continue
		}
		l.reserve(*a.RoomID, booking{interval: interval, shift: a.Shift})
	}
}

// Allocate assigns a room to every readable meeting slot of the given groups. Inputs are not
// modified and identical inputs always produce identical output.
func (a *Allocator) Allocate(groups []models.Group, rooms []models.Room) Result {
	ordered := make([]models.Group, len(groups))
	copy(ordered, groups)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Students > ordered[j].Students
	})

	candidates := a.orderRooms(rooms)
	bookings := newLedger(a.opts.ShiftPartition)
	bookings.seed(a.opts.Reserved)

	result := Result{
		Assignments: make([]models.Assignment, 0),
		Unassigned:  make([]models.Assignment, 0),
		Skipped:     make([]SkippedSlot, 0),
	}
	result.Stats.Groups = len(ordered)
	result.Stats.Rooms = len(candidates)

	for _, group := range ordered {
		for _, slot := range group.Slots {
			result.Stats.Slots++
			interval, err := ParseInterval(slot.DayOfWeek, slot.StartTime, slot.EndTime)
			if err != nil {
				result.Skipped = append(result.Skipped, SkippedSlot{
					GroupID:   group.ID,
					SubjectID: group.SubjectID,
					SlotID:    slot.ID,
					Position:  slot.Position,
					DayOfWeek: slot.DayOfWeek,
					StartTime: slot.StartTime,
					EndTime:   slot.EndTime,
					Reason:    err.Error(),
				})
				continue
			}

			candidate := booking{interval: interval, shift: group.Shift}
			assignment := models.Assignment{
				GroupID:   group.ID,
				SubjectID: group.SubjectID,
				PeriodID:  group.PeriodID,
				DayOfWeek: DayName(interval.Day),
				StartTime: interval.Start.String(),
				EndTime:   interval.End.String(),
				Shift:     group.Shift,
			}

			for _, room := range candidates {
				if room.Capacity < group.Students {
					continue
				}
				if !bookings.free(room.ID, candidate) {
					continue
				}
				roomID := room.ID
				assignment.RoomID = &roomID
				bookings.reserve(room.ID, candidate)
				break
			}

			result.Assignments = append(result.Assignments, assignment)
			if assignment.RoomID == nil {
				result.Unassigned = append(result.Unassigned, assignment)
			}
		}
	}

	result.Stats.Skipped = len(result.Skipped)
	result.Stats.Unassigned = len(result.Unassigned)
	result.Stats.Assigned = len(result.Assignments) - len(result.Unassigned)
	return result
}

// orderRooms sorts a copy of rooms once so that the first feasible room in scan order is the
// one the policy wants. Duplicate ids keep their first occurrence.
func (a *Allocator) orderRooms(rooms []models.Room) []models.Room {
	seen := make(map[string]bool, len(rooms))
	ordered := make([]models.Room, 0, len(rooms))
	for _, room := range rooms {
		if room.ID == "" || seen[room.ID] {
			continue
		}
		seen[room.ID] = true
		ordered = append(ordered, room)
	}
	switch a.opts.Policy {
	case PolicyFirstDescending:
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].Capacity > ordered[j].Capacity
		})
	default:
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].Capacity < ordered[j].Capacity
		})
	}
	return ordered
}
