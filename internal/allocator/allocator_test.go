package allocator

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/room-assignment-api/internal/models"
)

func room(id string, capacity int) models.Room {
	return models.Room{ID: id, Name: id, Capacity: capacity}
}

func group(id string, students int, slots ...models.MeetingSlot) models.Group {
	for i := range slots {
		slots[i].GroupID = id
		slots[i].Position = i
	}
	return models.Group{ID: id, SubjectID: "subj-" + id, Label: "A", Students: students, Shift: models.ShiftMorning, PeriodID: "p1", Slots: slots}
}

func slot(day, start, end string) models.MeetingSlot {
	return models.MeetingSlot{DayOfWeek: day, StartTime: start, EndTime: end}
}

func roomOf(t *testing.T, a models.Assignment) string {
	t.Helper()
	if a.RoomID == nil {
		return ""
	}
	return *a.RoomID
}

func TestAllocateSequentialMeetingsShareRoom(t *testing.T) {
	result := New(Options{}).Allocate(
		[]models.Group{
			group("g1", 25, slot("MONDAY", "08:00", "10:00")),
			group("g2", 28, slot("MONDAY", "10:00", "12:00")),
		},
		[]models.Room{room("r1", 30)},
	)

	require.Len(t, result.Assignments, 2)
	assert.Empty(t, result.Unassigned)
	for _, a := range result.Assignments {
		assert.Equal(t, "r1", roomOf(t, a))
	}
	assert.Equal(t, 2, result.Stats.Assigned)
}

func TestAllocateLargerGroupWinsContestedSlot(t *testing.T) {
	result := New(Options{}).Allocate(
		[]models.Group{
			group("g25", 25, slot("MONDAY", "08:00", "10:00")),
			group("g28", 28, slot("MONDAY", "08:00", "10:00")),
		},
		[]models.Room{room("r1", 30)},
	)

	require.Len(t, result.Assignments, 2)
	assert.Equal(t, "g28", result.Assignments[0].GroupID)
	assert.Equal(t, "r1", roomOf(t, result.Assignments[0]))
	assert.Equal(t, "g25", result.Assignments[1].GroupID)
	assert.Nil(t, result.Assignments[1].RoomID)
	require.Len(t, result.Unassigned, 1)
	assert.Equal(t, "g25", result.Unassigned[0].GroupID)
}

func TestAllocateOversizedGroupIsNeverPlaced(t *testing.T) {
	result := New(Options{}).Allocate(
		[]models.Group{group("g1", 25, slot("FRIDAY", "08:00", "09:00"), slot("SATURDAY", "08:00", "09:00"))},
		[]models.Room{room("r1", 20)},
	)

	require.Len(t, result.Assignments, 2)
	assert.Len(t, result.Unassigned, 2)
	assert.Equal(t, 0, result.Stats.Assigned)
}

func TestAllocateBestFitPicksTightestRoom(t *testing.T) {
	rooms := []models.Room{room("hall", 200), room("small", 20), room("medium", 40)}
	groups := []models.Group{group("g1", 30, slot("TUESDAY", "08:00", "09:00"))}

	result := New(Options{Policy: PolicyBestFit}).Allocate(groups, rooms)
	assert.Equal(t, "medium", roomOf(t, result.Assignments[0]))

	result = New(Options{Policy: PolicyFirstDescending}).Allocate(groups, rooms)
	assert.Equal(t, "hall", roomOf(t, result.Assignments[0]))
}

func TestAllocateFallsBackToLargerRoomOnConflict(t *testing.T) {
	result := New(Options{}).Allocate(
		[]models.Group{
			group("g1", 30, slot("MONDAY", "08:00", "10:00")),
			group("g2", 25, slot("MONDAY", "09:00", "11:00")),
		},
		[]models.Room{room("big", 60), room("fit", 30)},
	)

	assert.Equal(t, "fit", roomOf(t, result.Assignments[0]))
	assert.Equal(t, "big", roomOf(t, result.Assignments[1]))
}

func TestAllocateZeroStudentGroupStillOccupiesRoom(t *testing.T) {
	result := New(Options{}).Allocate(
		[]models.Group{
			group("empty", 0, slot("MONDAY", "08:00", "09:00")),
			group("other", 0, slot("MONDAY", "08:30", "09:30")),
		},
		[]models.Room{room("r0", 0)},
	)

	assert.Equal(t, "r0", roomOf(t, result.Assignments[0]))
	assert.Nil(t, result.Assignments[1].RoomID)
}

func TestAllocateSkipsMalformedSlotsWithoutBlockingRooms(t *testing.T) {
	result := New(Options{}).Allocate(
		[]models.Group{
			group("broken", 50, slot("MONDAY", "10:00", "08:00"), slot("", "08:00", "09:00"), slot("FUNDAY", "08:00", "09:00")),
			group("ok", 10, slot("MONDAY", "08:00", "09:00")),
		},
		[]models.Room{room("r1", 60)},
	)

	require.Len(t, result.Skipped, 3)
	for _, skipped := range result.Skipped {
		assert.Equal(t, "broken", skipped.GroupID)
		assert.NotEmpty(t, skipped.Reason)
	}
	require.Len(t, result.Assignments, 1)
	assert.Equal(t, "r1", roomOf(t, result.Assignments[0]))
	assert.Equal(t, Stats{Groups: 2, Slots: 4, Rooms: 1, Assigned: 1, Unassigned: 0, Skipped: 3}, result.Stats)
}

func TestAllocateShiftPartition(t *testing.T) {
	morning := group("m", 10, slot("MONDAY", "08:00", "10:00"))
	afternoon := group("a", 10, slot("MONDAY", "09:00", "11:00"))
	afternoon.Shift = models.ShiftAfternoon
	groups := []models.Group{morning, afternoon}
	rooms := []models.Room{room("r1", 20)}

	shared := New(Options{}).Allocate(groups, rooms)
	assert.Len(t, shared.Unassigned, 1)

	partitioned := New(Options{ShiftPartition: true}).Allocate(groups, rooms)
	assert.Empty(t, partitioned.Unassigned)
}

func reservation(roomID, day, start, end string, shift models.Shift) models.Assignment {
	return models.Assignment{RoomID: &roomID, DayOfWeek: day, StartTime: start, EndTime: end, Shift: shift}
}

func TestAllocateRespectsReservedBookings(t *testing.T) {
	reserved := []models.Assignment{
		reservation("r1", "MONDAY", "08:00", "10:00", models.ShiftMorning),
		{DayOfWeek: "MONDAY", StartTime: "08:00", EndTime: "10:00"},
		reservation("r2", "MONDAY", "8am", "10:00", models.ShiftMorning),
	}
	result := New(Options{Reserved: reserved}).Allocate(
		[]models.Group{
			group("g1", 20, slot("MONDAY", "09:00", "11:00")),
			group("g2", 10, slot("MONDAY", "10:00", "11:00")),
		},
		[]models.Room{room("r1", 30), room("r2", 40)},
	)

	require.Len(t, result.Assignments, 2)
	assert.Equal(t, "r2", roomOf(t, result.Assignments[0]))
	assert.Equal(t, "r1", roomOf(t, result.Assignments[1]))
	assert.Empty(t, result.Unassigned)
	assert.Equal(t, 2, result.Stats.Assigned)
}

func TestAllocateReservedBookingsFollowShiftPartition(t *testing.T) {
	reserved := []models.Assignment{reservation("r1", "MONDAY", "08:00", "10:00", models.ShiftAfternoon)}
	groups := []models.Group{group("g1", 20, slot("MONDAY", "08:00", "10:00"))}
	rooms := []models.Room{room("r1", 30)}

	blocked := New(Options{Reserved: reserved}).Allocate(groups, rooms)
	require.Len(t, blocked.Unassigned, 1)

	partitioned := New(Options{Reserved: reserved, ShiftPartition: true}).Allocate(groups, rooms)
	assert.Empty(t, partitioned.Unassigned)
	assert.Equal(t, "r1", roomOf(t, partitioned.Assignments[0]))
}

func TestAllocateTiesKeepInputOrder(t *testing.T) {
	result := New(Options{}).Allocate(
		[]models.Group{
			group("first", 20, slot("MONDAY", "08:00", "09:00")),
			group("second", 20, slot("MONDAY", "08:00", "09:00")),
			group("third", 20, slot("MONDAY", "08:00", "09:00")),
		},
		[]models.Room{room("r-a", 20), room("r-b", 20)},
	)

	ids := []string{result.Assignments[0].GroupID, result.Assignments[1].GroupID, result.Assignments[2].GroupID}
	assert.Equal(t, []string{"first", "second", "third"}, ids)
	assert.Equal(t, "r-a", roomOf(t, result.Assignments[0]))
	assert.Equal(t, "r-b", roomOf(t, result.Assignments[1]))
	assert.Nil(t, result.Assignments[2].RoomID)
}

func TestAllocateNormalisesSlotValues(t *testing.T) {
	result := New(Options{}).Allocate(
		[]models.Group{group("g1", 5, slot("wed", "8:00", "09:30:00"))},
		[]models.Room{room("r1", 10)},
	)

	a := result.Assignments[0]
	assert.Equal(t, "WEDNESDAY", a.DayOfWeek)
	assert.Equal(t, "08:00", a.StartTime)
	assert.Equal(t, "09:30", a.EndTime)
	assert.Equal(t, "p1", a.PeriodID)
	assert.Equal(t, models.ShiftMorning, a.Shift)
}

func TestAllocateDoesNotMutateInputs(t *testing.T) {
	groups := []models.Group{
		group("small", 5, slot("MONDAY", "08:00", "09:00")),
		group("large", 50, slot("MONDAY", "08:00", "09:00")),
	}
	rooms := []models.Room{room("big", 60), room("tiny", 10)}

	New(Options{}).Allocate(groups, rooms)

	assert.Equal(t, "small", groups[0].ID)
	assert.Equal(t, "big", rooms[0].ID)
}

func TestParsePolicy(t *testing.T) {
	policy, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyBestFit, policy)

	policy, err = ParsePolicy(" First_Descending ")
	require.NoError(t, err)
	assert.Equal(t, PolicyFirstDescending, policy)

	_, err = ParsePolicy("random")
	assert.Error(t, err)
}

// randomScenario builds a reproducible data set with plenty of contention.
func randomScenario(seed int64) ([]models.Group, []models.Room) {
	rng := rand.New(rand.NewSource(seed))
	days := []string{"MONDAY", "TUESDAY", "WEDNESDAY"}
	rooms := make([]models.Room, 0, 6)
	for i := 0; i < 6; i++ {
		rooms = append(rooms, room(fmt.Sprintf("r%d", i), 10+rng.Intn(50)))
	}
	groups := make([]models.Group, 0, 40)
	for i := 0; i < 40; i++ {
		slots := make([]models.MeetingSlot, 0, 3)
		for j := 0; j < 1+rng.Intn(3); j++ {
			start := 7 + rng.Intn(8)
			length := 1 + rng.Intn(3)
			slots = append(slots, slot(days[rng.Intn(len(days))], fmt.Sprintf("%02d:%02d", start, 30*rng.Intn(2)), fmt.Sprintf("%02d:00", start+length)))
		}
		g := group(fmt.Sprintf("g%d", i), rng.Intn(60), slots...)
		if rng.Intn(2) == 0 {
			g.Shift = models.ShiftAfternoon
		}
		groups = append(groups, g)
	}
	return groups, rooms
}

func TestAllocateInvariants(t *testing.T) {
	for _, opts := range []Options{
		{Policy: PolicyBestFit},
		{Policy: PolicyFirstDescending},
		{Policy: PolicyBestFit, ShiftPartition: true},
	} {
		for seed := int64(1); seed <= 20; seed++ {
			groups, rooms := randomScenario(seed)
			alloc := New(opts)
			result := alloc.Allocate(groups, rooms)

			capacity := map[string]int{}
			for _, r := range rooms {
				capacity[r.ID] = r.Capacity
			}
			students := map[string]int{}
			shift := map[string]models.Shift{}
			for _, g := range groups {
				students[g.ID] = g.Students
				shift[g.ID] = g.Shift
			}

			for i, a := range result.Assignments {
				if !a.Assigned() {
					continue
				}
				assert.GreaterOrEqual(t, capacity[*a.RoomID], students[a.GroupID], "capacity invariant")
				ai, err := ParseInterval(a.DayOfWeek, a.StartTime, a.EndTime)
				require.NoError(t, err)
				for _, b := range result.Assignments[i+1:] {
					if !b.Assigned() || *b.RoomID != *a.RoomID {
						continue
					}
					if opts.ShiftPartition && shift[a.GroupID] != shift[b.GroupID] {
						continue
					}
					bi, err := ParseInterval(b.DayOfWeek, b.StartTime, b.EndTime)
					require.NoError(t, err)
					assert.False(t, Overlaps(ai, bi), "room %s double booked (seed %d)", *a.RoomID, seed)
				}
			}

			again := alloc.Allocate(groups, rooms)
			assert.Equal(t, result, again, "allocation must be deterministic (seed %d)", seed)
		}
	}
}
