package allocator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedSlot is returned when a meeting slot cannot be read as a valid interval.
var ErrMalformedSlot = errors.New("malformed meeting slot")

// Clock is a wall-clock time expressed in minutes since midnight.
type Clock int

// String renders the clock as zero padded HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// ParseClock reads H:MM, HH:MM or HH:MM:SS. Seconds must be zero-valued or valid and are dropped.
func ParseClock(raw string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: time %q", ErrMalformedSlot, raw)
	}
	hour, err := parseClockPart(parts[0], 1, 23)
	if err != nil {
		return 0, fmt.Errorf("%w: time %q", ErrMalformedSlot, raw)
	}
	minute, err := parseClockPart(parts[1], 2, 59)
	if err != nil {
		return 0, fmt.Errorf("%w: time %q", ErrMalformedSlot, raw)
	}
	if len(parts) == 3 {
		if _, err := parseClockPart(parts[2], 2, 59); err != nil {
			return 0, fmt.Errorf("%w: time %q", ErrMalformedSlot, raw)
		}
	}
	return Clock(hour*60 + minute), nil
}

func parseClockPart(raw string, minDigits, max int) (int, error) {
	if len(raw) < minDigits || len(raw) > 2 {
		return 0, fmt.Errorf("invalid clock component %q", raw)
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 || value > max {
		return 0, fmt.Errorf("invalid clock component %q", raw)
	}
	return value, nil
}

var dayIndexMap = map[int]string{
	1: "MONDAY",
	2: "TUESDAY",
	3: "WEDNESDAY",
	4: "THURSDAY",
	5: "FRIDAY",
	6: "SATURDAY",
	7: "SUNDAY",
}

var dayAliases = map[string]int{
	"MONDAY": 1, "MON": 1,
	"TUESDAY": 2, "TUE": 2, "TUES": 2,
	"WEDNESDAY": 3, "WED": 3,
	"THURSDAY": 4, "THU": 4, "THURS": 4,
	"FRIDAY": 5, "FRI": 5,
	"SATURDAY": 6, "SAT": 6,
	"SUNDAY": 7, "SUN": 7,
}

// ParseDay returns the ISO weekday (Monday = 1) of an English day name, its short form or
// its number.
func ParseDay(raw string) (int, error) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	if day, ok := dayAliases[value]; ok {
		return day, nil
	}
	if day, err := strconv.Atoi(value); err == nil {
		if _, ok := dayIndexMap[day]; ok {
			return day, nil
		}
	}
	return 0, fmt.Errorf("%w: day %q", ErrMalformedSlot, raw)
}

// DayName returns the canonical upper-case name of an ISO weekday.
func DayName(day int) string {
	return dayIndexMap[day]
}

// Interval is a half-open [Start, End) window on one weekday.
type Interval struct {
	Day   int
	Start Clock
	End   Clock
}

// ParseInterval validates a raw (day, start, end) tuple.
func ParseInterval(day, start, end string) (Interval, error) {
	if strings.TrimSpace(day) == "" || strings.TrimSpace(start) == "" || strings.TrimSpace(end) == "" {
		return Interval{}, fmt.Errorf("%w: day, start and end are required", ErrMalformedSlot)
	}
	d, err := ParseDay(day)
	if err != nil {
		return Interval{}, err
	}
	s, err := ParseClock(start)
	if err != nil {
		return Interval{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Interval{}, err
	}
	if s >= e {
		return Interval{}, fmt.Errorf("%w: start %s is not before end %s", ErrMalformedSlot, s, e)
	}
	return Interval{Day: d, Start: s, End: e}, nil
}

// Overlaps reports whether both intervals share the day and any minute.
func Overlaps(a, b Interval) bool {
	return a.Day == b.Day && a.Start < b.End && b.Start < a.End
}
