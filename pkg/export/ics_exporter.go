package export

import (
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
)

// WeeklyEvent is one recurring meeting on the timetable.
type WeeklyEvent struct {
	UID         string
	Summary     string
	Location    string
	Description string
	Weekday     time.Weekday
	// StartMinute and EndMinute count minutes since midnight.
	StartMinute int
	EndMinute   int
}

var icsWeekdays = map[time.Weekday]string{
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
	time.Sunday:    "SU",
}

// ICSExporter renders weekly events as an iCalendar feed.
type ICSExporter struct {
	location *time.Location
}

// NewICSExporter constructs an exporter placing events in loc (UTC when nil).
func NewICSExporter(loc *time.Location) *ICSExporter {
	if loc == nil {
		loc = time.UTC
	}
	return &ICSExporter{location: loc}
}

// Render emits one weekly recurring VEVENT per event, first occurring on or after from.
func (e *ICSExporter) Render(name string, events []WeeklyEvent, from time.Time) ([]byte, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//room-assignment-api//timetable//EN")
	if name != "" {
		cal.SetXWRCalName(name)
	}

	stamp := time.Now().UTC()
	base := from.In(e.location)
	base = time.Date(base.Year(), base.Month(), base.Day(), 0, 0, 0, 0, e.location)

	for _, ev := range events {
		byDay, ok := icsWeekdays[ev.Weekday]
		if !ok {
			return nil, fmt.Errorf("event %s: invalid weekday %d", ev.UID, ev.Weekday)
		}
		if ev.StartMinute >= ev.EndMinute {
			return nil, fmt.Errorf("event %s: start must precede end", ev.UID)
		}
		offset := (int(ev.Weekday) - int(base.Weekday()) + 7) % 7
		day := base.AddDate(0, 0, offset)

		event := cal.AddEvent(ev.UID)
		event.SetDtStampTime(stamp)
		event.SetStartAt(day.Add(time.Duration(ev.StartMinute) * time.Minute))
		event.SetEndAt(day.Add(time.Duration(ev.EndMinute) * time.Minute))
		event.SetSummary(ev.Summary)
		if ev.Location != "" {
			event.SetLocation(ev.Location)
		}
		if ev.Description != "" {
			event.SetDescription(ev.Description)
		}
		event.SetProperty(ics.ComponentPropertyRrule, "FREQ=WEEKLY;BYDAY="+byDay)
	}

	return []byte(strings.TrimSpace(cal.Serialize()) + "\r\n"), nil
}
