package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/room-assignment-api/internal/allocator"
	"github.com/noah-isme/room-assignment-api/internal/dto"
	"github.com/noah-isme/room-assignment-api/internal/models"
	appErrors "github.com/noah-isme/room-assignment-api/pkg/errors"
	"github.com/noah-isme/room-assignment-api/pkg/export"
)

// Export formats.
const (
	ExportFormatCSV  = "csv"
	ExportFormatPDF  = "pdf"
	ExportFormatXLSX = "xlsx"
	ExportFormatICS  = "ics"
)

var exportContentTypes = map[string]string{
	ExportFormatCSV:  "text/csv",
	ExportFormatPDF:  "application/pdf",
	ExportFormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	ExportFormatICS:  "text/calendar; charset=utf-8",
}

var exportHeaders = []string{"Day", "Start", "End", "Subject", "Group", "Instructor", "Students", "Room", "Capacity", "Shift"}

type assignmentLister interface {
	List(ctx context.Context, caller models.Caller, query dto.AssignmentQuery) ([]models.AssignmentDetail, error)
}

type tableRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type calendarRenderer interface {
	Render(name string, events []export.WeeklyEvent, from time.Time) ([]byte, error)
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders the assignment listing of a scope into downloadable files.
type ExportService struct {
	assignments assignmentLister
	periods     periodResolver
	tables      map[string]tableRenderer
	calendar    calendarRenderer
	logger      *zap.Logger
	now         func() time.Time
}

// NewExportService constructs an ExportService with the default renderers.
func NewExportService(assignments assignmentLister, periods periodResolver, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		assignments: assignments,
		periods:     periods,
		tables: map[string]tableRenderer{
			ExportFormatCSV:  export.NewCSVExporter(),
			ExportFormatPDF:  export.NewPDFExporter(),
			ExportFormatXLSX: export.NewXLSXExporter(),
		},
		calendar: export.NewICSExporter(time.UTC),
		logger:   logger,
		now:      time.Now,
	}
}

// Export renders the caller's visible assignments for the period. Format defaults to csv.
func (s *ExportService) Export(ctx context.Context, caller models.Caller, query dto.AssignmentQuery) (*ExportFile, error) {
	format := strings.ToLower(strings.TrimSpace(query.Format))
	if format == "" {
		format = ExportFormatCSV
	}
	contentType, ok := exportContentTypes[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", query.Format))
	}
	query.Format = format

	period, err := s.periods.Resolve(query.PeriodID)
	if err != nil {
		return nil, err
	}
	rows, err := s.assignments.List(ctx, caller, query)
	if err != nil {
		return nil, err
	}

	title := fmt.Sprintf("Room Assignments %s", period.Label)
	var payload []byte
	if format == ExportFormatICS {
		payload, err = s.calendar.Render(title, buildWeeklyEvents(period, rows), s.now())
	} else {
		payload, err = s.tables[format].Render(buildAssignmentDataset(title, rows))
	}
	if err != nil {
		s.logger.Error("failed to render assignment export", zap.String("period", period.ID), zap.String("format", format), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	return &ExportFile{
		Filename:    s.buildFilename(period, query.ProgramID, format),
		ContentType: contentType,
		Data:        payload,
	}, nil
}

func (s *ExportService) buildFilename(period models.Period, programID *string, format string) string {
	parts := []string{"assignments", sanitizeFilename(period.ID)}
	if programID != nil && *programID != "" {
		parts = append(parts, sanitizeFilename(*programID))
	}
	parts = append(parts, s.now().UTC().Format("20060102_150405"))
	return strings.Join(parts, "_") + "." + format
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func buildAssignmentDataset(title string, rows []models.AssignmentDetail) export.Dataset {
	data := export.Dataset{Title: title, Headers: exportHeaders, Rows: make([]map[string]string, 0, len(rows))}
	for _, row := range rows {
		room := "UNASSIGNED"
		if row.RoomName != nil {
			room = *row.RoomName
		}
		capacity := ""
		if row.RoomCapacity != nil {
			capacity = strconv.Itoa(*row.RoomCapacity)
		}
		data.Rows = append(data.Rows, map[string]string{
			"Day":        row.DayOfWeek,
			"Start":      row.StartTime,
			"End":        row.EndTime,
			"Subject":    row.SubjectName,
			"Group":      row.GroupLabel,
			"Instructor": derefString(row.InstructorName),
			"Students":   strconv.Itoa(row.Students),
			"Room":       room,
			"Capacity":   capacity,
			"Shift":      string(row.Shift),
		})
	}
	return data
}

// buildWeeklyEvents maps placed meetings to calendar events. Meetings without a room are left out.
func buildWeeklyEvents(period models.Period, rows []models.AssignmentDetail) []export.WeeklyEvent {
	events := make([]export.WeeklyEvent, 0, len(rows))
	for _, row := range rows {
		if !row.Assigned() {
			continue
		}
		slot, err := allocator.ParseInterval(row.DayOfWeek, row.StartTime, row.EndTime)
		if err != nil {
			continue
		}
		description := fmt.Sprintf("Group %s, %d students", row.GroupLabel, row.Students)
		if row.InstructorName != nil {
			description += ", instructor " + *row.InstructorName
		}
		events = append(events, export.WeeklyEvent{
			UID:         fmt.Sprintf("%s@%s", row.ID, period.ID),
			Summary:     fmt.Sprintf("%s (%s)", row.SubjectName, row.GroupLabel),
			Location:    derefString(row.RoomName),
			Description: description,
			Weekday:     time.Weekday(slot.Day % 7),
			StartMinute: int(slot.Start),
			EndMinute:   int(slot.End),
		})
	}
	return events
}

func derefString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
