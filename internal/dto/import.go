package dto

// Duplicate resolution actions chosen by the caller.
const (
	DecisionReplace  = "replace"
	DecisionSkip     = "skip"
	DecisionKeepBoth = "keep_both"
)

// Duplicate kinds.
const (
	DuplicateInstructor = "instructor"
	DuplicateSubject    = "subject"
)

// ImportSlot is one weekly meeting of an imported group.
type ImportSlot struct {
	DayOfWeek string `json:"dayOfWeek"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// ImportItem is one extracted (subject, instructor, group) tuple.
type ImportItem struct {
	SubjectName    string       `json:"subjectName"`
	InstructorName string       `json:"instructorName"`
	GroupLabel     string       `json:"groupLabel"`
	Shift          string       `json:"shift"`
	Students       int          `json:"students"`
	ProgramID      *string      `json:"programId,omitempty"`
	Slots          []ImportSlot `json:"slots"`
}

// ImportPreviewRequest submits a batch for validation and duplicate detection.
type ImportPreviewRequest struct {
	PeriodID string       `json:"periodId" validate:"required"`
	Items    []ImportItem `json:"items" validate:"required,min=1"`
}

// DuplicateDecision resolves one detected duplicate. Index points at the batch item.
type DuplicateDecision struct {
	Index  int    `json:"index" validate:"min=0"`
	Kind   string `json:"kind" validate:"required,oneof=instructor subject"`
	Action string `json:"action" validate:"required,oneof=replace skip keep_both"`
}

// ImportConfirmRequest persists a previewed batch or an inline one.
type ImportConfirmRequest struct {
	PeriodID  string              `json:"periodId" validate:"required"`
	BatchID   string              `json:"batchId" validate:"required_without=Items"`
	Items     []ImportItem        `json:"items" validate:"required_without=BatchID"`
	Decisions []DuplicateDecision `json:"decisions" validate:"omitempty,dive"`
}

// ImportDuplicate describes an import item whose name matches an existing record.
type ImportDuplicate struct {
	Index      int      `json:"index"`
	Kind       string   `json:"kind"`
	Name       string   `json:"name"`
	ExistingID string   `json:"existingId,omitempty"`
	Candidates []string `json:"candidates,omitempty"`
}

// ImportRejection explains why a tuple was not accepted.
type ImportRejection struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// ImportPreviewResponse lists what confirmation will need to resolve.
type ImportPreviewResponse struct {
	BatchID    string            `json:"batchId"`
	PeriodID   string            `json:"periodId"`
	Accepted   int               `json:"accepted"`
	Duplicates []ImportDuplicate `json:"duplicates"`
	Conflicts  []ImportDuplicate `json:"conflicts"`
	Rejected   []ImportRejection `json:"rejected"`
	ExpiresIn  int64             `json:"expiresInSeconds"`
}

// ResolvedImportItem maps a batch index onto the identities it ended up with.
type ResolvedImportItem struct {
	Index        int    `json:"index"`
	InstructorID string `json:"instructorId"`
	SubjectID    string `json:"subjectId"`
	GroupID      string `json:"groupId"`
}

// ImportConfirmResponse summarises the rows written by a confirmation.
type ImportConfirmResponse struct {
	PeriodID            string               `json:"periodId"`
	SubjectsCreated     int                  `json:"subjectsCreated"`
	SubjectsReplaced    int                  `json:"subjectsReplaced"`
	InstructorsCreated  int                  `json:"instructorsCreated"`
	InstructorsReplaced int                  `json:"instructorsReplaced"`
	GroupsCreated       int                  `json:"groupsCreated"`
	Resolved            []ResolvedImportItem `json:"resolved"`
	Rejected            []ImportRejection    `json:"rejected"`
}

// ImportBatch is the stored form of a previewed batch.
type ImportBatch struct {
	ID       string       `json:"id"`
	PeriodID string       `json:"periodId"`
	Items    []ImportItem `json:"items"`
}
