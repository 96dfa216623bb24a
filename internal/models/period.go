package models

// Period is an academic term. Each period keeps its scheduling data in its own set of
// tables named by Suffix.
type Period struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Suffix string `json:"-"`
}

// Table returns the period-specific name of a base table.
func (p Period) Table(base string) string {
	return base + "_" + p.Suffix
}
