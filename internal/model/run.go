package model

import "time"

// RunKind distinguishes bulk audit runs from browser recovery runs.
type RunKind string

const (
	RunKindAudit   RunKind = "audit"
	RunKindRecover RunKind = "recover"
)

// RunStatus represents the current state of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusComplete  RunStatus = "complete"
	RunStatusCancelled RunStatus = "cancelled"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one invocation of the audit or recovery pass against a spreadsheet.
type Run struct {
	ID          string      `json:"id" yaml:"id"`
	Kind        RunKind     `json:"kind" yaml:"kind"`
	Spreadsheet string      `json:"spreadsheet" yaml:"spreadsheet"`
	Status      RunStatus   `json:"status" yaml:"status"`
	Summary     *RunSummary `json:"summary,omitempty" yaml:"summary,omitempty"`
	Error       string      `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt   time.Time   `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" yaml:"updated_at"`
}

// RunSummary is the end-of-run report.
type RunSummary struct {
	Total      int            `json:"total" yaml:"total"`
	Processed  int            `json:"processed" yaml:"processed"`
	Skipped    int            `json:"skipped" yaml:"skipped"`
	BySource   map[Source]int `json:"by_source" yaml:"by_source"`
	DurationMs int64          `json:"duration_ms" yaml:"duration_ms"`
	// ResumeRow is the first row not written when a run stopped early.
	ResumeRow int `json:"resume_row,omitempty" yaml:"resume_row,omitempty"`
}

// NewRunSummary returns a summary with an initialized source map.
func NewRunSummary() *RunSummary {
	return &RunSummary{BySource: make(map[Source]int)}
}

// Record counts one processed row.
func (s *RunSummary) Record(src Source) {
	if s.BySource == nil {
		s.BySource = make(map[Source]int)
	}
	s.BySource[src]++
	s.Processed++
}

// Errors returns the number of rows tagged Error.
func (s *RunSummary) Errors() int {
	return s.BySource[SourceError]
}

// ErrorRate returns the share of processed rows tagged Error.
func (s *RunSummary) ErrorRate() float64 {
	if s.Processed == 0 {
		return 0
	}
	return float64(s.Errors()) / float64(s.Processed)
}

// RowOutcome is the ledger record of one written row.
type RowOutcome struct {
	RunID             string     `json:"run_id" yaml:"run_id"`
	Row               int        `json:"row" yaml:"row"`
	URL               string     `json:"url" yaml:"url"`
	Source            Source     `json:"source" yaml:"source"`
	MobileAssessment  Assessment `json:"mobile_assessment" yaml:"mobile_assessment"`
	DesktopAssessment Assessment `json:"desktop_assessment" yaml:"desktop_assessment"`
	Error             string     `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt         time.Time  `json:"created_at" yaml:"created_at"`
}

// OutcomeFor builds the ledger record for a written row.
func OutcomeFor(runID string, row AuditRow, src Source) RowOutcome {
	return RowOutcome{
		RunID:             runID,
		Row:               row.Task.Row,
		URL:               row.Task.URL,
		Source:            src,
		MobileAssessment:  row.Mobile.Assessment,
		DesktopAssessment: row.Desktop.Assessment,
		Error:             row.Err(),
	}
}
