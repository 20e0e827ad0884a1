// Package store keeps a ledger of audit and recovery runs and the outcome
// of every row they wrote.
package store

import (
	"context"
	"time"

	"github.com/sells-group/vitals-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status      model.RunStatus `json:"status,omitempty"`
	Kind        model.RunKind   `json:"kind,omitempty"`
	Spreadsheet string          `json:"spreadsheet,omitempty"`
	Since       time.Time       `json:"since,omitempty"`
	Limit       int             `json:"limit,omitempty"`
	Offset      int             `json:"offset,omitempty"`
}

// OutcomeFilter narrows ListOutcomes.
type OutcomeFilter struct {
	Source model.Source `json:"source,omitempty"`
	Limit  int          `json:"limit,omitempty"`
}

// Store defines the persistence interface for the run ledger.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, kind model.RunKind, spreadsheet string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunResult(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Row outcomes
	SaveOutcomes(ctx context.Context, outcomes []model.RowOutcome) error
	ListOutcomes(ctx context.Context, runID string, filter OutcomeFilter) ([]model.RowOutcome, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100
