package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/vitals-cli/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndGetRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, model.RunKindAudit, "sheet-123")
		require.NoError(t, err)
		assert.NotEmpty(t, run.ID)
		assert.Equal(t, model.RunStatusRunning, run.Status)

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.ID, got.ID)
		assert.Equal(t, model.RunKindAudit, got.Kind)
		assert.Equal(t, "sheet-123", got.Spreadsheet)
		assert.Nil(t, got.Summary)
	})

	t.Run("GetRunNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetRun(context.Background(), "missing")
		assert.Error(t, err)
	})

	t.Run("UpdateRunStatus", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, model.RunKindRecover, "sites.xlsx")
		require.NoError(t, err)
		require.NoError(t, s.UpdateRunStatus(ctx, run.ID, model.RunStatusCancelled))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusCancelled, got.Status)

		assert.Error(t, s.UpdateRunStatus(ctx, "missing", model.RunStatusFailed))
	})

	t.Run("UpdateRunResult", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, model.RunKindAudit, "sheet-123")
		require.NoError(t, err)

		summary := model.NewRunSummary()
		summary.Total = 3
		summary.Record(model.SourceField)
		summary.Record(model.SourceError)
		summary.DurationMs = 1500
		require.NoError(t, s.UpdateRunResult(ctx, run.ID, model.RunStatusComplete, summary, ""))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusComplete, got.Status)
		require.NotNil(t, got.Summary)
		assert.Equal(t, 3, got.Summary.Total)
		assert.Equal(t, 2, got.Summary.Processed)
		assert.Equal(t, 1, got.Summary.BySource[model.SourceError])
		assert.Equal(t, int64(1500), got.Summary.DurationMs)
	})

	t.Run("ListRunsFilters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a, err := s.CreateRun(ctx, model.RunKindAudit, "sheet-a")
		require.NoError(t, err)
		_, err = s.CreateRun(ctx, model.RunKindRecover, "sheet-a")
		require.NoError(t, err)
		_, err = s.CreateRun(ctx, model.RunKindAudit, "sheet-b")
		require.NoError(t, err)
		require.NoError(t, s.UpdateRunStatus(ctx, a.ID, model.RunStatusComplete))

		all, err := s.ListRuns(ctx, RunFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		audits, err := s.ListRuns(ctx, RunFilter{Kind: model.RunKindAudit})
		require.NoError(t, err)
		assert.Len(t, audits, 2)

		sheetA, err := s.ListRuns(ctx, RunFilter{Spreadsheet: "sheet-a"})
		require.NoError(t, err)
		assert.Len(t, sheetA, 2)

		done, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
		require.NoError(t, err)
		require.Len(t, done, 1)
		assert.Equal(t, a.ID, done[0].ID)

		limited, err := s.ListRuns(ctx, RunFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)

		future, err := s.ListRuns(ctx, RunFilter{Since: time.Now().Add(time.Hour)})
		require.NoError(t, err)
		assert.Empty(t, future)
	})

	t.Run("Outcomes", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, model.RunKindAudit, "sheet-123")
		require.NoError(t, err)

		err = s.SaveOutcomes(ctx, []model.RowOutcome{
			{RunID: run.ID, Row: 3, URL: "b.example", Source: model.SourceError, MobileAssessment: model.AssessmentUnknown, Error: "mobile: timeout"},
			{RunID: run.ID, Row: 2, URL: "a.example", Source: model.SourceField, MobileAssessment: model.AssessmentFast, DesktopAssessment: model.AssessmentAverage},
		})
		require.NoError(t, err)
		require.NoError(t, s.SaveOutcomes(ctx, nil))

		all, err := s.ListOutcomes(ctx, run.ID, OutcomeFilter{})
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, 2, all[0].Row)
		assert.Equal(t, model.AssessmentAverage, all[0].DesktopAssessment)
		assert.False(t, all[0].CreatedAt.IsZero())

		errs, err := s.ListOutcomes(ctx, run.ID, OutcomeFilter{Source: model.SourceError})
		require.NoError(t, err)
		require.Len(t, errs, 1)
		assert.Equal(t, "mobile: timeout", errs[0].Error)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func TestSQLite_OutcomeReplacedWithinRun(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, model.RunKindRecover, "sheet-123")
	require.NoError(t, err)

	require.NoError(t, s.SaveOutcomes(ctx, []model.RowOutcome{{RunID: run.ID, Row: 4, URL: "x", Source: model.SourceError}}))
	require.NoError(t, s.SaveOutcomes(ctx, []model.RowOutcome{{RunID: run.ID, Row: 4, URL: "x", Source: model.SourceBrowser}}))

	out, err := s.ListOutcomes(ctx, run.ID, OutcomeFilter{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, model.SourceBrowser, out[0].Source)
}

func TestNewSQLite_BadPath(t *testing.T) {
	_, err := NewSQLite(filepath.Join(t.TempDir(), "missing", "dir", "x.db"))
	assert.Error(t, err)
}
