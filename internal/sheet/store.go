// Package sheet persists audit rows to a spreadsheet-shaped store: column A
// holds input URLs, columns B through N hold results, row 1 is the header.
package sheet

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/vitals-cli/internal/model"
)

const (
	// FirstDataRow is the first row holding a URL.
	FirstDataRow = 2
	// ResultColumns is the width of the B..N result span.
	ResultColumns = 13
	// FirstResultColumn and LastResultColumn bound the result span in A1 notation.
	FirstResultColumn = "B"
	LastResultColumn  = "N"

	// ErrorMarker fills the metric and assessment cells of a failed strategy.
	ErrorMarker = "ERROR"
)

// Store reads input URLs and writes result rows.
type Store interface {
	// ReadURLs returns a task for every non-blank URL cell from row 2 to the
	// last populated row. Row indexes are preserved across blank cells.
	ReadURLs(ctx context.Context) ([]model.URLTask, error)
	// ReadRows returns URLs together with their current B..N cells.
	ReadRows(ctx context.Context) ([]Row, error)
	// WriteRows writes each row's full B..N span in one call.
	WriteRows(ctx context.Context, rows []RowValues) error
}

// Row is a row as read back from the store.
type Row struct {
	Row   int
	URL   string
	Cells []string // B..N, padded to ResultColumns
}

// Tag returns the source column (N) value.
func (r Row) Tag() string {
	if len(r.Cells) < ResultColumns {
		return ""
	}
	return strings.TrimSpace(r.Cells[ResultColumns-1])
}

// Failed reports whether the row is marked as an error.
func (r Row) Failed() bool {
	src, ok := model.SourceFromTag(r.Tag())
	return ok && src == model.SourceError
}

// RowValues is one row's B..N span ready to write.
type RowValues struct {
	Row   int
	Cells []any
}

// EncodeRow lays out an audit row. A failed strategy is written as
// ERROR in the first metric and assessment cells with the rest blank.
func EncodeRow(row model.AuditRow) RowValues {
	return encode(row, row.Source(), true)
}

// EncodeRecovered lays out a row recovered by the browser pass. A strategy
// that could not be scraped is left blank.
func EncodeRecovered(row model.AuditRow) RowValues {
	return encode(row, model.SourceBrowser, false)
}

func encode(row model.AuditRow, src model.Source, markFailures bool) RowValues {
	cells := make([]any, 0, ResultColumns)
	for _, s := range model.Strategies() {
		cells = append(cells, strategyCells(row.Result(s), markFailures)...)
	}
	cells = append(cells, src.Tag())
	return RowValues{Row: row.Task.Row, Cells: cells}
}

func strategyCells(r model.StrategyResult, markFailures bool) []any {
	cells := make([]any, 0, len(model.AllMetrics())+1)
	if r.Failed() {
		for range model.AllMetrics() {
			cells = append(cells, "")
		}
		cells = append(cells, "")
		if markFailures {
			cells[0] = ErrorMarker
			cells[len(cells)-1] = ErrorMarker
		}
		return cells
	}
	for _, m := range model.AllMetrics() {
		if v, ok := r.Value(m); ok {
			cells = append(cells, v)
		} else {
			cells = append(cells, "")
		}
	}
	if r.Assessment == model.AssessmentUnknown || r.Assessment == "" {
		cells = append(cells, "")
	} else {
		cells = append(cells, string(r.Assessment))
	}
	return cells
}

// Blocks sorts rows by index and splits them into runs of consecutive rows.
func Blocks(rows []RowValues) [][]RowValues {
	if len(rows) == 0 {
		return nil
	}
	sorted := make([]RowValues, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Row < sorted[j].Row })

	var blocks [][]RowValues
	start := 0
	for i := 1; i <= len(sorted); i++ {
		if i == len(sorted) || sorted[i].Row != sorted[i-1].Row+1 {
			blocks = append(blocks, sorted[start:i])
			start = i
		}
	}
	return blocks
}

// BlockRange returns the A1 range of a block's result span, e.g. "B2:N9".
func BlockRange(block []RowValues) string {
	first, last := block[0].Row, block[len(block)-1].Row
	return fmt.Sprintf("%s%d:%s%d", FirstResultColumn, first, LastResultColumn, last)
}

// PadCells returns cells widened to the full B..N span.
func PadCells(cells []string) []string {
	out := make([]string, ResultColumns)
	copy(out, cells)
	return out
}

// ValidateRows rejects a write a Store must not apply: rows above the
// first data row, short spans, or the same row twice.
func ValidateRows(rows []RowValues) error {
	seen := make(map[int]bool, len(rows))
	for _, r := range rows {
		if r.Row < FirstDataRow {
			return eris.Errorf("sheet: row %d is above the first data row", r.Row)
		}
		if len(r.Cells) != ResultColumns {
			return eris.Errorf("sheet: row %d has %d cells, want %d", r.Row, len(r.Cells), ResultColumns)
		}
		if seen[r.Row] {
			return eris.Errorf("sheet: row %d appears twice in one write", r.Row)
		}
		seen[r.Row] = true
	}
	return nil
}
