// Package sheettest provides an in-memory sheet.Store for tests.
package sheettest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sells-group/vitals-cli/internal/model"
	"github.com/sells-group/vitals-cli/internal/sheet"
)

var _ sheet.Store = (*MemoryStore)(nil)

// MemoryStore is an in-process sheet.Store. Row 1 is the header; rows[0] is row 2.
type MemoryStore struct {
	mu     sync.Mutex
	urls   []string
	cells  map[int][]string
	writes [][]sheet.RowValues

	// FailWrites makes the next n WriteRows calls fail with WriteErr.
	FailWrites int
	WriteErr   error
}

// NewMemoryStore creates a store with urls in column A starting at row 2.
// Blank strings leave a blank row.
func NewMemoryStore(urls ...string) *MemoryStore {
	return &MemoryStore{urls: urls, cells: make(map[int][]string)}
}

func (m *MemoryStore) ReadURLs(_ context.Context) ([]model.URLTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var tasks []model.URLTask
	for i, u := range m.urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		tasks = append(tasks, model.URLTask{Row: sheet.FirstDataRow + i, URL: u})
	}
	return tasks, nil
}

func (m *MemoryStore) ReadRows(_ context.Context) ([]sheet.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := make([]sheet.Row, 0, len(m.urls))
	for i, u := range m.urls {
		row := sheet.FirstDataRow + i
		rows = append(rows, sheet.Row{Row: row, URL: strings.TrimSpace(u), Cells: sheet.PadCells(m.cells[row])})
	}
	return rows, nil
}

func (m *MemoryStore) WriteRows(_ context.Context, rows []sheet.RowValues) error {
	if err := sheet.ValidateRows(rows); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites > 0 {
		m.FailWrites--
		return m.WriteErr
	}

	batch := make([]sheet.RowValues, len(rows))
	copy(batch, rows)
	m.writes = append(m.writes, batch)

	for _, r := range rows {
		cells := make([]string, len(r.Cells))
		for j, v := range r.Cells {
			cells[j] = formatCell(v)
		}
		m.cells[r.Row] = cells
	}
	return nil
}

// SetCells seeds a row's B..N cells.
func (m *MemoryStore) SetCells(row int, cells ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cells[row] = sheet.PadCells(cells)
}

// Cells returns a row's B..N cells as strings.
func (m *MemoryStore) Cells(row int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sheet.PadCells(m.cells[row])
}

// Writes returns every successful WriteRows batch in call order.
func (m *MemoryStore) Writes() [][]sheet.RowValues {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]sheet.RowValues, len(m.writes))
	copy(out, m.writes)
	return out
}

func formatCell(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprint(val)
	}
}
