package sheet

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/vitals-cli/internal/model"
)

// XLSXStore works on a local workbook. Every write saves the file.
type XLSXStore struct {
	mu    sync.Mutex
	path  string
	file  *xlsx.File
	sheet *xlsx.Sheet
}

// OpenXLSX opens path and selects sheetName, or the first sheet when empty.
func OpenXLSX(path, sheetName string) (*XLSXStore, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	var sheet *xlsx.Sheet
	if sheetName != "" {
		s, ok := f.Sheet[sheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", sheetName)
		}
		sheet = s
	} else {
		if len(f.Sheets) == 0 {
			return nil, eris.New("xlsx: workbook has no sheets")
		}
		sheet = f.Sheets[0]
	}

	return &XLSXStore{path: path, file: f, sheet: sheet}, nil
}

func (x *XLSXStore) ReadURLs(_ context.Context) ([]model.URLTask, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	var tasks []model.URLTask
	for i := FirstDataRow - 1; i < len(x.sheet.Rows); i++ {
		row := x.sheet.Rows[i]
		if row == nil || len(row.Cells) == 0 {
			continue
		}
		url := strings.TrimSpace(row.Cells[0].String())
		if url == "" {
			continue
		}
		tasks = append(tasks, model.URLTask{Row: i + 1, URL: url})
	}
	return tasks, nil
}

func (x *XLSXStore) ReadRows(_ context.Context) ([]Row, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	var rows []Row
	for i := FirstDataRow - 1; i < len(x.sheet.Rows); i++ {
		cells := rowToStrings(x.sheet.Rows[i])
		r := Row{Row: i + 1}
		if len(cells) > 0 {
			r.URL = strings.TrimSpace(cells[0])
			r.Cells = PadCells(cells[1:])
		} else {
			r.Cells = PadCells(nil)
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// WriteRows sets every B..N cell of each row, then saves the workbook
// through a temp file so a crash never leaves a truncated file.
func (x *XLSXStore) WriteRows(_ context.Context, rows []RowValues) error {
	if len(rows) == 0 {
		return nil
	}
	if err := ValidateRows(rows); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	for _, r := range rows {
		for j, v := range r.Cells {
			cell := x.sheet.Cell(r.Row-1, j+1)
			switch val := v.(type) {
			case float64:
				cell.SetFloat(val)
			case int:
				cell.SetInt(val)
			case string:
				cell.SetString(val)
			default:
				cell.SetValue(val)
			}
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(x.path), ".vitals-*.xlsx")
	if err != nil {
		return eris.Wrap(err, "xlsx: create temp file")
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()

	if err := x.file.Save(tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return eris.Wrap(err, "xlsx: save workbook")
	}
	if err := os.Rename(tmpPath, x.path); err != nil {
		_ = os.Remove(tmpPath)
		return eris.Wrap(err, "xlsx: replace workbook")
	}
	return nil
}

func rowToStrings(row *xlsx.Row) []string {
	if row == nil {
		return nil
	}
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
