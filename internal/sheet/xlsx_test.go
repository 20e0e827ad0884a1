package sheet

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/vitals-cli/internal/model"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "sites.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestXLSX_ReadURLs(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sites": {
			{"URL", "M LCP"},
			{"a.example"},
			{""},
			{" https://c.example "},
		},
	})

	s, err := OpenXLSX(path, "")
	require.NoError(t, err)

	tasks, err := s.ReadURLs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.URLTask{
		{Row: 2, URL: "a.example"},
		{Row: 4, URL: "https://c.example"},
	}, tasks)
}

func TestXLSX_SheetNotFound(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Sites": {{"URL"}}})

	_, err := OpenXLSX(path, "Missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestXLSX_OpenMissingFile(t *testing.T) {
	_, err := OpenXLSX(filepath.Join(t.TempDir(), "nope.xlsx"), "")
	assert.Error(t, err)
}

func TestXLSX_WriteRowsPersists(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sites": {
			{"URL"},
			{"a.example"},
			{"b.example"},
			{"c.example"},
		},
	})
	ctx := context.Background()

	s, err := OpenXLSX(path, "Sites")
	require.NoError(t, err)

	err = s.WriteRows(ctx, []RowValues{
		EncodeRow(auditRow(2, model.SourceField)),
		EncodeRow(auditRow(4, model.SourceLab)),
	})
	require.NoError(t, err)

	reopened, err := OpenXLSX(path, "Sites")
	require.NoError(t, err)
	rows, err := reopened.ReadRows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "a.example", rows[0].URL)
	assert.Equal(t, "2.1", rows[0].Cells[0])
	assert.Equal(t, "FAST", rows[0].Cells[5])
	assert.Equal(t, "Field", rows[0].Tag())

	assert.Equal(t, "", rows[1].Tag(), "row 3 untouched")
	assert.Equal(t, "Lab", rows[2].Tag())
}

func TestXLSX_WriteRowsRejectsBadRow(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Sites": {{"URL"}, {"a.example"}}})
	s, err := OpenXLSX(path, "")
	require.NoError(t, err)

	err = s.WriteRows(context.Background(), []RowValues{{Row: 1, Cells: make([]any, ResultColumns)}})
	assert.Error(t, err)
}
