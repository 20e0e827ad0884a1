package sheet

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/vitals-cli/internal/model"
	"github.com/sells-group/vitals-cli/pkg/sheets"
)

// GoogleStore reads and writes one sheet of a Google spreadsheet.
type GoogleStore struct {
	client        sheets.Client
	spreadsheetID string
	sheet         string // quoted title for A1 ranges
}

// OpenGoogle binds a store to spreadsheetID. An empty sheetName selects the
// first sheet.
func OpenGoogle(ctx context.Context, client sheets.Client, spreadsheetID, sheetName string) (*GoogleStore, error) {
	if sheetName == "" {
		title, err := client.FirstSheetTitle(ctx, spreadsheetID)
		if err != nil {
			return nil, eris.Wrap(err, "sheet: detect sheet name")
		}
		sheetName = title
	}
	zap.L().Info("sheet: using sheet",
		zap.String("spreadsheet", spreadsheetID),
		zap.String("sheet", sheetName),
	)
	return &GoogleStore{
		client:        client,
		spreadsheetID: spreadsheetID,
		sheet:         sheets.QuoteSheet(sheetName),
	}, nil
}

// ReadURLs reads the open-ended A2:A range; the API stops at the last
// populated row.
func (g *GoogleStore) ReadURLs(ctx context.Context) ([]model.URLTask, error) {
	values, err := g.client.Get(ctx, g.spreadsheetID, g.sheet+"!A2:A")
	if err != nil {
		return nil, eris.Wrap(err, "sheet: read url column")
	}
	var tasks []model.URLTask
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		url := strings.TrimSpace(row[0])
		if url == "" {
			continue
		}
		tasks = append(tasks, model.URLTask{Row: FirstDataRow + i, URL: url})
	}
	return tasks, nil
}

func (g *GoogleStore) ReadRows(ctx context.Context) ([]Row, error) {
	values, err := g.client.Get(ctx, g.spreadsheetID, g.sheet+"!A2:N")
	if err != nil {
		return nil, eris.Wrap(err, "sheet: read rows")
	}
	rows := make([]Row, 0, len(values))
	for i, v := range values {
		r := Row{Row: FirstDataRow + i}
		if len(v) > 0 {
			r.URL = strings.TrimSpace(v[0])
			r.Cells = PadCells(v[1:])
		} else {
			r.Cells = PadCells(nil)
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// WriteRows issues one values.batchUpdate with a range per contiguous block.
func (g *GoogleStore) WriteRows(ctx context.Context, rows []RowValues) error {
	if len(rows) == 0 {
		return nil
	}
	if err := ValidateRows(rows); err != nil {
		return err
	}

	blocks := Blocks(rows)
	data := make([]sheets.ValueRange, 0, len(blocks))
	for _, block := range blocks {
		values := make([][]any, len(block))
		for i, r := range block {
			values[i] = r.Cells
		}
		data = append(data, sheets.ValueRange{
			Range:  g.sheet + "!" + BlockRange(block),
			Values: values,
		})
	}

	if err := g.client.BatchUpdate(ctx, g.spreadsheetID, data); err != nil {
		return eris.Wrap(err, "sheet: write rows")
	}
	return nil
}
