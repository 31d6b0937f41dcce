package extract

import (
	"fmt"

	"docminer/internal/models"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

func processXLSX(path string) ([]models.ExtractedChunk, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx %s: %w", path, err)
	}
	defer f.Close()

	out := make([]models.ExtractedChunk, 0)
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		if c, ok := sheetChunk(path, sheet, rows); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func processXLS(path string) (chunks []models.ExtractedChunk, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			chunks, err = nil, fmt.Errorf("read xls %s: %v", path, rec)
		}
	}()
	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open xls %s: %w", path, err)
	}

	out := make([]models.ExtractedChunk, 0)
	for i := 0; i < wb.NumSheets(); i++ {
		sheet := wb.GetSheet(i)
		if sheet == nil {
			continue
		}
		rows := make([][]string, 0, int(sheet.MaxRow)+1)
		for r := 0; r <= int(sheet.MaxRow); r++ {
			row := sheet.Row(r)
			if row == nil {
				continue
			}
			cells := make([]string, 0, row.LastCol())
			for c := 0; c < row.LastCol(); c++ {
				cells = append(cells, row.Col(c))
			}
			rows = append(rows, cells)
		}
		if c, ok := sheetChunk(path, sheet.Name, rows); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func sheetChunk(path, sheet string, rows [][]string) (models.ExtractedChunk, bool) {
	table := renderTable(rows)
	if table == "" {
		return models.ExtractedChunk{}, false
	}
	c := newChunk(table, path, models.FormatExcel)
	c.Metadata[models.MetaSheet] = sheet
	return c, true
}
