package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"

	"docminer/internal/models"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func processCSV(path string) ([]models.ExtractedChunk, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read csv %s: %w", path, err)
	}
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(b, utf8BOM)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv %s: %w", path, err)
	}
	table := renderTable(rows)
	if table == "" {
		return nil, nil
	}
	return []models.ExtractedChunk{newChunk(table, path, models.FormatCSV)}, nil
}
