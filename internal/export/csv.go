package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

// WriteCSV writes the header line followed by one line per row.
func (t Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	line := make([]string, len(t.Header))
	for _, row := range t.Rows {
		for i, v := range row {
			line[i] = cellText(v)
		}
		if err := cw.Write(line); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ToCSV renders a JSON dataset as CSV text.
func ToCSV(data []byte) (string, error) {
	t, err := FromJSON(data)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.WriteCSV(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
