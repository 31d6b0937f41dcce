// Package export lays an extracted dataset out as a table and writes it as CSV
// or as an Excel workbook.
package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ValueColumn holds rows that are not JSON objects.
const ValueColumn = "value"

// Table is a dataset flattened to rows. Header lists object keys in the order
// they were first seen across rows. Cells are string, json.Number, bool or nil.
type Table struct {
	Header []string
	Rows   [][]any
}

// FromJSON builds a table from a JSON dataset. An array yields one row per
// element, any other value a single row. Nested arrays and objects are kept
// as compact JSON text in their cell.
func FromJSON(data []byte) (Table, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Table{}, errors.New("empty dataset")
	}
	var elems []json.RawMessage
	if data[0] == '[' {
		if err := json.Unmarshal(data, &elems); err != nil {
			return Table{}, fmt.Errorf("decode dataset: %w", err)
		}
	} else {
		elems = []json.RawMessage{data}
	}

	var (
		order   []string
		seen    = map[string]int{}
		records = make([]map[string]any, 0, len(elems))
	)
	addKey := func(k string) {
		if _, ok := seen[k]; !ok {
			seen[k] = len(order)
			order = append(order, k)
		}
	}
	for i, raw := range elems {
		rec := map[string]any{}
		if t := bytes.TrimSpace(raw); len(t) > 0 && t[0] == '{' {
			keys, values, err := decodeObject(t)
			if err != nil {
				return Table{}, fmt.Errorf("row %d: %w", i, err)
			}
			for j, k := range keys {
				addKey(k)
				rec[k] = values[j]
			}
		} else {
			v, err := cellValue(raw)
			if err != nil {
				return Table{}, fmt.Errorf("row %d: %w", i, err)
			}
			addKey(ValueColumn)
			rec[ValueColumn] = v
		}
		records = append(records, rec)
	}

	t := Table{Header: order, Rows: make([][]any, 0, len(records))}
	for _, rec := range records {
		row := make([]any, len(order))
		for k, v := range rec {
			row[seen[k]] = v
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// decodeObject returns an object's keys in document order with their cell values.
func decodeObject(raw []byte) ([]string, []any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	var (
		keys   []string
		values []any
		index  = map[string]int{}
	)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected object key %v", tok)
		}
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil, nil, err
		}
		cell, err := cellValue(val)
		if err != nil {
			return nil, nil, err
		}
		// A repeated key keeps its first position and its last value.
		if i, dup := index[key]; dup {
			values[i] = cell
			continue
		}
		index[key] = len(keys)
		keys = append(keys, key)
		values = append(values, cell)
	}
	if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, err
	}
	return keys, values, nil
}

func cellValue(raw json.RawMessage) (any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	switch raw[0] {
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return nil, err
		}
		return buf.String(), nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func cellText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		if x {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(x)
	}
}
