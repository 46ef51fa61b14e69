package transform

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

// Parse loads file content into the common tabular representation according
// to the detected format. Parquet input never reaches here; the engine passes
// it through.
func Parse(format Format, data []byte) (*Table, error) {
	switch format {
	case FormatCSV:
		return parseCSV(data)
	case FormatJSON:
		return parseJSON(data)
	case FormatExcel:
		return parseExcel(data)
	}
	return nil, fmt.Errorf("no parser for format %q", format)
}

// parseCSV reads UTF-8 CSV, falling back to latin-1 when the payload is not
// valid UTF-8.
func parseCSV(data []byte) (*Table, error) {
	if !utf8.Valid(data) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("decode csv: %w", err)
		}
		data = decoded
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty csv file")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	t := &Table{Columns: header}
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		row := make([]any, len(header))
		for i := range header {
			if i < len(record) {
				row[i] = coerce(record[i])
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// parseJSON attempts line-delimited records first, then a single document
// (an array of objects or one object).
func parseJSON(data []byte) (*Table, error) {
	if t, err := parseJSONLines(data); err == nil {
		return t, nil
	}

	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		var single map[string]any
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
		records = []map[string]any{single}
	}
	return tableFromRecords(records)
}

func parseJSONLines(data []byte) (*Table, error) {
	var records []map[string]any
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("not line-delimited json")
	}
	return tableFromRecords(records)
}

// tableFromRecords flattens keyed records into a sorted column union.
func tableFromRecords(records []map[string]any) (*Table, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records in json document")
	}

	// Map iteration order is random; sort the column union so repeated runs
	// over the same payload produce the same schema.
	seen := make(map[string]struct{})
	var columns []string
	for _, rec := range records {
		for k := range rec {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				columns = append(columns, k)
			}
		}
	}
	sort.Strings(columns)
	index := make(map[string]int, len(columns))
	for i, name := range columns {
		index[name] = i
	}

	t := &Table{Columns: columns}
	for _, rec := range records {
		row := make([]any, len(columns))
		for k, v := range rec {
			row[index[k]] = normalizeJSONValue(v)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func normalizeJSONValue(v any) any {
	switch val := v.(type) {
	case nil, bool, string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return int64(val)
		}
		return val
	default:
		// Nested objects and arrays are kept as their JSON text.
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}

// parseExcel reads the first sheet of an xls/xlsx workbook.
func parseExcel(data []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %s is empty", sheets[0])
	}

	header := rows[0]
	t := &Table{Columns: header}
	for _, rec := range rows[1:] {
		row := make([]any, len(header))
		for i := range header {
			if i < len(rec) {
				row[i] = coerce(rec[i])
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// coerce turns a text cell into the narrowest matching value type.
func coerce(s string) any {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}
	switch strings.ToLower(trimmed) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}
