package transform

import (
	"fmt"
	"strings"
	"unicode"
)

// Table is the common in-memory tabular representation every parser produces.
// Cell values are nil, bool, int64, float64 or string.
type Table struct {
	Columns []string
	Rows    [][]any
}

func (t *Table) RowCount() int64    { return int64(len(t.Rows)) }
func (t *Table) ColumnCount() int64 { return int64(len(t.Columns)) }

// ColumnType is the physical type a column is encoded with.
type ColumnType string

const (
	TypeBoolean ColumnType = "BOOLEAN"
	TypeInt64   ColumnType = "INT64"
	TypeDouble  ColumnType = "DOUBLE"
	TypeString  ColumnType = "BYTE_ARRAY"
)

type Field struct {
	Name string
	Type ColumnType
	// Dictionary marks low-cardinality columns for dictionary encoding.
	Dictionary bool
}

// Low-cardinality threshold: a string column qualifies for dictionary
// encoding when the distinct/total ratio stays under this bound.
const dictionaryRatio = 0.5

// InferSchema derives a column schema by scanning every value. A column with
// mixed numeric kinds widens to DOUBLE; anything else mixed falls back to
// string. Empty columns encode as string.
func InferSchema(t *Table) []Field {
	fields := make([]Field, len(t.Columns))
	for i, name := range t.Columns {
		fields[i] = Field{Name: sanitizeColumn(name, i), Type: inferColumn(t, i)}
	}

	for i := range fields {
		if fields[i].Type == TypeString {
			fields[i].Dictionary = lowCardinality(t, i)
		}
	}
	return fields
}

func inferColumn(t *Table, col int) ColumnType {
	var seenBool, seenInt, seenFloat, seenString, seenAny bool
	for _, row := range t.Rows {
		if col >= len(row) || row[col] == nil {
			continue
		}
		seenAny = true
		switch row[col].(type) {
		case bool:
			seenBool = true
		case int64:
			seenInt = true
		case float64:
			seenFloat = true
		default:
			seenString = true
		}
	}

	switch {
	case !seenAny, seenString:
		return TypeString
	case seenBool && !seenInt && !seenFloat:
		return TypeBoolean
	case seenBool:
		return TypeString
	case seenFloat:
		return TypeDouble
	default:
		return TypeInt64
	}
}

func lowCardinality(t *Table, col int) bool {
	if len(t.Rows) < 10 {
		return false
	}
	distinct := make(map[string]struct{})
	total := 0
	for _, row := range t.Rows {
		if col >= len(row) || row[col] == nil {
			continue
		}
		s, ok := row[col].(string)
		if !ok {
			continue
		}
		total++
		distinct[s] = struct{}{}
	}
	if total == 0 {
		return false
	}
	return float64(len(distinct))/float64(total) < dictionaryRatio
}

// sanitizeColumn makes a header usable as a parquet field name.
func sanitizeColumn(name string, index int) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Sprintf("column_%d", index)
	}
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" || unicode.IsDigit(rune(out[0])) {
		out = "c_" + out
	}
	return out
}
