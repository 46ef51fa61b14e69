package transform

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/xitongsys/parquet-go-source/buffer"
	writerfile "github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
)

// OutputExt is the extension of encoded columnar artifacts.
const OutputExt = "parquet"

const parquetParallelism = 4

// Encode writes the table as a Snappy-compressed parquet byte stream with
// per-column statistics. Low-cardinality string columns are
// dictionary-encoded.
func Encode(t *Table, fields []Field) ([]byte, error) {
	buf := &bytes.Buffer{}
	fw := writerfile.NewWriterFile(buf)

	pw, err := writer.NewJSONWriter(buildSchema(fields), fw, parquetParallelism)
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i, row := range t.Rows {
		record, err := encodeRow(row, fields)
		if err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return nil, fmt.Errorf("encode row %d: %w", i, err)
		}
		if err := pw.Write(record); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("finalize parquet: %w", err)
	}
	_ = fw.Close()

	return buf.Bytes(), nil
}

// Stats reads the row and leaf-column counts from an existing parquet stream.
func Stats(data []byte) (rows, cols int64, err error) {
	bf := buffer.NewBufferFileFromBytes(data)
	pr, err := reader.NewParquetReader(bf, nil, 1)
	if err != nil {
		return 0, 0, fmt.Errorf("open parquet: %w", err)
	}
	defer pr.ReadStop()

	rows = pr.GetNumRows()
	if len(pr.Footer.Schema) > 0 {
		cols = int64(pr.Footer.Schema[0].GetNumChildren())
	}
	return rows, cols, nil
}

// buildSchema renders the JSON schema definition the parquet writer consumes.
func buildSchema(fields []Field) string {
	defs := make([]map[string]string, 0, len(fields))
	for _, f := range fields {
		tag := fmt.Sprintf("name=%s, type=%s, repetitiontype=OPTIONAL", f.Name, f.Type)
		if f.Type == TypeString {
			tag += ", convertedtype=UTF8"
		}
		if f.Dictionary {
			tag += ", encoding=PLAIN_DICTIONARY"
		}
		defs = append(defs, map[string]string{"Tag": tag})
	}
	out := map[string]any{
		"Tag":    "name=parquet_go_root, repetitiontype=REQUIRED",
		"Fields": defs,
	}
	b, _ := json.Marshal(out)
	return string(b)
}

// encodeRow projects one table row onto the schema as a JSON record. Nulls
// are omitted; all fields are OPTIONAL.
func encodeRow(row []any, fields []Field) (string, error) {
	record := make(map[string]any, len(fields))
	for i, f := range fields {
		if i >= len(row) || row[i] == nil {
			continue
		}
		record[f.Name] = coerceToType(row[i], f.Type)
	}
	b, err := json.Marshal(record)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func coerceToType(v any, t ColumnType) any {
	switch t {
	case TypeBoolean:
		if b, ok := v.(bool); ok {
			return b
		}
	case TypeInt64:
		if n, ok := v.(int64); ok {
			return n
		}
	case TypeDouble:
		switch n := v.(type) {
		case float64:
			return n
		case int64:
			return float64(n)
		}
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		return fmt.Sprintf("%v", s)
	}
}
