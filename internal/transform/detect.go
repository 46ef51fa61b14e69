package transform

import (
	"fmt"
	"strings"
)

// Format is a detected source file format.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
	FormatExcel Format = "excel"
	// FormatParquet passes through with its existing schema.
	FormatParquet Format = "parquet"
)

// UnsupportedFormatError reports a file extension outside the fixed format
// map.
type UnsupportedFormatError struct {
	Filename string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file format for: %s", e.Filename)
}

var formatMap = map[string]Format{
	"csv":     FormatCSV,
	"txt":     FormatCSV, // assume CSV for text files
	"json":    FormatJSON,
	"xls":     FormatExcel,
	"xlsx":    FormatExcel,
	"parquet": FormatParquet,
}

// DetectFormat maps a filename extension to its format, case-insensitively.
func DetectFormat(filename string) (Format, error) {
	name := strings.ToLower(filename)
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return "", &UnsupportedFormatError{Filename: filename}
	}
	f, ok := formatMap[name[i+1:]]
	if !ok {
		return "", &UnsupportedFormatError{Filename: filename}
	}
	return f, nil
}
