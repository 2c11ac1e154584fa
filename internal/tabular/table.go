// Package tabular reads input tables (CSV, XLSX) and writes the flat CSV
// output of a reconciliation run.
package tabular

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Format identifies an input file type.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ErrUnsupportedFormat is returned for files that are neither .csv nor .xlsx.
var ErrUnsupportedFormat = eris.New("unsupported file format: provide a CSV or Excel (.xlsx) file")

// Table is a raw loaded table: the header row plus data rows as strings.
// Rows may be shorter than the header; missing cells read as empty.
type Table struct {
	Header []string
	Rows   [][]string
	Format Format
}

// Options configures Load.
type Options struct {
	// Charset of CSV input. Empty means UTF-8. A byte-order mark always wins.
	Charset string
	// Sheet selects an xlsx sheet by name. Empty means the first sheet.
	Sheet string
}

// DetectFormat maps a path's extension to a Format.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", eris.Wrapf(ErrUnsupportedFormat, "tabular: %s", filepath.Base(path))
	}
}

// Load reads the table at path, choosing the reader by extension.
func Load(ctx context.Context, path string, opts Options) (*Table, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatXLSX:
		return LoadXLSX(ctx, path, opts.Sheet)
	default:
		return LoadCSV(ctx, path, opts.Charset)
	}
}

// Cell returns row[i] or "" when the row is short.
func Cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
