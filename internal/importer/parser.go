package importer

import (
	"errors"
	"io"
	"path/filepath"
	"strings"
)

// Column positions shared by both file formats.
const (
	ColSerialNo = iota
	ColName
	ColPAN
	ColRegistration
	ColBranch
	ColStartDate
	ColEndDate

	// ColumnCount is the number of columns a data row must provide.
	ColumnCount
)

// Format identifies a supported upload format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// ErrUnsupportedFormat is returned when a file name carries no supported suffix.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ErrMissingFileName is returned when an upload has no usable file name.
var ErrMissingFileName = errors.New("file name not recognized")

// RawRow is one data row as read from the file, header excluded. Number is the
// 1-based position of the row in the file. Err is set when the row could not be
// read; Cells is then undefined.
type RawRow struct {
	Number int
	Cells  []string
	Err    error
}

// Cell returns the cell at idx or "" when the row is shorter.
func (r RawRow) Cell(idx int) string {
	if idx < 0 || idx >= len(r.Cells) {
		return ""
	}
	return r.Cells[idx]
}

// Parser turns an upload into raw data rows. The header row is never returned.
// An error is returned only when the file as a whole cannot be read.
type Parser interface {
	Format() Format
	Parse(r io.Reader) ([]RawRow, error)
}

// FormatFor resolves the upload format from the file name suffix, ignoring case.
func FormatFor(filename string) (Format, error) {
	name := strings.TrimSpace(filename)
	if name == "" {
		return "", ErrMissingFileName
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		return FormatXLSX, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// ParserFor returns the parser matching the file name suffix.
func ParserFor(filename string) (Parser, error) {
	format, err := FormatFor(filename)
	if err != nil {
		return nil, err
	}
	if format == FormatXLSX {
		return NewXLSXParser(), nil
	}
	return NewCSVParser(), nil
}
