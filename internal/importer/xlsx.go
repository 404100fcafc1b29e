package importer

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// XLSXParser reads the first worksheet of an Office Open XML workbook.
type XLSXParser struct{}

// NewXLSXParser returns a spreadsheet parser.
func NewXLSXParser() *XLSXParser {
	return &XLSXParser{}
}

// Format implements Parser.
func (p *XLSXParser) Format() Format { return FormatXLSX }

// Parse implements Parser. Short rows are padded with empty cells.
func (p *XLSXParser) Parse(r io.Reader) ([]RawRow, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("open workbook: no worksheet")
	}
	sheet := sheets[0]

	values, err := book.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read worksheet %s: %w", sheet, err)
	}

	reader := &sheetReader{
		book:       book,
		sheet:      sheet,
		dateStyles: make(map[int]bool),
	}
	if props, err := book.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		reader.date1904 = *props.Date1904
	}

	rows := make([]RawRow, 0, len(values))
	for idx, raw := range values {
		if idx == 0 || isBlankRecord(raw) {
			continue
		}
		rows = append(rows, reader.row(idx+1, raw))
	}
	return rows, nil
}

type sheetReader struct {
	book       *excelize.File
	sheet      string
	date1904   bool
	dateStyles map[int]bool
}

func (s *sheetReader) row(number int, raw []string) (row RawRow) {
	row.Number = number
	defer func() {
		if rec := recover(); rec != nil {
			row.Cells = nil
			row.Err = fmt.Errorf("row %d: %v", number, rec)
		}
	}()

	width := len(raw)
	if width < ColumnCount {
		width = ColumnCount
	}
	cells := make([]string, width)
	for col := range raw {
		value, err := s.cell(number, col, raw[col])
		if err != nil {
			row.Err = err
			return row
		}
		cells[col] = value
	}
	row.Cells = cells
	return row
}

// cell renders one raw cell value the way an operator reads it on screen.
func (s *sheetReader) cell(rowNumber, col int, raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	ref, err := excelize.CoordinatesToCellName(col+1, rowNumber)
	if err != nil {
		return "", err
	}
	cellType, err := s.book.GetCellType(s.sheet, ref)
	if err != nil {
		return "", fmt.Errorf("cell %s: %w", ref, err)
	}

	switch cellType {
	case excelize.CellTypeBool:
		return strconv.FormatBool(raw == "1" || strings.EqualFold(raw, "true")), nil
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeFormula:
		return strings.TrimSpace(raw), nil
	case excelize.CellTypeError:
		return "", nil
	case excelize.CellTypeDate:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.Format(CanonicalDateLayout), nil
			}
		}
		return strings.TrimSpace(raw), nil
	}

	number, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return strings.TrimSpace(raw), nil
	}
	isDate, err := s.isDateCell(ref)
	if err != nil {
		return "", err
	}
	if isDate {
		t, err := excelize.ExcelDateToTime(number, s.date1904)
		if err != nil {
			return "", fmt.Errorf("cell %s: %w", ref, err)
		}
		return t.Format(CanonicalDateLayout), nil
	}
	return strconv.FormatInt(int64(number), 10), nil
}

func (s *sheetReader) isDateCell(ref string) (bool, error) {
	styleID, err := s.book.GetCellStyle(s.sheet, ref)
	if err != nil {
		return false, fmt.Errorf("cell %s style: %w", ref, err)
	}
	if cached, ok := s.dateStyles[styleID]; ok {
		return cached, nil
	}
	style, err := s.book.GetStyle(styleID)
	if err != nil {
		return false, fmt.Errorf("cell %s style: %w", ref, err)
	}
	isDate := false
	if style != nil {
		if style.CustomNumFmt != nil {
			isDate = isDateFormatCode(*style.CustomNumFmt)
		} else {
			isDate = isBuiltInDateFormat(style.NumFmt)
		}
	}
	s.dateStyles[styleID] = isDate
	return isDate, nil
}

func isBuiltInDateFormat(id int) bool {
	switch {
	case id >= 14 && id <= 22,
		id >= 27 && id <= 36,
		id >= 45 && id <= 47,
		id >= 50 && id <= 58:
		return true
	}
	return false
}

// isDateFormatCode reports whether a custom number format renders a date.
// Quoted literals and bracketed sections such as colours or locales are ignored.
func isDateFormatCode(code string) bool {
	var b strings.Builder
	inQuote, inBracket := false, false
	for _, r := range code {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '[':
			inBracket = true
		case r == ']':
			inBracket = false
		case inBracket:
		default:
			b.WriteRune(r)
		}
	}
	cleaned := strings.ToLower(b.String())
	if strings.EqualFold(strings.TrimSpace(cleaned), "general") {
		return false
	}
	return strings.ContainsAny(cleaned, "dy") || (strings.Contains(cleaned, "m") && !strings.ContainsAny(cleaned, "#0"))
}
