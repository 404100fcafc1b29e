package importer

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

const maxCSVLineSize = 1024 * 1024

// CSVParser reads comma separated uploads. Quoted fields may contain commas.
type CSVParser struct {
	Comma rune
}

// NewCSVParser returns a comma separated parser.
func NewCSVParser() *CSVParser {
	return &CSVParser{Comma: ','}
}

// Format implements Parser.
func (p *CSVParser) Format() Format { return FormatCSV }

// Parse implements Parser. Each physical line is parsed on its own, so a
// malformed line becomes a failed row without affecting its neighbours.
func (p *CSVParser) Parse(r io.Reader) ([]RawRow, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxCSVLineSize)

	rows := make([]RawRow, 0)
	line := 0
	for scanner.Scan() {
		line++
		if line == 1 {
			continue
		}
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		cells, err := p.parseLine(text)
		if err != nil {
			rows = append(rows, RawRow{Number: line, Err: fmt.Errorf("line %d: %w", line, err)})
			continue
		}
		if isBlankRecord(cells) {
			continue
		}
		rows = append(rows, RawRow{Number: line, Cells: cells})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return rows, nil
}

func (p *CSVParser) parseLine(text string) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(text))
	if p.Comma != 0 {
		reader.Comma = p.Comma
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	record, err := reader.Read()
	if err != nil {
		return nil, err
	}
	cells := make([]string, len(record))
	for i, field := range record {
		cells[i] = StripQuotes(strings.TrimSpace(field))
	}
	return cells, nil
}

func isBlankRecord(cells []string) bool {
	for _, cell := range cells {
		if cell != "" {
			return false
		}
	}
	return true
}
