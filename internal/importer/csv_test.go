package importer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const csvHeader = "Sr No,Name,PAN,Registration,Branch,Start,End\n"

func TestCSVParserQuotedComma(t *testing.T) {
	input := csvHeader + `1,"Doe, Jane",ABCDE1234F,REG1,Mumbai,01-01-2023,31-12-2023` + "\n"
	rows, err := NewCSVParser().Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].Number)

	candidates, report := Scan(rows, NewDuplicateFilter(nil))
	require.Len(t, candidates, 1)
	assert.Equal(t, "Doe, Jane", candidates[0].Name)
	assert.Equal(t, "01-01-2023", candidates[0].StartDate)
	assert.Equal(t, 1, report.Count(RowAccepted))
}

func TestCSVParserHeaderOnlyAndShortRows(t *testing.T) {
	rows, err := NewCSVParser().Parse(strings.NewReader(csvHeader))
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = NewCSVParser().Parse(strings.NewReader(csvHeader + "1,Jane,ABCDE1234F\n\n,,,,,,\n"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	_, report := Scan(rows, NewDuplicateFilter(nil))
	assert.Equal(t, ReasonTooFewColumns, report.Rows[0].Reason)
}

func TestCSVParserTrimsCells(t *testing.T) {
	input := csvHeader + "1 ,  Jane  , abcde1234f ,R 1, Pune ,2024-03-15,03/15/2024\n"
	rows, err := NewCSVParser().Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"1", "Jane", "abcde1234f", "R 1", "Pune", "2024-03-15", "03/15/2024"}, rows[0].Cells)
}

func TestCSVParserFormat(t *testing.T) {
	assert.Equal(t, FormatCSV, NewCSVParser().Format())
}

func TestCSVParserUnbalancedQuoteStaysOnItsLine(t *testing.T) {
	input := csvHeader +
		`1,"Doe, Jane,ABCDE1234F,REG1,Mumbai,01-01-2023,31-12-2023` + "\n" +
		"2,John,PQRST6789Z,REG2,Pune,01-01-2023,31-12-2023\r\n" +
		"3,Mary,LMNOP4321Q,REG3,Delhi,01-01-2023,31-12-2023\n"
	rows, err := NewCSVParser().Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []int{2, 3, 4}, []int{rows[0].Number, rows[1].Number, rows[2].Number})

	candidates, report := Scan(rows, NewDuplicateFilter(nil))
	require.Len(t, candidates, 2)
	assert.Equal(t, "PQRST6789Z", candidates[0].PAN)
	assert.Equal(t, "31-12-2023", candidates[0].EndDate)
	assert.Equal(t, "LMNOP4321Q", candidates[1].PAN)
	assert.Equal(t, 1, report.Count(RowSkipped))
	assert.Equal(t, 2, report.Rows[0].Row)
}
