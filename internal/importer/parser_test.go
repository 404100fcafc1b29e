package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParserFor(t *testing.T) {
	p, err := ParserFor("batch.XLSX")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, p.Format())

	p, err = ParserFor("batch.csv")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, p.Format())

	_, err = ParserFor("batch.xls")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = ParserFor("   ")
	assert.ErrorIs(t, err, ErrMissingFileName)
}

func TestRawRowCell(t *testing.T) {
	r := RawRow{Cells: []string{"a"}}
	assert.Equal(t, "a", r.Cell(0))
	assert.Equal(t, "", r.Cell(4))
	assert.Equal(t, "", r.Cell(-1))
}
