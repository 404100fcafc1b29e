package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfMargin     = 10.0
	pdfHeaderRow  = 8.0
	pdfBodyRow    = 7.0
	pdfFooterSize = 10.0
)

// PDFExporter lays a Table out on landscape A4 pages. The header row is
// repeated on every page and each page carries a "Page n of m" footer.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render produces the PDF document.
func (e *PDFExporter) Render(table Table) ([]byte, error) {
	if err := table.validate(); err != nil {
		return nil, err
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(false, pdfFooterSize)
	pdf.AliasNbPages("")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-pdfFooterSize)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 6, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	pageWidth, pageHeight := pdf.GetPageSize()
	widths := columnWidths(table.Columns, pageWidth-2*pdfMargin)
	bottom := pageHeight - pdfFooterSize - pdfMargin

	pdf.AddPage()
	if table.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(table.Title), "", 1, "L", false, 0, "")
	}
	subtitle := fmt.Sprintf("%d rows", len(table.Rows))
	if !table.GeneratedAt.IsZero() {
		subtitle = fmt.Sprintf("Generated %s UTC, %s", table.GeneratedAt.UTC().Format("02-01-2006 15:04"), subtitle)
	}
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 6, subtitle, "", 1, "L", false, 0, "")
	pdf.Ln(2)

	header := func() {
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for i, col := range table.Columns {
			pdf.CellFormat(widths[i], pdfHeaderRow, tr(col.Header), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 8)
	}
	header()
	for _, row := range table.Rows {
		if pdf.GetY()+pdfBodyRow > bottom {
			pdf.AddPage()
			header()
		}
		for i := range table.Columns {
			text := fitText(pdf, tr(cell(row, i)), widths[i]-2)
			pdf.CellFormat(widths[i], pdfBodyRow, text, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(columns []Column, usable float64) []float64 {
	total := 0.0
	weights := make([]float64, len(columns))
	for i, col := range columns {
		weights[i] = col.Width
		if weights[i] <= 0 {
			weights[i] = 1
		}
		total += weights[i]
	}
	widths := make([]float64, len(columns))
	for i, w := range weights {
		widths[i] = usable * w / total
	}
	return widths
}

// fitText shortens s with a trailing ellipsis until it fits into width.
// s is already translated to the single-byte font encoding.
func fitText(pdf *gofpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	for n := len(s) - 1; n > 0; n-- {
		candidate := s[:n] + "..."
		if pdf.GetStringWidth(candidate) <= width {
			return candidate
		}
	}
	return ""
}
