package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pageWidthLandscape = 277.0
	rowHeight          = 7.0
)

// PDFExporter renders datasets into a landscape register journal.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document with a title, optional subtitle and table body.
// The header row is repeated on every page.
func (e *PDFExporter) Render(data Dataset, title, subtitle string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	widths := columnWidths(data)

	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(false, 12)

	header := func() {
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for i, h := range data.Headers {
			pdf.CellFormat(widths[i], rowHeight+1, tr(h), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 8)
	}

	pdf.SetFooterFunc(func() {
		pdf.SetY(-10)
		pdf.SetFont("Arial", "I", 7)
		pdf.CellFormat(0, 5, fmt.Sprintf("%d", pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	pdf.AddPage()
	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 9, tr(title), "", 1, "C", false, 0, "")
	}
	if subtitle != "" {
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, tr(subtitle), "", 1, "C", false, 0, "")
	}
	pdf.Ln(3)
	header()

	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for _, row := range data.Rows {
		if pdf.GetY()+rowHeight > pageHeight-bottom {
			pdf.AddPage()
			header()
		}
		for i, h := range data.Headers {
			pdf.CellFormat(widths[i], rowHeight, tr(truncate(pdf, row[h], widths[i])), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(data Dataset) []float64 {
	widths := make([]float64, len(data.Headers))
	if len(data.Widths) != len(data.Headers) {
		for i := range widths {
			widths[i] = pageWidthLandscape / float64(len(widths))
		}
		return widths
	}
	var total float64
	for _, w := range data.Widths {
		total += w
	}
	for i, w := range data.Widths {
		widths[i] = pageWidthLandscape * w / total
	}
	return widths
}

func truncate(pdf *gofpdf.Fpdf, value string, width float64) string {
	limit := width - 2
	if pdf.GetStringWidth(value) <= limit {
		return value
	}
	runes := []rune(value)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > limit {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
