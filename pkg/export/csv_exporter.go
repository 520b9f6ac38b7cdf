package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
	// Widths are relative column weights used by the PDF renderer; optional.
	Widths []float64
}

// utf8BOM lets spreadsheet tools detect the encoding of exported registers.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVExporter renders Dataset records into CSV bytes.
type CSVExporter struct {
	Separator rune
}

// NewCSVExporter builds a CSV exporter using comma separators.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{Separator: ','}
}

// Render produces CSV encoded bytes for the dataset.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	buf.Write(utf8BOM)
	writer := csv.NewWriter(buf)
	if e.Separator != 0 {
		writer.Comma = e.Separator
	}
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range data.Rows {
		record := make([]string, len(data.Headers))
		for i, header := range data.Headers {
			record[i] = row[header]
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
