package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
	// Summary lines follow the table. "Label: value" lines split into two cells in CSV output.
	Summary []string
}

// CSVOption tweaks CSV rendering.
type CSVOption func(*CSVExporter)

// WithSummaryRows appends the dataset summary after an empty separator row.
func WithSummaryRows() CSVOption {
	return func(e *CSVExporter) { e.summary = true }
}

// WithUTF8BOM prefixes the output with a byte order mark so spreadsheet tools detect UTF-8 names.
func WithUTF8BOM() CSVOption {
	return func(e *CSVExporter) { e.bom = true }
}

// CSVExporter renders Dataset records into CSV bytes.
type CSVExporter struct {
	summary bool
	bom     bool
}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter(opts ...CSVOption) *CSVExporter {
	e := &CSVExporter{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Render produces CSV encoded bytes for the dataset. Every row is padded to the header width
// and text cells that a spreadsheet would evaluate as a formula are quoted with a leading apostrophe.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	width := len(data.Headers)
	if width == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	if e.bom {
		buf.WriteString("\ufeff")
	}
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	record := make([]string, width)
	for n, row := range data.Rows {
		for i, header := range data.Headers {
			record[i] = neutralizeFormula(row[header])
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row %d: %w", n+1, err)
		}
	}
	if e.summary && len(data.Summary) > 0 {
		if err := writer.Write(make([]string, width)); err != nil {
			return nil, fmt.Errorf("write csv separator: %w", err)
		}
		for _, line := range data.Summary {
			if err := writer.Write(summaryRecord(line, width)); err != nil {
				return nil, fmt.Errorf("write csv summary: %w", err)
			}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func summaryRecord(line string, width int) []string {
	record := make([]string, width)
	label, value, found := strings.Cut(line, ": ")
	if !found || width < 2 {
		record[0] = neutralizeFormula(line)
		return record
	}
	record[0] = neutralizeFormula(label)
	record[1] = neutralizeFormula(value)
	return record
}

// neutralizeFormula leaves numbers such as "-120.00" alone.
func neutralizeFormula(cell string) string {
	if cell == "" {
		return cell
	}
	switch cell[0] {
	case '=', '+', '-', '@', '\t', '\r':
		if _, err := decimal.NewFromString(cell); err == nil {
			return cell
		}
		return "'" + cell
	}
	return cell
}
