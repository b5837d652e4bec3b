package serialize

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/munifact/munifact/internal/extract"
)

// CSVSerializer writes one header row plus one row per extracted record.
type CSVSerializer struct{}

func NewCSVSerializer() *CSVSerializer { return &CSVSerializer{} }

func (s *CSVSerializer) Extension() string { return "csv" }

func (s *CSVSerializer) Serialize(data *extract.FinancialData) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, r := range flatten(data) {
		rec := []string{r.Category, r.Type, r.Description, r.Amount, r.Fund, r.Municipality, r.FiscalYear}
		if err := w.Write(rec); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}
	return buf.Bytes(), nil
}
