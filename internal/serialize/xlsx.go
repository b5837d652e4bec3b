package serialize

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/munifact/munifact/internal/extract"
)

// XLSXSerializer writes a single-sheet workbook with the same columns as the
// CSV output.
type XLSXSerializer struct{}

func NewXLSXSerializer() *XLSXSerializer { return &XLSXSerializer{} }

func (s *XLSXSerializer) Extension() string { return "xlsx" }

func (s *XLSXSerializer) Serialize(data *extract.FinancialData) ([]byte, error) {
	f := excelize.NewFile()
	const sheet = "Extracted"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}

	rowIdx := 2
	for _, r := range flatten(data) {
		values := []string{r.Category, r.Type, r.Description, r.Amount, r.Fund, r.Municipality, r.FiscalYear}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, rowIdx)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, fmt.Errorf("write row %d: %w", rowIdx, err)
			}
		}
		rowIdx++
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
