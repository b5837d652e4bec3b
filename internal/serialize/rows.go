package serialize

import (
	"github.com/munifact/munifact/constants"
	"github.com/munifact/munifact/internal/extract"
)

// flatten emits rows in canonical category order, preserving record order
// within each category. This is what makes serialization deterministic for
// identical input.
func flatten(data *extract.FinancialData) []row {
	var rows []row
	for _, cat := range constants.Categories {
		label := constants.RowTypeLabel(cat)
		for _, rec := range data.Categories[cat] {
			rows = append(rows, row{
				Category:     rec.Category,
				Type:         label,
				Description:  rec.Description,
				Amount:       rec.Amount,
				Fund:         rec.Fund,
				Municipality: data.Metadata.Municipality,
				FiscalYear:   data.Metadata.FiscalYear,
			})
		}
	}
	return rows
}
