package serialize

import "github.com/munifact/munifact/internal/extract"

// Serializer turns a semantic-extraction result into a flat tabular byte
// stream. Implementations must be deterministic: identical input order
// produces byte-identical output.
type Serializer interface {
	Serialize(data *extract.FinancialData) ([]byte, error)
	// Extension is the artifact file extension without the dot, e.g. "csv".
	Extension() string
}

// row is the flattened shape shared by the CSV and XLSX serializers.
type row struct {
	Category     string
	Type         string
	Description  string
	Amount       string
	Fund         string
	Municipality string
	FiscalYear   string
}

var header = []string{"Category", "Type", "Description", "Amount", "Fund", "Municipality", "Fiscal_Year"}
