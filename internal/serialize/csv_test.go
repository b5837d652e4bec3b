package serialize

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/munifact/munifact/constants"
	"github.com/munifact/munifact/internal/extract"
)

func sampleData() *extract.FinancialData {
	return &extract.FinancialData{
		Categories: map[constants.Category][]extract.Record{
			constants.Liabilities: {
				{Category: "Long-term Debt", Amount: "9000000", Description: "bonds"},
			},
			constants.Revenues: {
				{Category: "Property Tax", Amount: "1200000.5", Description: "levy", Fund: "General"},
				{Category: "Sales Tax", Amount: "300000", Description: "local option"},
			},
			constants.Funds: {
				{Category: "General Fund", Amount: "450000", Description: "governmental"},
			},
		},
		Metadata: extract.Metadata{
			Municipality: "Springfield",
			FiscalYear:   "2024",
			ReportType:   "CAFR",
			ExtractedAt:  time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestCSVSerializeDeterministic(t *testing.T) {
	s := NewCSVSerializer()
	data := sampleData()

	a, err := s.Serialize(data)
	require.NoError(t, err)
	b, err := s.Serialize(data)
	require.NoError(t, err)
	require.Equal(t, a, b, "identical input must produce byte-identical output")
}

func TestCSVSerializeCategoryOrder(t *testing.T) {
	s := NewCSVSerializer()
	out, err := s.Serialize(sampleData())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 5) // header + 4 records
	require.Equal(t, "Category,Type,Description,Amount,Fund,Municipality,Fiscal_Year", lines[0])

	// Revenues before funds before liabilities, record order preserved.
	require.Contains(t, lines[1], "Property Tax")
	require.Contains(t, lines[1], "Revenue")
	require.Contains(t, lines[2], "Sales Tax")
	require.Contains(t, lines[3], "Fund Balance")
	require.Contains(t, lines[4], "Liability")

	require.Contains(t, lines[1], "Springfield")
	require.Contains(t, lines[1], "2024")
}

func TestCSVSerializeEmptyCategories(t *testing.T) {
	s := NewCSVSerializer()
	out, err := s.Serialize(&extract.FinancialData{
		Categories: map[constants.Category][]extract.Record{},
		Metadata:   extract.Metadata{Municipality: "Nowhere", FiscalYear: "2024"},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 1, "header only")
}

func TestXLSXSerializeProducesWorkbook(t *testing.T) {
	s := NewXLSXSerializer()
	out, err := s.Serialize(sampleData())
	require.NoError(t, err)
	require.NotEmpty(t, out)
	// XLSX is a zip container.
	require.Equal(t, []byte{'P', 'K'}, out[:2])
}

func TestTotalRecordsMatchesFlattenedRows(t *testing.T) {
	data := sampleData()
	require.Equal(t, data.TotalRecords(), len(flatten(data)))
}
