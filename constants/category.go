package constants

// Category is a record category in the extracted financial data.
type Category string

const (
	Revenues     Category = "revenues"
	Expenditures Category = "expenditures"
	Funds        Category = "funds"
	Assets       Category = "assets"
	Liabilities  Category = "liabilities"
)

// Categories is the canonical ordering. Serializers emit categories in this
// order so identical extraction results produce identical artifacts.
var Categories = []Category{
	Revenues,
	Expenditures,
	Funds,
	Assets,
	Liabilities,
}

// rowTypeLabels are the human-facing "Type" column values in serialized output.
var rowTypeLabels = map[Category]string{
	Revenues:     "Revenue",
	Expenditures: "Expenditure",
	Funds:        "Fund Balance",
	Assets:       "Asset",
	Liabilities:  "Liability",
}

// RowTypeLabel returns the display label for a category, falling back to the
// raw category name for categories outside the canonical set.
func RowTypeLabel(c Category) string {
	if label, ok := rowTypeLabels[c]; ok {
		return label
	}
	return string(c)
}

// AsStringSlice returns the canonical categories as plain strings, in order.
func AsStringSlice() []string {
	result := make([]string, len(Categories))
	for i, c := range Categories {
		result[i] = string(c)
	}
	return result
}
