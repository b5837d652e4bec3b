package extract

import (
	"context"
	"strings"
	"time"

	"github.com/munifact/munifact/constants"
)

// TextExtractor is the primary stage: document bytes -> embedded text.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (TextResult, error)
}

type TextResult struct {
	Text     string
	Pages    int
	Duration time.Duration
}

// OpticalExtractor is the fallback stage: document bytes -> recognized text.
type OpticalExtractor interface {
	Recognize(ctx context.Context, path string) (OpticalResult, error)
}

type OpticalResult struct {
	Text       string
	Confidence float32
	Duration   time.Duration
}

// SemanticExtractor is the structuring stage: text -> categorized records.
type SemanticExtractor interface {
	Extract(ctx context.Context, text string) (*FinancialData, error)
}

// Record is one extracted line item.
type Record struct {
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	Amount      string `json:"amount"`
	Fund        string `json:"fund,omitempty"`
}

// Metadata describes the document the records came from.
type Metadata struct {
	Municipality string    `json:"municipality"`
	FiscalYear   string    `json:"fiscalYear"`
	ReportType   string    `json:"reportType"`
	ExtractedAt  time.Time `json:"extractedAt"`
	Model        string    `json:"model,omitempty"`
}

// FinancialData is the structured extraction result: a mapping of category
// name to an ordered sequence of records, plus extraction metadata.
type FinancialData struct {
	Categories map[constants.Category][]Record `json:"categories"`
	Metadata   Metadata                        `json:"metadata"`
}

// TotalRecords is the record count across all categories.
func (d *FinancialData) TotalRecords() int {
	n := 0
	for _, recs := range d.Categories {
		n += len(recs)
	}
	return n
}

// WordCount counts whitespace-separated tokens, the unit of the fallback
// threshold.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
