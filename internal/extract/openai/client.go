package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/munifact/munifact/constants"
	"github.com/munifact/munifact/internal/extract"
)

type Config struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float32
	Timeout     time.Duration
	// MaxChars caps the document text sent to the model to stay inside the
	// context window. Default 15000.
	MaxChars int
}

// Client implements extract.SemanticExtractor against an OpenAI-compatible
// chat/completions endpoint in JSON mode.
type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 15000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  logger,
	}
}

// wire shapes for the model response.
type wireLineItem struct {
	Category    string  `json:"category"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	Fund        string  `json:"fund"`
}

type wireFund struct {
	Name    string  `json:"name"`
	Balance float64 `json:"balance"`
	Type    string  `json:"type"`
}

type wirePayload struct {
	Revenues     []wireLineItem `json:"revenues"`
	Expenditures []wireLineItem `json:"expenditures"`
	Funds        []wireFund     `json:"funds"`
	Assets       []wireLineItem `json:"assets"`
	Liabilities  []wireLineItem `json:"liabilities"`
	Metadata     struct {
		MunicipalityName string `json:"municipalityName"`
		FiscalYear       string `json:"fiscalYear"`
		ReportType       string `json:"reportType"`
	} `json:"metadata"`
}

func (c *Client) Extract(ctx context.Context, text string) (*extract.FinancialData, error) {
	rid := uuid.New().String()
	start := time.Now()

	if len(text) > c.cfg.MaxChars {
		text = text[:c.cfg.MaxChars]
	}

	schema := buildFinancialJSONSchema()
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPromptPrefix + text},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	c.log.Info("llm.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"text_len", len(text),
	)

	raw, err := c.post(ctx, strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", body, rid)
	if err != nil {
		c.log.Error("llm.extract.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}
	content := []byte(strings.TrimSpace(cc.Choices[0].Message.Content))

	if err := validateJSONAgainstSchema(schema, content); err != nil {
		c.log.Error("llm.extract.schema_validation_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	var payload wirePayload
	if err := json.Unmarshal(content, &payload); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}

	data := payloadToFinancialData(&payload, c.cfg.Model)
	c.log.Info("llm.extract.ok",
		"req_id", rid,
		"records", data.TotalRecords(),
		"municipality", data.Metadata.Municipality,
		"fiscal_year", data.Metadata.FiscalYear,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return data, nil
}

func (c *Client) post(ctx context.Context, url string, body any, rid string) ([]byte, error) {
	bs, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.log.Warn("llm.http.response_body_close_error", "req_id", rid, "error", cerr)
		}
	}()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limited")
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("non-2xx status: %d", resp.StatusCode)
	}
	return raw, nil
}

func payloadToFinancialData(p *wirePayload, model string) *extract.FinancialData {
	cats := map[constants.Category][]extract.Record{
		constants.Revenues:     lineItemsToRecords(p.Revenues),
		constants.Expenditures: lineItemsToRecords(p.Expenditures),
		constants.Funds:        fundsToRecords(p.Funds),
		constants.Assets:       lineItemsToRecords(p.Assets),
		constants.Liabilities:  lineItemsToRecords(p.Liabilities),
	}

	meta := extract.Metadata{
		Municipality: orUnknown(p.Metadata.MunicipalityName),
		FiscalYear:   orUnknown(p.Metadata.FiscalYear),
		ReportType:   p.Metadata.ReportType,
		ExtractedAt:  time.Now().UTC(),
		Model:        model,
	}
	if meta.ReportType == "" {
		meta.ReportType = "CAFR"
	}
	return &extract.FinancialData{Categories: cats, Metadata: meta}
}

func lineItemsToRecords(items []wireLineItem) []extract.Record {
	out := make([]extract.Record, 0, len(items))
	for _, it := range items {
		out = append(out, extract.Record{
			Category:    it.Category,
			Description: it.Description,
			Amount:      formatAmount(it.Amount),
			Fund:        it.Fund,
		})
	}
	return out
}

func fundsToRecords(items []wireFund) []extract.Record {
	out := make([]extract.Record, 0, len(items))
	for _, it := range items {
		out = append(out, extract.Record{
			Category:    it.Name,
			Description: it.Type,
			Amount:      formatAmount(it.Balance),
		})
	}
	return out
}

func formatAmount(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
