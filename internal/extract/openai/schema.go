package openai

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// buildFinancialJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. We pass it to the model as a structured output constraint and
// also use it locally to validate the response before trusting it.
func buildFinancialJSONSchema() map[string]any {
	lineItem := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"category":    map[string]any{"type": "string", "minLength": 1},
			"amount":      map[string]any{"type": "number"},
			"description": map[string]any{"type": "string"},
			"fund":        map[string]any{"type": "string"},
		},
		"required": []string{"category", "amount"},
	}
	fundItem := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"name":    map[string]any{"type": "string", "minLength": 1},
			"balance": map[string]any{"type": "number"},
			"type":    map[string]any{"type": "string"},
		},
		"required": []string{"name", "balance"},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"revenues":     map[string]any{"type": "array", "items": lineItem},
			"expenditures": map[string]any{"type": "array", "items": lineItem},
			"funds":        map[string]any{"type": "array", "items": fundItem},
			"assets":       map[string]any{"type": "array", "items": lineItem},
			"liabilities":  map[string]any{"type": "array", "items": lineItem},
			"metadata": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"municipalityName": map[string]any{"type": "string"},
					"fiscalYear":       map[string]any{"type": "string"},
					"reportType":       map[string]any{"type": "string"},
				},
			},
		},
		"required": []string{"revenues", "expenditures", "funds", "assets", "liabilities"},
	}
}

// validateJSONAgainstSchema validates data against schemaMap.
func validateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
