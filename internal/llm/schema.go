package llm

import "docent/constants"

// BuildExtractionJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. We pass it to the provider as an output constraint and also use
// it locally to validate what comes back. Category is restricted to the enum.
func BuildExtractionJSONSchema() map[string]any {
	item := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"category": map[string]any{
				"type": "string",
				"enum": constants.AsStringSlice(),
			},
			"text": map[string]any{"type": "string", "minLength": 1},
			"attributes": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
		},
		"required": []string{"category", "text"},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"extractions": map[string]any{
				"type":  "array",
				"items": item,
			},
		},
		"required": []string{"extractions"},
	}
}
