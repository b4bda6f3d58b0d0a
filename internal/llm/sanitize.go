package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"docent/constants"
)

// CleanMarkdownFences strips the ```json fences models sometimes wrap around
// an otherwise valid JSON body.
func CleanMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}

// NormalizeExtractions repairs the common ways a model response drifts from
// the schema so the document can still validate:
//   - a bare top-level array is wrapped into {"extractions": [...]}
//   - "entities" is renamed to "extractions"
//   - category labels are canonicalized ("person" -> "name", "names" -> "name")
//   - items with an unknown category or empty text are dropped
//   - attribute values are coerced to strings; other item keys are removed
//
// Returns the repaired document and a log-friendly list of what was touched.
func NormalizeExtractions(raw []byte) ([]byte, []string, error) {
	trimmed := strings.TrimSpace(string(raw))
	var changed []string

	// Wrap a bare array.
	if strings.HasPrefix(trimmed, "[") {
		trimmed = `{"extractions":` + trimmed + `}`
		changed = append(changed, "wrapped(array)")
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(trimmed), &m); err != nil {
		return nil, nil, fmt.Errorf("normalize: decode: %w", err)
	}

	if v, ok := m["entities"]; ok {
		if _, exists := m["extractions"]; !exists {
			m["extractions"] = v
		}
		delete(m, "entities")
		changed = append(changed, "entities->extractions")
	}
	for k := range m {
		if k != "extractions" {
			delete(m, k)
			changed = append(changed, k+"(unknown)")
		}
	}

	items, _ := m["extractions"].([]any)
	out := make([]any, 0, len(items))
	for _, it := range items {
		obj, ok := it.(map[string]any)
		if !ok {
			changed = append(changed, "item(type)")
			continue
		}
		rawCat, _ := obj["category"].(string)
		cat, ok := constants.Canonicalize(rawCat)
		if !ok {
			changed = append(changed, "item(category:"+rawCat+")")
			continue
		}
		text, _ := obj["text"].(string)
		text = strings.TrimSpace(text)
		if text == "" {
			changed = append(changed, "item(empty_text)")
			continue
		}

		clean := map[string]any{"category": string(cat), "text": text}
		if attrs, ok := obj["attributes"].(map[string]any); ok {
			sa := make(map[string]any, len(attrs))
			for k, v := range attrs {
				switch t := v.(type) {
				case string:
					if s := strings.TrimSpace(t); s != "" {
						sa[k] = s
					}
				case float64:
					sa[k] = strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", t), "0"), ".")
				case bool:
					sa[k] = fmt.Sprintf("%t", t)
				default:
					changed = append(changed, "attr("+k+")")
				}
			}
			if len(sa) > 0 {
				clean["attributes"] = sa
			}
		}
		out = append(out, clean)
	}
	m["extractions"] = out

	b, err := json.Marshal(m)
	if err != nil {
		return nil, changed, fmt.Errorf("normalize: encode: %w", err)
	}
	return b, changed, nil
}
