package llm

import (
	"context"

	"docent/constants"
	"docent/internal/ner"
)

// Extraction is one entity as returned by a model: a category label, the
// exact source text, and optional free-form attributes ("type": "person").
type Extraction struct {
	Category   string            `json:"category"`
	Text       string            `json:"text"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// ExtractionList is the wire shape we ask models to produce.
type ExtractionList struct {
	Extractions []Extraction `json:"extractions"`
}

type ExtractRequest struct {
	Text         string
	Language     string // "ar" | "en" | "" (unknown)
	FilenameHint string
}

// EntityExtractor is the interface the pipeline depends on. Implementations
// return the extractions in order of appearance plus the raw validated JSON
// for auditing.
type EntityExtractor interface {
	ExtractEntities(ctx context.Context, req ExtractRequest) ([]Extraction, []byte, error)
}

// Fold maps model extractions onto the per-category result shape: unknown
// category labels are canonicalized or skipped, order of appearance is kept,
// and exact duplicates collapse to one entry.
func Fold(extractions []Extraction, language string) ner.Result {
	res := ner.EmptyResult("")
	res.Language = language

	seen := make(map[constants.Category]map[string]struct{})
	for _, ex := range extractions {
		cat, ok := constants.Canonicalize(ex.Category)
		if !ok || ex.Text == "" {
			continue
		}
		if seen[cat] == nil {
			seen[cat] = make(map[string]struct{})
		}
		if _, dup := seen[cat][ex.Text]; dup {
			continue
		}
		seen[cat][ex.Text] = struct{}{}
		res.Entities[cat] = append(res.Entities[cat], ex.Text)
	}
	return res
}
