// Package ner extracts structured entities from Arabic or English free text
// and contracts using rule-based pattern matching.
//
// Each entity is recognized by an ordered list of patterns per category:
// marker-following captures (honorifics, "dated", "لمدة", "phone:") and
// bare shapes (numeric dates, currency amounts, digit groups). Matches
// carry byte offsets; for direct matches s[e.Start:e.End] == e.Text.
//
// Two API layers are provided:
//
//   - Structured: Recognize returns []Entity with offsets, category, and
//     labeling info.
//   - Mapping: Extract returns a Result with one de-duplicated list per
//     category, in first-match order of appearance.
//
// Marker-preceded matches have Labeled=true; they win ties against bare
// matches of the same category during overlap resolution.
//
// All functions are safe for concurrent use by multiple goroutines.
package ner

import (
	"strings"
	"unicode"

	"docent/constants"
)

// Entity represents a recognized entity with its position in the source text.
type Entity struct {
	Text     string             `json:"text"`     // The matched (or captured) text
	Start    int                `json:"start"`    // Byte offset (inclusive)
	End      int                `json:"end"`      // Byte offset (exclusive)
	Category constants.Category `json:"category"` // Classification of the entity
	Labeled  bool               `json:"labeled"`  // True if preceded by a marker keyword
}

// Result is the per-category mapping produced by Extract. Every known
// category is present as a key; lists preserve first-match order with
// duplicate exact strings collapsed to one entry. Err is the explicit
// error marker of the failure policy: when set, all lists are empty.
type Result struct {
	Language string                          `json:"language,omitempty"`
	Entities map[constants.Category][]string `json:"entities"`
	Err      string                          `json:"error,omitempty"`
}

// EmptyResult returns a Result with every category mapped to an empty list
// and the given error marker set.
func EmptyResult(errMsg string) Result {
	m := make(map[constants.Category][]string, len(constants.AllCategories()))
	for _, c := range constants.AllCategories() {
		m[c] = []string{}
	}
	return Result{Entities: m, Err: errMsg}
}

// maxInputBytes is the maximum input length Recognize will process.
// Inputs exceeding this are returned with no results.
const maxInputBytes = 1 << 20 // 1 MiB

// Recognize extracts all entities from the input string.
// Returns entities sorted by Start offset. Within a category, overlapping
// matches are resolved: the longer match wins; if equal length, labeled wins.
func Recognize(s string) []Entity {
	if s == "" || len(s) > maxInputBytes {
		return nil
	}
	return recognize(s)
}

// Extract runs the full regex path: clean the text, recognize entities, and
// fold them into the per-category mapping. Empty or oversized input degrades
// to an explicit error marker with all lists empty.
func Extract(text string) Result {
	cleaned := Clean(text)
	if cleaned == "" {
		return EmptyResult("no text to process")
	}
	if len(cleaned) > maxInputBytes {
		return EmptyResult("input exceeds maximum size")
	}

	res := EmptyResult("")
	res.Language = DetectLanguage(cleaned)

	seen := make(map[constants.Category]map[string]struct{})
	for _, e := range recognize(cleaned) {
		if seen[e.Category] == nil {
			seen[e.Category] = make(map[string]struct{})
		}
		if _, dup := seen[e.Category][e.Text]; dup {
			continue
		}
		seen[e.Category][e.Text] = struct{}{}
		res.Entities[e.Category] = append(res.Entities[e.Category], e.Text)
	}
	return res
}

// Clean normalizes whitespace and strips invisible artifacts that PDF and
// DOCX extraction commonly leave behind (BOM, zero-width space, Apple's
// private-use logo glyph).
func Clean(text string) string {
	if text == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range text {
		switch r {
		case '\uf8ff', '\ufeff', '\u200b', '\u200c', '\u200d':
			continue
		}
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// DetectLanguage classifies text as "ar" or "en" by the share of letters in
// the Arabic block. Mixed documents lean Arabic once a modest share of
// Arabic letters is present, matching how contracts embed Latin terms.
func DetectLanguage(s string) string {
	var arabic, letters int
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(unicode.Arabic, r) {
			arabic++
		}
	}
	if letters == 0 {
		return ""
	}
	if float64(arabic)/float64(letters) >= 0.15 {
		return "ar"
	}
	return "en"
}

// Texts returns the Text field of entities matching the given category.
func Texts(entities []Entity, cat constants.Category) []string {
	var out []string
	for _, e := range entities {
		if e.Category == cat {
			out = append(out, e.Text)
		}
	}
	return out
}
