package llm

import (
	"encoding/json"
	"slices"
	"strings"
	"testing"

	"docent/constants"
)

func TestFoldOrderAndDedup(t *testing.T) {
	extractions := []Extraction{
		{Category: "name", Text: "Sarah Johnson"},
		{Category: "person", Text: "Sarah Johnson"}, // synonym + duplicate
		{Category: "organization", Text: "ABC Corp"},
		{Category: "names", Text: "John Smith"}, // legacy plural key
		{Category: "whatever", Text: "dropped"},
		{Category: "name", Text: ""},
	}
	res := Fold(extractions, "en")
	if res.Err != "" {
		t.Fatalf("unexpected error marker: %q", res.Err)
	}
	if want := []string{"Sarah Johnson", "John Smith"}; !slices.Equal(res.Entities[constants.Name], want) {
		t.Errorf("names = %q, want %q", res.Entities[constants.Name], want)
	}
	if want := []string{"ABC Corp"}; !slices.Equal(res.Entities[constants.Organization], want) {
		t.Errorf("organizations = %q, want %q", res.Entities[constants.Organization], want)
	}
	if got := res.Entities[constants.Date]; len(got) != 0 {
		t.Errorf("dates should be empty, got %q", got)
	}
}

func TestCleanMarkdownFences(t *testing.T) {
	tests := []struct{ in, want string }{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n[1,2]\n```", `[1,2]`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := CleanMarkdownFences(tt.in); got != tt.want {
			t.Errorf("CleanMarkdownFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeExtractionsWrapsBareArray(t *testing.T) {
	raw := `[{"category":"person","text":"John Smith"}]`
	out, changed, err := NormalizeExtractions([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Contains(changed, "wrapped(array)") {
		t.Errorf("changed = %v, want wrapped(array)", changed)
	}
	var list ExtractionList
	if err := json.Unmarshal(out, &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Extractions) != 1 || list.Extractions[0].Category != "name" {
		t.Errorf("extractions = %+v", list.Extractions)
	}
}

func TestNormalizeExtractionsRepairs(t *testing.T) {
	raw := `{"entities":[
		{"category":"organization","text":" ABC Corp ","attributes":{"type":"employer","count":2}},
		{"category":"made_up","text":"x"},
		{"category":"date","text":"   "}
	],"note":"extra"}`
	out, _, err := NormalizeExtractions([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	var list ExtractionList
	if err := json.Unmarshal(out, &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Extractions) != 1 {
		t.Fatalf("extractions = %+v, want one", list.Extractions)
	}
	ex := list.Extractions[0]
	if ex.Text != "ABC Corp" || ex.Category != "organization" {
		t.Errorf("extraction = %+v", ex)
	}
	if ex.Attributes["count"] != "2" {
		t.Errorf("attributes = %v, want count coerced to string", ex.Attributes)
	}
	if err := ValidateJSONAgainstSchema(BuildExtractionJSONSchema(), out); err != nil {
		t.Errorf("repaired document should validate: %v", err)
	}
}

func TestValidateRejectsBadCategory(t *testing.T) {
	doc := `{"extractions":[{"category":"nonsense","text":"x"}]}`
	if err := ValidateJSONAgainstSchema(BuildExtractionJSONSchema(), []byte(doc)); err == nil {
		t.Fatal("expected validation error for unknown category")
	}
}

func TestBuildUserPromptTruncates(t *testing.T) {
	req := ExtractRequest{Text: strings.Repeat("x", maxPromptChars+100), Language: "en"}
	p := BuildUserPrompt(req)
	if !strings.Contains(p, "…(truncated)") {
		t.Error("expected truncation marker")
	}
	i := strings.Index(p, "Document text:\n")
	if i < 0 {
		t.Fatal("missing document section")
	}
	doc := p[i+len("Document text:\n"):]
	if n := strings.Count(doc, "x"); n != maxPromptChars {
		t.Errorf("document text length = %d, want %d", n, maxPromptChars)
	}
}

func TestBuildSystemPromptListsCategories(t *testing.T) {
	p := BuildSystemPrompt()
	for _, c := range constants.AsStringSlice() {
		if !strings.Contains(p, c) {
			t.Errorf("system prompt missing category %q", c)
		}
	}
}
