package llm

import (
	"strings"

	"docent/constants"
)

// maxPromptChars caps the document text included in a prompt. Contracts are
// front-loaded; the parties, dates, and terms appear early.
const maxPromptChars = 12000

// BuildSystemPrompt composes the system message: the task statement, the
// category enum, and strict formatting rules for the JSON output.
func BuildSystemPrompt() string {
	cats := constants.AsStringSlice()

	parts := []string{
		"You extract entities from Arabic or English documents and contracts.",
		"Extract important entities from the text in order of appearance.",
		"Use exact text for extractions. Do not paraphrase or overlap entities.",
		"Extract: names, dates, amounts/money, locations, organizations, phone numbers, emails, URLs, times.",
		"For contracts, also extract: positions/job titles, ID numbers, work schedules, notice periods, governing laws, durations, and the contract type.",
		"Each extraction has a 'category' that MUST be exactly one of the allowed enum: " + strings.Join(cats, ", ") + ".",
		"Return ONLY JSON that matches the provided JSON Schema: an object with an 'extractions' array.",
		"Keep Arabic text exactly as written; never transliterate or translate it.",
		"Never output null. If an attribute is not known, omit it.",
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt packages the document text with a filename hint and the
// few-shot examples. Text beyond maxPromptChars is truncated.
func BuildUserPrompt(req ExtractRequest) string {
	var b strings.Builder

	b.WriteString("Examples of the expected output:\n")
	for _, ex := range fewShotExamples {
		b.WriteString("\nText: ")
		b.WriteString(ex.text)
		b.WriteString("\nOutput: ")
		b.WriteString(ex.output)
		b.WriteString("\n")
	}

	if f := strings.TrimSpace(req.FilenameHint); f != "" {
		b.WriteString("\nFilename: ")
		b.WriteString(f)
		b.WriteString("\n")
	}
	if req.Language != "" {
		b.WriteString("Document language: ")
		b.WriteString(req.Language)
		b.WriteString("\n")
	}

	b.WriteString("\nDocument text:\n")
	text := strings.TrimSpace(req.Text)
	if len(text) > maxPromptChars {
		b.WriteString(text[:maxPromptChars])
		b.WriteString("\n…(truncated)")
	} else {
		b.WriteString(text)
	}
	return b.String()
}

type fewShot struct {
	text   string
	output string
}

var fewShotExamples = []fewShot{
	{
		text: "John Smith works at Microsoft Corporation in Seattle, earning $5000 monthly. His phone: 555-123-4567",
		output: `{"extractions":[` +
			`{"category":"name","text":"John Smith","attributes":{"type":"person"}},` +
			`{"category":"organization","text":"Microsoft Corporation","attributes":{"type":"company"}},` +
			`{"category":"location","text":"Seattle","attributes":{"type":"city"}},` +
			`{"category":"amount","text":"$5000","attributes":{"currency":"USD","type":"salary"}},` +
			`{"category":"phone","text":"555-123-4567","attributes":{"type":"mobile"}}]}`,
	},
	{
		text: "Employment Agreement dated March 15, 2024, between ABC Corp and Sarah Johnson, ID 123456789, " +
			"as Software Engineer starting April 1, 2024, salary $60,000 annually, 40 hours weekly, 30 days notice required.",
		output: `{"extractions":[` +
			`{"category":"contract_type","text":"Employment Agreement"},` +
			`{"category":"date","text":"March 15, 2024","attributes":{"type":"agreement_date"}},` +
			`{"category":"organization","text":"ABC Corp","attributes":{"type":"employer"}},` +
			`{"category":"name","text":"Sarah Johnson","attributes":{"type":"employee"}},` +
			`{"category":"id_number","text":"123456789","attributes":{"type":"employee_id"}},` +
			`{"category":"position","text":"Software Engineer","attributes":{"type":"job_title"}},` +
			`{"category":"date","text":"April 1, 2024","attributes":{"type":"start_date"}},` +
			`{"category":"amount","text":"$60,000","attributes":{"currency":"USD","type":"salary","period":"annually"}},` +
			`{"category":"work_schedule","text":"40 hours weekly","attributes":{"type":"working_hours"}},` +
			`{"category":"notice_period","text":"30 days","attributes":{"type":"termination_notice"}}]}`,
	},
}
