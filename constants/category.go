package constants

import (
	"strings"
)

// Category is a fixed entity extraction class.
type Category string

const (
	Name         Category = "name"
	Date         Category = "date"
	Time         Category = "time"
	Duration     Category = "duration"
	Amount       Category = "amount"
	Location     Category = "location"
	Organization Category = "organization"
	Phone        Category = "phone"
	Email        Category = "email"
	URL          Category = "url"
	Position     Category = "position"
	IDNumber     Category = "id_number"
	WorkSchedule Category = "work_schedule"
	NoticePeriod Category = "notice_period"
	GoverningLaw Category = "governing_law"
	ContractType Category = "contract_type"
)

var allCategories = []Category{
	Name,
	Date,
	Time,
	Duration,
	Amount,
	Location,
	Organization,
	Phone,
	Email,
	URL,
	Position,
	IDNumber,
	WorkSchedule,
	NoticePeriod,
	GoverningLaw,
	ContractType,
}

// AllCategories returns every category in presentation order.
func AllCategories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

func AsStringSlice() []string {
	result := make([]string, len(allCategories))
	for i, cat := range allCategories {
		result[i] = string(cat)
	}
	return result
}

// synonyms maps labels an LLM (or the legacy result map) may emit to
// canonical categories. Plural keys are the legacy per-category map keys.
var synonyms = map[string]Category{
	"names":          Name,
	"person":         Name,
	"people":         Name,
	"dates":          Date,
	"times":          Time,
	"durations":      Duration,
	"amounts":        Amount,
	"money":          Amount,
	"salary":         Amount,
	"locations":      Location,
	"place":          Location,
	"city":           Location,
	"address":        Location,
	"organizations":  Organization,
	"company":        Organization,
	"employer":       Organization,
	"phones":         Phone,
	"phone_number":   Phone,
	"mobile":         Phone,
	"emails":         Email,
	"email_address":  Email,
	"urls":           URL,
	"website":        URL,
	"positions":      Position,
	"job_title":      Position,
	"id_numbers":     IDNumber,
	"id":             IDNumber,
	"work_schedules": WorkSchedule,
	"working_hours":  WorkSchedule,
	"notice_periods": NoticePeriod,
	"governing_laws": GoverningLaw,
	"contract_types": ContractType,
}

// Canonicalize resolves an arbitrary label to a known category.
// Returns false when the label matches nothing.
func Canonicalize(input string) (Category, bool) {
	if input == "" {
		return "", false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.ReplaceAll(normalized, "-", "_")

	for _, cat := range allCategories {
		if normalized == string(cat) {
			return cat, true
		}
	}
	if cat, ok := synonyms[normalized]; ok {
		return cat, true
	}
	return "", false
}
