// Package extract declares the stage contracts of the document pipeline.
package extract

import (
	"context"
	"time"

	"docent/constants"
)

// TextExtractor is Stage 1: file -> text.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (TextExtractionResult, error)
}

type TextExtractionResult struct {
	Text     string
	Pages    int
	Format   constants.Format
	Method   string // "pdf-text" | "docx-xml" | "plain-text"
	Language string // "ar" | "en" | ""
	Duration time.Duration
	Warnings []string
}
