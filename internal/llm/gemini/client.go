// Package gemini implements the entity extractor on the Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"docent/internal/llm"
)

// Config for the Gemini client.
type Config struct {
	APIKey      string  // if empty, falls back to env GEMINI_API_KEY then LANGEXTRACT_API_KEY
	Model       string  // default "gemini-2.5-flash"
	Temperature float32 // default 0.1
}

type Client struct {
	cfg    Config
	client *genai.Client
	log    *slog.Logger
}

// NewClient creates a Gemini-backed extractor using the provided API key.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("LANGEXTRACT_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.1
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{cfg: cfg, client: client, log: logger}, nil
}

// ExtractEntities implements llm.EntityExtractor. The response MIME type is
// pinned to JSON; fences and near-miss shapes are still repaired before the
// schema check because models drift.
func (c *Client) ExtractEntities(ctx context.Context, req llm.ExtractRequest) ([]llm.Extraction, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("llm.extract.start",
		"req_id", rid,
		"provider", "gemini",
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"text_len", len(req.Text),
		"language", req.Language,
	)

	prompt := llm.BuildSystemPrompt() + "\n\n" + llm.BuildUserPrompt(req)
	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, []*genai.Content{
		genai.NewContentFromText(prompt, "user"),
	}, &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(c.cfg.Temperature),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		c.log.Error("llm.extract.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, nil, fmt.Errorf("generate content: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		c.log.Error("llm.extract.no_candidates",
			"req_id", rid,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, nil, fmt.Errorf("empty gemini response")
	}

	content := []byte(llm.CleanMarkdownFences(resp.Candidates[0].Content.Parts[0].Text))
	schema := llm.BuildExtractionJSONSchema()

	if err := llm.ValidateJSONAgainstSchema(schema, content); err != nil {
		cleaned, changed, nErr := llm.NormalizeExtractions(content)
		if nErr != nil {
			c.log.Error("llm.extract.normalize_failed",
				"req_id", rid, "error", nErr,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return nil, content, fmt.Errorf("normalize failed: %w", nErr)
		}
		if vErr := llm.ValidateJSONAgainstSchema(schema, cleaned); vErr != nil {
			c.log.Error("llm.extract.schema_validation_failed",
				"req_id", rid, "error", vErr, "content", string(content),
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return nil, content, fmt.Errorf("schema validation failed: %w", vErr)
		}
		c.log.Warn("llm.extract.normalize_applied",
			"req_id", rid, "changed", changed,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		content = cleaned
	}

	var out llm.ExtractionList
	if err := json.Unmarshal(content, &out); err != nil {
		c.log.Error("llm.extract.unmarshal_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, content, fmt.Errorf("unmarshal extractions: %w", err)
	}

	c.log.Info("llm.extract.ok",
		"req_id", rid,
		"extractions", len(out.Extractions),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out.Extractions, content, nil
}
