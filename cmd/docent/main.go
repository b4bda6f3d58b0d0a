// docent is the command-line interface: one-shot extraction over files or
// stdin, batch ingestion, and result export.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"docent/constants"
	"docent/internal/common"
	"docent/internal/export"
	"docent/internal/ingest"
	"docent/internal/llm"
	"docent/internal/llm/gemini"
	"docent/internal/llm/openai"
	"docent/internal/ner"
	processor "docent/internal/pipeline"
	"docent/internal/repository"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "docent",
		Short:         "Entity extraction for Arabic and English documents",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelInfo
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log progress to stderr")

	root.AddCommand(newExtractCmd(), newIngestCmd(), newWatchCmd(), newExportCmd())
	return root
}

// newWatchCmd runs the directory watcher in the foreground, processing each
// new or changed file until interrupted.
func newWatchCmd() *cobra.Command {
	var modeFlag string

	cmd := &cobra.Command{
		Use:   "watch <dir>...",
		Short: "Watch directories and process documents as they appear",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, ok := constants.ParseMode(modeFlag)
			if !ok {
				return fmt.Errorf("unknown mode: %q", modeFlag)
			}

			cfg := common.LoadConfig()
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			app, err := newApp(ctx, cfg, mode != constants.ModeRegex)
			if err != nil {
				return err
			}
			defer app.close()

			paths, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
				Roots:       args,
				InitialScan: cfg.Watch.InitialScan,
				Debounce:    cfg.Watch.Debounce,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "watching:", strings.Join(args, ", "))

			for {
				select {
				case <-ctx.Done():
					return nil
				case werr, ok := <-errs:
					if !ok {
						return nil
					}
					fmt.Fprintln(cmd.ErrOrStderr(), "watch error:", werr)
				case path, ok := <-paths:
					if !ok {
						return nil
					}
					r, err := app.ingestor.IngestPath(ctx, path)
					if err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
						continue
					}
					id, err := uuid.Parse(r.DocumentID)
					if err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
						continue
					}
					jobID, res, err := app.proc.ProcessDocument(ctx, id, mode)
					if err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
						continue
					}
					_ = printJSON(cmd.OutOrStdout(), map[string]any{
						"source_path": path,
						"document_id": r.DocumentID,
						"job_id":      jobID.String(),
						"language":    res.Language,
						"entities":    res.Entities,
					})
				}
			}
		},
	}
	cmd.Flags().StringVarP(&modeFlag, "mode", "m", "regex", "extraction mode: regex, llm, or hybrid")
	return cmd
}

// newExtractCmd runs extraction without touching the database: a file path,
// or "-" for text on stdin. The result is printed as JSON.
func newExtractCmd() *cobra.Command {
	var modeFlag string

	cmd := &cobra.Command{
		Use:   "extract <file|->",
		Short: "Extract entities from a document or stdin text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, ok := constants.ParseMode(modeFlag)
			if !ok {
				return fmt.Errorf("unknown mode: %q", modeFlag)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			cfg := common.LoadConfig()
			var extractor llm.EntityExtractor
			if mode != constants.ModeRegex {
				var err error
				extractor, err = newEntityExtractor(ctx, cfg.LLM)
				if err != nil {
					return err
				}
				if extractor == nil {
					return errors.New("mode " + string(mode) + " requires LLM_PROVIDER to be set")
				}
			}

			text, filename, err := readInput(ctx, cfg, args[0])
			if err != nil {
				return err
			}

			cleaned := ner.Clean(text)
			language := ner.DetectLanguage(cleaned)

			result, _, needsReview, err := processor.ExtractFromText(
				ctx, nil, extractor, cleaned, mode, language, filename)
			if err != nil {
				result = ner.EmptyResult(err.Error())
				result.Language = language
			}

			return printJSON(cmd.OutOrStdout(), map[string]any{
				"mode":         string(mode),
				"language":     result.Language,
				"entities":     result.Entities,
				"needs_review": needsReview,
				"error":        result.Err,
			})
		},
	}
	cmd.Flags().StringVarP(&modeFlag, "mode", "m", "regex", "extraction mode: regex, llm, or hybrid")
	return cmd
}

func newIngestCmd() *cobra.Command {
	var (
		modeFlag string
		noRun    bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <path>",
		Short: "Register a file or directory and run the pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, ok := constants.ParseMode(modeFlag)
			if !ok {
				return fmt.Errorf("unknown mode: %q", modeFlag)
			}

			ctx := cmd.Context()
			cfg := common.LoadConfig()
			if err := cfg.Validate(); err != nil {
				return err
			}

			app, err := newApp(ctx, cfg, mode != constants.ModeRegex)
			if err != nil {
				return err
			}
			defer app.close()

			st, err := os.Stat(args[0])
			if err != nil {
				return err
			}

			type item struct {
				SourcePath   string `json:"source_path"`
				DocumentID   string `json:"document_id,omitempty"`
				JobID        string `json:"job_id,omitempty"`
				Deduplicated bool   `json:"deduplicated,omitempty"`
				Error        string `json:"error,omitempty"`
			}
			var items []item

			process := func(it *item) {
				if noRun || it.DocumentID == "" {
					return
				}
				id, err := uuid.Parse(it.DocumentID)
				if err != nil {
					it.Error = err.Error()
					return
				}
				jobID, _, err := app.proc.ProcessDocument(ctx, id, mode)
				it.JobID = jobID.String()
				if err != nil {
					it.Error = err.Error()
				}
			}

			if st.IsDir() {
				results, stats, err := app.ingestor.IngestDirectory(ctx, args[0], true)
				if err != nil {
					return err
				}
				for _, r := range results {
					it := item{SourcePath: r.SourcePath, DocumentID: r.DocumentID, Deduplicated: r.Deduplicated, Error: r.Err}
					if it.Error == "" {
						process(&it)
					}
					items = append(items, it)
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"stats": stats, "items": items})
			}

			r, err := app.ingestor.IngestPath(ctx, args[0])
			if err != nil {
				return err
			}
			it := item{SourcePath: r.SourcePath, DocumentID: r.DocumentID, Deduplicated: r.Deduplicated}
			process(&it)
			return printJSON(cmd.OutOrStdout(), it)
		},
	}
	cmd.Flags().StringVarP(&modeFlag, "mode", "m", "regex", "extraction mode: regex, llm, or hybrid")
	cmd.Flags().BoolVar(&noRun, "no-process", false, "register only, skip the pipeline")
	return cmd
}

func newExportCmd() *cobra.Command {
	var (
		formatFlag string
		outPath    string
	)

	cmd := &cobra.Command{
		Use:   "export <document-id>",
		Short: "Export the latest result for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("document-id must be a valid UUID: %w", err)
			}
			format, ok := export.ParseFormat(formatFlag)
			if !ok {
				return fmt.Errorf("format must be json, csv, or xlsx")
			}

			ctx := cmd.Context()
			cfg := common.LoadConfig()
			if err := cfg.Validate(); err != nil {
				return err
			}

			app, err := newApp(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer app.close()

			out, err := app.exporter.ExportDocument(ctx, id, format)
			if err != nil {
				return err
			}

			if outPath == "" || outPath == "-" {
				_, err = cmd.OutOrStdout().Write(out)
				return err
			}
			return os.WriteFile(outPath, out, 0o644)
		},
	}
	cmd.Flags().StringVarP(&formatFlag, "format", "f", "json", "output format: json, csv, or xlsx")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write to file instead of stdout")
	return cmd
}

// app bundles the storage-backed services the CLI subcommands share.
type app struct {
	db       *repository.DB
	ingestor *ingest.FSIngestor
	proc     *processor.Processor
	exporter *export.Service
}

func newApp(ctx context.Context, cfg *common.Config, needModel bool) (*app, error) {
	db, err := repository.Open(ctx, repository.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		DialTimeout:     cfg.Database.DialTimeout,
	}, nil)
	if err != nil {
		return nil, common.WrapError(err, "open database")
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close(nil)
		return nil, common.WrapError(err, "migrate")
	}

	documents := repository.NewDocumentRepository(db, nil)
	jobs := repository.NewJobRepository(db, nil)
	results := repository.NewResultRepository(db, nil)

	var extractor llm.EntityExtractor
	if needModel {
		extractor, err = newEntityExtractor(ctx, cfg.LLM)
		if err != nil {
			db.Close(nil)
			return nil, err
		}
		if extractor == nil {
			db.Close(nil)
			return nil, errors.New("LLM_PROVIDER is not set")
		}
	}

	textExtractor := ingest.NewExtractor(ingest.ExtractorConfig{
		Pdftotext: cfg.Extractor.Pdftotext,
		Pdfinfo:   cfg.Extractor.Pdfinfo,
		MaxBytes:  cfg.Extractor.MaxBytes,
	}, nil)

	return &app{
		db:       db,
		ingestor: ingest.NewFSIngestor(documents, nil),
		proc: processor.NewProcessor(nil,
			processor.NewTextStage(documents, jobs, textExtractor, nil),
			processor.NewEntityStage(nil, jobs, results, documents, extractor),
		),
		exporter: export.NewService(results, documents, nil),
	}, nil
}

func (a *app) close() {
	a.db.Close(nil)
}

func newEntityExtractor(ctx context.Context, cfg common.LLMConfig) (llm.EntityExtractor, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "gemini":
		return gemini.NewClient(ctx, gemini.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		}, nil)
	case "openai":
		return openai.NewClient(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
			Lenient:     cfg.Lenient,
		}, nil), nil
	default:
		return nil, errors.New("unknown LLM provider: " + cfg.Provider)
	}
}

// readInput returns the document text: stdin for "-", otherwise the file is
// converted with the same extractor the pipeline uses.
func readInput(ctx context.Context, cfg *common.Config, arg string) (text, filename string, err error) {
	if arg == "-" {
		b, err := io.ReadAll(io.LimitReader(os.Stdin, 8<<20))
		if err != nil {
			return "", "", err
		}
		return string(b), "", nil
	}

	tx := ingest.NewExtractor(ingest.ExtractorConfig{
		Pdftotext: cfg.Extractor.Pdftotext,
		Pdfinfo:   cfg.Extractor.Pdfinfo,
		MaxBytes:  cfg.Extractor.MaxBytes,
	}, nil)
	res, err := tx.Extract(ctx, arg)
	if err != nil {
		return "", "", err
	}
	return res.Text, arg, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
