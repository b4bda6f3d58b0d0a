// docentd is the long-running service: HTTP API plus the optional directory
// watcher that ingests and processes documents as they appear.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docent/constants"
	"docent/internal/common"
	"docent/internal/export"
	"docent/internal/ingest"
	"docent/internal/llm"
	"docent/internal/llm/gemini"
	"docent/internal/llm/openai"
	processor "docent/internal/pipeline"
	"docent/internal/repository"
	"docent/internal/server"
)

func main() {
	// Process-level logger. The internal packages log through slog.
	zlog, _ := zap.NewProduction()
	defer func() { _ = zlog.Sync() }()
	log := zlog.Sugar()

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(slogger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(ctx, repository.Config{
		Driver:           cfg.Database.Driver,
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, slogger)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer db.Close(slogger)

	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	if err := db.HealthCheck(ctx, 3*time.Second); err != nil {
		log.Fatalf("DB health failed: %v", err)
	}
	log.Infow("DB health OK", "driver", cfg.Database.Driver)

	documents := repository.NewDocumentRepository(db, slogger)
	jobs := repository.NewJobRepository(db, slogger)
	results := repository.NewResultRepository(db, slogger)

	extractor, err := newEntityExtractor(ctx, cfg.LLM, slogger)
	if err != nil {
		log.Fatalf("model provider: %v", err)
	}
	if extractor == nil {
		log.Infow("no model provider configured, regex mode only")
	}

	textExtractor := ingest.NewExtractor(ingest.ExtractorConfig{
		Pdftotext: cfg.Extractor.Pdftotext,
		Pdfinfo:   cfg.Extractor.Pdfinfo,
		MaxBytes:  cfg.Extractor.MaxBytes,
	}, slogger)

	ingestor := ingest.NewFSIngestor(documents, slogger)
	proc := processor.NewProcessor(slogger,
		processor.NewTextStage(documents, jobs, textExtractor, slogger),
		processor.NewEntityStage(slogger, jobs, results, documents, extractor),
	)
	exporter := export.NewService(results, documents, slogger)

	srv := server.New(cfg.Server, slogger, db, documents, jobs, results, ingestor, proc, exporter, extractor)
	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infof("HTTP serving on %s", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http serve: %v", err)
		}
	}()

	if len(cfg.Watch.Roots) > 0 {
		go runWatcher(ctx, cfg.Watch, ingestor, proc, slogger)
	}

	<-ctx.Done()
	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("http shutdown: %v", err)
	}
	log.Info("stopped.")
}

// newEntityExtractor builds the configured provider, or nil when none is set.
func newEntityExtractor(ctx context.Context, cfg common.LLMConfig, logger *slog.Logger) (llm.EntityExtractor, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "gemini":
		return gemini.NewClient(ctx, gemini.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		}, logger)
	case "openai":
		return openai.NewClient(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
			Lenient:     cfg.Lenient,
		}, logger), nil
	default:
		return nil, errors.New("unknown LLM provider: " + cfg.Provider)
	}
}

// runWatcher ingests and processes every file the watcher reports. Errors on
// individual files are logged and skipped so the loop keeps running.
func runWatcher(ctx context.Context, cfg common.WatchConfig, ingestor *ingest.FSIngestor, proc *processor.Processor, logger *slog.Logger) {
	paths, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       cfg.Roots,
		InitialScan: cfg.InitialScan,
		Debounce:    cfg.Debounce,
	})
	if err != nil {
		logger.Error("watcher start failed", "error", err)
		return
	}
	mode, ok := constants.ParseMode(cfg.Mode)
	if !ok {
		logger.Error("invalid watch mode", "mode", cfg.Mode)
		return
	}
	logger.Info("watcher started", "roots", cfg.Roots, "mode", mode)

	for {
		select {
		case <-ctx.Done():
			return
		case werr, ok := <-errs:
			if !ok {
				return
			}
			logger.Warn("watcher error", "error", werr)
		case path, ok := <-paths:
			if !ok {
				return
			}
			res, err := ingestor.IngestPath(ctx, path)
			if err != nil {
				logger.Warn("watch ingest failed", "path", path, "error", err)
				continue
			}
			id, err := uuid.Parse(res.DocumentID)
			if err != nil {
				logger.Warn("bad document id", "id", res.DocumentID, "error", err)
				continue
			}
			if _, _, err := proc.ProcessDocument(ctx, id, mode); err != nil {
				logger.Warn("watch process failed", "path", path, "error", err)
			}
		}
	}
}
