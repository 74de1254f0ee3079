// Package app assembles the processing stack from configuration so the
// daemon and the batch tool share one wiring.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joseph-ayodele/pantry-receipts/internal/async"
	"github.com/joseph-ayodele/pantry-receipts/internal/audit"
	"github.com/joseph-ayodele/pantry-receipts/internal/common"
	"github.com/joseph-ayodele/pantry-receipts/internal/export"
	"github.com/joseph-ayodele/pantry-receipts/internal/ingest"
	"github.com/joseph-ayodele/pantry-receipts/internal/llm"
	"github.com/joseph-ayodele/pantry-receipts/internal/llm/ollama"
	"github.com/joseph-ayodele/pantry-receipts/internal/mapper"
	"github.com/joseph-ayodele/pantry-receipts/internal/ocr"
	"github.com/joseph-ayodele/pantry-receipts/internal/pipeline"
	"github.com/joseph-ayodele/pantry-receipts/internal/receipts"
	"github.com/joseph-ayodele/pantry-receipts/internal/repository"
)

// App holds every long-lived component. Close releases the queue and the
// database in that order.
type App struct {
	Config    *common.Config
	Store     *repository.Store
	OCR       *ocr.Extractor
	LLM       *ollama.Client
	Mapper    *mapper.Mapper
	Processor *pipeline.Processor
	Queue     *async.TaskQueue
	Receipts  *receipts.Service
	Export    *export.Service

	drv    *entsql.Driver
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// DatabaseConfig translates the configuration section into repository.Config.
func DatabaseConfig(cfg common.DatabaseConfig) repository.Config {
	return repository.Config{
		Driver:           cfg.Driver,
		DSN:              cfg.DSN,
		MaxConns:         cfg.MaxConns,
		MinConns:         cfg.MinConns,
		MaxConnLifetime:  cfg.MaxConnLifetime,
		MaxConnIdleTime:  cfg.MaxConnIdleTime,
		DialTimeout:      cfg.DialTimeout,
		StatementTimeout: cfg.StatementTimeout,
	}
}

// OCRConfig translates the configuration section into ocr.Config.
func OCRConfig(cfg common.OCRConfig) ocr.Config {
	return ocr.Config{
		Pdftoppm:      cfg.Pdftoppm,
		Tesseract:     cfg.Tesseract,
		TesseractLang: cfg.TesseractLang,
		TessdataDir:   cfg.TessdataDir,
		DPI:           cfg.DPI,
		PSM:           6,
	}
}

// NewGenerator builds the Ollama client and wraps it with the retry policy.
func NewGenerator(cfg common.LLMConfig, logger *slog.Logger) (*ollama.Client, llm.Generator) {
	client := ollama.NewClient(ollama.Config{
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: float64(cfg.Temperature),
		Timeout:     cfg.Timeout,
	}, logger)
	return client, llm.WithRetry(client, llm.RetryPolicy{
		Attempts: cfg.RetryAttempts,
		MinWait:  cfg.RetryMinWait,
		MaxWait:  cfg.RetryMaxWait,
	}, logger)
}

// New opens and migrates the database and wires the pipeline, the queue and
// the services on top of it.
func New(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	drv, pool, err := repository.Open(ctx, DatabaseConfig(cfg.Database), logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repository.HealthCheck(ctx, drv, 5*time.Second, logger); err != nil {
		repository.Close(drv, pool, logger)
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := repository.Migrate(ctx, drv, logger); err != nil {
		repository.Close(drv, pool, logger)
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	store := repository.NewStore(drv, logger)
	sink := audit.Multi{audit.NewSlogSink(logger), audit.NewRepositorySink(store.Logs, logger)}

	extractor := ocr.NewExtractor(OCRConfig(cfg.OCR), logger)
	client, gen := NewGenerator(cfg.LLM, logger)

	m := mapper.New(store, mapper.Config{Threshold: cfg.Mapper.Threshold, Limit: cfg.Mapper.Limit}, sink, logger)
	proc := pipeline.NewProcessor(store, extractor, gen, m, sink, logger)
	queue := async.NewTaskQueue(async.HandlerFunc(func(ctx context.Context, id uuid.UUID) async.Outcome {
		res := proc.Process(ctx, id)
		return async.Outcome{Success: res.OK(), Message: res.Message}
	}), logger,
		async.WithWorkers(cfg.Worker.Workers),
		async.WithQueueSize(cfg.Worker.QueueSize),
		async.WithTaskTimeout(cfg.Worker.TaskTimeout),
	)

	ing := ingest.NewService(ingest.Config{
		UploadDir:      cfg.Storage.UploadDir,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
	}, extractor, logger)

	return &App{
		Config:    cfg,
		Store:     store,
		OCR:       extractor,
		LLM:       client,
		Mapper:    m,
		Processor: proc,
		Queue:     queue,
		Receipts:  receipts.NewService(store, ing, queue, m, sink, logger),
		Export:    export.NewService(store.Receipts, store.Items, logger),
		drv:       drv,
		pool:      pool,
		logger:    logger,
	}, nil
}

// VerifyModel reports whether the configured model is available. Failure is
// not fatal; receipts fail with a model error until it is pulled.
func (a *App) VerifyModel(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.LLM.VerifyModel(ctx); err != nil {
		a.logger.Warn("llm model unavailable", "model", a.Config.LLM.Model, "error", err)
		return err
	}
	a.logger.Info("llm model available", "model", a.Config.LLM.Model)
	return nil
}

// Close drains the queue within ctx and closes the database.
func (a *App) Close(ctx context.Context) {
	a.Queue.Shutdown(ctx)
	repository.Close(a.drv, a.pool, a.logger)
}
