package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/pantry-receipts/internal/app"
	"github.com/joseph-ayodele/pantry-receipts/internal/common"
	"github.com/joseph-ayodele/pantry-receipts/internal/ocr"
	"github.com/joseph-ayodele/pantry-receipts/internal/pipeline"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		logger.Error("usage: llm <image-or-txt-path> [times]")
		os.Exit(2)
	}
	path := os.Args[1]
	times := 3
	if len(os.Args) >= 3 {
		if n, err := strconv.Atoi(os.Args[2]); err == nil && n > 0 {
			times = n
		}
	}

	cfg, err := common.LoadConfig(os.Getenv("PARAGON_CONFIG"))
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	client, gen := app.NewGenerator(cfg.LLM, logger)
	vctx, vcancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = client.VerifyModel(vctx)
	vcancel()
	if err != nil {
		logger.Error("model check failed", "model", cfg.LLM.Model, "error", err)
		os.Exit(1)
	}

	// text files skip OCR so prompts can be iterated on quickly
	var text string
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		b, err := os.ReadFile(path)
		if err != nil {
			logger.Error("read text", "path", path, "error", err)
			os.Exit(1)
		}
		text = string(b)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		text, err = pipeline.NewOCRStage(ocr.NewExtractor(app.OCRConfig(cfg.OCR), logger), logger).Run(ctx, path)
		cancel()
		if err != nil {
			logger.Error("ocr failed", "path", path, "error", err)
			os.Exit(1)
		}
	}

	stage := pipeline.NewExtractStage(gen, logger)
	base := filepath.Base(path)
	for i := 1; i <= times; i++ {
		runCtx, cancelRun := context.WithTimeout(context.Background(), 2*time.Minute)
		start := time.Now()
		logger.Info("extract.run.start", "iter", i, "basename", base)

		rec, err := stage.Run(runCtx, text)
		cancelRun()

		if err != nil {
			logger.Error("extract.run.error", "iter", i, "error", err)
			continue
		}
		logger.Info("extract.run.ok",
			"iter", i,
			"store", rec.StoreName,
			"date", rec.Date.Format("2006-01-02"),
			"total", rec.TotalAmount.StringFixed(2),
			"items", len(rec.Items),
			"elapsed_ms", time.Since(start).Milliseconds())
	}

	logger.Info("done", "path", path, "times", times)
}
