package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/pantry-receipts/internal/app"
	"github.com/joseph-ayodele/pantry-receipts/internal/common"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file")
		inmem      = flag.Bool("inmem", false, "use an in-memory SQLite database")
		dir        = flag.String("dir", "", "directory to import receipts from (required)")
		out        = flag.String("out", "", "output XLSX file path (optional, defaults to parent directory)")
		fromStr    = flag.String("from", "", "from date YYYY-MM-DD")
		toStr      = flag.String("to", "", "to date YYYY-MM-DD")
		merge      = flag.Bool("merge", false, "merge processed products into the pantry")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(*dir), "paragony.xlsx")
	}

	var from, to *time.Time
	if *fromStr != "" {
		parsed, err := time.Parse("2006-01-02", *fromStr)
		if err != nil {
			printError("Error: invalid --from date format, use YYYY-MM-DD: %v\n", err)
			os.Exit(1)
		}
		from = &parsed
	}
	if *toStr != "" {
		parsed, err := time.Parse("2006-01-02", *toStr)
		if err != nil {
			printError("Error: invalid --to date format, use YYYY-MM-DD: %v\n", err)
			os.Exit(1)
		}
		to = &parsed
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *inmem {
		cfg.Database.Driver = "sqlite"
		cfg.Database.DSN = "file:paragony?mode=memory&cache=shared&_pragma=foreign_keys(1)"
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close(context.Background())
	_ = a.VerifyModel(ctx)

	logger.Info("starting import", "dir", *dir)
	results, stats, err := a.Receipts.UploadDirectory(ctx, *dir, true, false)
	if err != nil {
		logger.Error("failed to import directory", "error", err)
		os.Exit(1)
	}
	logger.Info("import complete",
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed)

	// receipts are processed inline so the export sees every result
	processed, failures, merged := 0, 0, 0
	for _, r := range results {
		if r.Err != "" {
			continue
		}
		id, err := uuid.Parse(r.ID)
		if err != nil {
			logger.Error("failed to parse receipt id", "receipt_id", r.ID, "error", err)
			continue
		}
		if _, err := a.Receipts.Preview(ctx, id); err != nil {
			logger.Error("failed to confirm receipt", "receipt_id", id, "error", err)
			failures++
			continue
		}
		res := a.Processor.Process(ctx, id)
		if !res.OK() {
			logger.Error("failed to process receipt", "path", r.Path, "receipt_id", id, "message", res.Message)
			failures++
			continue
		}
		processed++
		if *merge {
			mr, err := a.Receipts.MergeIntoPantry(ctx, id)
			if err != nil {
				logger.Error("failed to merge receipt", "receipt_id", id, "error", err)
				continue
			}
			merged += mr.Merged + mr.Detached
		}
	}

	logger.Info("exporting to XLSX", "output", *out)
	xlsxBytes, err := a.Export.ExportReceiptsXLSX(ctx, from, to)
	if err != nil {
		logger.Error("failed to export receipts", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, xlsxBytes, 0o644); err != nil {
		logger.Error("failed to write output file", "error", err)
		os.Exit(1)
	}

	logger.Info("batch processing complete",
		"receipts_imported", stats.Succeeded,
		"receipts_processed", processed,
		"failures", failures,
		"pantry_updates", merged,
		"output", *out)
}
