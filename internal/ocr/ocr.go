package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "pol"
	TessdataDir   string
	DPI           int // rasterization DPI for PDFs, default 300

	PSM int // e.g., 6 is good for uniform block of text
	OEM int // 1 = LSTM; leave 0 to use default
}

type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

type Option func(*Extractor)

// WithRunner replaces the command runner, mainly for tests.
func WithRunner(r Runner) Option {
	return func(e *Extractor) { e.runner = r }
}

func NewExtractor(cfg Config, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "pol"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	e := &Extractor{cfg: cfg, runner: newExecRunner(logger), logger: logger}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ExtractText runs tesseract over a raster image and returns normalized text.
// An empty result is not an error here.
func (e *Extractor) ExtractText(ctx context.Context, imagePath string) (string, error) {
	start := time.Now()
	e.logger.Debug("ocr.extract.start", "path", imagePath, "lang", e.cfg.TesseractLang)

	args := []string{imagePath, "stdout", "-l", e.cfg.TesseractLang}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(e.cfg.OEM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}

	// tesseract <file> stdout -l <lang>
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		e.logger.Error("ocr.extract.failed", "path", imagePath, "error", err, "stderr", truncate(string(errb), 512))
		return "", fmt.Errorf("tesseract: %w", err)
	}

	txt := Normalize(reBoxNoise.ReplaceAllString(string(out), ""))
	e.logger.Info("ocr.extract.done",
		"path", imagePath,
		"chars", len(txt),
		"confidence", heuristicConfidence(txt),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return txt, nil
}

// RasterizeFirstPage renders page one of a PDF to outPNG.
func (e *Extractor) RasterizeFirstPage(ctx context.Context, pdfPath, outPNG string) error {
	// pdftoppm -singlefile appends the extension itself
	prefix := strings.TrimSuffix(outPNG, filepath.Ext(outPNG))
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm,
		"-r", strconv.Itoa(e.cfg.DPI), "-f", "1", "-l", "1", "-png", "-singlefile", pdfPath, prefix)
	if err != nil {
		e.logger.Error("ocr.rasterize.failed", "path", pdfPath, "error", err, "stderr", truncate(string(errb), 512))
		return fmt.Errorf("pdftoppm: %w", err)
	}
	produced := prefix + ".png"
	if _, err := os.Stat(produced); err != nil {
		return fmt.Errorf("pdftoppm produced no image: %w", err)
	}
	if produced != outPNG {
		if err := os.Rename(produced, outPNG); err != nil {
			return fmt.Errorf("move rasterized page: %w", err)
		}
	}
	return nil
}
