package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// TextExtractor is the OCR engine contract.
type TextExtractor interface {
	ExtractText(ctx context.Context, imagePath string) (string, error)
}

type OCRStage struct {
	Extractor TextExtractor
	Logger    *slog.Logger
}

func NewOCRStage(x TextExtractor, logger *slog.Logger) *OCRStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &OCRStage{Extractor: x, Logger: logger}
}

// Run extracts text from the normalized image. Whitespace-only output is
// ErrNoText. Failures are not retried.
func (s *OCRStage) Run(ctx context.Context, imagePath string) (string, error) {
	start := time.Now()
	text, err := s.Extractor.ExtractText(ctx, imagePath)
	if err != nil {
		return "", stageErr(StageOCR, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", stageErr(StageOCR, ErrNoText)
	}
	s.Logger.Debug("pipeline.ocr.done", "chars", len(text), "elapsed_ms", time.Since(start).Milliseconds())
	return text, nil
}
