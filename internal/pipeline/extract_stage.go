package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/pantry-receipts/constants"
	"github.com/joseph-ayodele/pantry-receipts/internal/llm"
	"github.com/joseph-ayodele/pantry-receipts/internal/parser"
)

// ExtractStage turns OCR text into a validated receipt through the model.
type ExtractStage struct {
	Generator llm.Generator
	Logger    *slog.Logger
}

func NewExtractStage(gen llm.Generator, logger *slog.Logger) *ExtractStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractStage{Generator: gen, Logger: logger}
}

func (s *ExtractStage) Run(ctx context.Context, ocrText string) (*parser.Receipt, error) {
	system := llm.BuildSystemPrompt(constants.AsStringSlice())
	prompt := llm.BuildUserPrompt(ocrText)

	start := time.Now()
	raw, err := s.Generator.Generate(ctx, prompt, system)
	if err != nil {
		return nil, stageErr(StageLLM, err)
	}
	s.Logger.Debug("pipeline.llm.done", "response_bytes", len(raw), "elapsed_ms", time.Since(start).Milliseconds())

	rec, err := parser.Parse(raw)
	if err != nil {
		s.Logger.Warn("pipeline.parse.failed", "error", err, "response_bytes", len(raw))
		return nil, stageErr(StageParse, err)
	}
	return rec, nil
}
