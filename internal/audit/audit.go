// Package audit records pipeline and mapping events for operators.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/joseph-ayodele/pantry-receipts/constants"
	"github.com/joseph-ayodele/pantry-receipts/internal/common"
	"github.com/joseph-ayodele/pantry-receipts/internal/entity"
	"github.com/joseph-ayodele/pantry-receipts/internal/repository"
)

// Sink receives audit events. Implementations must not fail the caller;
// delivery problems are reported through their own logger.
type Sink interface {
	Log(ctx context.Context, level constants.LogLevel, module, function, message string, details map[string]any)
}

// SlogSink writes events to a structured logger.
type SlogSink struct {
	logger *slog.Logger
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Log(ctx context.Context, level constants.LogLevel, module, function, message string, details map[string]any) {
	attrs := append([]any{"module", module, "function", function}, common.LogAttrs(ctx)...)
	if len(details) > 0 {
		attrs = append(attrs, slog.Any("details", details))
	}
	s.logger.Log(ctx, slogLevel(level), message, attrs...)
}

func slogLevel(l constants.LogLevel) slog.Level {
	switch l {
	case constants.LevelError:
		return slog.LevelError
	case constants.LevelWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// RepositorySink persists events as log entries.
type RepositorySink struct {
	repo   repository.LogRepository
	logger *slog.Logger
}

func NewRepositorySink(repo repository.LogRepository, logger *slog.Logger) *RepositorySink {
	if logger == nil {
		logger = slog.Default()
	}
	return &RepositorySink{repo: repo, logger: logger}
}

func (s *RepositorySink) Log(ctx context.Context, level constants.LogLevel, module, function, message string, details map[string]any) {
	e := &entity.LogEntry{
		Level:    level,
		Module:   module,
		Function: function,
		Message:  message,
	}
	if len(details) > 0 {
		b, err := json.Marshal(details)
		if err != nil {
			s.logger.Warn("audit.details.encode_failed", "module", module, "error", err)
		} else {
			e.Details = string(b)
		}
	}
	// persist even when the triggering request was cancelled
	if err := s.repo.Insert(context.WithoutCancel(ctx), e); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("audit.persist_failed", "module", module, "function", function, "error", err)
	}
}

// Multi fans an event out to every sink.
type Multi []Sink

func (m Multi) Log(ctx context.Context, level constants.LogLevel, module, function, message string, details map[string]any) {
	for _, s := range m {
		if s != nil {
			s.Log(ctx, level, module, function, message, details)
		}
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Log(context.Context, constants.LogLevel, string, string, string, map[string]any) {}
