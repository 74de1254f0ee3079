package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/joseph-ayodele/pantry-receipts/internal/llm"
)

type Stage string

const (
	StageOCR     Stage = "ocr"
	StageLLM     Stage = "llm"
	StageParse   Stage = "parse"
	StagePersist Stage = "persist"
	StageUnknown Stage = "unexpected"
)

var ErrNoText = errors.New("no text detected in receipt image")

// StageError ties a failure to the stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// Detailed status texts shown to pollers.
const (
	DetailOCR        = "Rozpoznawanie tekstu (OCR)..."
	DetailAI         = "Analiza paragonu przez model AI..."
	DetailDone       = "Przetwarzanie zakończone pomyślnie"
	DetailNoText     = "Nie wykryto tekstu na paragonie"
	DetailOCRFailed  = "Błąd rozpoznawania tekstu (OCR)"
	DetailLLMDown    = "Nie można połączyć się z usługą AI"
	DetailLLMModel   = "Model AI jest niedostępny"
	DetailLLMTimeout = "Przekroczono czas oczekiwania na odpowiedź usługi AI"
	DetailLLMAPI     = "Usługa AI zwróciła błąd"
	DetailBadOutput  = "Nieprawidłowa odpowiedź modelu AI"
	DetailPersist    = "Błąd zapisu wyników przetwarzania"
	DetailUnexpected = "Nieoczekiwany błąd podczas przetwarzania"
)

// failureDetail picks the human-readable explanation for a failed run.
func failureDetail(err error) string {
	var se *StageError
	stage := StageUnknown
	if errors.As(err, &se) {
		stage = se.Stage
	}
	switch stage {
	case StageOCR:
		if errors.Is(err, ErrNoText) {
			return DetailNoText
		}
		return DetailOCRFailed
	case StageLLM:
		switch {
		case errors.Is(err, llm.ErrModel):
			return DetailLLMModel
		case errors.Is(err, llm.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
			return DetailLLMTimeout
		case errors.Is(err, llm.ErrConnection):
			return DetailLLMDown
		default:
			return DetailLLMAPI
		}
	case StageParse:
		return DetailBadOutput
	case StagePersist:
		return DetailPersist
	default:
		return DetailUnexpected
	}
}
