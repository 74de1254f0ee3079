// Package pipeline drives a receipt from its uploaded image to extracted,
// suggestion-annotated products.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/pantry-receipts/constants"
	"github.com/joseph-ayodele/pantry-receipts/internal/audit"
	"github.com/joseph-ayodele/pantry-receipts/internal/common"
	"github.com/joseph-ayodele/pantry-receipts/internal/entity"
	"github.com/joseph-ayodele/pantry-receipts/internal/llm"
	"github.com/joseph-ayodele/pantry-receipts/internal/repository"
)

const module = "pipeline"

// Enqueuer hands a receipt to the task facility that later calls Process.
type Enqueuer interface {
	Enqueue(ctx context.Context, receiptID uuid.UUID) error
}

type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultError   ResultStatus = "error"
)

// Result is what a processing run reports to the task facility.
type Result struct {
	Status  ResultStatus
	Message string
}

func (r Result) OK() bool { return r.Status == ResultSuccess }

// Processor coordinates OCR, model extraction and persistence for a receipt.
type Processor struct {
	store   *repository.Store
	ocr     *OCRStage
	extract *ExtractStage
	persist *PersistStage
	audit   audit.Sink
	logger  *slog.Logger
	now     func() time.Time
}

func NewProcessor(
	store *repository.Store,
	ocr TextExtractor,
	gen llm.Generator,
	sug Suggester,
	sink audit.Sink,
	logger *slog.Logger,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = audit.Nop{}
	}
	return &Processor{
		store:   store,
		ocr:     NewOCRStage(ocr, logger),
		extract: NewExtractStage(gen, logger),
		persist: NewPersistStage(store, sug, logger),
		audit:   sink,
		logger:  logger,
		now:     time.Now,
	}
}

// Process runs the whole pipeline for one receipt. It never returns an
// error: failures are recorded on the receipt row and reported in Result.
func (p *Processor) Process(ctx context.Context, receiptID uuid.UUID) (res Result) {
	ctx = common.WithReceiptID(ctx, receiptID.String())
	start := p.now()

	rec, err := p.store.Receipts.Get(ctx, receiptID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			p.logger.Warn("pipeline.receipt.not_found", "receipt_id", receiptID)
			p.audit.Log(ctx, constants.LevelWarning, module, "Process", "receipt not found", nil)
			return Result{Status: ResultError, Message: "receipt not found"}
		}
		p.logger.Error("pipeline.receipt.load_failed", "receipt_id", receiptID, "error", err)
		return Result{Status: ResultError, Message: "could not load receipt"}
	}

	if err := p.transition(ctx, receiptID, constants.StatusOCRInProgress, repository.StatusChange{
		Detail: DetailOCR, ClearResult: true,
	}); err != nil {
		p.logger.Warn("pipeline.start.rejected", "receipt_id", receiptID, "status", rec.Status, "error", err)
		return Result{Status: ResultError, Message: err.Error()}
	}

	defer func() {
		if v := recover(); v != nil {
			p.logger.Error("pipeline.panic", "receipt_id", receiptID, "panic", v)
			res = p.fail(ctx, receiptID, stageErr(StageUnknown, fmt.Errorf("panic: %v", v)))
		}
	}()

	text, err := p.ocr.Run(ctx, rec.FilePath)
	if err != nil {
		return p.fail(ctx, receiptID, err)
	}

	if err := p.transition(ctx, receiptID, constants.StatusAIInProgress, repository.StatusChange{Detail: DetailAI}); err != nil {
		return p.fail(ctx, receiptID, stageErr(StageUnknown, err))
	}

	parsed, err := p.extract.Run(ctx, text)
	if err != nil {
		return p.fail(ctx, receiptID, err)
	}

	items, err := p.persist.Run(ctx, receiptID, parsed)
	if err != nil {
		return p.fail(ctx, receiptID, err)
	}

	done := p.now()
	if err := p.transition(ctx, receiptID, constants.StatusDone, repository.StatusChange{
		Detail: DetailDone, ProcessedAt: &done,
	}); err != nil {
		return p.fail(ctx, receiptID, stageErr(StageUnknown, err))
	}

	msg := fmt.Sprintf("processed receipt: %d products", len(items))
	p.logger.Info("pipeline.done", "receipt_id", receiptID, "items", len(items),
		"store", parsed.StoreName, "elapsed_ms", done.Sub(start).Milliseconds())
	p.audit.Log(ctx, constants.LevelInfo, module, "Process", msg, map[string]any{
		"items": len(items),
		"store": parsed.StoreName,
	})
	return Result{Status: ResultSuccess, Message: msg}
}

// fail records the failure on the receipt before reporting it. The write
// uses a context detached from cancellation so a timed-out run still lands.
func (p *Processor) fail(ctx context.Context, receiptID uuid.UUID, err error) Result {
	detail := failureDetail(err)
	at := p.now()
	wctx := context.WithoutCancel(ctx)

	p.logger.Error("pipeline.failed", "receipt_id", receiptID, "detail", detail, "error", err)
	if terr := p.store.Receipts.Transition(wctx, receiptID, constants.StatusFailed, repository.StatusChange{
		Detail: detail, Error: err.Error(), ProcessedAt: &at,
	}); terr != nil {
		p.logger.Error("pipeline.fail.persist_failed", "receipt_id", receiptID, "error", terr)
	}
	p.audit.Log(wctx, constants.LevelError, module, "Process", detail, map[string]any{
		"stage": stageOf(err),
		"error": err.Error(),
	})
	return Result{Status: ResultError, Message: detail + ": " + err.Error()}
}

func (p *Processor) transition(ctx context.Context, id uuid.UUID, to constants.ReceiptStatus, change repository.StatusChange) error {
	if err := p.store.Receipts.Transition(ctx, id, to, change); err != nil {
		return err
	}
	p.audit.Log(ctx, constants.LevelInfo, module, "Process", "status changed", map[string]any{
		"status": string(to),
		"detail": change.Detail,
	})
	return nil
}

// GetStatus is what pollers call.
func (p *Processor) GetStatus(ctx context.Context, receiptID uuid.UUID) (entity.ReceiptStatusView, error) {
	rec, err := p.store.Receipts.Get(ctx, receiptID)
	if err != nil {
		return entity.ReceiptStatusView{}, err
	}
	return rec.StatusView(), nil
}

func stageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return StageUnknown
}
