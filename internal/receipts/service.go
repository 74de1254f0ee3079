// Package receipts is the application façade over ingestion, the
// processing pipeline and the product mapper.
package receipts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/pantry-receipts/constants"
	"github.com/joseph-ayodele/pantry-receipts/internal/async"
	"github.com/joseph-ayodele/pantry-receipts/internal/audit"
	"github.com/joseph-ayodele/pantry-receipts/internal/common"
	"github.com/joseph-ayodele/pantry-receipts/internal/entity"
	"github.com/joseph-ayodele/pantry-receipts/internal/ingest"
	"github.com/joseph-ayodele/pantry-receipts/internal/mapper"
	"github.com/joseph-ayodele/pantry-receipts/internal/pipeline"
	"github.com/joseph-ayodele/pantry-receipts/internal/repository"
)

const module = "receipts"

// Service handles receipt and pantry business logic.
type Service struct {
	store  *repository.Store
	ingest *ingest.Service
	queue  pipeline.Enqueuer
	mapper *mapper.Mapper
	audit  audit.Sink
	logger *slog.Logger
}

func NewService(
	store *repository.Store,
	ing *ingest.Service,
	queue pipeline.Enqueuer,
	m *mapper.Mapper,
	sink audit.Sink,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = audit.Nop{}
	}
	return &Service{store: store, ingest: ing, queue: queue, mapper: m, audit: sink, logger: logger}
}

// UploadRequest carries one uploaded file.
type UploadRequest struct {
	Body         io.Reader
	Filename     string
	DeclaredType string
	Comment      string
}

// Upload stores and normalizes the file and creates an AWAITING_PREVIEW
// receipt for it.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*entity.Receipt, error) {
	res, err := s.ingest.Ingest(ctx, req.Body, req.Filename, req.DeclaredType)
	if err != nil {
		s.logger.Warn("upload rejected", "filename", req.Filename, "error", err)
		return nil, uploadError(err)
	}
	return s.register(ctx, res, req.Comment)
}

// UploadFile is Upload for a file already on local disk.
func (s *Service) UploadFile(ctx context.Context, path string) (*entity.Receipt, error) {
	res, err := s.ingest.IngestFile(ctx, path)
	if err != nil {
		s.logger.Warn("file import rejected", "path", path, "error", err)
		return nil, uploadError(err)
	}
	return s.register(ctx, res, "")
}

func (s *Service) register(ctx context.Context, res ingest.Result, comment string) (*entity.Receipt, error) {
	rec := &entity.Receipt{
		ID:               res.ID,
		OriginalFilename: res.OriginalFilename,
		FilePath:         res.FilePath,
		MIMEType:         res.MIMEType,
		Comment:          comment,
		Status:           constants.StatusAwaitingPreview,
	}
	if res.OriginalPath != "" {
		rec.OriginalPath = &res.OriginalPath
	}
	if res.ThumbnailPath != "" {
		rec.ThumbnailPath = &res.ThumbnailPath
	}
	if err := s.store.Receipts.Create(ctx, rec); err != nil {
		if rerr := ingest.Remove(res.FilePath, res.OriginalPath, res.ThumbnailPath); rerr != nil {
			s.logger.Warn("cleanup after failed create", "receipt_id", res.ID, "error", rerr)
		}
		return nil, err
	}
	s.logger.Info("receipt uploaded", "receipt_id", rec.ID, "filename", rec.OriginalFilename, "mime", rec.MIMEType)
	s.audit.Log(common.WithReceiptID(ctx, rec.ID.String()), constants.LevelInfo, module, "Upload", "receipt uploaded",
		map[string]any{"filename": rec.OriginalFilename, "size": res.Size, "sha256": res.SHA256})
	return rec, nil
}

func uploadError(err error) error {
	switch {
	case errors.Is(err, ingest.ErrFileTooLarge):
		return common.NewAppError("FILE_TOO_LARGE", err.Error(), common.ErrInvalidInput)
	case errors.Is(err, ingest.ErrUnsupportedType):
		return common.NewAppError("UNSUPPORTED_TYPE", err.Error(), common.ErrInvalidInput)
	case errors.Is(err, ingest.ErrInvalidFile):
		return common.NewAppError("INVALID_FILE", err.Error(), common.ErrInvalidInput)
	default:
		return err
	}
}

// UploadDirectory imports every accepted file under root. With start set
// each imported receipt is confirmed and queued right away.
func (s *Service) UploadDirectory(ctx context.Context, root string, skipHidden, start bool) ([]ingest.FileResult, ingest.DirStats, error) {
	results, stats, err := ingest.WalkDirectory(ctx, root, skipHidden, func(ctx context.Context, path string) (string, error) {
		rec, err := s.UploadFile(ctx, path)
		if err != nil {
			return "", err
		}
		if start {
			if err := s.Submit(ctx, rec.ID); err != nil {
				return rec.ID.String(), err
			}
		}
		return rec.ID.String(), nil
	})
	s.logger.Info("directory imported", "root", root, "scanned", stats.Scanned, "matched", stats.Matched,
		"succeeded", stats.Succeeded, "failed", stats.Failed)
	return results, stats, err
}

// Submit confirms the preview and starts processing in one go.
func (s *Service) Submit(ctx context.Context, id uuid.UUID) error {
	if _, err := s.Preview(ctx, id); err != nil {
		return err
	}
	return s.StartProcessing(ctx, id)
}

// Preview confirms an uploaded receipt. Calling it again is a no-op.
func (s *Service) Preview(ctx context.Context, id uuid.UUID) (*entity.Receipt, error) {
	rec, err := s.store.Receipts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != constants.StatusAwaitingPreview {
		return rec, nil
	}
	if err := s.store.Receipts.Transition(ctx, id, constants.StatusAwaitingProcessing, repository.StatusChange{}); err != nil {
		return nil, err
	}
	return s.store.Receipts.Get(ctx, id)
}

// StartProcessing queues a confirmed receipt.
func (s *Service) StartProcessing(ctx context.Context, id uuid.UUID) error {
	rec, err := s.store.Receipts.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status != constants.StatusAwaitingProcessing {
		return common.NewAppError("NOT_READY",
			fmt.Sprintf("receipt is %s; only receipts awaiting processing can be started", rec.Status),
			common.ErrInvalidTransition)
	}
	return s.enqueue(ctx, id, "StartProcessing")
}

// Reprocess sends a finished or failed receipt through the pipeline again.
func (s *Service) Reprocess(ctx context.Context, id uuid.UUID) error {
	rec, err := s.store.Receipts.Get(ctx, id)
	if err != nil {
		return err
	}
	if !rec.Status.Terminal() {
		return common.NewAppError("NOT_FINISHED",
			fmt.Sprintf("receipt is %s; only processed or failed receipts can be reprocessed", rec.Status),
			common.ErrInvalidTransition)
	}
	if err := s.store.Receipts.Transition(ctx, id, constants.StatusAwaitingProcessing, repository.StatusChange{ClearResult: true}); err != nil {
		return err
	}
	return s.enqueue(ctx, id, "Reprocess")
}

func (s *Service) enqueue(ctx context.Context, id uuid.UUID, fn string) error {
	if err := s.queue.Enqueue(ctx, id); err != nil {
		if errors.Is(err, async.ErrAlreadyQueued) {
			return common.NewAppError("ALREADY_QUEUED", "receipt is already being processed", common.ErrConflict)
		}
		s.logger.Error("enqueue failed", "receipt_id", id, "error", err)
		return fmt.Errorf("enqueue receipt: %w", err)
	}
	s.audit.Log(common.WithReceiptID(ctx, id.String()), constants.LevelInfo, module, fn, "receipt queued for processing", nil)
	return nil
}

func (s *Service) GetStatus(ctx context.Context, id uuid.UUID) (entity.ReceiptStatusView, error) {
	rec, err := s.store.Receipts.Get(ctx, id)
	if err != nil {
		return entity.ReceiptStatusView{}, err
	}
	return rec.StatusView(), nil
}

// Get returns a receipt with its items.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*entity.Receipt, []*entity.Item, error) {
	rec, err := s.store.Receipts.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.store.Items.ListByReceipt(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return rec, items, nil
}

// List returns receipts newest first along with the total count.
func (s *Service) List(ctx context.Context, offset, limit int) ([]*entity.Receipt, int, error) {
	recs, err := s.store.Receipts.List(ctx, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.Receipts.Count(ctx, nil)
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

// Delete removes a receipt, its items and its files. Receipts being
// processed cannot be deleted.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	var rec *entity.Receipt
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		var err error
		if rec, err = r.Receipts.Get(ctx, id); err != nil {
			return err
		}
		if rec.Status.InProgress() {
			return common.NewAppError("IN_PROGRESS", "receipt is being processed", common.ErrPrecondition)
		}
		if _, err := r.Items.DeleteByReceipt(ctx, id); err != nil {
			return err
		}
		return r.Receipts.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	paths := []string{rec.FilePath}
	if rec.OriginalPath != nil {
		paths = append(paths, *rec.OriginalPath)
	}
	if rec.ThumbnailPath != nil {
		paths = append(paths, *rec.ThumbnailPath)
	}
	if err := ingest.Remove(paths...); err != nil {
		s.logger.Warn("receipt files not removed", "receipt_id", id, "error", err)
	}
	s.audit.Log(common.WithReceiptID(ctx, id.String()), constants.LevelInfo, module, "Delete", "receipt deleted",
		map[string]any{"filename": rec.OriginalFilename})
	return nil
}
