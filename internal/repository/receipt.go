package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/pantry-receipts/constants"
	"github.com/joseph-ayodele/pantry-receipts/internal/common"
	"github.com/joseph-ayodele/pantry-receipts/internal/entity"
)

const receiptsTable = "receipts"

var receiptColumns = []string{
	"id", "original_filename", "file_path", "original_path", "mime_type", "thumbnail_path",
	"comment", "status", "detailed_status", "progress", "submitted_at", "processed_at",
	"processing_error", "store_name", "purchase_date", "total_amount",
}

// StatusChange describes the side fields written together with a status transition.
type StatusChange struct {
	Detail      string
	Error       string
	ProcessedAt *time.Time
	// ClearResult resets processing_error and processed_at.
	ClearResult bool
}

type ReceiptRepository interface {
	Create(ctx context.Context, r *entity.Receipt) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Receipt, error)
	List(ctx context.Context, offset, limit int) ([]*entity.Receipt, error)
	// Transition moves the receipt to `to` only if its current status is a
	// graph predecessor of `to`. The check and the write are one statement.
	Transition(ctx context.Context, id uuid.UUID, to constants.ReceiptStatus, change StatusChange) error
	SetMetadata(ctx context.Context, id uuid.UUID, meta entity.ReceiptMetadata) error
	Delete(ctx context.Context, id uuid.UUID) error
	Count(ctx context.Context, status *constants.ReceiptStatus) (int, error)
}

type receiptRepository struct {
	q       dialect.ExecQuerier
	dialect string
	logger  *slog.Logger
}

func NewReceiptRepository(q dialect.ExecQuerier, d string, logger *slog.Logger) ReceiptRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &receiptRepository{q: q, dialect: d, logger: logger}
}

func (r *receiptRepository) Create(ctx context.Context, rec *entity.Receipt) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Status == "" {
		rec.Status = constants.StatusAwaitingPreview
	}
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = time.Now().UTC()
	}
	rec.Progress = rec.Status.Progress()

	var total any
	if rec.TotalAmount != nil {
		total = *rec.TotalAmount
	}
	q, args := builder(r.dialect).Insert(receiptsTable).
		Columns(receiptColumns...).
		Values(
			rec.ID, rec.OriginalFilename, rec.FilePath, nullString(rec.OriginalPath), rec.MIMEType,
			nullString(rec.ThumbnailPath), rec.Comment, string(rec.Status), nullString(rec.DetailedStatus),
			rec.Progress, rec.SubmittedAt, nullTime(rec.ProcessedAt), nullString(rec.ProcessingError),
			nullString(rec.StoreName), nullTime(rec.PurchaseDate), total,
		).Query()
	if _, err := exec(ctx, r.q, q, args); err != nil {
		r.logger.Error("failed to create receipt", "receipt_id", rec.ID, "error", err)
		return fmt.Errorf("insert receipt: %w", err)
	}
	return nil
}

func (r *receiptRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Receipt, error) {
	b := builder(r.dialect)
	q, args := b.Select(receiptColumns...).
		From(entsql.Table(receiptsTable)).
		Where(entsql.EQ("id", id)).
		Query()
	recs, err := r.fetch(ctx, q, args)
	if err != nil {
		r.logger.Error("failed to get receipt", "receipt_id", id, "error", err)
		return nil, err
	}
	if len(recs) == 0 {
		return nil, common.NotFound("receipt", id)
	}
	return recs[0], nil
}

func (r *receiptRepository) List(ctx context.Context, offset, limit int) ([]*entity.Receipt, error) {
	b := builder(r.dialect)
	sel := b.Select(receiptColumns...).
		From(entsql.Table(receiptsTable)).
		OrderBy(entsql.Desc("submitted_at"))
	if limit > 0 || offset > 0 {
		sel = sel.Limit(pageLimit(limit))
	}
	if offset > 0 {
		sel = sel.Offset(offset)
	}
	q, args := sel.Query()
	recs, err := r.fetch(ctx, q, args)
	if err != nil {
		r.logger.Error("failed to list receipts", "error", err)
		return nil, err
	}
	return recs, nil
}

func (r *receiptRepository) Transition(ctx context.Context, id uuid.UUID, to constants.ReceiptStatus, change StatusChange) error {
	from := constants.Predecessors(to)
	if len(from) == 0 {
		return common.InvalidTransition("any", string(to))
	}
	allowed := make([]any, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	u := builder(r.dialect).Update(receiptsTable).
		Set("status", string(to)).
		Set("progress", to.Progress())
	if change.Detail != "" {
		u = u.Set("detailed_status", change.Detail)
	} else {
		u = u.SetNull("detailed_status")
	}
	if change.Error != "" {
		u = u.Set("processing_error", change.Error)
	} else if change.ClearResult {
		u = u.SetNull("processing_error")
	}
	if change.ProcessedAt != nil {
		u = u.Set("processed_at", *change.ProcessedAt)
	} else if change.ClearResult {
		u = u.SetNull("processed_at")
	}
	q, args := u.Where(entsql.And(entsql.EQ("id", id), entsql.In("status", allowed...))).Query()

	n, err := exec(ctx, r.q, q, args)
	if err != nil {
		r.logger.Error("failed to update receipt status", "receipt_id", id, "to", to, "error", err)
		return fmt.Errorf("update receipt status: %w", err)
	}
	if n == 1 {
		r.logger.Debug("receipt status changed", "receipt_id", id, "to", to)
		return nil
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	r.logger.Warn("receipt status transition rejected", "receipt_id", id, "from", current.Status, "to", to)
	return common.InvalidTransition(string(current.Status), string(to))
}

func (r *receiptRepository) SetMetadata(ctx context.Context, id uuid.UUID, meta entity.ReceiptMetadata) error {
	u := builder(r.dialect).Update(receiptsTable)
	if meta.StoreName != "" {
		u = u.Set("store_name", meta.StoreName)
	}
	if !meta.PurchaseDate.IsZero() {
		u = u.Set("purchase_date", meta.PurchaseDate)
	}
	if meta.TotalAmount.IsPositive() {
		u = u.Set("total_amount", meta.TotalAmount)
	}
	if u.Empty() {
		return nil
	}
	q, args := u.Where(entsql.EQ("id", id)).Query()
	n, err := exec(ctx, r.q, q, args)
	if err != nil {
		r.logger.Error("failed to set receipt metadata", "receipt_id", id, "error", err)
		return fmt.Errorf("update receipt metadata: %w", err)
	}
	if n == 0 {
		return common.NotFound("receipt", id)
	}
	return nil
}

func (r *receiptRepository) Delete(ctx context.Context, id uuid.UUID) error {
	q, args := builder(r.dialect).Delete(receiptsTable).Where(entsql.EQ("id", id)).Query()
	n, err := exec(ctx, r.q, q, args)
	if err != nil {
		r.logger.Error("failed to delete receipt", "receipt_id", id, "error", err)
		return fmt.Errorf("delete receipt: %w", err)
	}
	if n == 0 {
		return common.NotFound("receipt", id)
	}
	return nil
}

func (r *receiptRepository) Count(ctx context.Context, status *constants.ReceiptStatus) (int, error) {
	b := builder(r.dialect)
	sel := b.Select(entsql.Count("*")).From(entsql.Table(receiptsTable))
	if status != nil {
		sel = sel.Where(entsql.EQ("status", string(*status)))
	}
	q, args := sel.Query()
	return countRows(ctx, r.q, q, args)
}

func (r *receiptRepository) fetch(ctx context.Context, q string, args []any) ([]*entity.Receipt, error) {
	rows, err := query(ctx, r.q, q, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.Receipt
	for rows.Next() {
		var (
			rec                                                  entity.Receipt
			status                                               string
			origPath, thumb, detail, procErr, store              entsql.NullString
			processedAt, purchaseDate                            entsql.NullTime
			total                                                decimal.NullDecimal
		)
		if err := rows.Scan(
			&rec.ID, &rec.OriginalFilename, &rec.FilePath, &origPath, &rec.MIMEType, &thumb,
			&rec.Comment, &status, &detail, &rec.Progress, &rec.SubmittedAt, &processedAt,
			&procErr, &store, &purchaseDate, &total,
		); err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		rec.Status = constants.ReceiptStatus(status)
		rec.OriginalPath = stringPtr(origPath)
		rec.ThumbnailPath = stringPtr(thumb)
		rec.DetailedStatus = stringPtr(detail)
		rec.ProcessingError = stringPtr(procErr)
		rec.StoreName = stringPtr(store)
		rec.ProcessedAt = timePtr(processedAt)
		rec.PurchaseDate = timePtr(purchaseDate)
		if total.Valid {
			d := total.Decimal
			rec.TotalAmount = &d
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
