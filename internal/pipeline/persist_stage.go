package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/pantry-receipts/constants"
	"github.com/joseph-ayodele/pantry-receipts/internal/entity"
	"github.com/joseph-ayodele/pantry-receipts/internal/parser"
	"github.com/joseph-ayodele/pantry-receipts/internal/repository"
)

// Suggester fills mapping suggestions inside the caller's transaction.
type Suggester interface {
	ProcessWith(ctx context.Context, r repository.Repos, items []*entity.Item) error
}

// PersistStage replaces a receipt's items with the extracted ones, stores
// mapping suggestions and copies the receipt metadata, all in one
// transaction.
type PersistStage struct {
	Store     *repository.Store
	Suggester Suggester
	Logger    *slog.Logger
}

func NewPersistStage(store *repository.Store, sug Suggester, logger *slog.Logger) *PersistStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersistStage{Store: store, Suggester: sug, Logger: logger}
}

func (s *PersistStage) Run(ctx context.Context, receiptID uuid.UUID, rec *parser.Receipt) ([]*entity.Item, error) {
	var items []*entity.Item
	err := s.Store.InTx(ctx, func(r repository.Repos) error {
		removed, err := r.Items.DeleteByReceipt(ctx, receiptID)
		if err != nil {
			return fmt.Errorf("remove previous items: %w", err)
		}
		items, err = r.Items.InsertForReceipt(ctx, receiptID, toNewItems(rec.Items))
		if err != nil {
			return fmt.Errorf("insert items: %w", err)
		}
		if s.Suggester != nil {
			if err := s.Suggester.ProcessWith(ctx, r, items); err != nil {
				return fmt.Errorf("mapping suggestions: %w", err)
			}
		}
		if err := r.Receipts.SetMetadata(ctx, receiptID, entity.ReceiptMetadata{
			StoreName:    rec.StoreName,
			PurchaseDate: rec.Date,
			TotalAmount:  rec.TotalAmount,
		}); err != nil {
			return fmt.Errorf("store metadata: %w", err)
		}
		s.Logger.Debug("pipeline.persist.items", "removed", removed, "inserted", len(items))
		return nil
	})
	if err != nil {
		return nil, stageErr(StagePersist, err)
	}
	return items, nil
}

func toNewItems(in []parser.Item) []entity.NewItem {
	out := make([]entity.NewItem, 0, len(in))
	for _, it := range in {
		cat, _ := constants.Canonicalize(it.Category)
		out = append(out, entity.NewItem{
			Name:            it.Name,
			Category:        cat,
			Price:           it.Price,
			ReceiptQuantity: wholeQuantity(it.Quantity),
		})
	}
	return out
}

// wholeQuantity rounds fractional amounts (0.5 kg) up to whole units.
func wholeQuantity(q decimal.Decimal) int {
	n := q.Ceil().IntPart()
	if n < 1 {
		return 1
	}
	return int(n)
}
