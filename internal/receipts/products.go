package receipts

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/pantry-receipts/constants"
	"github.com/joseph-ayodele/pantry-receipts/internal/common"
	"github.com/joseph-ayodele/pantry-receipts/internal/entity"
	"github.com/joseph-ayodele/pantry-receipts/internal/mapper"
	"github.com/joseph-ayodele/pantry-receipts/internal/repository"
)

// ImportProducts applies user corrections to a processed receipt. Items
// listed in edits are updated, every other item of the receipt is dropped.
func (s *Service) ImportProducts(ctx context.Context, receiptID uuid.UUID, edits []entity.ItemEdit) ([]*entity.Item, error) {
	var kept []*entity.Item
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		rec, err := r.Receipts.Get(ctx, receiptID)
		if err != nil {
			return err
		}
		if rec.Status != constants.StatusDone {
			return common.NewAppError("RECEIPT_NOT_DONE", "only processed receipts can be imported", common.ErrPrecondition)
		}
		items, err := r.Items.ListByReceipt(ctx, receiptID)
		if err != nil {
			return err
		}
		owned := make(map[uuid.UUID]bool, len(items))
		for _, it := range items {
			owned[it.ID] = true
		}
		selected := make(map[uuid.UUID]bool, len(edits))
		for _, e := range edits {
			if !owned[e.ID] {
				return common.NewAppError("FOREIGN_ITEM", fmt.Sprintf("product %s does not belong to receipt", e.ID), common.ErrInvalidInput)
			}
			if err := r.Items.ApplyEdit(ctx, e); err != nil {
				return err
			}
			selected[e.ID] = true
		}
		for _, it := range items {
			if selected[it.ID] {
				continue
			}
			if err := r.Items.Delete(ctx, it.ID); err != nil {
				return err
			}
		}
		kept, err = r.Items.ListByReceipt(ctx, receiptID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.audit.Log(common.WithReceiptID(ctx, receiptID.String()), constants.LevelInfo, module, "ImportProducts", "products imported",
		map[string]any{"kept": len(kept)})
	return kept, nil
}

func (s *Service) MergeIntoPantry(ctx context.Context, receiptID uuid.UUID) (mapper.MergeResult, error) {
	return s.mapper.MergeIntoPantry(common.WithReceiptID(ctx, receiptID.String()), receiptID)
}

func (s *Service) FindSuggestions(ctx context.Context, name string, limit int) ([]entity.Suggestion, error) {
	return s.mapper.FindSuggestions(ctx, name, limit)
}

func (s *Service) UpdateProductMapping(ctx context.Context, itemID uuid.UUID, target *uuid.UUID) error {
	return s.mapper.UpdateProductMapping(ctx, itemID, target)
}

func (s *Service) IgnoreProduct(ctx context.Context, itemID uuid.UUID) error {
	return s.mapper.IgnoreProduct(ctx, itemID)
}

// ListPendingMappings returns receipt products still waiting for a mapping
// decision, with the total count.
func (s *Service) ListPendingMappings(ctx context.Context, offset, limit int) ([]*entity.Item, int, error) {
	items, err := s.store.Items.ListByMappingStatus(ctx, constants.MappingPending, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	pending := constants.MappingPending
	total, err := s.store.Items.Count(ctx, &pending)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Service) ListPantry(ctx context.Context) ([]*entity.Item, error) {
	return s.store.Items.ListPantry(ctx)
}

func (s *Service) UpdatePantryQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	if err := s.store.Items.SetPantryQuantity(ctx, itemID, quantity); err != nil {
		return err
	}
	s.audit.Log(ctx, constants.LevelInfo, module, "UpdatePantryQuantity", "pantry quantity changed",
		map[string]any{"item_id": itemID.String(), "quantity": quantity})
	return nil
}

// CategorizeProduct sets a product's category. Unknown categories are
// rejected rather than mapped to the fallback.
func (s *Service) CategorizeProduct(ctx context.Context, itemID uuid.UUID, category string) (constants.Category, error) {
	cat, ok := constants.Canonicalize(category)
	if !ok {
		return "", common.NewAppError("INVALID_CATEGORY", fmt.Sprintf("unknown category %q", category), common.ErrInvalidInput)
	}
	if err := s.store.Items.SetCategory(ctx, itemID, cat); err != nil {
		return "", err
	}
	return cat, nil
}

func (s *Service) Statistics(ctx context.Context) (entity.Statistics, error) {
	var st entity.Statistics
	var err error
	if st.TotalProducts, err = s.store.Items.Count(ctx, nil); err != nil {
		return st, err
	}
	mapped := constants.MappingMapped
	if st.MappedProducts, err = s.store.Items.Count(ctx, &mapped); err != nil {
		return st, err
	}
	if st.TotalReceipts, err = s.store.Receipts.Count(ctx, nil); err != nil {
		return st, err
	}
	done := constants.StatusDone
	if st.ProcessedReceipts, err = s.store.Receipts.Count(ctx, &done); err != nil {
		return st, err
	}
	if st.PerCategory, err = s.store.Items.CountByCategory(ctx); err != nil {
		return st, err
	}
	return st, nil
}

// ListLogs returns audit entries newest first, optionally filtered by level.
func (s *Service) ListLogs(ctx context.Context, level *constants.LogLevel, offset, limit int) ([]*entity.LogEntry, error) {
	if level != nil && *level != constants.LevelInfo && *level != constants.LevelWarning && *level != constants.LevelError {
		return nil, common.NewAppError("INVALID_LEVEL", fmt.Sprintf("unknown log level %q", *level), common.ErrInvalidInput)
	}
	return s.store.Logs.List(ctx, level, offset, limit)
}
