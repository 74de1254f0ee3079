// Package mapper proposes and records links between receipt products and
// pantry products.
package mapper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/pantry-receipts/constants"
	"github.com/joseph-ayodele/pantry-receipts/internal/audit"
	"github.com/joseph-ayodele/pantry-receipts/internal/common"
	"github.com/joseph-ayodele/pantry-receipts/internal/entity"
	"github.com/joseph-ayodele/pantry-receipts/internal/repository"
)

const module = "mapper"

type Config struct {
	Threshold int // minimum similarity, default 80
	Limit     int // suggestions kept per item, default 3
}

type Mapper struct {
	store  *repository.Store
	cfg    Config
	audit  audit.Sink
	logger *slog.Logger
}

func New(store *repository.Store, cfg Config, sink audit.Sink, logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = audit.Nop{}
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 80
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 3
	}
	return &Mapper{store: store, cfg: cfg, audit: sink, logger: logger}
}

// FindSuggestions ranks pantry products by similarity to name.
func (m *Mapper) FindSuggestions(ctx context.Context, name string, limit int) ([]entity.Suggestion, error) {
	if limit <= 0 {
		limit = m.cfg.Limit
	}
	pantry, err := m.store.Items.ListPantry(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pantry: %w", err)
	}
	return Rank(name, pantry, m.cfg.Threshold, limit), nil
}

// ProcessReceiptProducts replaces the suggestions of every item in one
// transaction.
func (m *Mapper) ProcessReceiptProducts(ctx context.Context, items []*entity.Item) error {
	return m.store.InTx(ctx, func(r repository.Repos) error {
		return m.ProcessWith(ctx, r, items)
	})
}

// ProcessWith is ProcessReceiptProducts on caller-provided repositories,
// so it can join a larger transaction.
func (m *Mapper) ProcessWith(ctx context.Context, r repository.Repos, items []*entity.Item) error {
	if len(items) == 0 {
		return nil
	}
	pantry, err := r.Items.ListPantry(ctx)
	if err != nil {
		return fmt.Errorf("load pantry: %w", err)
	}
	matched := 0
	for _, it := range items {
		sugg := Rank(it.Name, pantry, m.cfg.Threshold, m.cfg.Limit)
		if err := r.Items.SetSuggestions(ctx, it.ID, sugg); err != nil {
			return fmt.Errorf("store suggestions for %s: %w", it.ID, err)
		}
		it.MappingSuggestions = sugg
		if len(sugg) > 0 {
			matched++
		}
	}
	m.logger.Info("mapper.suggestions.stored", "items", len(items), "with_match", matched, "pantry_size", len(pantry))
	return nil
}

// UpdateProductMapping links a receipt product to a pantry product, or
// marks it as new when target is nil.
func (m *Mapper) UpdateProductMapping(ctx context.Context, itemID uuid.UUID, target *uuid.UUID) error {
	err := m.store.InTx(ctx, func(r repository.Repos) error {
		item, err := r.Items.Get(ctx, itemID)
		if err != nil {
			return err
		}
		if item.InPantry() {
			return common.NewAppError("NOT_RECEIPT_ITEM", "pantry products cannot be mapped", common.ErrInvalidInput)
		}
		if target == nil {
			return r.Items.SetMapping(ctx, itemID, constants.MappingNew, nil)
		}
		if *target == itemID {
			return common.NewAppError("SELF_MAPPING", "a product cannot be mapped to itself", common.ErrInvalidInput)
		}
		dst, err := r.Items.Get(ctx, *target)
		if err != nil {
			return err
		}
		if !dst.InPantry() {
			return common.NewAppError("TARGET_NOT_IN_PANTRY", "mapping target must be a pantry product", common.ErrInvalidInput)
		}
		return r.Items.SetMapping(ctx, itemID, constants.MappingMapped, target)
	})
	if err != nil {
		m.logger.Warn("mapper.mapping.update_failed", "item_id", itemID, "error", err)
		return err
	}
	details := map[string]any{"item_id": itemID.String()}
	if target != nil {
		details["target_id"] = target.String()
	}
	m.audit.Log(ctx, constants.LevelInfo, module, "UpdateProductMapping", "product mapping updated", details)
	return nil
}

// IgnoreProduct excludes an item from pantry merges.
func (m *Mapper) IgnoreProduct(ctx context.Context, itemID uuid.UUID) error {
	if err := m.store.Items.SetMapping(ctx, itemID, constants.MappingIgnored, nil); err != nil {
		return err
	}
	m.audit.Log(ctx, constants.LevelInfo, module, "IgnoreProduct", "product ignored", map[string]any{"item_id": itemID.String()})
	return nil
}

// MergeResult summarises a pantry merge.
type MergeResult struct {
	Merged   int // added onto existing pantry products
	Detached int // moved into the pantry as new products
	Skipped  int // ignored items
}

// MergeIntoPantry moves the products of a processed receipt into the
// pantry in one transaction.
func (m *Mapper) MergeIntoPantry(ctx context.Context, receiptID uuid.UUID) (MergeResult, error) {
	var res MergeResult
	err := m.store.InTx(ctx, func(r repository.Repos) error {
		rec, err := r.Receipts.Get(ctx, receiptID)
		if err != nil {
			return err
		}
		if rec.Status != constants.StatusDone {
			return common.NewAppError("RECEIPT_NOT_DONE",
				fmt.Sprintf("receipt is %s; only processed receipts can be merged", rec.Status), common.ErrPrecondition)
		}
		items, err := r.Items.ListByReceipt(ctx, receiptID)
		if err != nil {
			return err
		}
		pantry, err := r.Items.ListPantry(ctx)
		if err != nil {
			return err
		}
		byID := make(map[uuid.UUID]*entity.Item, len(pantry))
		for _, p := range pantry {
			byID[p.ID] = p
		}

		for _, it := range items {
			if it.MappingStatus == constants.MappingIgnored {
				res.Skipped++
				continue
			}
			var dst *entity.Item
			if it.MappingStatus == constants.MappingMapped && it.MappedToID != nil {
				dst = byID[*it.MappedToID]
			}
			if dst == nil {
				dst = findByName(pantry, it.Name)
			}
			if dst != nil {
				if err := r.Items.AddPantryQuantity(ctx, dst.ID, it.ReceiptQuantity); err != nil {
					return fmt.Errorf("increase pantry quantity: %w", err)
				}
				dst.PantryQuantity += it.ReceiptQuantity
				if err := r.Items.Delete(ctx, it.ID); err != nil {
					return fmt.Errorf("discard merged item: %w", err)
				}
				res.Merged++
				continue
			}
			if err := r.Items.Detach(ctx, it.ID, it.ReceiptQuantity); err != nil {
				return fmt.Errorf("detach item: %w", err)
			}
			it.ReceiptID = nil
			it.MappedToID = nil
			it.PantryQuantity = it.ReceiptQuantity
			pantry = append(pantry, it)
			byID[it.ID] = it
			res.Detached++
		}
		return nil
	})
	if err != nil {
		m.logger.Warn("mapper.merge.failed", "receipt_id", receiptID, "error", err)
		return MergeResult{}, err
	}
	m.audit.Log(ctx, constants.LevelInfo, module, "MergeIntoPantry", "receipt merged into pantry", map[string]any{
		"receipt_id": receiptID.String(),
		"merged":     res.Merged,
		"detached":   res.Detached,
		"skipped":    res.Skipped,
	})
	return res, nil
}

func findByName(pantry []*entity.Item, name string) *entity.Item {
	name = strings.TrimSpace(name)
	for _, p := range pantry {
		if strings.EqualFold(strings.TrimSpace(p.Name), name) {
			return p
		}
	}
	return nil
}
