package repository

import (
	"context"
	"encoding/json"
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

const productsTable = "products"

var itemColumns = []string{
	"id", "name", "category", "price", "expiry_date", "receipt_quantity", "pantry_quantity",
	"receipt_id", "mapping_status", "mapped_to_id", "mapping_suggestions", "created_at",
}

type ItemRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*entity.Item, error)
	ListByReceipt(ctx context.Context, receiptID uuid.UUID) ([]*entity.Item, error)
	ListPantry(ctx context.Context) ([]*entity.Item, error)
	ListByMappingStatus(ctx context.Context, status constants.MappingStatus, offset, limit int) ([]*entity.Item, error)
	InsertForReceipt(ctx context.Context, receiptID uuid.UUID, items []entity.NewItem) ([]*entity.Item, error)
	InsertPantry(ctx context.Context, item entity.NewItem, quantity int) (*entity.Item, error)
	DeleteByReceipt(ctx context.Context, receiptID uuid.UUID) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
	SetSuggestions(ctx context.Context, id uuid.UUID, suggestions []entity.Suggestion) error
	SetMapping(ctx context.Context, id uuid.UUID, status constants.MappingStatus, mappedTo *uuid.UUID) error
	SetCategory(ctx context.Context, id uuid.UUID, category constants.Category) error
	ApplyEdit(ctx context.Context, edit entity.ItemEdit) error
	// Detach moves a receipt item into the pantry.
	Detach(ctx context.Context, id uuid.UUID, pantryQuantity int) error
	AddPantryQuantity(ctx context.Context, id uuid.UUID, delta int) error
	SetPantryQuantity(ctx context.Context, id uuid.UUID, quantity int) error
	Count(ctx context.Context, status *constants.MappingStatus) (int, error)
	CountByCategory(ctx context.Context) (map[constants.Category]int, error)
}

type itemRepository struct {
	q       dialect.ExecQuerier
	dialect string
	logger  *slog.Logger
}

func NewItemRepository(q dialect.ExecQuerier, d string, logger *slog.Logger) ItemRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &itemRepository{q: q, dialect: d, logger: logger}
}

func (r *itemRepository) selectItems() *entsql.Selector {
	return builder(r.dialect).Select(itemColumns...).From(entsql.Table(productsTable))
}

func (r *itemRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Item, error) {
	q, args := r.selectItems().Where(entsql.EQ("id", id)).Query()
	items, err := r.fetch(ctx, q, args)
	if err != nil {
		r.logger.Error("failed to get item", "item_id", id, "error", err)
		return nil, err
	}
	if len(items) == 0 {
		return nil, common.NotFound("product", id)
	}
	return items[0], nil
}

func (r *itemRepository) ListByReceipt(ctx context.Context, receiptID uuid.UUID) ([]*entity.Item, error) {
	q, args := r.selectItems().
		Where(entsql.EQ("receipt_id", receiptID)).
		OrderBy("created_at", "name").
		Query()
	items, err := r.fetch(ctx, q, args)
	if err != nil {
		r.logger.Error("failed to list receipt items", "receipt_id", receiptID, "error", err)
		return nil, err
	}
	return items, nil
}

func (r *itemRepository) ListPantry(ctx context.Context) ([]*entity.Item, error) {
	q, args := r.selectItems().
		Where(entsql.IsNull("receipt_id")).
		OrderBy("name").
		Query()
	items, err := r.fetch(ctx, q, args)
	if err != nil {
		r.logger.Error("failed to list pantry", "error", err)
		return nil, err
	}
	return items, nil
}

func (r *itemRepository) ListByMappingStatus(ctx context.Context, status constants.MappingStatus, offset, limit int) ([]*entity.Item, error) {
	sel := r.selectItems().
		Where(entsql.And(entsql.EQ("mapping_status", string(status)), entsql.NotNull("receipt_id"))).
		OrderBy("created_at", "name")
	if limit > 0 || offset > 0 {
		sel = sel.Limit(pageLimit(limit))
	}
	if offset > 0 {
		sel = sel.Offset(offset)
	}
	q, args := sel.Query()
	items, err := r.fetch(ctx, q, args)
	if err != nil {
		r.logger.Error("failed to list items by mapping status", "status", status, "error", err)
		return nil, err
	}
	return items, nil
}

func (r *itemRepository) InsertForReceipt(ctx context.Context, receiptID uuid.UUID, items []entity.NewItem) ([]*entity.Item, error) {
	if len(items) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	ins := builder(r.dialect).Insert(productsTable).Columns(
		"id", "name", "category", "price", "expiry_date", "receipt_quantity", "pantry_quantity",
		"receipt_id", "mapping_status", "created_at",
	)
	out := make([]*entity.Item, 0, len(items))
	for i, it := range items {
		if err := validateNewItem(it, now); err != nil {
			return nil, err
		}
		rid := receiptID
		row := &entity.Item{
			ID:              uuid.New(),
			Name:            it.Name,
			Category:        it.Category,
			Price:           it.Price,
			ExpiryDate:      it.ExpiryDate,
			ReceiptQuantity: it.ReceiptQuantity,
			ReceiptID:       &rid,
			MappingStatus:   constants.MappingPending,
			// keep insertion order stable for ListByReceipt
			CreatedAt: now.Add(time.Duration(i) * time.Microsecond),
		}
		if row.ReceiptQuantity <= 0 {
			row.ReceiptQuantity = 1
		}
		if !row.Category.Valid() {
			row.Category = constants.Other
		}
		ins = ins.Values(
			row.ID, row.Name, string(row.Category), row.Price, nullTime(row.ExpiryDate),
			row.ReceiptQuantity, 0, receiptID, string(row.MappingStatus), row.CreatedAt,
		)
		out = append(out, row)
	}
	q, args := ins.Query()
	if _, err := exec(ctx, r.q, q, args); err != nil {
		r.logger.Error("failed to insert receipt items", "receipt_id", receiptID, "count", len(items), "error", err)
		return nil, fmt.Errorf("insert items: %w", err)
	}
	return out, nil
}

func (r *itemRepository) InsertPantry(ctx context.Context, it entity.NewItem, quantity int) (*entity.Item, error) {
	now := time.Now().UTC()
	if err := validateNewItem(it, now); err != nil {
		return nil, err
	}
	if quantity < 0 {
		return nil, common.NewAppError("INVALID_QUANTITY", "pantry quantity must not be negative", common.ErrValidation)
	}
	row := &entity.Item{
		ID:              uuid.New(),
		Name:            it.Name,
		Category:        it.Category,
		Price:           it.Price,
		ExpiryDate:      it.ExpiryDate,
		ReceiptQuantity: max(it.ReceiptQuantity, 1),
		PantryQuantity:  quantity,
		MappingStatus:   constants.MappingNew,
		CreatedAt:       now,
	}
	if !row.Category.Valid() {
		row.Category = constants.Other
	}
	q, args := builder(r.dialect).Insert(productsTable).
		Columns("id", "name", "category", "price", "expiry_date", "receipt_quantity", "pantry_quantity", "mapping_status", "created_at").
		Values(row.ID, row.Name, string(row.Category), row.Price, nullTime(row.ExpiryDate), row.ReceiptQuantity, row.PantryQuantity, string(row.MappingStatus), row.CreatedAt).
		Query()
	if _, err := exec(ctx, r.q, q, args); err != nil {
		r.logger.Error("failed to insert pantry item", "name", it.Name, "error", err)
		return nil, fmt.Errorf("insert pantry item: %w", err)
	}
	return row, nil
}

func (r *itemRepository) DeleteByReceipt(ctx context.Context, receiptID uuid.UUID) (int64, error) {
	q, args := builder(r.dialect).Delete(productsTable).Where(entsql.EQ("receipt_id", receiptID)).Query()
	n, err := exec(ctx, r.q, q, args)
	if err != nil {
		r.logger.Error("failed to delete receipt items", "receipt_id", receiptID, "error", err)
		return 0, fmt.Errorf("delete items: %w", err)
	}
	return n, nil
}

func (r *itemRepository) Delete(ctx context.Context, id uuid.UUID) error {
	q, args := builder(r.dialect).Delete(productsTable).Where(entsql.EQ("id", id)).Query()
	return r.expectOne(ctx, id, "delete item", q, args)
}

func (r *itemRepository) SetSuggestions(ctx context.Context, id uuid.UUID, suggestions []entity.Suggestion) error {
	if suggestions == nil {
		suggestions = []entity.Suggestion{}
	}
	b, err := json.Marshal(suggestions)
	if err != nil {
		return fmt.Errorf("encode suggestions: %w", err)
	}
	q, args := builder(r.dialect).Update(productsTable).
		Set("mapping_suggestions", string(b)).
		Where(entsql.EQ("id", id)).
		Query()
	return r.expectOne(ctx, id, "set suggestions", q, args)
}

func (r *itemRepository) SetMapping(ctx context.Context, id uuid.UUID, status constants.MappingStatus, mappedTo *uuid.UUID) error {
	u := builder(r.dialect).Update(productsTable).Set("mapping_status", string(status))
	if mappedTo != nil {
		u = u.Set("mapped_to_id", *mappedTo)
	} else {
		u = u.SetNull("mapped_to_id")
	}
	q, args := u.Where(entsql.EQ("id", id)).Query()
	return r.expectOne(ctx, id, "set mapping", q, args)
}

func (r *itemRepository) SetCategory(ctx context.Context, id uuid.UUID, category constants.Category) error {
	q, args := builder(r.dialect).Update(productsTable).
		Set("category", string(category)).
		Where(entsql.EQ("id", id)).
		Query()
	return r.expectOne(ctx, id, "set category", q, args)
}

func (r *itemRepository) ApplyEdit(ctx context.Context, edit entity.ItemEdit) error {
	u := builder(r.dialect).Update(productsTable)
	if edit.Name != nil {
		if *edit.Name == "" {
			return common.NewAppError("INVALID_NAME", "product name must not be empty", common.ErrValidation)
		}
		u = u.Set("name", *edit.Name)
	}
	if edit.Category != nil {
		cat, _ := constants.Canonicalize(string(*edit.Category))
		u = u.Set("category", string(cat))
	}
	if edit.Price != nil {
		if edit.Price.IsNegative() {
			return common.NewAppError("INVALID_PRICE", "price must not be negative", common.ErrValidation)
		}
		u = u.Set("price", *edit.Price)
	}
	if edit.ReceiptQuantity != nil {
		if *edit.ReceiptQuantity <= 0 {
			return common.NewAppError("INVALID_QUANTITY", "quantity must be positive", common.ErrValidation)
		}
		u = u.Set("receipt_quantity", *edit.ReceiptQuantity)
	}
	if edit.ExpiryDate != nil {
		if expired(*edit.ExpiryDate, time.Now()) {
			return common.NewAppError("INVALID_EXPIRY", "expiry date is in the past", common.ErrValidation)
		}
		u = u.Set("expiry_date", *edit.ExpiryDate)
	}
	if u.Empty() {
		return nil
	}
	q, args := u.Where(entsql.And(entsql.EQ("id", edit.ID), entsql.NotNull("receipt_id"))).Query()
	return r.expectOne(ctx, edit.ID, "edit item", q, args)
}

func (r *itemRepository) Detach(ctx context.Context, id uuid.UUID, pantryQuantity int) error {
	q, args := builder(r.dialect).Update(productsTable).
		SetNull("receipt_id").
		SetNull("mapped_to_id").
		Set("mapping_status", string(constants.MappingNew)).
		Set("pantry_quantity", pantryQuantity).
		Where(entsql.And(entsql.EQ("id", id), entsql.NotNull("receipt_id"))).
		Query()
	return r.expectOne(ctx, id, "detach item", q, args)
}

func (r *itemRepository) AddPantryQuantity(ctx context.Context, id uuid.UUID, delta int) error {
	q, args := builder(r.dialect).Update(productsTable).
		Add("pantry_quantity", delta).
		Where(entsql.And(entsql.EQ("id", id), entsql.IsNull("receipt_id"))).
		Query()
	return r.expectOne(ctx, id, "add pantry quantity", q, args)
}

func (r *itemRepository) SetPantryQuantity(ctx context.Context, id uuid.UUID, quantity int) error {
	if quantity < 0 {
		return common.NewAppError("INVALID_QUANTITY", "pantry quantity must not be negative", common.ErrValidation)
	}
	q, args := builder(r.dialect).Update(productsTable).
		Set("pantry_quantity", quantity).
		Where(entsql.And(entsql.EQ("id", id), entsql.IsNull("receipt_id"))).
		Query()
	n, err := exec(ctx, r.q, q, args)
	if err != nil {
		r.logger.Error("failed to set pantry quantity", "item_id", id, "error", err)
		return fmt.Errorf("set pantry quantity: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return common.NewAppError("NOT_IN_PANTRY", "product is still attached to a receipt", common.ErrInvalidInput)
}

func (r *itemRepository) Count(ctx context.Context, status *constants.MappingStatus) (int, error) {
	sel := builder(r.dialect).Select(entsql.Count("*")).From(entsql.Table(productsTable))
	if status != nil {
		sel = sel.Where(entsql.EQ("mapping_status", string(*status)))
	}
	q, args := sel.Query()
	return countRows(ctx, r.q, q, args)
}

func (r *itemRepository) CountByCategory(ctx context.Context) (map[constants.Category]int, error) {
	q, args := builder(r.dialect).
		Select("category", entsql.Count("*")).
		From(entsql.Table(productsTable)).
		GroupBy("category").
		Query()
	rows, err := query(ctx, r.q, q, args)
	if err != nil {
		r.logger.Error("failed to count items by category", "error", err)
		return nil, fmt.Errorf("count by category: %w", err)
	}
	defer rows.Close()
	out := make(map[constants.Category]int)
	for rows.Next() {
		var (
			cat string
			n   int
		)
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, fmt.Errorf("scan category count: %w", err)
		}
		out[constants.Category(cat)] = n
	}
	return out, rows.Err()
}

func (r *itemRepository) expectOne(ctx context.Context, id uuid.UUID, op, q string, args []any) error {
	n, err := exec(ctx, r.q, q, args)
	if err != nil {
		r.logger.Error("item update failed", "op", op, "item_id", id, "error", err)
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return common.NotFound("product", id)
	}
	return nil
}

func (r *itemRepository) fetch(ctx context.Context, q string, args []any) ([]*entity.Item, error) {
	rows, err := query(ctx, r.q, q, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.Item
	for rows.Next() {
		var (
			it          entity.Item
			category    string
			mapping     string
			price       decimal.Decimal
			expiry      entsql.NullTime
			receiptID   uuid.NullUUID
			mappedTo    uuid.NullUUID
			suggestions entsql.NullString
		)
		if err := rows.Scan(
			&it.ID, &it.Name, &category, &price, &expiry, &it.ReceiptQuantity, &it.PantryQuantity,
			&receiptID, &mapping, &mappedTo, &suggestions, &it.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.Category = constants.Category(category)
		it.MappingStatus = constants.MappingStatus(mapping)
		it.Price = price
		it.ExpiryDate = timePtr(expiry)
		it.ReceiptID = uuidPtr(receiptID)
		it.MappedToID = uuidPtr(mappedTo)
		if suggestions.Valid && suggestions.String != "" {
			if err := json.Unmarshal([]byte(suggestions.String), &it.MappingSuggestions); err != nil {
				r.logger.Warn("invalid stored suggestions", "item_id", it.ID, "error", err)
			}
		}
		out = append(out, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func validateNewItem(it entity.NewItem, now time.Time) error {
	if it.Name == "" {
		return common.NewAppError("INVALID_NAME", "product name must not be empty", common.ErrValidation)
	}
	if it.Price.IsNegative() {
		return common.NewAppError("INVALID_PRICE", "price must not be negative", common.ErrValidation)
	}
	if it.ExpiryDate != nil && expired(*it.ExpiryDate, now) {
		return common.NewAppError("INVALID_EXPIRY", "expiry date is in the past", common.ErrValidation)
	}
	return nil
}

// expired compares calendar days so an item expiring today is still accepted.
func expired(expiry, now time.Time) bool {
	y1, m1, d1 := expiry.Date()
	y2, m2, d2 := now.In(expiry.Location()).Date()
	return time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC).Before(time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC))
}
