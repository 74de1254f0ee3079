package server

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/pantry-receipts/constants"
	"github.com/joseph-ayodele/pantry-receipts/internal/common"
	"github.com/joseph-ayodele/pantry-receipts/internal/entity"
)

const dateLayout = "2006-01-02"

func invalid(format string, args ...any) error {
	return common.NewAppError("INVALID_ARGUMENT", fmt.Sprintf(format, args...), common.ErrInvalidInput)
}

func field(req *structpb.Struct, key string) (*structpb.Value, bool) {
	if req == nil {
		return nil, false
	}
	v, ok := req.GetFields()[key]
	if !ok {
		return nil, false
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, false
	}
	return v, true
}

func stringField(req *structpb.Struct, key string) string {
	v, ok := field(req, key)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v.GetStringValue())
}

func requiredUUID(req *structpb.Struct, key string) (uuid.UUID, error) {
	raw := stringField(req, key)
	if raw == "" {
		return uuid.Nil, invalid("%s is required", key)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, invalid("%s must be a UUID", key)
	}
	return id, nil
}

func optionalUUID(req *structpb.Struct, key string) (*uuid.UUID, error) {
	if stringField(req, key) == "" {
		return nil, nil
	}
	id, err := requiredUUID(req, key)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func intField(req *structpb.Struct, key string, def int) (int, error) {
	v, ok := field(req, key)
	if !ok {
		return def, nil
	}
	n, isNum := v.GetKind().(*structpb.Value_NumberValue)
	if !isNum || n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, invalid("%s must be an integer", key)
	}
	return int(n.NumberValue), nil
}

func boolField(req *structpb.Struct, key string) bool {
	v, ok := field(req, key)
	return ok && v.GetBoolValue()
}

func dateField(req *structpb.Struct, key string) (*time.Time, error) {
	raw := stringField(req, key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, invalid("%s must be YYYY-MM-DD", key)
	}
	return &t, nil
}

func paging(req *structpb.Struct) (offset, limit int, err error) {
	if offset, err = intField(req, "offset", 0); err != nil {
		return 0, 0, err
	}
	if limit, err = intField(req, "limit", 50); err != nil {
		return 0, 0, err
	}
	if offset < 0 || limit < 0 {
		return 0, 0, invalid("offset and limit must not be negative")
	}
	return offset, limit, nil
}

// itemEdit reads one entry of an ImportProducts request.
func itemEdit(v *structpb.Struct) (entity.ItemEdit, error) {
	id, err := requiredUUID(v, "id")
	if err != nil {
		return entity.ItemEdit{}, err
	}
	e := entity.ItemEdit{ID: id}
	if _, ok := field(v, "name"); ok {
		name := stringField(v, "name")
		e.Name = &name
	}
	if _, ok := field(v, "category"); ok {
		cat := constants.Category(stringField(v, "category"))
		e.Category = &cat
	}
	if pv, ok := field(v, "price"); ok {
		var p decimal.Decimal
		switch k := pv.GetKind().(type) {
		case *structpb.Value_NumberValue:
			p = decimal.NewFromFloat(k.NumberValue)
		case *structpb.Value_StringValue:
			if p, err = decimal.NewFromString(strings.ReplaceAll(k.StringValue, ",", ".")); err != nil {
				return entity.ItemEdit{}, invalid("price must be a number")
			}
		default:
			return entity.ItemEdit{}, invalid("price must be a number")
		}
		e.Price = &p
	}
	if _, ok := field(v, "quantity"); ok {
		q, err := intField(v, "quantity", 0)
		if err != nil {
			return entity.ItemEdit{}, err
		}
		e.ReceiptQuantity = &q
	}
	exp, err := dateField(v, "expiry_date")
	if err != nil {
		return entity.ItemEdit{}, err
	}
	e.ExpiryDate = exp
	return e, nil
}

func receiptMap(r *entity.Receipt) map[string]any {
	m := map[string]any{
		"id":                r.ID.String(),
		"original_filename": r.OriginalFilename,
		"mime_type":         r.MIMEType,
		"comment":           r.Comment,
		"status":            string(r.Status),
		"progress":          r.Progress,
		"submitted_at":      r.SubmittedAt.UTC().Format(time.RFC3339),
		"has_thumbnail":     r.ThumbnailPath != nil,
	}
	putString(m, "detailed_status", r.DetailedStatus)
	putString(m, "processing_error", r.ProcessingError)
	putString(m, "store_name", r.StoreName)
	if r.ProcessedAt != nil {
		m["processed_at"] = r.ProcessedAt.UTC().Format(time.RFC3339)
	}
	if r.PurchaseDate != nil {
		m["purchase_date"] = r.PurchaseDate.Format(dateLayout)
	}
	if r.TotalAmount != nil {
		m["total_amount"] = r.TotalAmount.StringFixed(2)
	}
	return m
}

func itemMap(it *entity.Item) map[string]any {
	m := map[string]any{
		"id":               it.ID.String(),
		"name":             it.Name,
		"category":         string(it.Category),
		"price":            it.Price.StringFixed(2),
		"receipt_quantity": it.ReceiptQuantity,
		"pantry_quantity":  it.PantryQuantity,
		"mapping_status":   string(it.MappingStatus),
		"in_pantry":        it.InPantry(),
	}
	if it.ReceiptID != nil {
		m["receipt_id"] = it.ReceiptID.String()
	}
	if it.MappedToID != nil {
		m["mapped_to_id"] = it.MappedToID.String()
	}
	if it.ExpiryDate != nil {
		m["expiry_date"] = it.ExpiryDate.Format(dateLayout)
	}
	sugg := make([]any, 0, len(it.MappingSuggestions))
	for _, s := range it.MappingSuggestions {
		sugg = append(sugg, suggestionMap(s))
	}
	m["suggestions"] = sugg
	return m
}

func suggestionMap(s entity.Suggestion) map[string]any {
	return map[string]any{
		"id":         s.ID.String(),
		"name":       s.Name,
		"category":   string(s.Category),
		"similarity": s.Similarity,
	}
}

func statusMap(v entity.ReceiptStatusView) map[string]any {
	return map[string]any{
		"id":              v.ID.String(),
		"status":          string(v.Status),
		"detailed_status": v.DetailedStatus,
		"error":           v.Error,
		"progress":        v.Progress,
	}
}

func itemList(items []*entity.Item) []any {
	out := make([]any, 0, len(items))
	for _, it := range items {
		out = append(out, itemMap(it))
	}
	return out
}

func putString(m map[string]any, key string, v *string) {
	if v != nil {
		m[key] = *v
	}
}

func toStruct(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return s, nil
}
