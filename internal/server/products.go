package server

import (
	"context"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/pantry-receipts/constants"
	"github.com/joseph-ayodele/pantry-receipts/internal/entity"
)

func (s *Server) importProducts(ctx context.Context, req *structpb.Struct) (proto.Message, error) {
	receiptID, err := requiredUUID(req, "receipt_id")
	if err != nil {
		return nil, err
	}
	var edits []entity.ItemEdit
	if v, ok := field(req, "items"); ok {
		for _, raw := range v.GetListValue().GetValues() {
			e, err := itemEdit(raw.GetStructValue())
			if err != nil {
				return nil, err
			}
			edits = append(edits, e)
		}
	}
	kept, err := s.svc.ImportProducts(ctx, receiptID, edits)
	if err != nil {
		return nil, err
	}
	return toStruct(map[string]any{"items": itemList(kept)})
}

func (s *Server) mergeIntoPantry(ctx context.Context, req *structpb.Struct) (proto.Message, error) {
	receiptID, err := requiredUUID(req, "receipt_id")
	if err != nil {
		return nil, err
	}
	res, err := s.svc.MergeIntoPantry(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	return toStruct(map[string]any{"merged": res.Merged, "detached": res.Detached, "skipped": res.Skipped})
}

func (s *Server) findSuggestions(ctx context.Context, req *structpb.Struct) (proto.Message, error) {
	name := stringField(req, "name")
	if name == "" {
		return nil, invalid("name is required")
	}
	limit, err := intField(req, "limit", 0)
	if err != nil {
		return nil, err
	}
	sugg, err := s.svc.FindSuggestions(ctx, name, limit)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(sugg))
	for _, sg := range sugg {
		out = append(out, suggestionMap(sg))
	}
	return toStruct(map[string]any{"suggestions": out})
}

func (s *Server) updateProductMapping(ctx context.Context, req *structpb.Struct) (proto.Message, error) {
	itemID, err := requiredUUID(req, "item_id")
	if err != nil {
		return nil, err
	}
	target, err := optionalUUID(req, "target_id")
	if err != nil {
		return nil, err
	}
	if err := s.svc.UpdateProductMapping(ctx, itemID, target); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) ignoreProduct(ctx context.Context, req *structpb.Struct) (proto.Message, error) {
	itemID, err := requiredUUID(req, "item_id")
	if err != nil {
		return nil, err
	}
	if err := s.svc.IgnoreProduct(ctx, itemID); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) listPendingMappings(ctx context.Context, req *structpb.Struct) (proto.Message, error) {
	offset, limit, err := paging(req)
	if err != nil {
		return nil, err
	}
	items, total, err := s.svc.ListPendingMappings(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	return toStruct(map[string]any{"items": itemList(items), "total": total})
}

func (s *Server) listPantry(ctx context.Context, _ *structpb.Struct) (proto.Message, error) {
	items, err := s.svc.ListPantry(ctx)
	if err != nil {
		return nil, err
	}
	return toStruct(map[string]any{"items": itemList(items)})
}

func (s *Server) updatePantryQuantity(ctx context.Context, req *structpb.Struct) (proto.Message, error) {
	itemID, err := requiredUUID(req, "item_id")
	if err != nil {
		return nil, err
	}
	if _, ok := field(req, "quantity"); !ok {
		return nil, invalid("quantity is required")
	}
	qty, err := intField(req, "quantity", 0)
	if err != nil {
		return nil, err
	}
	if err := s.svc.UpdatePantryQuantity(ctx, itemID, qty); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) categorizeProduct(ctx context.Context, req *structpb.Struct) (proto.Message, error) {
	itemID, err := requiredUUID(req, "item_id")
	if err != nil {
		return nil, err
	}
	cat, err := s.svc.CategorizeProduct(ctx, itemID, stringField(req, "category"))
	if err != nil {
		return nil, err
	}
	return wrapperspb.String(string(cat)), nil
}

func (s *Server) statistics(ctx context.Context, _ *structpb.Struct) (proto.Message, error) {
	st, err := s.svc.Statistics(ctx)
	if err != nil {
		return nil, err
	}
	per := make(map[string]any, len(st.PerCategory))
	for cat, n := range st.PerCategory {
		per[string(cat)] = n
	}
	return toStruct(map[string]any{
		"total_products":     st.TotalProducts,
		"mapped_products":    st.MappedProducts,
		"total_receipts":     st.TotalReceipts,
		"processed_receipts": st.ProcessedReceipts,
		"per_category":       per,
	})
}

func (s *Server) listLogs(ctx context.Context, req *structpb.Struct) (proto.Message, error) {
	offset, limit, err := paging(req)
	if err != nil {
		return nil, err
	}
	var level *constants.LogLevel
	if raw := stringField(req, "level"); raw != "" {
		l := constants.LogLevel(raw)
		level = &l
	}
	entries, err := s.svc.ListLogs(ctx, level, offset, limit)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"id":        e.ID.String(),
			"timestamp": e.Timestamp.UTC().Format(time.RFC3339),
			"level":     string(e.Level),
			"module":    e.Module,
			"function":  e.Function,
			"message":   e.Message,
			"details":   e.Details,
		})
	}
	return toStruct(map[string]any{"entries": out})
}
