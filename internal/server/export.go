package server

import (
	"context"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// exportReceipts returns the workbook bytes.
// - only from_date -> from..today (inclusive)
// - only to_date   -> beginning..to (inclusive)
// - none           -> all.
func (s *Server) exportReceipts(ctx context.Context, req *structpb.Struct) (proto.Message, error) {
	from, err := dateField(req, "from_date")
	if err != nil {
		return nil, err
	}
	to, err := dateField(req, "to_date")
	if err != nil {
		return nil, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, invalid("to_date must not be before from_date")
	}
	xlsx, err := s.export.ExportReceiptsXLSX(ctx, from, to)
	if err != nil {
		s.logger.Error("export.xlsx.failed", "error", err)
		return nil, err
	}
	return wrapperspb.Bytes(xlsx), nil
}

func (s *Server) exportPantry(ctx context.Context, _ *structpb.Struct) (proto.Message, error) {
	xlsx, err := s.export.ExportPantryXLSX(ctx)
	if err != nil {
		s.logger.Error("export.xlsx.failed", "error", err)
		return nil, err
	}
	return wrapperspb.Bytes(xlsx), nil
}
