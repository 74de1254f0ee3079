package server

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/pantry-receipts/internal/receipts"
)

// upload receives the file as a stream of BytesValue chunks. The filename
// and comment travel in metadata.
func (s *Server) upload(stream grpc.ServerStream) error {
	ctx := withRequestID(stream.Context())
	md, _ := metadata.FromIncomingContext(ctx)
	first := func(key string) string {
		if v := md.Get(key); len(v) > 0 {
			return v[0]
		}
		return ""
	}
	filename := first(MDFilename)
	if filename == "" {
		return s.toStatus(ctx, "Upload", invalid("%s metadata is required", MDFilename))
	}

	pr, pw := io.Pipe()
	go func() {
		for {
			chunk := new(wrapperspb.BytesValue)
			if err := stream.RecvMsg(chunk); err != nil {
				if errors.Is(err, io.EOF) {
					_ = pw.Close()
				} else {
					_ = pw.CloseWithError(err)
				}
				return
			}
			if _, err := pw.Write(chunk.GetValue()); err != nil {
				return
			}
		}
	}()

	rec, err := s.svc.Upload(ctx, receipts.UploadRequest{
		Body:         pr,
		Filename:     filename,
		DeclaredType: first(MDContentType),
		Comment:      first(MDComment),
	})
	_ = pr.Close()
	if err != nil {
		return s.toStatus(ctx, "Upload", err)
	}
	out, err := toStruct(receiptMap(rec))
	if err != nil {
		return s.toStatus(ctx, "Upload", err)
	}
	return stream.SendMsg(out)
}

func (s *Server) preview(ctx context.Context, req *structpb.Struct) (proto.Message, error) {
	id, err := requiredUUID(req, "id")
	if err != nil {
		return nil, err
	}
	rec, err := s.svc.Preview(ctx, id)
	if err != nil {
		return nil, err
	}
	return toStruct(receiptMap(rec))
}

func (s *Server) startProcessing(ctx context.Context, req *structpb.Struct) (proto.Message, error) {
	id, err := requiredUUID(req, "id")
	if err != nil {
		return nil, err
	}
	if err := s.svc.StartProcessing(ctx, id); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) reprocess(ctx context.Context, req *structpb.Struct) (proto.Message, error) {
	id, err := requiredUUID(req, "id")
	if err != nil {
		return nil, err
	}
	if err := s.svc.Reprocess(ctx, id); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) getStatus(ctx context.Context, req *structpb.Struct) (proto.Message, error) {
	id, err := requiredUUID(req, "id")
	if err != nil {
		return nil, err
	}
	v, err := s.svc.GetStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	return toStruct(statusMap(v))
}

func (s *Server) getReceipt(ctx context.Context, req *structpb.Struct) (proto.Message, error) {
	id, err := requiredUUID(req, "id")
	if err != nil {
		return nil, err
	}
	rec, items, err := s.svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	m := receiptMap(rec)
	m["items"] = itemList(items)
	return toStruct(m)
}

func (s *Server) listReceipts(ctx context.Context, req *structpb.Struct) (proto.Message, error) {
	offset, limit, err := paging(req)
	if err != nil {
		return nil, err
	}
	recs, total, err := s.svc.List(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(recs))
	for _, r := range recs {
		out = append(out, receiptMap(r))
	}
	return toStruct(map[string]any{"receipts": out, "total": total})
}

func (s *Server) deleteReceipt(ctx context.Context, req *structpb.Struct) (proto.Message, error) {
	id, err := requiredUUID(req, "id")
	if err != nil {
		return nil, err
	}
	if err := s.svc.Delete(ctx, id); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) importDirectory(ctx context.Context, req *structpb.Struct) (proto.Message, error) {
	root := stringField(req, "root")
	if root == "" {
		return nil, invalid("root is required")
	}
	results, stats, err := s.svc.UploadDirectory(ctx, root, boolField(req, "skip_hidden"), boolField(req, "start"))
	if err != nil {
		return nil, err
	}
	files := make([]any, 0, len(results))
	for _, r := range results {
		files = append(files, map[string]any{"path": r.Path, "id": r.ID, "error": r.Err})
	}
	return toStruct(map[string]any{
		"files":     files,
		"scanned":   stats.Scanned,
		"matched":   stats.Matched,
		"succeeded": stats.Succeeded,
		"failed":    stats.Failed,
	})
}
