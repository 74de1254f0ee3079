// Package server exposes the receipts façade over gRPC. Messages are
// protobuf well-known types (Struct, BytesValue, Empty) so no generated code
// is needed.
package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/pantry-receipts/internal/common"
	"github.com/joseph-ayodele/pantry-receipts/internal/export"
	"github.com/joseph-ayodele/pantry-receipts/internal/receipts"
)

const ServiceName = "paragon.v1.PantryService"

// Upload metadata keys.
const (
	MDFilename    = "x-filename"
	MDComment     = "x-comment"
	MDContentType = "x-content-type"
	MDRequestID   = "x-request-id"
)

// Server implements the PantryService methods.
type Server struct {
	svc    *receipts.Service
	export *export.Service
	logger *slog.Logger
}

func New(svc *receipts.Service, exp *export.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, export: exp, logger: logger}
}

// Register attaches the service to a gRPC server.
func Register(gs grpc.ServiceRegistrar, s *Server) {
	gs.RegisterService(&ServiceDesc, s)
}

type pantryService interface {
	upload(stream grpc.ServerStream) error
}

type unaryFunc func(s *Server, ctx context.Context, req *structpb.Struct) (proto.Message, error)

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*pantryService)(nil),
	Methods: []grpc.MethodDesc{
		unary("Preview", (*Server).preview),
		unary("StartProcessing", (*Server).startProcessing),
		unary("Reprocess", (*Server).reprocess),
		unary("GetStatus", (*Server).getStatus),
		unary("GetReceipt", (*Server).getReceipt),
		unary("ListReceipts", (*Server).listReceipts),
		unary("DeleteReceipt", (*Server).deleteReceipt),
		unary("ImportDirectory", (*Server).importDirectory),
		unary("ImportProducts", (*Server).importProducts),
		unary("MergeIntoPantry", (*Server).mergeIntoPantry),
		unary("FindSuggestions", (*Server).findSuggestions),
		unary("UpdateProductMapping", (*Server).updateProductMapping),
		unary("IgnoreProduct", (*Server).ignoreProduct),
		unary("ListPendingMappings", (*Server).listPendingMappings),
		unary("ListPantry", (*Server).listPantry),
		unary("UpdatePantryQuantity", (*Server).updatePantryQuantity),
		unary("CategorizeProduct", (*Server).categorizeProduct),
		unary("Statistics", (*Server).statistics),
		unary("ListLogs", (*Server).listLogs),
		unary("ExportReceipts", (*Server).exportReceipts),
		unary("ExportPantry", (*Server).exportPantry),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Upload",
			ClientStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				return srv.(pantryService).upload(stream)
			},
		},
	},
	Metadata: "paragon/v1/pantry.proto",
}

func unary(name string, fn unaryFunc) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(*Server)
			handler := func(ctx context.Context, req any) (any, error) {
				out, err := fn(s, ctx, req.(*structpb.Struct))
				if err != nil {
					return nil, s.toStatus(ctx, name, err)
				}
				return out, nil
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: full}, handler)
		},
	}
}

// toStatus logs the full error chain and returns the client-facing status.
func (s *Server) toStatus(ctx context.Context, method string, err error) error {
	st := common.ToStatus(err)
	code := status.Code(st)
	s.logger.Warn("rpc failed", "method", method, "code", code.String(),
		"request_id", common.RequestIDFromContext(ctx), "error", err)
	return st
}

// UnaryLogging tags each call with a request id and logs its outcome.
func UnaryLogging(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx = withRequestID(ctx)
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("rpc",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"request_id", common.RequestIDFromContext(ctx),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}

// StreamLogging is UnaryLogging for streaming calls.
func StreamLogging(logger *slog.Logger) grpc.StreamServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		logger.Info("rpc",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return err
	}
}

func withRequestID(ctx context.Context) context.Context {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(MDRequestID); len(v) > 0 && v[0] != "" {
			return common.WithRequestID(ctx, v[0])
		}
	}
	return common.WithRequestID(ctx, uuid.NewString())
}
