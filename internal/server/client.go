package server

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const uploadChunk = 64 << 10

// Client calls PantryService methods over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Invoke calls a unary method with the given fields and decodes the reply
// into out.
func (c *Client) Invoke(ctx context.Context, method string, fields map[string]any, out proto.Message) error {
	if fields == nil {
		fields = map[string]any{}
	}
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out)
}

// Call is Invoke for methods that answer with a Struct.
func (c *Client) Call(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.Invoke(ctx, method, fields, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Upload streams r to the server in chunks and returns the created receipt.
func (c *Client) Upload(ctx context.Context, filename, comment string, r io.Reader) (*structpb.Struct, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, MDFilename, filename, MDComment, comment)
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/"+ServiceName+"/Upload")
	if err != nil {
		return nil, err
	}
	buf := make([]byte, uploadChunk)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if err := stream.SendMsg(wrapperspb.Bytes(append([]byte(nil), buf[:n]...))); err != nil {
				if err == io.EOF {
					// the server already answered; RecvMsg below carries its status
					break
				}
				return nil, err
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, rerr
		}
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := stream.RecvMsg(out); err != nil {
		return nil, err
	}
	return out, nil
}
