package common

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{NotFound("receipt", 1), codes.NotFound},
		{fmt.Errorf("wrap: %w", ErrValidation), codes.InvalidArgument},
		{InvalidTransition("DONE", "OCR_IN_PROGRESS"), codes.FailedPrecondition},
		{ErrConflict, codes.AlreadyExists},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{fmt.Errorf("boom"), codes.Internal},
		{status.Error(codes.Unavailable, "x"), codes.Unavailable},
	}
	for _, tt := range tests {
		st, ok := status.FromError(ToStatus(tt.err))
		assert.True(t, ok)
		assert.Equal(t, tt.code, st.Code(), tt.err.Error())
	}
	assert.Nil(t, ToStatus(nil))
}

func TestToStatusHidesInternalDetail(t *testing.T) {
	st, _ := status.FromError(ToStatus(fmt.Errorf("pq: password authentication failed")))
	assert.Equal(t, "internal error", st.Message())

	st, _ = status.FromError(ToStatus(NotFound("receipt", "abc")))
	assert.Equal(t, "receipt abc not found", st.Message())
}

func TestLogAttrs(t *testing.T) {
	assert.Empty(t, LogAttrs(context.Background()))

	ctx := WithReceiptID(WithRequestID(context.Background(), "req-1"), "rec-1")
	assert.Equal(t, []any{"request_id", "req-1", "receipt_id", "rec-1"}, LogAttrs(ctx))
}
