package common

import "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	receiptIDKey
)

// WithRequestID tags ctx with the id of the inbound call.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithReceiptID tags ctx with the receipt being worked on.
func WithReceiptID(ctx context.Context, receiptID string) context.Context {
	return context.WithValue(ctx, receiptIDKey, receiptID)
}

func ReceiptIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(receiptIDKey).(string)
	return id
}

// LogAttrs returns the correlation ids carried by ctx as slog key/value
// pairs, omitting the ones that are unset.
func LogAttrs(ctx context.Context) []any {
	var attrs []any
	if id := RequestIDFromContext(ctx); id != "" {
		attrs = append(attrs, "request_id", id)
	}
	if id := ReceiptIDFromContext(ctx); id != "" {
		attrs = append(attrs, "receipt_id", id)
	}
	return attrs
}
