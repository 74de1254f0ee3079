package async

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrAlreadyQueued = errors.New("receipt already queued")
	ErrQueueClosed   = errors.New("queue is shutting down")
)

// TaskState is the lifecycle of a queued receipt task.
type TaskState string

const (
	StateQueued  TaskState = "queued"
	StateRunning TaskState = "running"
	StateSuccess TaskState = "success"
	StateError   TaskState = "error"
)

// Outcome is what a handler reports for one receipt.
type Outcome struct {
	Success bool
	Message string
}

// TaskResult is the recorded state of the latest task for a receipt.
type TaskResult struct {
	State   TaskState
	Message string
}

// Handler runs one receipt task.
type Handler interface {
	Handle(ctx context.Context, receiptID uuid.UUID) Outcome
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, receiptID uuid.UUID) Outcome

func (f HandlerFunc) Handle(ctx context.Context, receiptID uuid.UUID) Outcome {
	return f(ctx, receiptID)
}

type Queue interface {
	Enqueue(ctx context.Context, receiptID uuid.UUID) error
	Shutdown(ctx context.Context)
}
