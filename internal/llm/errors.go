package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	ErrConnection = errors.New("llm service unreachable")
	ErrTimeout    = errors.New("llm request timed out")
	ErrModel      = errors.New("llm model unavailable")
	ErrAPI        = errors.New("llm api error")
)

// Retryable reports whether err is a transient transport failure.
func Retryable(err error) bool {
	return errors.Is(err, ErrConnection) || errors.Is(err, ErrTimeout)
}

// ClassifyTransport maps an http.Client error onto the taxonomy.
func ClassifyTransport(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case strings.Contains(msg, "connection"), strings.Contains(msg, "no such host"), strings.Contains(msg, "eof"):
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return fmt.Errorf("%w: %w", ErrAPI, err)
}
