package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type RetryPolicy struct {
	Attempts int           // total tries, default 3
	MinWait  time.Duration // default 4s
	MaxWait  time.Duration // default 10s
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.MinWait <= 0 {
		p.MinWait = 4 * time.Second
	}
	if p.MaxWait < p.MinWait {
		p.MaxWait = 10 * time.Second
		if p.MaxWait < p.MinWait {
			p.MaxWait = p.MinWait
		}
	}
	return p
}

// RetryingGenerator retries connection and timeout failures with
// exponential backoff. Other failures return immediately.
type RetryingGenerator struct {
	next   Generator
	policy RetryPolicy
	logger *slog.Logger
}

func WithRetry(next Generator, policy RetryPolicy, logger *slog.Logger) *RetryingGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryingGenerator{next: next, policy: policy.withDefaults(), logger: logger}
}

func (g *RetryingGenerator) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.policy.MinWait
	b.MaxInterval = g.policy.MaxWait
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(g.policy.Attempts-1)), ctx)
}

func (g *RetryingGenerator) Generate(ctx context.Context, prompt, system string) (string, error) {
	attempt := 0
	op := func() (string, error) {
		attempt++
		out, err := g.next.Generate(ctx, prompt, system)
		if err == nil {
			return out, nil
		}
		if !Retryable(err) {
			return "", backoff.Permanent(err)
		}
		return "", err
	}
	notify := func(err error, wait time.Duration) {
		g.logger.Warn("llm.generate.retry",
			"attempt", attempt,
			"max_attempts", g.policy.Attempts,
			"wait_ms", wait.Milliseconds(),
			"error", err,
		)
	}
	out, err := backoff.RetryNotifyWithData(op, g.newBackOff(ctx), notify)
	if err != nil {
		g.logger.Error("llm.generate.failed", "attempts", attempt, "error", err)
		return "", err
	}
	return out, nil
}
