package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/harunnryd/agronomist/pkg/resilience"
)

// RetryAdapter retries Generate on transient failures.
type RetryAdapter struct {
	inner LLMAdapter
	cfg   resilience.RetryConfig
	log   *slog.Logger
}

// NewRetryAdapter wraps inner. A zero cfg means 3 attempts with 1s/2s backoff.
func NewRetryAdapter(inner LLMAdapter, cfg resilience.RetryConfig, log *slog.Logger) *RetryAdapter {
	if log == nil {
		log = slog.Default()
	}
	return &RetryAdapter{inner: inner, cfg: cfg, log: log}
}

func (a *RetryAdapter) Name() string { return a.inner.Name() }

func (a *RetryAdapter) Generate(ctx context.Context, input Context) (Response, error) {
	cfg := a.cfg
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		a.log.Warn("llm generate failed, retrying",
			slog.String("provider", a.inner.Name()),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))
	}
	return resilience.Retry(ctx, cfg, func(ctx context.Context) (Response, error) {
		return a.inner.Generate(ctx, input)
	})
}
