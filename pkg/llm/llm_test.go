package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harunnryd/agronomist/pkg/errorsx"
	"github.com/harunnryd/agronomist/pkg/metrics"
	"github.com/harunnryd/agronomist/pkg/resilience"
)

type scriptedAdapter struct {
	errs  []error
	calls int
	text  string
}

func (s *scriptedAdapter) Name() string { return "scripted" }

func (s *scriptedAdapter) Generate(ctx context.Context, input Context) (Response, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return Response{}, err
		}
	}
	return Response{Text: s.text + input.LastUserText()}, nil
}

func noSleep() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, Sleep: func(time.Duration) {}}
}

func TestRetryAdapterRecoversFromTransientError(t *testing.T) {
	inner := &scriptedAdapter{errs: []error{errors.New("timeout"), resilience.RateLimitError{Provider: "groq"}}, text: "ok:"}
	a := NewRetryAdapter(inner, noSleep(), nil)

	resp, err := a.Generate(context.Background(), Prompt("", "hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 3 || resp.Text != "ok:hello" {
		t.Fatalf("expected third attempt to win, calls=%d text=%q", inner.calls, resp.Text)
	}
}

func TestRetryAdapterGivesUpAfterThreeAttempts(t *testing.T) {
	inner := &scriptedAdapter{errs: []error{errors.New("a"), errors.New("b"), errors.New("c"), nil}}
	a := NewRetryAdapter(inner, noSleep(), nil)

	if _, err := a.Generate(context.Background(), Prompt("", "x")); err == nil {
		t.Fatalf("expected error")
	}
	if inner.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", inner.calls)
	}
}

func TestCircuitBreakerAdapterOpensOnRateLimit(t *testing.T) {
	rl := resilience.RateLimitError{Provider: "groq", Message: "429"}
	inner := &scriptedAdapter{errs: []error{rl, rl}}
	obs := metrics.NewMemoryObserver()
	a := NewCircuitBreakerAdapter(inner, resilience.NewCircuitBreaker(2, time.Minute))
	a.SetObserver(obs)

	for i := 0; i < 2; i++ {
		if _, err := a.Generate(context.Background(), Prompt("", "x")); !resilience.IsRateLimit(err) {
			t.Fatalf("expected rate limit, got %v", err)
		}
	}
	_, err := a.Generate(context.Background(), Prompt("", "x"))
	if !errorsx.HasReason(err, errorsx.ReasonLLMCircuitOpen) {
		t.Fatalf("expected circuit open reason, got %v", err)
	}
	if !resilience.IsPermanent(err) {
		t.Fatalf("open breaker must not be retried")
	}
	if inner.calls != 2 {
		t.Fatalf("inner must not be called while open, calls=%d", inner.calls)
	}
	if len(obs.Named(metrics.EventRateLimit)) != 2 || len(obs.Named(metrics.EventBreakerOpen)) != 1 {
		t.Fatalf("unexpected events %+v", obs.Events)
	}
}

func TestPromptHelpers(t *testing.T) {
	c := Prompt("sys", "user text")
	if len(c.Messages) != 2 || c.LastUserText() != "user text" {
		t.Fatalf("unexpected context %+v", c)
	}
	if (Context{}).LastUserText() != "" {
		t.Fatalf("expected empty text")
	}
}
