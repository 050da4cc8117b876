// Package fallback runs ordered provider tiers until one succeeds. The last
// tier is terminal: it has no external dependency and its failure is the
// only fatal outcome of a chain.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/harunnryd/agronomist/pkg/errorsx"
	"github.com/harunnryd/agronomist/pkg/logging"
	"github.com/harunnryd/agronomist/pkg/metrics"
)

// ErrTerminalFailed is returned when the terminal tier fails.
var ErrTerminalFailed = errors.New("terminal fallback tier failed")

// Result is a tier's discriminated outcome: a value, or a typed failure.
type Result[T any] struct {
	Value  T
	Err    error
	Reason errorsx.ReasonCode
	ok     bool
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v, ok: true}
}

// Fail wraps a failure. A nil err is replaced by the reason itself.
func Fail[T any](reason errorsx.ReasonCode, err error) Result[T] {
	if err == nil {
		err = errorsx.New(reason)
	}
	if reason == "" {
		reason = errorsx.Reason(err)
	}
	return Result[T]{Err: err, Reason: reason}
}

// FromCall converts a (value, error) pair. The error's own reason wins
// over the fallback reason.
func FromCall[T any](v T, err error, reason errorsx.ReasonCode) Result[T] {
	if err != nil {
		if r := errorsx.Reason(err); r != errorsx.ReasonUnknown {
			reason = r
		}
		return Fail[T](reason, err)
	}
	return Ok(v)
}

func (r Result[T]) Succeeded() bool { return r.ok }

// Tier is one attempt in a chain.
type Tier[T any] struct {
	Name    string
	Attempt func(ctx context.Context) Result[T]
}

// Failure records why a tier was skipped.
type Failure struct {
	Tier   int                `json:"tier"`
	Name   string             `json:"name"`
	Reason errorsx.ReasonCode `json:"reason"`
	Error  string             `json:"error"`
}

// Outcome is the winning tier's payload. TierUsed is 1-based.
type Outcome[T any] struct {
	TierUsed  int       `json:"tier_used"`
	TierName  string    `json:"tier_name"`
	Payload   T         `json:"payload"`
	Succeeded bool      `json:"succeeded"`
	Failures  []Failure `json:"failures,omitempty"`
}

// Chain tries its tiers in order and then the terminal tier.
type Chain[T any] struct {
	name     string
	tiers    []Tier[T]
	terminal Tier[T]
	empty    func(T) bool
	log      *slog.Logger
	obs      metrics.Observer
	now      func() time.Time
}

// Option configures a Chain.
type Option[T any] func(*Chain[T])

// WithTiers appends non-terminal tiers, tried in the order given.
func WithTiers[T any](tiers ...Tier[T]) Option[T] {
	return func(c *Chain[T]) { c.tiers = append(c.tiers, tiers...) }
}

// WithEmpty marks values that count as a failure sentinel, e.g. an empty
// transcript.
func WithEmpty[T any](empty func(T) bool) Option[T] {
	return func(c *Chain[T]) { c.empty = empty }
}

func WithLogger[T any](log *slog.Logger) Option[T] {
	return func(c *Chain[T]) {
		if log != nil {
			c.log = log
		}
	}
}

func WithObserver[T any](obs metrics.Observer) Option[T] {
	return func(c *Chain[T]) { c.obs = metrics.OrNoop(obs) }
}

func NewChain[T any](name string, terminal Tier[T], opts ...Option[T]) *Chain[T] {
	c := &Chain[T]{
		name:     name,
		terminal: terminal,
		log:      slog.Default(),
		obs:      metrics.NoopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logging.NewComponentLogger(c.log, "fallback").With(slog.String("chain", name))
	return c
}

func (c *Chain[T]) Name() string { return c.name }

// Tiers lists tier names in execution order, terminal last.
func (c *Chain[T]) Tiers() []string {
	out := make([]string, 0, len(c.tiers)+1)
	for _, t := range c.tiers {
		out = append(out, t.Name)
	}
	return append(out, c.terminal.Name)
}

// Run executes tiers strictly in order. Tiers are never retried here; any
// retry belongs inside the tier. A failing terminal tier returns an error
// wrapping ErrTerminalFailed and an Outcome with Succeeded false.
func (c *Chain[T]) Run(ctx context.Context) (Outcome[T], error) {
	var failures []Failure
	for i, tier := range c.tiers {
		idx := i + 1
		res := c.attempt(ctx, idx, tier, false)
		if res.Succeeded() {
			return Outcome[T]{TierUsed: idx, TierName: tier.Name, Payload: res.Value, Succeeded: true, Failures: failures}, nil
		}
		failures = append(failures, Failure{Tier: idx, Name: tier.Name, Reason: res.Reason, Error: errString(res.Err)})
	}

	idx := len(c.tiers) + 1
	res := c.attempt(ctx, idx, c.terminal, true)
	if res.Succeeded() {
		return Outcome[T]{TierUsed: idx, TierName: c.terminal.Name, Payload: res.Value, Succeeded: true, Failures: failures}, nil
	}
	failures = append(failures, Failure{Tier: idx, Name: c.terminal.Name, Reason: res.Reason, Error: errString(res.Err)})
	c.log.Error("terminal tier failed",
		slog.String("tier", c.terminal.Name),
		slog.String("reason", string(res.Reason)),
		slog.String("error", errString(res.Err)))
	c.obs.RecordEvent(metrics.MetricsEvent{
		Name: metrics.EventChainFatal,
		Time: c.now(),
		Tags: map[string]string{"chain": c.name, "tier": c.terminal.Name, "reason": string(res.Reason)},
	})
	return Outcome[T]{TierUsed: idx, TierName: c.terminal.Name, Failures: failures},
		fmt.Errorf("%s chain: %w: %w", c.name, ErrTerminalFailed, res.Err)
}

func (c *Chain[T]) attempt(ctx context.Context, idx int, tier Tier[T], terminal bool) Result[T] {
	c.log.Debug("tier attempted", slog.String("tier", tier.Name), slog.Int("index", idx))
	start := c.now()
	res := c.call(ctx, tier, terminal)
	switch {
	case res.Succeeded() && c.empty != nil && c.empty(res.Value):
		res = Fail[T](errorsx.ReasonEmptyResult, nil)
	case !res.Succeeded() && res.Err == nil:
		reason := res.Reason
		if reason == "" {
			reason = errorsx.ReasonUnknown
		}
		res = Fail[T](reason, nil)
	}
	took := c.now().Sub(start)

	tags := map[string]string{
		"chain": c.name,
		"tier":  tier.Name,
		"index": strconv.Itoa(idx),
	}
	if res.Succeeded() {
		tags["status"] = "succeeded"
		c.log.Info("tier succeeded",
			slog.String("tier", tier.Name),
			slog.Int("index", idx),
			slog.Duration("took", took))
	} else if res.Reason.NotConfigured() {
		tags["status"] = "failed"
		tags["reason"] = string(res.Reason)
		c.log.Info("tier skipped, provider not configured",
			slog.String("tier", tier.Name),
			slog.Int("index", idx))
	} else {
		tags["status"] = "failed"
		tags["reason"] = string(res.Reason)
		c.log.Warn("tier failed",
			slog.String("tier", tier.Name),
			slog.Int("index", idx),
			slog.String("reason", string(res.Reason)),
			slog.String("error", errString(res.Err)),
			slog.Duration("took", took))
	}
	c.obs.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventTierOutcome,
		Time:  c.now(),
		Value: float64(took.Milliseconds()),
		Tags:  tags,
	})
	return res
}

// call runs one tier, converting a panic or a missing Attempt into a failure.
// The terminal tier runs even when ctx is already done.
func (c *Chain[T]) call(ctx context.Context, tier Tier[T], terminal bool) (res Result[T]) {
	if tier.Attempt == nil {
		return Fail[T](errorsx.ReasonUnknown, fmt.Errorf("tier %q has no attempt func", tier.Name))
	}
	if err := ctx.Err(); err != nil && !terminal {
		return Fail[T](errorsx.ReasonCanceled, err)
	}
	defer func() {
		if r := recover(); r != nil {
			res = Fail[T](errorsx.ReasonUnknown, fmt.Errorf("tier %q panicked: %v", tier.Name, r))
		}
	}()
	return tier.Attempt(ctx)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
