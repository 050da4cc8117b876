package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrAlreadyStarted = errors.New("runner already started")
	ErrDrainTimeout   = errors.New("drain timeout")
)

// LifecycleRunner starts the service, blocks until ctx ends and then gives
// in-flight triage requests up to timeout to finish.
type LifecycleRunner struct {
	state   atomic.Int32
	hooks   Hooks
	drainer Drainer
	timeout time.Duration
	log     *slog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopErr  error
}

func NewLifecycleRunner(drainer Drainer, hooks Hooks, timeout time.Duration) *LifecycleRunner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LifecycleRunner{
		hooks:   hooks,
		drainer: drainer,
		timeout: timeout,
		log:     slog.New(slog.DiscardHandler),
		cancel:  func() {},
	}
}

// WithLogger reports state changes on log.
func (r *LifecycleRunner) WithLogger(log *slog.Logger) *LifecycleRunner {
	if log != nil {
		r.log = log.With(slog.String("component", "runner"))
	}
	return r
}

func (r *LifecycleRunner) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StateNew), int32(StateStarting)) {
		return ErrAlreadyStarted
	}
	if ctx == nil {
		ctx = context.Background()
	}
	PrintBanner()

	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	if r.hooks.OnStart != nil {
		if err := r.hooks.OnStart(ctx); err != nil {
			cancel()
			return errors.Join(fmt.Errorf("start: %w", err), r.stop())
		}
	}
	r.transition(StateRunning)
	<-ctx.Done()
	return r.stop()
}

func (r *LifecycleRunner) Stop() error {
	r.mu.Lock()
	r.cancel()
	r.mu.Unlock()
	return r.stop()
}

func (r *LifecycleRunner) State() State { return State(r.state.Load()) }

func (r *LifecycleRunner) stop() error {
	r.stopOnce.Do(func() {
		r.transition(StateDraining)
		r.stopErr = r.drain()
		if r.hooks.OnStop != nil {
			r.hooks.OnStop()
		}
		r.transition(StateStopped)
	})
	return r.stopErr
}

func (r *LifecycleRunner) drain() error {
	if r.drainer == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- r.drainer.Drain() }()
	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		r.log.Warn("drain did not finish in time", slog.Duration("timeout", r.timeout))
		return ErrDrainTimeout
	}
}

func (r *LifecycleRunner) transition(s State) {
	prev := State(r.state.Swap(int32(s)))
	r.log.Debug("lifecycle", slog.String("from", prev.String()), slog.String("to", s.String()))
}
