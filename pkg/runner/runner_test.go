package runner

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func init() { BannerOutput = io.Discard }

type drainFunc func() error

func (f drainFunc) Drain() error { return f() }

func TestRunDrainsOnCancel(t *testing.T) {
	var drained, stopped bool
	r := NewLifecycleRunner(drainFunc(func() error { drained = true; return nil }), Hooks{
		OnStart: func(context.Context) error { return nil },
		OnStop:  func() { stopped = true },
	}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for r.State() != StateRunning && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if r.State() != StateRunning {
		t.Fatalf("expected running, got %s", r.State())
	}
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("run: %v", err)
	}
	if !drained || !stopped {
		t.Fatalf("expected drain and stop hooks, got drained=%v stopped=%v", drained, stopped)
	}
	if r.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", r.State())
	}
	if err := r.Run(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted when running twice, got %v", err)
	}
}

func TestRunStartFailureStillStops(t *testing.T) {
	var stopped bool
	r := NewLifecycleRunner(nil, Hooks{
		OnStart: func(context.Context) error { return errors.New("address in use") },
		OnStop:  func() { stopped = true },
	}, time.Second)
	err := r.Run(context.Background())
	if err == nil {
		t.Fatalf("expected start error")
	}
	if !stopped || r.State() != StateStopped {
		t.Fatalf("expected stop hook and stopped state")
	}
}

func TestDrainTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	r := NewLifecycleRunner(drainFunc(func() error { <-block; return nil }), Hooks{}, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); !errors.Is(err, ErrDrainTimeout) {
		t.Fatalf("expected drain timeout, got %v", err)
	}
}
