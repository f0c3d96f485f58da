package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewPoller_Defaults(t *testing.T) {
	p := NewPoller(PollerConfig{}, nil, nil)

	if p.config.PollInterval != time.Minute {
		t.Errorf("expected PollInterval 1m, got %v", p.config.PollInterval)
	}
	if p.config.CleanupInterval != time.Hour {
		t.Errorf("expected CleanupInterval 1h, got %v", p.config.CleanupInterval)
	}
	if p.IsRunning() {
		t.Error("poller should not be running initially")
	}
}

func TestPoller_StartTwice(t *testing.T) {
	p := NewPoller(PollerConfig{PollInterval: 100 * time.Millisecond}, func(context.Context) error { return nil }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if err := p.Start(ctx); err == nil {
		t.Error("second start should fail")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Errorf("stop failed: %v", err)
	}
	if p.IsRunning() {
		t.Error("poller should not be running after stop")
	}
}

func TestPoller_RunsImmediatelyAndOnInterval(t *testing.T) {
	var calls atomic.Int32
	p := NewPoller(PollerConfig{Name: "test", PollInterval: 20 * time.Millisecond},
		func(context.Context) error {
			calls.Add(1)
			return errors.New("keeps going")
		}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if calls.Load() < 3 {
		t.Fatalf("expected at least 3 polls, got %d", calls.Load())
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Errorf("stop failed: %v", err)
	}
}

func TestPoller_StopWhenNotRunning(t *testing.T) {
	p := NewPoller(PollerConfig{}, nil, nil)
	if err := p.Stop(context.Background()); err != nil {
		t.Errorf("stop on idle poller should be a no-op, got %v", err)
	}
}
