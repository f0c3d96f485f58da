package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// PollerConfig holds configuration for a Poller
type PollerConfig struct {
	// Name identifies the poller in logs
	Name string

	// PollInterval is how often Poll runs (default: 1m)
	PollInterval time.Duration

	// CleanupInterval is how often Cleanup runs, if set (default: 1h)
	CleanupInterval time.Duration
}

// Poller runs a task on a fixed interval with an optional, slower housekeeping task.
type Poller struct {
	config  PollerConfig
	poll    func(context.Context) error
	cleanup func(context.Context) error

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewPoller creates a poller. cleanup may be nil.
func NewPoller(config PollerConfig, poll, cleanup func(context.Context) error) *Poller {
	if config.PollInterval <= 0 {
		config.PollInterval = time.Minute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Hour
	}
	if config.Name == "" {
		config.Name = "poller"
	}
	return &Poller{config: config, poll: poll, cleanup: cleanup}
}

// Start begins the processing loop. Returns an error if already running.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("%s is already running", p.config.Name)
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Poller started",
		"name", p.config.Name,
		"poll_interval", p.config.PollInterval)

	return nil
}

// Stop gracefully stops the poller and waits for completion.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Poller stopped gracefully", "name", p.config.Name)
	case <-ctx.Done():
		slog.WarnContext(ctx, "Poller stop timed out", "name", p.config.Name)
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the poller is currently running
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(p.config.CleanupInterval)
	defer cleanupTicker.Stop()

	// Run immediately on startup
	p.run(ctx, "poll", p.poll)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.run(ctx, "poll", p.poll)
		case <-cleanupTicker.C:
			p.run(ctx, "cleanup", p.cleanup)
		}
	}
}

func (p *Poller) run(ctx context.Context, task string, fn func(context.Context) error) {
	if fn == nil {
		return
	}
	if err := fn(ctx); err != nil {
		slog.ErrorContext(ctx, "Poller task failed",
			"name", p.config.Name,
			"task", task,
			"error", err)
	}
}
