// Package dispatch runs chat-event work off the gateway goroutine with
// bounded concurrency.
//
// The dispatcher:
//  1. Takes a slot from the semaphore, or rejects the task when full
//  2. Runs the task under a per-task timeout
//  3. Recovers a panicking task so one user's event cannot kill the process
//  4. Counts completions, failures and rejections
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vip-ladder/tierbot/internal/infra/observability"
)

// ErrFull is returned by Submit when every slot is busy.
var ErrFull = errors.New("dispatcher at capacity")

// ErrClosed is returned by Submit once Drain has started.
var ErrClosed = errors.New("dispatcher draining")

// Task is one unit of work.
type Task func(ctx context.Context) error

// Config controls dispatcher behavior.
type Config struct {
	MaxConcurrent  int           // Maximum concurrent tasks (default: 16)
	DefaultTimeout time.Duration // Per-task timeout (default: 30s)
}

// DefaultConfig returns dispatcher defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:  16,
		DefaultTimeout: 30 * time.Second,
	}
}

// Dispatcher runs tasks asynchronously.
type Dispatcher struct {
	mu        sync.RWMutex
	config    Config
	sem       chan struct{} // Concurrency semaphore
	wg        sync.WaitGroup
	logger    *slog.Logger
	closed    bool
	active    int
	completed int64
	failed    int64
	rejected  int64
}

// New creates a dispatcher.
func New(cfg Config, logger *slog.Logger) *Dispatcher {
	def := DefaultConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = def.DefaultTimeout
	}
	return &Dispatcher{
		config: cfg,
		sem:    make(chan struct{}, cfg.MaxConcurrent),
		logger: observability.Component(logger, "dispatch"),
	}
}

// Submit schedules fn and returns immediately. ctx bounds the task's
// lifetime together with the configured timeout.
//
// Submit never blocks: when every slot is busy the task is rejected with
// ErrFull. For an activity event that rejection is a lost increment.
func (d *Dispatcher) Submit(ctx context.Context, name string, fn Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		d.rejected++
		observability.DispatchRejected.Inc()
		return ErrClosed
	}
	select {
	case d.sem <- struct{}{}:
	default:
		d.rejected++
		observability.DispatchRejected.Inc()
		return fmt.Errorf("%w (%d concurrent tasks)", ErrFull, d.config.MaxConcurrent)
	}

	d.wg.Add(1)
	go d.run(ctx, name, fn)
	return nil
}

func (d *Dispatcher) run(ctx context.Context, name string, fn Task) {
	defer d.wg.Done()
	defer func() { <-d.sem }() // Release concurrency slot

	d.mu.Lock()
	d.active++
	d.mu.Unlock()
	observability.DispatchActive.Inc()

	defer func() {
		d.mu.Lock()
		d.active--
		d.mu.Unlock()
		observability.DispatchActive.Dec()
	}()

	execCtx, cancel := context.WithTimeout(ctx, d.config.DefaultTimeout)
	defer cancel()

	if err := d.call(execCtx, fn); err != nil {
		d.mu.Lock()
		d.failed++
		d.mu.Unlock()
		d.logger.Warn("task failed", "task", name, "error", err)
		return
	}

	d.mu.Lock()
	d.completed++
	d.mu.Unlock()
}

func (d *Dispatcher) call(ctx context.Context, fn Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every submitted task has returned. Callers must not
// Submit concurrently with Wait; use Drain for shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Drain stops accepting tasks and waits for the running ones.
func (d *Dispatcher) Drain() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}

// Stats holds dispatcher counters.
type Stats struct {
	Active    int   `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
	MaxSlots  int   `json:"max_slots"`
	FreeSlots int   `json:"free_slots"`
}

// Stats returns current dispatcher statistics.
func (d *Dispatcher) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return Stats{
		Active:    d.active,
		Completed: d.completed,
		Failed:    d.failed,
		Rejected:  d.rejected,
		MaxSlots:  d.config.MaxConcurrent,
		FreeSlots: d.config.MaxConcurrent - d.active,
	}
}
