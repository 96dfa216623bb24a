package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrDispatcherStopped is returned when an event is offered to a dispatcher that is not running.
var ErrDispatcherStopped = errors.New("event dispatcher not running")

// Envelope is one event waiting for delivery.
type Envelope struct {
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// DispatcherConfig configures the delivery worker pool.
type DispatcherConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Dispatcher hands events to a downstream Publisher from background workers so
// callers never wait on the broker. Failed deliveries are retried after RetryDelay.
type Dispatcher struct {
	next Publisher

	workers    int
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger

	events  chan Envelope
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewDispatcher wraps next with an asynchronous retrying queue.
func NewDispatcher(next Publisher, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 16
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Dispatcher{
		next:       next,
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger,
		events:     make(chan Envelope, cfg.BufferSize),
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(d.ctx)
	}
	d.started = true
	d.logger.Sugar().Infow("event dispatcher started", "workers", d.workers)
}

// Stop cancels the workers and waits for them to exit. Undelivered events are dropped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.cancel()
	d.started = false
	d.mu.Unlock()
	d.wg.Wait()
	d.logger.Sugar().Infow("event dispatcher stopped", "pending", len(d.events))
}

// Publish implements Publisher by queueing the event. It blocks only while the buffer is full.
func (d *Dispatcher) Publish(ctx context.Context, eventType string, payload interface{}) error {
	return d.enqueue(ctx, Envelope{Type: eventType, Payload: payload, Enqueued: time.Now().UTC()})
}

func (d *Dispatcher) enqueue(ctx context.Context, env Envelope) error {
	d.mu.Lock()
	runCtx := d.ctx
	started := d.started
	d.mu.Unlock()
	if !started {
		return ErrDispatcherStopped
	}

	select {
	case <-runCtx.Done():
		return ErrDispatcherStopped
	case <-ctx.Done():
		return ctx.Err()
	case d.events <- env:
		return nil
	}
}

// worker and its retries stay bound to the run context they were started with,
// so a later Start cannot swap it out from under them.
func (d *Dispatcher) worker(runCtx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-runCtx.Done():
			return
		case env := <-d.events:
			if err := d.next.Publish(runCtx, env.Type, env.Payload); err != nil {
				d.retry(runCtx, env, err)
			}
		}
	}
}

func (d *Dispatcher) retry(runCtx context.Context, env Envelope, err error) {
	env.Attempt++
	if env.Attempt > d.maxRetries {
		d.logger.Sugar().Errorw("event dropped after retries", "type", env.Type, "attempts", env.Attempt, "error", err)
		return
	}
	d.logger.Sugar().Warnw("event delivery failed, retrying", "type", env.Type, "attempt", env.Attempt, "error", err)

	go func(e Envelope) {
		timer := time.NewTimer(d.retryDelay)
		defer timer.Stop()
		select {
		case <-runCtx.Done():
			return
		case <-timer.C:
			if err := d.enqueue(runCtx, e); err != nil {
				d.logger.Sugar().Errorw("failed to requeue event", "type", e.Type, "error", err)
			}
		}
	}(env)
}
