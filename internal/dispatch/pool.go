// Package dispatch runs acknowledged webhook batches through the
// per-message pipeline on a bounded worker pool.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/memohai/ledgerchat/internal/webhook"
)

var (
	ErrQueueFull  = errors.New("dispatch queue is full")
	ErrPoolClosed = errors.New("dispatch pool is closed")
)

// BatchProcessor handles one webhook batch.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, batch []webhook.InboundMessage)
}

// Pool queues batches for a fixed number of workers. Enqueue never blocks.
type Pool struct {
	processor BatchProcessor
	workers   int
	queue     chan []webhook.InboundMessage
	logger    *slog.Logger

	mu      sync.RWMutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

func NewPool(log *slog.Logger, processor BatchProcessor, workers, queueSize int) *Pool {
	if log == nil {
		log = slog.Default()
	}
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Pool{
		processor: processor,
		workers:   workers,
		queue:     make(chan []webhook.InboundMessage, queueSize),
		logger:    log.With(slog.String("component", "dispatch_pool")),
	}
}

// Start launches the workers. Cancelling ctx does not stop them; use Shutdown.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.group = &errgroup.Group{}
	for i := 0; i < p.workers; i++ {
		p.group.Go(func() error {
			for batch := range p.queue {
				p.run(workCtx, batch)
			}
			return nil
		})
	}
	p.logger.Info("dispatch workers started", slog.Int("workers", p.workers), slog.Int("queue_size", cap(p.queue)))
}

func (p *Pool) run(ctx context.Context, batch []webhook.InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("batch processing panicked", slog.Any("panic", r), slog.Int("messages", len(batch)))
		}
	}()
	p.processor.ProcessBatch(ctx, batch)
}

// Enqueue hands batch to the workers, failing fast when the queue is full.
func (p *Pool) Enqueue(batch []webhook.InboundMessage) error {
	if len(batch) == 0 {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.queue <- batch:
		return nil
	default:
		return ErrQueueFull
	}
}

// Depth reports the number of queued batches.
func (p *Pool) Depth() int { return len(p.queue) }

// Capacity is the configured queue size.
func (p *Pool) Capacity() int { return cap(p.queue) }

// Shutdown stops intake and waits for queued and in-flight batches. When ctx
// expires first, workers are told to stop starting new messages and
// Shutdown returns ctx's error.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	group, cancel := p.group, p.cancel
	p.mu.Unlock()

	if group == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()
	select {
	case <-done:
		cancel()
		p.logger.Info("dispatch workers drained")
		return nil
	case <-ctx.Done():
		cancel()
		p.logger.Warn("dispatch shutdown timed out", slog.Int("pending_batches", len(p.queue)))
		return fmt.Errorf("dispatch shutdown: %w", ctx.Err())
	}
}
