// internal/queue/pool.go
package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"fms-alerts/internal/common/logger"
	"fms-alerts/internal/common/metrics"
)

// Handler processes one claimed task. A returned error means the attempt
// could not be recorded; the pool puts the task back after RetryDelay.
type Handler interface {
	Handle(ctx context.Context, task Task) error
}

type HandlerFunc func(ctx context.Context, task Task) error

func (f HandlerFunc) Handle(ctx context.Context, task Task) error {
	return f(ctx, task)
}

type PoolConfig struct {
	Workers       int
	PollInterval  time.Duration
	RetryDelay    time.Duration
	DepthInterval time.Duration
}

// Pool runs independent workers claiming tasks from one Queue.
type Pool struct {
	queue   *Queue
	handler Handler
	config  PoolConfig
	logger  logger.Logger
	active  int64
}

func NewPool(q *Queue, h Handler, cfg PoolConfig, log logger.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 3 * time.Second
	}
	if cfg.DepthInterval <= 0 {
		cfg.DepthInterval = 5 * time.Second
	}
	return &Pool{
		queue:   q,
		handler: h,
		config:  cfg,
		logger:  log.WithFields(map[string]interface{}{"component": "delivery-pool"}),
	}
}

// Run blocks until ctx is cancelled. In-flight tasks finish with their own
// context so a shutdown never abandons a provider call half way.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("starting delivery workers", map[string]interface{}{
		"workers":      p.config.Workers,
		"pollInterval": p.config.PollInterval.String(),
	})

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.config.Workers; i++ {
		id := i
		g.Go(func() error {
			p.work(gctx, id)
			return nil
		})
	}
	g.Go(func() error {
		p.reportDepth(gctx)
		return nil
	})

	err := g.Wait()
	p.logger.Info("delivery workers stopped", nil)
	return err
}

// Active returns the number of tasks currently being handled.
func (p *Pool) Active() int64 {
	return atomic.LoadInt64(&p.active)
}

func (p *Pool) work(ctx context.Context, id int) {
	log := p.logger.WithFields(map[string]interface{}{"worker": id})
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if p.ProcessOne(ctx, log) {
			timer.Reset(0)
			continue
		}
		timer.Reset(p.config.PollInterval)
	}
}

// ProcessOne claims and handles at most one task. It reports whether a task
// was claimed so callers can drain without waiting.
func (p *Pool) ProcessOne(ctx context.Context, log logger.Logger) bool {
	task, ok, err := p.queue.Claim(ctx)
	if err != nil {
		if errors.Is(err, ErrMalformedTask) {
			log.Warn("dropping malformed task", map[string]interface{}{"error": err})
			return true
		}
		if ctx.Err() == nil {
			log.Error("failed to claim task", map[string]interface{}{"error": err})
		}
		return false
	}
	if !ok {
		return false
	}

	atomic.AddInt64(&p.active, 1)
	metrics.WorkersActive.Inc()
	defer func() {
		if err := p.queue.Release(context.WithoutCancel(ctx), task.MessageID); err != nil {
			// The lease expires on its own.
			log.Warn("failed to release message lease", map[string]interface{}{
				"messageId": task.MessageID,
				"error":     err,
			})
		}
		atomic.AddInt64(&p.active, -1)
		metrics.WorkersActive.Dec()
	}()

	// Detached so shutdown lets the attempt be persisted.
	if err := p.handler.Handle(context.WithoutCancel(ctx), task); err != nil {
		log.Error("task handling failed, requeueing", map[string]interface{}{
			"messageId": task.MessageID,
			"alertType": task.AlertType,
			"error":     err,
		})
		if qerr := p.queue.EnqueueAfter(context.WithoutCancel(ctx), task, p.config.RetryDelay); qerr != nil {
			log.Error("failed to requeue task", map[string]interface{}{
				"messageId": task.MessageID,
				"error":     qerr,
			})
		}
	}
	return true
}

func (p *Pool) reportDepth(ctx context.Context) {
	ticker := time.NewTicker(p.config.DepthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.queue.Depth(ctx)
			if err != nil {
				continue
			}
			metrics.QueueDepth.Set(float64(n))
		}
	}
}
