package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-lifecycle-engine/internal/events"
)

var (
	ErrQueueFull   = fmt.Errorf("%w: outbound queue full", events.ErrPublishFailed)
	ErrPoolStopped = fmt.Errorf("%w: dispatcher stopped", events.ErrPublishFailed)
)

type Options struct {
	Workers        int
	QueueSize      int
	PublishTimeout time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 5 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 100 * time.Millisecond
	}
	return o
}

// Pool is the outbound event dispatcher. Publish only enqueues onto a bounded
// channel; worker goroutines hand the events to the Publisher. Failures are
// logged and never reach the mutation that produced the event.
type Pool struct {
	publisher events.Publisher
	logger    *zap.Logger
	opts      Options
	now       func() time.Time

	queue chan events.Envelope
	wg    sync.WaitGroup
	stop  chan struct{}

	mu      sync.RWMutex
	started bool
	stopped bool
}

func NewPool(publisher events.Publisher, logger *zap.Logger, opts Options) *Pool {
	opts = opts.withDefaults()
	return &Pool{
		publisher: publisher,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
		queue:     make(chan events.Envelope, opts.QueueSize),
		stop:      make(chan struct{}),
	}
}

// Publish enqueues an event without blocking. It satisfies the service's
// EventEmitter.
func (p *Pool) Publish(_ context.Context, topic string, payload any) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	env := events.NewEnvelope(topic, payload, p.now())
	select {
	case p.queue <- env:
		return nil
	default:
		p.logger.Warn("event dropped: queue full",
			zap.String("topic", topic),
			zap.String("event_id", env.ID),
			zap.Int("queue_size", p.opts.QueueSize),
		)
		return ErrQueueFull
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	p.logger.Info("Starting event dispatcher", zap.Int("workers", p.opts.Workers), zap.Int("queue_size", p.opts.QueueSize))
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop refuses new events, lets the workers drain what is queued and waits
// for them to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	started := p.started
	close(p.stop)
	p.mu.Unlock()

	p.logger.Info("Stopping event dispatcher...")
	if started {
		p.wg.Wait()
	}
	p.logger.Info("Event dispatcher stopped", zap.Int("undelivered", len(p.queue)))
}

// Pending returns the number of queued, undelivered events.
func (p *Pool) Pending() int {
	return len(p.queue)
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case env := <-p.queue:
			p.deliver(ctx, id, env)
		case <-p.stop:
			p.drain(ctx, id)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pool) drain(ctx context.Context, id int) {
	for {
		select {
		case env := <-p.queue:
			p.deliver(ctx, id, env)
		default:
			return
		}
	}
}

// deliver retries with linear backoff. The event is already committed state,
// so cancelling the caller's request must not cancel delivery; only the
// pool's own context does.
func (p *Pool) deliver(ctx context.Context, workerID int, env events.Envelope) {
	var err error
	for attempt := 0; attempt <= p.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * p.opts.RetryBackoff):
			case <-ctx.Done():
				return
			}
		}

		pubCtx, cancel := context.WithTimeout(ctx, p.opts.PublishTimeout)
		err = p.publisher.Publish(pubCtx, env.Topic, env)
		cancel()
		if err == nil {
			p.logger.Debug("event published",
				zap.Int("worker", workerID),
				zap.String("topic", env.Topic),
				zap.String("event_id", env.ID),
			)
			return
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return
		}
		p.logger.Warn("event publish failed",
			zap.Int("worker", workerID),
			zap.String("topic", env.Topic),
			zap.String("event_id", env.ID),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	p.logger.Error("event abandoned",
		zap.String("topic", env.Topic),
		zap.String("event_id", env.ID),
		zap.Error(err),
	)
}
