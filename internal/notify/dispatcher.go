package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"cityinfo.org/internal/obs"
)

const (
	DefaultQueueSize      = 64
	DefaultMaxRetries     = 3
	DefaultAttemptTimeout = 5 * time.Second
)

// ErrClosed is returned by Close when called twice.
var ErrClosed = errors.New("dispatcher closed")

// Config tunes a Dispatcher. Zero values pick the defaults.
type Config struct {
	QueueSize      int
	MaxRetries     uint64
	AttemptTimeout time.Duration
	// InitialInterval is the first back-off delay; tests shorten it.
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = DefaultAttemptTimeout
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 200 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 5 * time.Second
	}
	return c
}

// Dispatcher hands messages to a Sink from a single worker goroutine. Each message
// is tried 1+MaxRetries times with exponential back-off, then logged and dropped.
type Dispatcher struct {
	sink   Sink
	cfg    Config
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Message

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDispatcher starts the worker. Call Close to drain and stop it.
func NewDispatcher(sink Sink, cfg Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sink:   sink,
		cfg:    cfg,
		logger: logger,
		queue:  make(chan Message, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Notify enqueues msg without blocking. It reports false when the message was
// dropped because the queue is full or the dispatcher is closed.
func (d *Dispatcher) Notify(msg Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(msg, "closed")
		return false
	}
	select {
	case d.queue <- msg:
		return true
	default:
		d.drop(msg, "queue_full")
		return false
	}
}

func (d *Dispatcher) drop(msg Message, reason string) {
	obs.ObserveNotification("dropped")
	d.logger.Warn("notification_dropped", zap.String("reason", reason), zap.String("subject", msg.Subject))
}

// Close stops accepting messages and waits for the queue to drain. When ctx ends
// first, in-flight delivery is cancelled and ctx.Err() is returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	select {
	case <-d.done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-d.done
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = d.cfg.InitialInterval
	eb.MaxInterval = d.cfg.MaxInterval
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, d.cfg.MaxRetries), d.ctx)

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		actx, cancel := context.WithTimeout(d.ctx, d.cfg.AttemptTimeout)
		defer cancel()
		return d.sink.Send(actx, msg)
	}, policy)

	if err != nil {
		obs.ObserveNotification("failed")
		d.logger.Error("notification_failed",
			zap.String("subject", msg.Subject),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return
	}
	obs.ObserveNotification("sent")
	d.logger.Debug("notification_sent", zap.String("subject", msg.Subject), zap.Int("attempts", attempts))
}
