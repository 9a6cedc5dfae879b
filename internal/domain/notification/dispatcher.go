package notification

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/creditswap/creditswap-api/internal/pkg/logger"
)

const drainTimeout = 5 * time.Second

// Deliverer persists and pushes a single event.
type Deliverer interface {
	Deliver(ctx context.Context, e Event) (*Notification, error)
}

type queued struct {
	event     Event
	requestID string
}

// Dispatcher is the bounded-queue Notifier. Notify never blocks: when the
// queue is full the event is dropped and logged.
type Dispatcher struct {
	deliverer Deliverer
	queue     chan queued
	workers   int

	// mu guards stopped so no event is enqueued after the final drain.
	mu      sync.RWMutex
	stopped bool

	dropped   atomic.Int64
	delivered atomic.Int64
}

// NewDispatcher creates a dispatcher with a queue of size and n workers.
func NewDispatcher(deliverer Deliverer, size, workers int) *Dispatcher {
	if size <= 0 {
		size = 1024
	}
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		deliverer: deliverer,
		queue:     make(chan queued, size),
		workers:   workers,
	}
}

// Notify enqueues e. Events arriving after Run has stopped are dropped.
func (d *Dispatcher) Notify(ctx context.Context, e Event) {
	item := queued{event: e, requestID: logger.RequestID(ctx)}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		d.drop(item, "Notification dispatcher stopped, dropping event")
		return
	}
	select {
	case d.queue <- item:
	default:
		d.drop(item, "Notification queue full, dropping event")
	}
}

func (d *Dispatcher) drop(item queued, msg string) {
	d.dropped.Add(1)
	log.Warn().
		Str("user_id", item.event.UserID.String()).
		Str("type", string(item.event.Type)).
		Str("request_id", item.requestID).
		Msg(msg)
}

// Run starts the workers and blocks until ctx is cancelled. Events still
// buffered at shutdown are delivered within drainTimeout.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case item := <-d.queue:
					d.deliver(gctx, item)
				}
			}
		})
	}
	err := g.Wait()

	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	for {
		select {
		case item := <-d.queue:
			d.deliver(drainCtx, item)
		default:
			log.Info().
				Int64("delivered", d.delivered.Load()).
				Int64("dropped", d.dropped.Load()).
				Msg("Notification dispatcher stopped")
			return err
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, item queued) {
	if _, err := d.deliverer.Deliver(ctx, item.event); err != nil {
		log.Error().Err(err).
			Str("user_id", item.event.UserID.String()).
			Str("type", string(item.event.Type)).
			Str("request_id", item.requestID).
			Msg("Failed to deliver notification")
		return
	}
	d.delivered.Add(1)
}

// Stats returns delivered and dropped counters.
func (d *Dispatcher) Stats() (delivered, dropped int64) {
	return d.delivered.Load(), d.dropped.Load()
}
