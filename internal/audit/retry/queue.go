// Package retry holds failed audit deliveries in memory and redrives them
// with backoff. The queue is process-local: multi-instance deployments each
// keep their own, which gives at-least-once delivery across the fleet.
package retry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ms-security/internal/audit"
	"ms-security/internal/audit/metrics"
)

const (
	// DefaultMaxAttempts is how many redelivery attempts an item gets before
	// it is dropped and counted as lost.
	DefaultMaxAttempts = 3
	// DefaultDelay is the backoff unit: an item sleeps attempts * DefaultDelay
	// between failures.
	DefaultDelay = 5 * time.Second
	// DefaultInterval is how often the drain loop wakes without an enqueue.
	DefaultInterval = 30 * time.Second
)

// Item is one failed delivery awaiting redrive. Attempts only ever grows and
// is bounded by the queue's attempt cap.
type Item struct {
	Event      audit.Event
	EnqueuedAt time.Time
	Attempts   int
}

// Options tune the queue. Zero values fall back to the defaults.
type Options struct {
	MaxAttempts int
	Delay       time.Duration
	Interval    time.Duration
}

// Queue is an in-memory FIFO of failed deliveries with a single drain worker.
// Enqueues from concurrent requests are safe; draining is serialized by an
// in-progress flag so no item is ever in flight twice.
type Queue struct {
	sink    audit.Sink
	logger  *slog.Logger
	metrics *metrics.Metrics

	maxAttempts int
	delay       time.Duration
	interval    time.Duration

	mu       sync.Mutex
	items    []*Item
	draining bool

	kick chan struct{}
}

// NewQueue builds a queue that redrives through sink.
func NewQueue(sink audit.Sink, logger *slog.Logger, m *metrics.Metrics, opts Options) *Queue {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Queue{
		sink:        sink,
		logger:      logger,
		metrics:     m,
		maxAttempts: opts.MaxAttempts,
		delay:       opts.Delay,
		interval:    opts.Interval,
		kick:        make(chan struct{}, 1),
	}
}

// Enqueue appends a failed event to the tail and nudges the drain loop.
func (q *Queue) Enqueue(event audit.Event) {
	q.mu.Lock()
	q.items = append(q.items, &Item{Event: event, EnqueuedAt: time.Now()})
	q.metrics.QueueDepth.Set(float64(len(q.items)))
	q.mu.Unlock()

	select {
	case q.kick <- struct{}{}:
	default:
	}
}

// Depth returns the number of items awaiting redelivery.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Run is the drain loop. It wakes on every enqueue and on a periodic tick,
// and exits when ctx is cancelled. Start it once, in its own goroutine.
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.kick:
		case <-ticker.C:
		}
		q.Drain(ctx)
	}
}

// Drain processes the queue head-first until it is empty, an item enters its
// backoff window, or ctx expires. Concurrent calls are collapsed: only one
// drain runs at a time, extra callers return immediately.
func (q *Queue) Drain(ctx context.Context) {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return
	}
	q.draining = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	for ctx.Err() == nil {
		item, ok := q.head()
		if !ok {
			return
		}

		q.metrics.Retried.Inc()
		if q.sink.Send(ctx, item.Event) {
			q.pop()
			q.metrics.Published.Inc()
			continue
		}

		item.Attempts++
		if item.Attempts >= q.maxAttempts {
			q.pop()
			q.metrics.Dropped.Inc()
			q.logger.Warn("audit event lost after exhausting retries",
				"event_id", item.Event.EventID,
				"event_type", item.Event.EventType,
				"attempts", item.Attempts,
			)
			continue
		}

		// Back off, then end this pass; the next kick or tick resumes from
		// the same head item so FIFO order is preserved.
		select {
		case <-ctx.Done():
		case <-time.After(time.Duration(item.Attempts) * q.delay):
		}
		return
	}
}

func (q *Queue) head() (*Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0], true
}

func (q *Queue) pop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) > 0 {
		q.items = q.items[1:]
	}
	q.metrics.QueueDepth.Set(float64(len(q.items)))
}
