// Package pipeline wires the audit components into one object the host
// mounts at startup: interceptor in the middleware chain, delivery client and
// retry queue behind it, with explicit init/drain/shutdown lifecycle.
package pipeline

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ms-security/internal/audit"
	"ms-security/internal/audit/delivery"
	"ms-security/internal/audit/metrics"
	"ms-security/internal/audit/retry"
)

// shutdownPoll is how often the shutdown drain re-checks queue depth while
// another drain pass is in flight.
const shutdownPoll = 100 * time.Millisecond

// Config assembles the full configuration surface of the pipeline.
type Config struct {
	Delivery        delivery.Config
	Retry           retry.Options
	ExcludedRoutes  []string
	HipaaRoutes     []string
	SensitiveFields []string
}

// Transport is the delivery client surface the pipeline drives. Satisfied by
// *delivery.Client.
type Transport interface {
	audit.Sink
	Initialize(ctx context.Context) error
	Disconnect(ctx context.Context)
}

// Pipeline is the composition root of the audit subsystem. A disabled
// pipeline (no event hub credential) mounts as a pass-through middleware and
// performs no audit work at all.
type Pipeline struct {
	enabled     bool
	client      Transport
	queue       *retry.Queue
	interceptor *audit.Interceptor
	metrics     *metrics.Metrics
	logger      *slog.Logger

	cancelRun context.CancelFunc
	runDone   chan struct{}
}

// New builds the pipeline. Nothing connects until Init.
func New(cfg Config, logger *slog.Logger, reg prometheus.Registerer) *Pipeline {
	return newPipeline(cfg, delivery.NewClient(cfg.Delivery, logger), logger, reg)
}

func newPipeline(cfg Config, client Transport, logger *slog.Logger, reg prometheus.Registerer) *Pipeline {
	m := metrics.New(reg)
	queue := retry.NewQueue(client, logger, m, cfg.Retry)

	p := &Pipeline{
		enabled: cfg.Delivery.Enabled(),
		client:  client,
		queue:   queue,
		metrics: m,
		logger:  logger,
		runDone: make(chan struct{}),
	}

	redactor := audit.NewRedactor(cfg.SensitiveFields)
	enricher := audit.NewEnricher(redactor, cfg.HipaaRoutes)
	p.interceptor = audit.NewInterceptor(enricher, p, cfg.ExcludedRoutes, logger, m)
	return p
}

// Init connects the delivery client and starts the retry drain worker. With
// no event hub configured it logs once and returns nil; the host starts
// normally either way.
func (p *Pipeline) Init(ctx context.Context) error {
	if !p.enabled {
		p.logger.Info("audit pipeline disabled")
		close(p.runDone)
		return nil
	}
	if err := p.client.Initialize(ctx); err != nil {
		// A pipeline with no producer must not capture: without a drain
		// worker the queue would only grow. Degrade to fully disabled.
		p.enabled = false
		close(p.runDone)
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	p.cancelRun = cancel
	go func() {
		defer close(p.runDone)
		p.queue.Run(runCtx)
	}()
	return nil
}

// Middleware returns the handler wrapper to mount in the host's chain.
func (p *Pipeline) Middleware() func(http.Handler) http.Handler {
	if !p.enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return p.interceptor.Middleware
}

// Dispatch sends one event, falling back to the retry queue on failure.
// Implements audit.Dispatcher.
func (p *Pipeline) Dispatch(ctx context.Context, event audit.Event) {
	if !p.enabled {
		return
	}
	if p.client.Send(ctx, event) {
		p.metrics.Published.Inc()
		return
	}
	p.metrics.DeliveryFailures.Inc()
	p.queue.Enqueue(event)
}

// QueueDepth exposes the number of events awaiting redelivery.
func (p *Pipeline) QueueDepth() int {
	return p.queue.Depth()
}

// Shutdown stops the drain worker, redrives what it can within ctx's
// deadline, and closes the producer. The retry cap alone does not bound
// drain time, so callers must pass a deadline; events still queued when it
// expires are lost and already counted as dropped or pending.
func (p *Pipeline) Shutdown(ctx context.Context) {
	if !p.enabled {
		return
	}

	if p.cancelRun != nil {
		p.cancelRun()
	}
	select {
	case <-p.runDone:
	case <-ctx.Done():
	}

	for p.queue.Depth() > 0 && ctx.Err() == nil {
		p.queue.Drain(ctx)
		if p.queue.Depth() == 0 {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(shutdownPoll):
		}
	}
	if n := p.queue.Depth(); n > 0 {
		p.logger.Warn("audit shutdown drain incomplete", "pending", n)
	}

	p.client.Disconnect(ctx)
}
