package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-security/internal/audit"
	"ms-security/internal/audit/delivery"
	"ms-security/internal/audit/retry"
)

// fakeTransport scripts delivery outcomes per call.
type fakeTransport struct {
	mu       sync.Mutex
	initErr  error
	outcomes []bool // consumed front-first; last value repeats
	sent     []audit.Event
}

func (f *fakeTransport) Initialize(context.Context) error { return f.initErr }
func (f *fakeTransport) Disconnect(context.Context)       {}

func (f *fakeTransport) Send(_ context.Context, event audit.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	ok := true
	if len(f.outcomes) > 0 {
		ok = f.outcomes[0]
		if len(f.outcomes) > 1 {
			f.outcomes = f.outcomes[1:]
		}
	}
	if ok {
		f.sent = append(f.sent, event)
	}
	return ok
}

func (f *fakeTransport) delivered() []audit.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]audit.Event(nil), f.sent...)
}

func enabledConfig() Config {
	return Config{
		Delivery: delivery.Config{
			Brokers:          []string{"broker:9093"},
			Topic:            "audit-events",
			ConnectionString: "Endpoint=sb://test",
		},
		Retry: retry.Options{Delay: time.Millisecond, Interval: time.Hour},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPipeline_DispatchDelivers(t *testing.T) {
	transport := &fakeTransport{}
	p := newPipeline(enabledConfig(), transport, discardLogger(), prometheus.NewRegistry())

	p.Dispatch(context.Background(), audit.Event{EventID: "e1"})

	require.Len(t, transport.delivered(), 1)
	assert.Equal(t, 0, p.QueueDepth())
	assert.Equal(t, float64(1), testutil.ToFloat64(p.metrics.Published))
}

func TestPipeline_DispatchQueuesOnFailure(t *testing.T) {
	transport := &fakeTransport{outcomes: []bool{false}}
	p := newPipeline(enabledConfig(), transport, discardLogger(), prometheus.NewRegistry())
	// The drain worker is not running; the failed event must sit in the
	// queue untouched.
	p.Dispatch(context.Background(), audit.Event{EventID: "e1"})

	assert.Empty(t, transport.delivered())
	assert.Equal(t, 1, p.QueueDepth())
	assert.Equal(t, float64(1), testutil.ToFloat64(p.metrics.DeliveryFailures))
}

func TestPipeline_DisabledIsInert(t *testing.T) {
	transport := &fakeTransport{}
	p := newPipeline(Config{}, transport, discardLogger(), prometheus.NewRegistry())

	require.NoError(t, p.Init(context.Background()))

	// The middleware is a pass-through.
	handlerRan := false
	handler := p.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		handlerRan = true
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/patients/1", nil))
	assert.True(t, handlerRan)
	assert.Equal(t, http.StatusOK, rec.Code)

	p.Dispatch(context.Background(), audit.Event{EventID: "ignored"})
	assert.Empty(t, transport.delivered())

	// Shutdown on a disabled pipeline is a no-op.
	p.Shutdown(context.Background())
}

func TestPipeline_FailedInitDisables(t *testing.T) {
	transport := &fakeTransport{initErr: errors.New("unresolvable broker")}
	p := newPipeline(enabledConfig(), transport, discardLogger(), prometheus.NewRegistry())

	require.Error(t, p.Init(context.Background()))

	// With no producer the pipeline must go inert instead of queueing
	// events nothing will ever drain.
	for range 5 {
		p.Dispatch(context.Background(), audit.Event{EventID: "e"})
	}
	assert.Equal(t, 0, p.QueueDepth())
	assert.Empty(t, transport.delivered())

	handlerRan := false
	handler := p.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		handlerRan = true
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/patients/1", nil))
	assert.True(t, handlerRan)

	// Shutdown must not wait out its deadline for a worker that never ran.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	start := time.Now()
	p.Shutdown(ctx)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPipeline_InitStartsDrainWorker(t *testing.T) {
	transport := &fakeTransport{outcomes: []bool{false, true}}
	p := newPipeline(enabledConfig(), transport, discardLogger(), prometheus.NewRegistry())

	require.NoError(t, p.Init(context.Background()))
	defer p.Shutdown(context.Background())

	// First send fails and is queued; the running drain worker redrives it.
	p.Dispatch(context.Background(), audit.Event{EventID: "e1"})

	assert.Eventually(t, func() bool {
		return len(transport.delivered()) == 1 && p.QueueDepth() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPipeline_ShutdownDrainsQueue(t *testing.T) {
	transport := &fakeTransport{outcomes: []bool{false, true}}
	p := newPipeline(enabledConfig(), transport, discardLogger(), prometheus.NewRegistry())
	require.NoError(t, p.Init(context.Background()))

	// Stop the background worker from winning the race by enqueueing right
	// before shutdown.
	p.Dispatch(context.Background(), audit.Event{EventID: "e1"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p.Shutdown(ctx)

	assert.Equal(t, 0, p.QueueDepth())
	assert.Len(t, transport.delivered(), 1)
}

func TestPipeline_ShutdownHonorsDeadline(t *testing.T) {
	// Delivery never succeeds; shutdown must still return promptly.
	transport := &fakeTransport{outcomes: []bool{false}}
	cfg := enabledConfig()
	cfg.Retry.Delay = 10 * time.Second // backoff far longer than the deadline
	p := newPipeline(cfg, transport, discardLogger(), prometheus.NewRegistry())
	require.NoError(t, p.Init(context.Background()))

	p.Dispatch(context.Background(), audit.Event{EventID: "stuck"})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	p.Shutdown(ctx)
	assert.Less(t, time.Since(start), 2*time.Second)
}
