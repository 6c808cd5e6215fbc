package retry_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"ms-security/internal/audit"
	"ms-security/internal/audit/metrics"
	"ms-security/internal/audit/mocks"
	"ms-security/internal/audit/retry"
)

func testQueue(t *testing.T, sink audit.Sink) (*retry.Queue, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := retry.NewQueue(sink, logger, m, retry.Options{
		Delay:    time.Millisecond,
		Interval: time.Hour, // ticks must not interfere with direct Drain calls
	})
	return q, m
}

// eventID matches an audit.Event by its EventID.
type eventID string

func (e eventID) Matches(x any) bool {
	event, ok := x.(audit.Event)
	return ok && event.EventID == string(e)
}

func (e eventID) String() string {
	return fmt.Sprintf("event with id %q", string(e))
}

func TestQueue_RetriesThenDelivers(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockSink(ctrl)
	q, m := testQueue(t, sink)

	gomock.InOrder(
		sink.EXPECT().Send(gomock.Any(), eventID("e1")).Return(false),
		sink.EXPECT().Send(gomock.Any(), eventID("e1")).Return(false),
		sink.EXPECT().Send(gomock.Any(), eventID("e1")).Return(true),
	)

	q.Enqueue(audit.Event{EventID: "e1"})

	ctx := context.Background()
	q.Drain(ctx) // fail, attempts=1, backoff ends the pass
	assert.Equal(t, 1, q.Depth())
	q.Drain(ctx) // fail, attempts=2
	assert.Equal(t, 1, q.Depth())
	q.Drain(ctx) // delivered
	assert.Equal(t, 0, q.Depth())

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Published))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Dropped))
}

func TestQueue_DropsAfterAttemptCap(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockSink(ctrl)
	q, m := testQueue(t, sink)

	sink.EXPECT().Send(gomock.Any(), eventID("doomed")).Return(false).Times(3)

	q.Enqueue(audit.Event{EventID: "doomed"})

	ctx := context.Background()
	q.Drain(ctx)
	q.Drain(ctx)
	q.Drain(ctx) // third failure drops the item

	assert.Equal(t, 0, q.Depth())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Dropped))

	// A dropped item is never attempted again; the mock would fail on a
	// fourth Send.
	q.Drain(ctx)
}

func TestQueue_FIFOOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockSink(ctrl)
	q, _ := testQueue(t, sink)

	// The head item must survive a failure and be retried before the second
	// item is ever attempted.
	gomock.InOrder(
		sink.EXPECT().Send(gomock.Any(), eventID("first")).Return(false),
		sink.EXPECT().Send(gomock.Any(), eventID("first")).Return(true),
		sink.EXPECT().Send(gomock.Any(), eventID("second")).Return(true),
	)

	q.Enqueue(audit.Event{EventID: "first"})
	q.Enqueue(audit.Event{EventID: "second"})

	ctx := context.Background()
	q.Drain(ctx) // first fails, pass ends without touching second
	assert.Equal(t, 2, q.Depth())
	q.Drain(ctx) // first delivered, then second
	assert.Equal(t, 0, q.Depth())
}

func TestQueue_DropAndContinueInOnePass(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockSink(ctrl)
	q, m := testQueue(t, sink)

	gomock.InOrder(
		sink.EXPECT().Send(gomock.Any(), eventID("doomed")).Return(false).Times(3),
		sink.EXPECT().Send(gomock.Any(), eventID("next")).Return(true),
	)

	q.Enqueue(audit.Event{EventID: "doomed"})
	q.Enqueue(audit.Event{EventID: "next"})

	ctx := context.Background()
	q.Drain(ctx)
	q.Drain(ctx)
	// Third failure drops the head and the same pass continues to deliver
	// the next item.
	q.Drain(ctx)

	assert.Equal(t, 0, q.Depth())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Dropped))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Published))
}

func TestQueue_SingleDrainAtATime(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockSink(ctrl)
	q, _ := testQueue(t, sink)

	entered := make(chan struct{})
	release := make(chan struct{})
	sink.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, audit.Event) bool {
			close(entered)
			<-release
			return true
		})

	q.Enqueue(audit.Event{EventID: "slow"})

	done := make(chan struct{})
	go func() {
		q.Drain(context.Background())
		close(done)
	}()
	<-entered

	// While a drain is in flight, a second caller returns immediately
	// without attempting anything.
	q.Drain(context.Background())

	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("drain did not finish")
	}
	assert.Equal(t, 0, q.Depth())
}

func TestQueue_RunDrainsOnEnqueue(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockSink(ctrl)
	q, _ := testQueue(t, sink)

	delivered := make(chan struct{})
	sink.EXPECT().Send(gomock.Any(), eventID("kicked")).DoAndReturn(
		func(context.Context, audit.Event) bool {
			close(delivered)
			return true
		})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	q.Enqueue(audit.Event{EventID: "kicked"})

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue did not trigger a drain")
	}
}

func TestQueue_DrainStopsWhenContextExpires(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockSink(ctrl)
	q, _ := testQueue(t, sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q.Enqueue(audit.Event{EventID: "stuck"})
	q.Drain(ctx)

	// Nothing was attempted; the item stays queued for the next pass.
	assert.Equal(t, 1, q.Depth())
}
