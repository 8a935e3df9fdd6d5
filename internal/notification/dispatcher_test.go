package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	block  chan struct{}
	err    error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Send(ctx context.Context, event Event) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestDispatcherDeliversAndDrains(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(zap.NewNop(), 8, sink)
	d.Start()

	for i := 0; i < 5; i++ {
		assert.True(t, d.Publish(Event{Type: EventJobCompleted, JobID: "j"}))
	}
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 5, sink.count())

	assert.False(t, d.Publish(Event{Type: EventJobFailed}))
}

func TestDispatcherPublishNeverBlocks(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	d := NewDispatcher(zap.NewNop(), 1, sink)
	d.Start()

	accepted := 0
	start := time.Now()
	for i := 0; i < 10; i++ {
		if d.Publish(Event{Type: EventJobFailed}) {
			accepted++
		}
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.LessOrEqual(t, accepted, 2)

	close(sink.block)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, accepted, sink.count())
}

func TestDispatcherSinkErrorIsSwallowed(t *testing.T) {
	sink := &recordingSink{err: errors.New("webhook down")}
	d := NewDispatcher(zap.NewNop(), 4, sink)
	d.Start()

	assert.True(t, d.Publish(Event{Type: EventRefundFailed}))
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 1, sink.count())
	assert.False(t, sink.events[0].OccurredAt.IsZero())
}

func TestCloseWithoutStart(t *testing.T) {
	d := NewDispatcher(nil, 0)
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))
}

func TestFormatMessage(t *testing.T) {
	msg := FormatMessage(Event{Type: EventJobFailed, Kind: "video", JobID: "7", ModelKey: "veo3", ErrorMessage: "policy", CorrelationID: "c1"})
	assert.Equal(t, ":x: video job 7 failed (veo3): policy [c1]", msg)

	msg = FormatMessage(Event{Type: EventRefundFailed, JobID: "7", UserID: 3, CreditsCost: 60, ErrorMessage: "db down"})
	assert.Contains(t, msg, "refund of 60 credits for job 7 (user 3) failed")
}
