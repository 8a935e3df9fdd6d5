package notification

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultBufferSize = 256
	sendTimeout       = 10 * time.Second
)

// Dispatcher fans events out to sinks from a single background worker.
// Sink failures are logged and never reach the publisher.
type Dispatcher struct {
	log   *zap.Logger
	sinks []Sink
	ch    chan Event

	mu      sync.RWMutex
	closed  bool
	started bool
	done    chan struct{}
}

func NewDispatcher(log *zap.Logger, bufferSize int, sinks ...Sink) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Dispatcher{
		log:   log.Named("notification.dispatcher"),
		sinks: sinks,
		ch:    make(chan Event, bufferSize),
		done:  make(chan struct{}),
	}
}

func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	go d.run()
}

// Publish enqueues event. It returns false when the buffer is full or the
// dispatcher has stopped.
func (d *Dispatcher) Publish(event Event) bool {
	if d == nil {
		return false
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.ch <- event:
		return true
	default:
		d.log.Warn("notification dropped, buffer full",
			zap.String("event", string(event.Type)),
			zap.String("job_id", event.JobID),
		)
		return false
	}
}

// Close stops intake and waits for queued events to drain or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	started := d.started
	close(d.ch)
	d.mu.Unlock()

	if !started {
		return nil
	}
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		d.log.Warn("notification drain interrupted", zap.Int("pending", len(d.ch)))
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for event := range d.ch {
		d.deliver(event)
	}
}

func (d *Dispatcher) deliver(event Event) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := sink.Send(ctx, event)
		cancel()
		if err != nil {
			d.log.Warn("notification sink failed",
				zap.String("sink", sink.Name()),
				zap.String("event", string(event.Type)),
				zap.String("job_id", event.JobID),
				zap.Error(err),
			)
		}
	}
}
