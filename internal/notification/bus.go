package notification

import (
	"context"
	"log/slog"
	"sync"
)

const defaultBusBuffer = 1024

// Bus is a buffered fan-out from publishers to sinks. Publish never blocks: when the
// buffer is full the notification is dropped and logged. Run delivers buffered
// notifications to every sink in subscription order.
type Bus struct {
	mu     sync.RWMutex
	sinks  []namedSink
	queue  chan Notification
	logger *slog.Logger
}

type namedSink struct {
	name string
	sink Sink
}

// NewBus creates a Bus holding up to buffer undelivered notifications.
func NewBus(buffer int, logger *slog.Logger) *Bus {
	if buffer <= 0 {
		buffer = defaultBusBuffer
	}
	return &Bus{
		queue:  make(chan Notification, buffer),
		logger: logger,
	}
}

// Subscribe registers a sink. Sinks added after Run started receive later
// notifications only.
func (b *Bus) Subscribe(name string, sink Sink) {
	b.mu.Lock()
	b.sinks = append(b.sinks, namedSink{name: name, sink: sink})
	b.mu.Unlock()
}

// Publish enqueues n for delivery.
func (b *Bus) Publish(_ context.Context, n Notification) {
	select {
	case b.queue <- n:
	default:
		if b.logger != nil {
			b.logger.Warn("notification dropped, bus buffer full", slog.String("kind", string(n.Kind)))
		}
	}
}

// Run delivers notifications until ctx is done, then flushes what is already
// buffered and returns.
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case n := <-b.queue:
			b.deliver(ctx, n)
		case <-ctx.Done():
			b.flush()
			return nil
		}
	}
}

func (b *Bus) flush() {
	ctx := context.Background()
	for {
		select {
		case n := <-b.queue:
			b.deliver(ctx, n)
		default:
			return
		}
	}
}

func (b *Bus) deliver(ctx context.Context, n Notification) {
	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()

	for _, s := range sinks {
		if err := s.sink.Deliver(ctx, n); err != nil && b.logger != nil {
			b.logger.Error("notification sink failed",
				slog.String("sink", s.name),
				slog.String("kind", string(n.Kind)),
				slog.Any("error", err),
			)
		}
	}
}
