package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sink persists a batch of events.
type Sink interface {
	WriteBatch(ctx context.Context, events []Event) error
}

// Config configures the async publisher.
type Config struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// DropObserver is told when the buffer is full and an event is dropped.
type DropObserver interface {
	ObserveDroppedEvent(eventType string)
}

// AsyncPublisher implements Publisher with a buffered channel and a
// background worker that flushes batches to a Sink.
type AsyncPublisher struct {
	ch     chan Event
	sink   Sink
	cfg    Config
	drops  DropObserver
	wg     sync.WaitGroup
	cancel context.CancelFunc
	once   sync.Once
}

// PublisherOption configures an AsyncPublisher.
type PublisherOption func(*AsyncPublisher)

// WithDropObserver reports dropped events to obs.
func WithDropObserver(obs DropObserver) PublisherOption {
	return func(p *AsyncPublisher) {
		p.drops = obs
	}
}

// NewAsyncPublisher creates and starts an async publisher.
func NewAsyncPublisher(sink Sink, cfg Config, opts ...PublisherOption) *AsyncPublisher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 4096
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &AsyncPublisher{
		ch:     make(chan Event, cfg.BufferSize),
		sink:   sink,
		cfg:    cfg,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(1)
	go p.worker(ctx)

	return p
}

// Publish enqueues an event. Never blocks the caller; drops if the buffer is full.
func (p *AsyncPublisher) Publish(_ context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	select {
	case p.ch <- event:
	default:
		slog.Warn("event buffer full, dropping event", "type", event.Type)
		if p.drops != nil {
			p.drops.ObserveDroppedEvent(event.Type)
		}
	}
}

// Close flushes remaining events and stops the worker. Safe to call twice.
func (p *AsyncPublisher) Close() error {
	p.once.Do(func() {
		p.cancel()
		p.wg.Wait()
		p.flush(p.drainAll())
	})
	return nil
}

func (p *AsyncPublisher) worker(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	var batch []Event

	for {
		select {
		case <-ctx.Done():
			batch = append(batch, p.drainAll()...)
			p.flush(batch)
			return

		case e := <-p.ch:
			batch = append(batch, e)
			if len(batch) >= p.cfg.BatchSize {
				p.flush(batch)
				batch = nil
			}

		case <-ticker.C:
			if len(batch) > 0 {
				p.flush(batch)
				batch = nil
			}
		}
	}
}

func (p *AsyncPublisher) flush(events []Event) {
	if len(events) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.sink.WriteBatch(ctx, events); err != nil {
		slog.Error("event flush failed", "error", err, "count", len(events))
	}
}

func (p *AsyncPublisher) drainAll() []Event {
	var events []Event
	for {
		select {
		case e := <-p.ch:
			events = append(events, e)
		default:
			return events
		}
	}
}
