package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSink struct {
	mu      sync.Mutex
	batches [][]Event
	err     error
}

func (m *mockSink) WriteBatch(_ context.Context, events []Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, append([]Event(nil), events...))
	return m.err
}

func (m *mockSink) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func (m *mockSink) batchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

type dropCounter struct {
	mu    sync.Mutex
	count int
}

func (d *dropCounter) ObserveDroppedEvent(string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.count++
}

func TestAsyncPublisher_FlushesOnInterval(t *testing.T) {
	sink := &mockSink{}
	p := NewAsyncPublisher(sink, Config{BufferSize: 100, BatchSize: 10, FlushInterval: 20 * time.Millisecond})

	p.Publish(context.Background(), Event{Type: TaskCreated, ResourceType: ResourceTask, ResourceID: "t1"})

	assert.Eventually(t, func() bool { return sink.total() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, p.Close())
}

func TestAsyncPublisher_FlushesOnBatchSize(t *testing.T) {
	sink := &mockSink{}
	p := NewAsyncPublisher(sink, Config{BufferSize: 100, BatchSize: 3, FlushInterval: 10 * time.Second})

	for i := 0; i < 3; i++ {
		p.Publish(context.Background(), Event{Type: TaskSubmitted})
	}

	assert.Eventually(t, func() bool { return sink.batchCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, p.Close())
	assert.Equal(t, 3, sink.total())
}

func TestAsyncPublisher_CloseDrains(t *testing.T) {
	sink := &mockSink{}
	p := NewAsyncPublisher(sink, Config{BufferSize: 100, BatchSize: 1000, FlushInterval: 10 * time.Second})

	for i := 0; i < 25; i++ {
		p.Publish(context.Background(), Event{Type: TaskPublished})
	}
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.Equal(t, 25, sink.total())
}

func TestAsyncPublisher_StampsOccurredAt(t *testing.T) {
	sink := &mockSink{}
	p := NewAsyncPublisher(sink, Config{})

	p.Publish(context.Background(), Event{Type: TaskClosed})
	require.NoError(t, p.Close())

	require.Equal(t, 1, sink.total())
	assert.False(t, sink.batches[0][0].OccurredAt.IsZero())
}

func TestAsyncPublisher_SinkErrorDoesNotPanic(t *testing.T) {
	sink := &mockSink{err: errors.New("db down")}
	p := NewAsyncPublisher(sink, Config{BatchSize: 1})

	p.Publish(context.Background(), Event{Type: TaskArchived})
	assert.Eventually(t, func() bool { return sink.batchCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.NoError(t, p.Close())
}

func TestAsyncPublisher_DropsWhenFull(t *testing.T) {
	blocked := make(chan struct{})
	sink := &blockingSink{release: blocked}
	drops := &dropCounter{}
	p := NewAsyncPublisher(sink, Config{BufferSize: 1, BatchSize: 1, FlushInterval: time.Hour}, WithDropObserver(drops))

	for i := 0; i < 50; i++ {
		p.Publish(context.Background(), Event{Type: ApplicationSubmitted})
	}

	drops.mu.Lock()
	dropped := drops.count
	drops.mu.Unlock()
	assert.Greater(t, dropped, 0)

	close(blocked)
	require.NoError(t, p.Close())
}

type blockingSink struct {
	release chan struct{}
}

func (b *blockingSink) WriteBatch(ctx context.Context, _ []Event) error {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil
}

func TestFanoutAndRecorder(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	f := Fanout{a, b, NopPublisher{}}

	f.Publish(context.Background(), Event{Type: TaskCreated})
	f.Publish(context.Background(), Event{Type: TaskSubmitted})
	require.NoError(t, f.Close())

	assert.Equal(t, []string{TaskCreated, TaskSubmitted}, a.Types())
	assert.Equal(t, a.Events(), b.Events())
}
