package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corebank/ledgerd/internal/domain"
)

type captureRecorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (c *captureRecorder) RecordEvent(_ context.Context, ev domain.Event) error {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	return nil
}

func (c *captureRecorder) snapshot() []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Event(nil), c.events...)
}

func TestSinkWritesThrough(t *testing.T) {
	rec := &captureRecorder{}
	sink := NewSink(rec, 16)

	ctx, cancel := context.WithCancel(context.Background())
	sink.Start(ctx)

	sink.Record(domain.Event{Type: domain.EventAccountCreated, AccountID: "A", Timestamp: 1})
	sink.Record(domain.Event{Type: domain.EventDeposit, AccountID: "A", Timestamp: 2, Delta: 10})

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	sink.Wait()

	events := rec.snapshot()
	assert.Equal(t, domain.EventAccountCreated, events[0].Type)
	assert.Equal(t, domain.EventDeposit, events[1].Type)
}

func TestSinkDrainsBufferOnShutdown(t *testing.T) {
	rec := &captureRecorder{}
	sink := NewSink(rec, 64)

	for i := 0; i < 10; i++ {
		sink.Record(domain.Event{Type: domain.EventDeposit, AccountID: "A", Timestamp: int64(i)})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink.Start(ctx)
	sink.Wait()

	assert.Len(t, rec.snapshot(), 10)
}

func TestSinkDropsWhenFull(t *testing.T) {
	rec := &captureRecorder{}
	sink := NewSink(rec, 1)

	// Not started: the buffer fills and further events are dropped, never
	// blocking the caller.
	sink.Record(domain.Event{Type: domain.EventDeposit, AccountID: "A"})
	sink.Record(domain.Event{Type: domain.EventDeposit, AccountID: "A"})
	sink.Record(domain.Event{Type: domain.EventDeposit, AccountID: "A"})

	assert.Equal(t, uint64(2), sink.dropped.Load())
}
