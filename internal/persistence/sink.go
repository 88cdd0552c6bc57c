package persistence

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/corebank/ledgerd/internal/domain"
)

const writeTimeout = 5 * time.Second

// Recorder is the repository surface the sink writes through.
type Recorder interface {
	RecordEvent(ctx context.Context, ev domain.Event) error
}

// Sink decouples the engine from mirror I/O. Record is called while ledger
// locks are held, so it only enqueues; a single writer goroutine drains the
// buffer. When the buffer is full the event is dropped and counted — the
// in-memory state stays authoritative either way.
type Sink struct {
	repo    Recorder
	events  chan domain.Event
	dropped atomic.Uint64
	wg      sync.WaitGroup
}

func NewSink(repo Recorder, buffer int) *Sink {
	if buffer < 1 {
		buffer = 1
	}
	return &Sink{
		repo:   repo,
		events: make(chan domain.Event, buffer),
	}
}

func (s *Sink) Record(ev domain.Event) {
	select {
	case s.events <- ev:
	default:
		s.dropped.Add(1)
	}
}

// Start launches the writer; it drains what is already buffered before
// exiting on cancellation.
func (s *Sink) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case ev := <-s.events:
				s.write(ev)
			case <-ctx.Done():
				for {
					select {
					case ev := <-s.events:
						s.write(ev)
					default:
						return
					}
				}
			}
		}
	}()
}

func (s *Sink) write(ev domain.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.repo.RecordEvent(ctx, ev); err != nil {
		zap.L().Error("mirror write failed",
			zap.String("type", string(ev.Type)),
			zap.String("account", ev.AccountID),
			zap.Error(err))
	}
}

// Wait blocks until the writer has exited.
func (s *Sink) Wait() {
	s.wg.Wait()
	if n := s.dropped.Load(); n > 0 {
		zap.L().Warn("mirror dropped events under backpressure", zap.Uint64("count", n))
	}
}
