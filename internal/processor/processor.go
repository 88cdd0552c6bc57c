package processor

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/corebank/ledgerd/internal/domain"
	"github.com/corebank/ledgerd/internal/ledger"
)

// Ledger is the shell surface the processor drives.
type Ledger interface {
	CreateAccount(ts int64, id string) error
	Deposit(ts int64, id string, amount int64) (int64, error)
	Transfer(ts int64, source, target string, amount int64) (int64, error)
	TopSpenders(ts int64, n int) []string
	SchedulePayment(ts int64, id string, amount, delay int64) (string, error)
	CancelPayment(ts int64, id, paymentID string) error
	MergeAccounts(ts int64, parent, child string) error
	GetBalance(ts int64, id string, timeAt int64) (int64, error)
}

// Callback receives the committed outcome of a submitted operation.
type Callback func(domain.Outcome)

type opEnvelope struct {
	op   domain.Operation
	done Callback
}

// Stats is a point-in-time snapshot of processor counters.
type Stats struct {
	Processed  uint64
	Queued     int
	Dropped    uint64
	AvgLatency time.Duration
}

// Processor drains per-worker intake queues into the ledger shell. Each
// worker owns one MPSC queue. Submit routes an operation by its AccountID
// (the source of a transfer, the parent of a merge), so operations submitted
// for the same account are applied in submission order; operations without
// an account id are distributed round-robin. Operations routed to different
// workers have no defined relative order.
type Processor struct {
	shell    Ledger
	capacity int

	workers []*worker
	next    atomic.Uint64

	processed   atomic.Uint64
	dropped     atomic.Uint64
	totalMicros atomic.Int64

	wg sync.WaitGroup
}

type worker struct {
	queue  *Queue
	wakeup chan struct{}
}

// New builds a processor with size workers, each with an intake bounded at
// capacity envelopes. Submissions beyond the bound are dropped; the
// in-progress operation always completes.
func New(shell Ledger, size, capacity int) *Processor {
	if size < 1 {
		size = 1
	}
	p := &Processor{
		shell:    shell,
		capacity: capacity,
	}
	for i := 0; i < size; i++ {
		p.workers = append(p.workers, &worker{
			queue:  NewQueue(),
			wakeup: make(chan struct{}, 1),
		})
	}
	return p
}

// Start launches the workers; they exit when ctx is canceled.
func (p *Processor) Start(ctx context.Context) {
	for _, w := range p.workers {
		w := w
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(ctx, w)
		}()
	}
	zap.L().Info("transaction processor started", zap.Int("workers", len(p.workers)))
}

// Wait blocks until every worker has exited.
func (p *Processor) Wait() {
	p.wg.Wait()
	zap.L().Info("transaction processor stopped")
}

// Submit enqueues op for asynchronous processing. It reports false when the
// chosen intake is full; the submission is dropped and done is never invoked.
func (p *Processor) Submit(op domain.Operation, done Callback) bool {
	idx := p.next.Add(1)
	if op.AccountID != "" {
		h := fnv.New32a()
		h.Write([]byte(op.AccountID)) //nolint:errcheck
		idx = uint64(h.Sum32())
	}
	w := p.workers[idx%uint64(len(p.workers))]
	if p.capacity > 0 && w.queue.Len() >= p.capacity {
		p.dropped.Add(1)
		zap.L().Warn("intake full, dropping submission", zap.String("kind", string(op.Kind)))
		return false
	}
	w.queue.Enqueue(opEnvelope{op: op, done: done})
	select {
	case w.wakeup <- struct{}{}:
	default:
	}
	return true
}

// Execute applies op synchronously and returns the committed outcome. The
// worker path and transports that need a response in-line share this one
// commit path.
func (p *Processor) Execute(op domain.Operation) domain.Outcome {
	start := time.Now()
	out := p.apply(op)
	p.processed.Add(1)
	p.totalMicros.Add(time.Since(start).Microseconds())
	return out
}

func (p *Processor) apply(op domain.Operation) domain.Outcome {
	out := domain.Outcome{Op: op}
	switch op.Kind {
	case domain.KindCreateAccount:
		out.Err = p.shell.CreateAccount(op.Timestamp, op.AccountID)
	case domain.KindDeposit:
		out.Balance, out.Err = p.shell.Deposit(op.Timestamp, op.AccountID, op.Amount)
	case domain.KindTransfer:
		out.Balance, out.Err = p.shell.Transfer(op.Timestamp, op.AccountID, op.TargetID, op.Amount)
	case domain.KindTopSpenders:
		out.Spenders = p.shell.TopSpenders(op.Timestamp, op.N)
	case domain.KindSchedulePayment:
		out.PaymentID, out.Err = p.shell.SchedulePayment(op.Timestamp, op.AccountID, op.Amount, op.Delay)
	case domain.KindCancelPayment:
		out.Err = p.shell.CancelPayment(op.Timestamp, op.AccountID, op.PaymentID)
	case domain.KindMergeAccounts:
		out.Err = p.shell.MergeAccounts(op.Timestamp, op.AccountID, op.TargetID)
	case domain.KindGetBalance:
		out.Balance, out.Err = p.shell.GetBalance(op.Timestamp, op.AccountID, op.TimeAt)
	default:
		out.Err = ledger.ErrInvalidArgument
	}
	out.OK = out.Err == nil
	return out
}

func (p *Processor) run(ctx context.Context, w *worker) {
	for {
		env, ok := w.queue.Dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-w.wakeup:
				continue
			}
		}
		out := p.Execute(env.op)
		if env.done != nil {
			env.done(out)
		}
	}
}

// Stats reports processed/queued/dropped counters and the mean commit
// latency across workers.
func (p *Processor) Stats() Stats {
	var queued int
	for _, w := range p.workers {
		queued += w.queue.Len()
	}
	s := Stats{
		Processed: p.processed.Load(),
		Queued:    queued,
		Dropped:   p.dropped.Load(),
	}
	if s.Processed > 0 {
		s.AvgLatency = time.Duration(p.totalMicros.Load()/int64(s.Processed)) * time.Microsecond
	}
	return s
}
