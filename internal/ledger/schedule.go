package ledger

import (
	"container/heap"
	"strconv"
	"sync"
)

// payment is one scheduled payment. Exactly one of {pending, canceled,
// processed} holds at any time; once canceled or processed it is terminal and
// never reappears in the due queue.
type payment struct {
	id        string
	accountID string
	amount    int64
	due       int64
	ordinal   int64
	canceled  bool
	processed bool
}

func (p *payment) pending() bool { return !p.canceled && !p.processed }

// registry indexes payments by id for cancel/lookup and by due timestamp for
// processing. Lists under one due timestamp keep creation order, so the
// global processing order is (due asc, creation ordinal asc).
//
// The registry carries its own mutex: SchedulePayment and CancelPayment run
// under per-account locks only, so two accounts may touch the shared indexes
// concurrently.
type registry struct {
	mu          sync.Mutex
	byID        map[string]*payment
	dueIndex    map[int64][]*payment
	dueHeap     dueTimes
	nextOrdinal int64
}

func newRegistry() *registry {
	return &registry{
		byID:        make(map[string]*payment),
		dueIndex:    make(map[int64][]*payment),
		nextOrdinal: 1,
	}
}

// schedule allocates the next ordinal, derives the payment id from it and
// indexes the record both ways. Ids are never reused.
func (r *registry) schedule(accountID string, amount, due int64) *payment {
	r.mu.Lock()
	defer r.mu.Unlock()

	ordinal := r.nextOrdinal
	r.nextOrdinal++

	p := &payment{
		id:        "payment" + strconv.FormatInt(ordinal, 10),
		accountID: accountID,
		amount:    amount,
		due:       due,
		ordinal:   ordinal,
	}
	r.byID[p.id] = p
	if _, ok := r.dueIndex[due]; !ok {
		heap.Push(&r.dueHeap, due)
	}
	r.dueIndex[due] = append(r.dueIndex[due], p)
	return p
}

func (r *registry) lookup(id string) (*payment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	return p, ok
}

// popDue removes and returns the next payment with due <= ts in global
// processing order, terminal records included; the caller decides what a
// canceled record means. Returns nil when nothing further is due.
func (r *registry) popDue(ts int64) *payment {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.dueHeap.Len() > 0 {
		due := r.dueHeap[0]
		if due > ts {
			return nil
		}
		list := r.dueIndex[due]
		if len(list) == 0 {
			heap.Pop(&r.dueHeap)
			delete(r.dueIndex, due)
			continue
		}
		p := list[0]
		r.dueIndex[due] = list[1:]
		return p
	}
	return nil
}

// cancel validates and flags a payment in one critical section. Unknown ids
// report ErrNotFound; canceled, processed or foreign-owned payments are
// terminal for the caller.
func (r *registry) cancel(id, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	if p.canceled || p.processed || p.accountID != owner {
		return ErrTerminal
	}
	p.canceled = true
	return nil
}

func (r *registry) markProcessed(p *payment) {
	r.mu.Lock()
	p.processed = true
	r.mu.Unlock()
}

// reassign rewrites ownership of every pending payment of child to parent.
// The due index is left untouched; processing resolves the owner through the
// record itself.
func (r *registry) reassign(child, parent string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byID {
		if p.pending() && p.accountID == child {
			p.accountID = parent
		}
	}
}

// dueTimes is a min-heap of due timestamps present in the due index.
type dueTimes []int64

func (h dueTimes) Len() int            { return len(h) }
func (h dueTimes) Less(i, j int) bool  { return h[i] < h[j] }
func (h dueTimes) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *dueTimes) Push(x interface{}) { *h = append(*h, x.(int64)) }
func (h *dueTimes) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
