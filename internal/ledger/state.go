package ledger

import (
	"math"
	"sync/atomic"
)

// BalanceEvent is one signed balance delta on an account. The sum of deltas
// with TS <= T equals the account balance at time T for any T at which the
// account was active.
type BalanceEvent struct {
	TS    int64
	Delta int64
}

// mergeEdge records that an account was folded into parent at ts.
type mergeEdge struct {
	parent string
	ts     int64
}

// lifeEvent is one lifecycle transition of an account id: a creation or a
// merge-out. Entries are appended in timestamp order, so the last entry with
// ts <= T decides whether the id was active at T.
type lifeEvent struct {
	ts      int64
	created bool
}

// account holds all per-account ledger state. balance, events, lifecycle and
// merged are guarded by the shell's per-account lock (or by the top-level
// write lock during due processing). outgoing and active are atomics because
// TopSpenders enumerates them under only the top-level read lock, concurrent
// with per-account writers.
type account struct {
	balance   int64
	events    []BalanceEvent
	lifecycle []lifeEvent
	merged    *mergeEdge

	outgoing atomic.Int64
	active   atomic.Bool
}

func (a *account) addOutgoing(amount int64) {
	a.outgoing.Store(satAdd(a.outgoing.Load(), amount))
}

// activeAt reports whether the id was an active account at time T: the most
// recent lifecycle event with ts <= T must be a creation. An account is
// inactive from its merge timestamp onward, and a later re-creation starts a
// fresh lifetime.
func (a *account) activeAt(t int64) bool {
	for i := len(a.lifecycle) - 1; i >= 0; i-- {
		if a.lifecycle[i].ts <= t {
			return a.lifecycle[i].created
		}
	}
	return false
}

// balanceAt sums deltas with ts <= T. Events are recorded across lifetimes;
// the merge-out delta zeroes the stream, so the sum composes naturally when
// an id is re-created.
func (a *account) balanceAt(t int64) int64 {
	var sum int64
	for _, ev := range a.events {
		if ev.TS <= t {
			sum = satAdd(sum, ev.Delta)
		}
	}
	return sum
}

// satAdd adds with saturation so pathological sums clamp instead of wrapping.
func satAdd(a, b int64) int64 {
	s := a + b
	if b > 0 && s < a {
		return math.MaxInt64
	}
	if b < 0 && s > a {
		return math.MinInt64
	}
	return s
}
