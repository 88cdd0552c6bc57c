package ledger

import (
	"fmt"
	"sort"

	"github.com/corebank/ledgerd/internal/domain"
)

// Engine is the deterministic single-threaded ledger state machine. Every
// exported operation first drains all scheduled payments due at or before the
// operation's timestamp, then applies itself; both steps are atomic from the
// caller's perspective.
//
// Engine is not safe for concurrent use. Safe wraps it with the account-level
// locking discipline.
type Engine struct {
	accounts map[string]*account
	payments *registry
	notify   func(domain.Event)
}

// Option configures an Engine.
type Option func(*Engine)

// WithSink publishes one event per committed state transition. The sink is
// invoked while ledger locks are held and must not block.
func WithSink(sink domain.Sink) Option {
	return func(e *Engine) {
		e.notify = sink.Record
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		accounts: make(map[string]*account),
		payments: newRegistry(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) emit(ev domain.Event) {
	if e.notify != nil {
		e.notify(ev)
	}
}

// lookup returns the state for id only while the id is active.
func (e *Engine) lookup(id string) (*account, bool) {
	acct, ok := e.accounts[id]
	if !ok || !acct.active.Load() {
		return nil, false
	}
	return acct, true
}

// runDuePayments drains every pending payment with due <= ts in global
// processing order: due timestamp ascending, creation ordinal ascending.
// Canceled records are dropped. A payment whose owner is inactive, or whose
// owner cannot cover the amount, is marked processed with no delta; it is
// never retried.
func (e *Engine) runDuePayments(ts int64) {
	for {
		p := e.payments.popDue(ts)
		if p == nil {
			return
		}
		if p.canceled {
			continue
		}

		acct, ok := e.lookup(p.accountID)
		if ok && acct.balance >= p.amount {
			acct.balance -= p.amount
			acct.events = append(acct.events, BalanceEvent{TS: p.due, Delta: -p.amount})
			acct.addOutgoing(p.amount)
			e.payments.markProcessed(p)
			e.emit(domain.Event{
				Type:      domain.EventPaymentProcessed,
				AccountID: p.accountID,
				PaymentID: p.id,
				Timestamp: p.due,
				Delta:     -p.amount,
			})
			continue
		}

		// Missing owner or insufficient funds: the payment is dropped, not
		// retried. The processed mark keeps cancel rejection idempotent.
		e.payments.markProcessed(p)
		e.emit(domain.Event{
			Type:      domain.EventPaymentProcessed,
			AccountID: p.accountID,
			PaymentID: p.id,
			Timestamp: p.due,
		})
	}
}

// CreateAccount activates id with a zero balance. Re-creating an id that was
// merged away starts a fresh lifetime; the previous lifetime's events remain
// in the stream.
func (e *Engine) CreateAccount(ts int64, id string) error {
	e.runDuePayments(ts)
	return e.createAccount(ts, id)
}

func (e *Engine) createAccount(ts int64, id string) error {
	if _, ok := e.lookup(id); ok {
		return ErrAlreadyExists
	}
	acct, ok := e.accounts[id]
	if !ok {
		acct = &account{}
		e.accounts[id] = acct
	}
	acct.balance = 0
	acct.outgoing.Store(0)
	acct.merged = nil
	acct.lifecycle = append(acct.lifecycle, lifeEvent{ts: ts, created: true})
	acct.events = append(acct.events, BalanceEvent{TS: ts}) // creation marker
	acct.active.Store(true)

	e.emit(domain.Event{Type: domain.EventAccountCreated, AccountID: id, Timestamp: ts})
	return nil
}

// Deposit credits amount (which may be zero) and returns the new balance.
func (e *Engine) Deposit(ts int64, id string, amount int64) (int64, error) {
	e.runDuePayments(ts)
	return e.deposit(ts, id, amount)
}

func (e *Engine) deposit(ts int64, id string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, ErrInvalidArgument
	}
	acct, ok := e.lookup(id)
	if !ok {
		return 0, ErrNotFound
	}
	acct.balance = satAdd(acct.balance, amount)
	acct.events = append(acct.events, BalanceEvent{TS: ts, Delta: amount})

	e.emit(domain.Event{Type: domain.EventDeposit, AccountID: id, Timestamp: ts, Delta: amount})
	return acct.balance, nil
}

// Transfer moves amount from source to target and returns the new source
// balance.
func (e *Engine) Transfer(ts int64, source, target string, amount int64) (int64, error) {
	e.runDuePayments(ts)
	return e.transfer(ts, source, target, amount)
}

func (e *Engine) transfer(ts int64, source, target string, amount int64) (int64, error) {
	if source == target || amount < 0 {
		return 0, ErrInvalidArgument
	}
	src, ok := e.lookup(source)
	if !ok {
		return 0, ErrNotFound
	}
	dst, ok := e.lookup(target)
	if !ok {
		return 0, ErrNotFound
	}
	if src.balance < amount {
		return 0, ErrInsufficientFunds
	}

	src.balance -= amount
	dst.balance = satAdd(dst.balance, amount)
	src.events = append(src.events, BalanceEvent{TS: ts, Delta: -amount})
	dst.events = append(dst.events, BalanceEvent{TS: ts, Delta: amount})
	src.addOutgoing(amount)

	e.emit(domain.Event{Type: domain.EventTransferSend, AccountID: source, PeerID: target, Timestamp: ts, Delta: -amount})
	e.emit(domain.Event{Type: domain.EventTransferReceive, AccountID: target, PeerID: source, Timestamp: ts, Delta: amount})
	return src.balance, nil
}

// TopSpenders returns up to n active accounts formatted as "<id>(<outgoing>)",
// ordered by outgoing total descending with ties broken by id ascending.
// Negative n is normalized to zero.
func (e *Engine) TopSpenders(ts int64, n int) []string {
	e.runDuePayments(ts)
	return e.topSpenders(n)
}

func (e *Engine) topSpenders(n int) []string {
	type spender struct {
		id       string
		outgoing int64
	}
	spenders := make([]spender, 0, len(e.accounts))
	for id, acct := range e.accounts {
		if acct.active.Load() {
			spenders = append(spenders, spender{id: id, outgoing: acct.outgoing.Load()})
		}
	}
	sort.Slice(spenders, func(i, j int) bool {
		if spenders[i].outgoing != spenders[j].outgoing {
			return spenders[i].outgoing > spenders[j].outgoing
		}
		return spenders[i].id < spenders[j].id
	})

	if n < 0 {
		n = 0
	}
	if n > len(spenders) {
		n = len(spenders)
	}
	result := make([]string, 0, n)
	for _, s := range spenders[:n] {
		result = append(result, fmt.Sprintf("%s(%d)", s.id, s.outgoing))
	}
	return result
}

// SchedulePayment registers a payment due at ts+delay and returns its id.
// The payment is not processed within this call even when delay is zero; it
// becomes due for any subsequent operation at or after the due time.
func (e *Engine) SchedulePayment(ts int64, id string, amount, delay int64) (string, error) {
	e.runDuePayments(ts)
	return e.schedulePayment(ts, id, amount, delay)
}

func (e *Engine) schedulePayment(ts int64, id string, amount, delay int64) (string, error) {
	if amount <= 0 || delay < 0 {
		return "", ErrInvalidArgument
	}
	if _, ok := e.lookup(id); !ok {
		return "", ErrNotFound
	}
	p := e.payments.schedule(id, amount, ts+delay)

	e.emit(domain.Event{Type: domain.EventPaymentScheduled, AccountID: id, PaymentID: p.id, Timestamp: ts, Delta: 0})
	return p.id, nil
}

// CancelPayment flags a pending payment so due processing drops it. Canceling
// a terminal payment, or one owned by a different account, fails.
func (e *Engine) CancelPayment(ts int64, id, paymentID string) error {
	e.runDuePayments(ts)
	return e.cancelPayment(ts, id, paymentID)
}

func (e *Engine) cancelPayment(ts int64, id, paymentID string) error {
	if err := e.payments.cancel(paymentID, id); err != nil {
		return err
	}
	e.emit(domain.Event{Type: domain.EventPaymentCanceled, AccountID: id, PaymentID: paymentID, Timestamp: ts})
	return nil
}

// MergeAccounts folds child into parent: balance and outgoing move to the
// parent, pending payments are re-owned, and the child is inactive from ts
// onward while its event stream and lifecycle history remain queryable.
func (e *Engine) MergeAccounts(ts int64, parent, child string) error {
	e.runDuePayments(ts)
	return e.mergeAccounts(ts, parent, child)
}

func (e *Engine) mergeAccounts(ts int64, parent, child string) error {
	if parent == child {
		return ErrInvalidArgument
	}
	dst, ok := e.lookup(parent)
	if !ok {
		return ErrNotFound
	}
	src, ok := e.lookup(child)
	if !ok {
		return ErrNotFound
	}

	moved := src.balance
	dst.balance = satAdd(dst.balance, moved)
	src.balance = 0
	dst.events = append(dst.events, BalanceEvent{TS: ts, Delta: moved})
	src.events = append(src.events, BalanceEvent{TS: ts, Delta: -moved})

	dst.addOutgoing(src.outgoing.Load())
	src.outgoing.Store(0)

	e.payments.reassign(child, parent)

	src.merged = &mergeEdge{parent: parent, ts: ts}
	src.lifecycle = append(src.lifecycle, lifeEvent{ts: ts})
	src.active.Store(false)

	e.emit(domain.Event{Type: domain.EventAccountMerge, AccountID: parent, PeerID: child, Timestamp: ts, Delta: moved})
	e.emit(domain.Event{Type: domain.EventBalanceEvent, AccountID: child, PeerID: parent, Timestamp: ts, Delta: -moved})
	return nil
}

// GetBalance reconstructs the balance of id as of timeAt. Due payments are
// drained through ts, the caller's timestamp, not timeAt. An id merged away
// at or before timeAt, or not yet created by timeAt, reports ErrNotFound.
func (e *Engine) GetBalance(ts int64, id string, timeAt int64) (int64, error) {
	e.runDuePayments(ts)
	return e.getBalance(id, timeAt)
}

func (e *Engine) getBalance(id string, timeAt int64) (int64, error) {
	acct, ok := e.accounts[id]
	if !ok {
		return 0, ErrNotFound
	}
	if m := acct.merged; m != nil && m.ts <= timeAt {
		return 0, ErrNotFound
	}
	if !acct.activeAt(timeAt) {
		return 0, ErrNotFound
	}
	return acct.balanceAt(timeAt), nil
}
