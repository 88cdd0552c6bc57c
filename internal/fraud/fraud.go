// Package fraud observes the committed outcome feed and scores money-moving
// activity per account. It is advisory only: the ledger never consults it.
package fraud

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/corebank/ledgerd/internal/domain"
)

// Result is the risk assessment of one observed movement.
type Result struct {
	RiskScore      float64
	RiskFactors    []string
	Recommendation string
	Confidence     int
}

func (r Result) Fraudulent() bool  { return r.RiskScore > 0.7 }
func (r Result) NeedsReview() bool { return r.RiskScore > 0.4 && r.RiskScore <= 0.7 }

// AlertFunc is invoked for every movement that is fraudulent or needs review.
type AlertFunc func(ev domain.Event, res Result)

const (
	amountAnomalyThreshold = 3.0
	frequencyThreshold     = 10
	velocityThreshold      = 20000
)

// history is the sliding per-account window of observed movement amounts,
// bounded by logical time and by entry count.
type history struct {
	entries []entry
}

type entry struct {
	ts     int64
	amount int64
}

// Agent keeps per-account amount histograms over a sliding window of logical
// time. Record only enqueues; a single analysis goroutine owns the windows.
type Agent struct {
	window     int64
	maxEntries int
	alert      AlertFunc

	feed     chan domain.Event
	accounts map[string]*history

	analyzed  atomic.Uint64
	flagged   atomic.Uint64
	scoreMu   sync.Mutex
	riskTotal float64

	wg sync.WaitGroup
}

// Stats is a snapshot of observer counters.
type Stats struct {
	Analyzed  uint64
	Flagged   uint64
	QueueLen  int
	MeanScore float64
}

func New(window int64, maxEntries int, alert AlertFunc) *Agent {
	if window <= 0 {
		window = 3600
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &Agent{
		window:     window,
		maxEntries: maxEntries,
		alert:      alert,
		feed:       make(chan domain.Event, 1024),
		accounts:   make(map[string]*history),
	}
}

// Record implements domain.Sink. Only committed money movements are scored;
// everything else is ignored. A full feed drops the event rather than block
// the ledger path.
func (a *Agent) Record(ev domain.Event) {
	switch ev.Type {
	case domain.EventDeposit, domain.EventTransferSend, domain.EventPaymentProcessed:
	default:
		return
	}
	if ev.Delta == 0 {
		return
	}
	select {
	case a.feed <- ev:
	default:
	}
}

// Start launches the analysis worker; it exits when ctx is canceled.
func (a *Agent) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		zap.L().Info("fraud observer started", zap.Int64("window", a.window))
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-a.feed:
				a.analyze(ev)
			}
		}
	}()
}

// Wait blocks until the analysis worker has exited.
func (a *Agent) Wait() {
	a.wg.Wait()
	zap.L().Info("fraud observer stopped")
}

func (a *Agent) analyze(ev domain.Event) {
	res := a.score(ev)
	a.analyzed.Add(1)
	a.scoreMu.Lock()
	a.riskTotal += res.RiskScore
	a.scoreMu.Unlock()

	if res.Fraudulent() || res.NeedsReview() {
		a.flagged.Add(1)
		zap.L().Warn("suspicious movement",
			zap.String("account", ev.AccountID),
			zap.Int64("amount", ev.Delta),
			zap.Float64("risk", res.RiskScore),
			zap.Strings("factors", res.RiskFactors))
		if a.alert != nil {
			a.alert(ev, res)
		}
	}
}

func (a *Agent) score(ev domain.Event) Result {
	amount := ev.Delta
	if amount < 0 {
		amount = -amount
	}

	h, ok := a.accounts[ev.AccountID]
	if !ok {
		h = &history{}
		a.accounts[ev.AccountID] = h
	}
	h.trim(ev.Timestamp-a.window, a.maxEntries)

	res := Result{Recommendation: "ALLOW", Confidence: 50}

	if len(h.entries) >= 3 {
		mean, stddev := h.stats()
		if stddev > 0 {
			z := math.Abs(float64(amount)-mean) / stddev
			if z > amountAnomalyThreshold {
				res.RiskScore += 0.4
				res.RiskFactors = append(res.RiskFactors, fmt.Sprintf("amount deviates %.1f sigma from account history", z))
			}
		}
	}

	if len(h.entries)+1 > frequencyThreshold {
		res.RiskScore += 0.3
		res.RiskFactors = append(res.RiskFactors, "movement frequency above window threshold")
	}

	velocity := amount
	for _, e := range h.entries {
		velocity += e.amount
	}
	if velocity > velocityThreshold {
		res.RiskScore += 0.3
		res.RiskFactors = append(res.RiskFactors, "window velocity above threshold")
	}

	h.entries = append(h.entries, entry{ts: ev.Timestamp, amount: amount})

	switch {
	case res.Fraudulent():
		res.Recommendation = "BLOCK"
		res.Confidence = 90
	case res.NeedsReview():
		res.Recommendation = "REVIEW"
		res.Confidence = 70
	}
	return res
}

// Stats reports observer counters.
func (a *Agent) Stats() Stats {
	s := Stats{
		Analyzed: a.analyzed.Load(),
		Flagged:  a.flagged.Load(),
		QueueLen: len(a.feed),
	}
	if s.Analyzed > 0 {
		a.scoreMu.Lock()
		s.MeanScore = a.riskTotal / float64(s.Analyzed)
		a.scoreMu.Unlock()
	}
	return s
}

func (h *history) trim(cutoff int64, maxEntries int) {
	idx := 0
	for idx < len(h.entries) && h.entries[idx].ts < cutoff {
		idx++
	}
	h.entries = h.entries[idx:]
	if len(h.entries) > maxEntries {
		h.entries = h.entries[len(h.entries)-maxEntries:]
	}
}

func (h *history) stats() (mean, stddev float64) {
	if len(h.entries) == 0 {
		return 0, 0
	}
	var sum float64
	for _, e := range h.entries {
		sum += float64(e.amount)
	}
	mean = sum / float64(len(h.entries))

	var variance float64
	for _, e := range h.entries {
		d := float64(e.amount) - mean
		variance += d * d
	}
	variance /= float64(len(h.entries))
	return mean, math.Sqrt(variance)
}
