package persistence

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corebank/ledgerd/internal/domain"
	"github.com/corebank/ledgerd/internal/pg"
)

// Repository mirrors committed ledger events into postgres. The mirror is
// write-through only: it records decisions the engine already made and is
// never consulted for authoritative reads.
type Repository struct {
	db        pg.Database
	txManager pg.TXManager
}

func New(db pg.Database, txManager pg.TXManager) *Repository {
	return &Repository{
		db:        db,
		txManager: txManager,
	}
}

// RecordEvent appends the event to the journal and keeps the account mirror
// in step, inside one transaction.
func (r *Repository) RecordEvent(ctx context.Context, ev domain.Event) error {
	return r.txManager.Begin(ctx, func(ctx context.Context) error {
		query := `
        INSERT INTO ledger_events (id, event_type, account_id, peer_id, payment_id, ts, delta)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
		_, err := r.db.Exec(ctx, query,
			uuid.NewString(), string(ev.Type), ev.AccountID, ev.PeerID, ev.PaymentID, ev.Timestamp, ev.Delta)
		if err != nil {
			zap.L().Error("failed to insert ledger event", zap.Error(err))
			return err
		}
		return r.mirrorAccounts(ctx, ev)
	})
}

func (r *Repository) mirrorAccounts(ctx context.Context, ev domain.Event) error {
	switch ev.Type {
	case domain.EventAccountCreated:
		query := `
        INSERT INTO accounts (account_id, balance, is_active)
        VALUES ($1, 0, TRUE)
        ON CONFLICT (account_id) DO UPDATE SET balance = 0, is_active = TRUE, updated_at = now()
    `
		if _, err := r.db.Exec(ctx, query, ev.AccountID); err != nil {
			zap.L().Error("failed to mirror account creation", zap.Error(err))
			return err
		}
		return nil
	case domain.EventAccountMerge:
		// The parent gains the folded balance; the child goes inactive. The
		// child's own debit arrives as a separate BALANCE_EVENT record.
		if err := r.applyDelta(ctx, ev.AccountID, ev.Delta); err != nil {
			return err
		}
		query := `UPDATE accounts SET is_active = FALSE, updated_at = now() WHERE account_id = $1`
		if _, err := r.db.Exec(ctx, query, ev.PeerID); err != nil {
			zap.L().Error("failed to deactivate merged account", zap.Error(err))
			return err
		}
		return nil
	default:
		if ev.Delta == 0 {
			return nil
		}
		return r.applyDelta(ctx, ev.AccountID, ev.Delta)
	}
}

func (r *Repository) applyDelta(ctx context.Context, accountID string, delta int64) error {
	query := `UPDATE accounts SET balance = balance + $1, updated_at = now() WHERE account_id = $2`
	if _, err := r.db.Exec(ctx, query, delta, accountID); err != nil {
		zap.L().Error("failed to mirror balance delta", zap.Error(err))
		return err
	}
	return nil
}
