package service

import (
	"context"
	"time"

	"github.com/pkg/errors"

	storesvc "scan_bot/internal/modules/store/service"
	"scan_bot/pkg/db"
	"scan_bot/pkg/logger"
)

// Journal — write-behind терминальных сигналов и отказов в Postgres.
// Выключен (tx == nil) — все методы no-op. Ошибки записи логируются и
// никогда не влияют на жизненный цикл.
type Journal struct {
	tx *db.PgTxManager
}

func NewJournal(tx *db.PgTxManager) *Journal {
	return &Journal{tx: tx}
}

func (j *Journal) Enabled() bool { return j != nil && j.tx != nil }

const schema = `
CREATE TABLE IF NOT EXISTS closed_signals (
	id            text PRIMARY KEY,
	account_id    text NOT NULL,
	instrument    text NOT NULL,
	side          text NOT NULL,
	strategy      text NOT NULL,
	status        text NOT NULL,
	close_reason  text NOT NULL DEFAULT '',
	entry         double precision NOT NULL,
	close_price   double precision NOT NULL,
	realized_pips double precision NOT NULL,
	created_at    timestamptz NOT NULL,
	closed_at     timestamptz
);
CREATE TABLE IF NOT EXISTS rejections (
	account_id text NOT NULL,
	instrument text NOT NULL,
	reason     text NOT NULL,
	detail     text NOT NULL DEFAULT '',
	at         timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS rejections_account_at ON rejections (account_id, at);
`

func (j *Journal) EnsureSchema(ctx context.Context) error {
	if !j.Enabled() {
		return nil
	}
	err := j.tx.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		_, execErr := tx.Exec(ctxTx, schema)
		return execErr
	})
	return errors.Wrap(err, "ensure journal schema")
}

func (j *Journal) RecordClosed(ctx context.Context, sig storesvc.TrackedSignal) {
	if !j.Enabled() {
		return
	}
	err := j.tx.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		_, execErr := tx.Exec(ctxTx, `
			INSERT INTO closed_signals
				(id, account_id, instrument, side, strategy, status, close_reason,
				 entry, close_price, realized_pips, created_at, closed_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			ON CONFLICT (id) DO NOTHING`,
			sig.ID, sig.AccountID, sig.InstID, string(sig.Side), string(sig.Strategy),
			string(sig.Status), string(sig.CloseReason),
			sig.Entry, sig.ClosePrice, sig.Realized, sig.CreatedAt, sig.ClosedAt,
		)
		return execErr
	})
	if err != nil {
		logger.Error("[JOURNAL] record closed %s: %v", sig.ID, errors.Wrap(err, "insert"))
	}
}

func (j *Journal) RecordRejection(ctx context.Context, accountID, instID, reason, detail string, at time.Time) {
	if !j.Enabled() {
		return
	}
	err := j.tx.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		_, execErr := tx.Exec(ctxTx, `
			INSERT INTO rejections (account_id, instrument, reason, detail, at)
			VALUES ($1,$2,$3,$4,$5)`,
			accountID, instID, reason, detail, at,
		)
		return execErr
	})
	if err != nil {
		logger.Error("[JOURNAL] record rejection for %s: %v", accountID, err)
	}
}
