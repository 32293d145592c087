// Package wallet is the ledger of record for user funds. Each user has one
// wallet with an available balance, a locked balance reserved for pending
// payouts, and an append-only transaction log. Every primitive is a single
// guarded UPDATE plus exactly one log entry, executed on the caller's
// Querier so it can join a larger transaction.
package wallet

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/digimarket/internal/database"
	"github.com/joao-fontenele/digimarket/internal/domain"
	"github.com/joao-fontenele/digimarket/internal/telemetry"
)

type Ledger struct {
	db         *sql.DB
	operations metric.Int64Counter
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{
		db:         db,
		operations: telemetry.Counter("digimarket/wallet", "wallet.operations", "Wallet ledger primitives applied"),
	}
}

type mutation struct {
	op        string
	stmt      string
	txType    domain.TransactionType
	kind      domain.TransactionKind
	shortfall error
}

var (
	creditOp = mutation{
		op: "credit",
		stmt: `UPDATE wallets SET balance = balance + $2, updated_at = NOW()
			WHERE user_id = $1`,
		txType: domain.TransactionCredit,
		kind:   domain.KindStandard,
	}
	debitOp = mutation{
		op: "debit",
		stmt: `UPDATE wallets SET balance = balance - $2, updated_at = NOW()
			WHERE user_id = $1 AND balance >= $2`,
		txType:    domain.TransactionDebit,
		kind:      domain.KindStandard,
		shortfall: domain.ErrInsufficientFunds,
	}
	lockOp = mutation{
		op: "lock",
		stmt: `UPDATE wallets SET balance = balance - $2, locked_balance = locked_balance + $2, updated_at = NOW()
			WHERE user_id = $1 AND balance >= $2`,
		txType:    domain.TransactionDebit,
		kind:      domain.KindHold,
		shortfall: domain.ErrInsufficientFunds,
	}
	unlockOp = mutation{
		op: "unlock",
		stmt: `UPDATE wallets SET locked_balance = locked_balance - $2, balance = balance + $2, updated_at = NOW()
			WHERE user_id = $1 AND locked_balance >= $2`,
		txType:    domain.TransactionCredit,
		kind:      domain.KindRelease,
		shortfall: fmt.Errorf("%w: locked balance", domain.ErrInsufficientFunds),
	}
	settleLockedOp = mutation{
		op: "settle_locked",
		stmt: `UPDATE wallets SET locked_balance = locked_balance - $2, updated_at = NOW()
			WHERE user_id = $1 AND locked_balance >= $2`,
		txType:    domain.TransactionDebit,
		kind:      domain.KindPayout,
		shortfall: fmt.Errorf("%w: locked balance", domain.ErrInsufficientFunds),
	}
)

// Credit adds amount to the available balance.
func (l *Ledger) Credit(ctx context.Context, q database.Querier, userID string, amount decimal.Decimal, description, reference string) error {
	return l.apply(ctx, q, creditOp, userID, amount, description, reference)
}

// Debit removes amount from the available balance, failing with
// ErrInsufficientFunds when the balance is short.
func (l *Ledger) Debit(ctx context.Context, q database.Querier, userID string, amount decimal.Decimal, description, reference string) error {
	return l.apply(ctx, q, debitOp, userID, amount, description, reference)
}

// Lock moves amount from the available to the locked balance.
func (l *Ledger) Lock(ctx context.Context, q database.Querier, userID string, amount decimal.Decimal, description, reference string) error {
	return l.apply(ctx, q, lockOp, userID, amount, description, reference)
}

// UnlockToBalance returns previously locked funds to the available balance.
func (l *Ledger) UnlockToBalance(ctx context.Context, q database.Querier, userID string, amount decimal.Decimal, description, reference string) error {
	return l.apply(ctx, q, unlockOp, userID, amount, description, reference)
}

// SettleLocked removes locked funds for good; they have left the platform.
func (l *Ledger) SettleLocked(ctx context.Context, q database.Querier, userID string, amount decimal.Decimal, description, reference string) error {
	return l.apply(ctx, q, settleLockedOp, userID, amount, description, reference)
}

func (l *Ledger) apply(ctx context.Context, q database.Querier, m mutation, userID string, amount decimal.Decimal, description, reference string) error {
	if userID == "" {
		return domain.Invalid("user_id", "is required")
	}
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return domain.Invalid("amount", "must be positive")
	}

	if err := ensure(ctx, q, userID); err != nil {
		return err
	}

	result, err := q.ExecContext(ctx, m.stmt, userID, amount)
	if err != nil {
		return fmt.Errorf("wallet %s: %w", m.op, err)
	}
	if m.shortfall != nil {
		if err := database.RequireAffected(result, m.shortfall); err != nil {
			return err
		}
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO wallet_transactions (id, user_id, type, kind, amount, description, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.NewString(), userID, m.txType, m.kind, amount, description, reference, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append wallet transaction: %w", err)
	}

	l.operations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", m.op)))
	return nil
}

func ensure(ctx context.Context, q database.Querier, userID string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO wallets (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return fmt.Errorf("ensure wallet: %w", err)
	}
	return nil
}

// Get returns the wallet with its most recent transactions, creating an
// empty wallet on first access.
func (l *Ledger) Get(ctx context.Context, userID string, limit, offset int) (*domain.Wallet, error) {
	if err := ensure(ctx, l.db, userID); err != nil {
		return nil, err
	}

	w := &domain.Wallet{UserID: userID}
	err := l.db.QueryRowContext(ctx, `
		SELECT balance, locked_balance, updated_at FROM wallets WHERE user_id = $1
	`, userID).Scan(&w.Balance, &w.LockedBalance, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, user_id, type, kind, amount, description, reference, created_at
		FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	w.Transactions, err = scanTransactions(rows)
	if err != nil {
		return nil, err
	}

	return w, nil
}

// Balance reads the cached balances on q.
func (l *Ledger) Balance(ctx context.Context, q database.Querier, userID string) (balance, locked decimal.Decimal, err error) {
	err = q.QueryRowContext(ctx, `
		SELECT balance, locked_balance FROM wallets WHERE user_id = $1
	`, userID).Scan(&balance, &locked)
	if err == sql.ErrNoRows {
		return decimal.Zero, decimal.Zero, nil
	}
	return balance, locked, err
}

// History returns the full transaction log in the order it was written.
func (l *Ledger) History(ctx context.Context, q database.Querier, userID string) ([]domain.WalletTransaction, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, user_id, type, kind, amount, description, reference, created_at
		FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY seq
	`, userID)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]domain.WalletTransaction, error) {
	defer func() { _ = rows.Close() }()

	txs := []domain.WalletTransaction{}
	for rows.Next() {
		var tx domain.WalletTransaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Type, &tx.Kind, &tx.Amount,
			&tx.Description, &tx.Reference, &tx.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}

	return txs, rows.Err()
}

type Audit struct {
	UserID          string          `json:"user_id"`
	Balance         decimal.Decimal `json:"balance"`
	LockedBalance   decimal.Decimal `json:"locked_balance"`
	ReplayedBalance decimal.Decimal `json:"replayed_balance"`
	ReplayedLocked  decimal.Decimal `json:"replayed_locked_balance"`
	Transactions    int             `json:"transactions"`
	Consistent      bool            `json:"consistent"`
}

// Audit replays the transaction log and compares it with the cached
// balances. Both reads happen in one repeatable-read snapshot.
func (l *Ledger) Audit(ctx context.Context, userID string) (*Audit, error) {
	tx, err := l.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	balance, locked, err := l.Balance(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	history, err := l.History(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	replayedBalance, replayedLocked := domain.Replay(history)

	return &Audit{
		UserID:          userID,
		Balance:         balance,
		LockedBalance:   locked,
		ReplayedBalance: replayedBalance,
		ReplayedLocked:  replayedLocked,
		Transactions:    len(history),
		Consistent:      balance.Equal(replayedBalance) && locked.Equal(replayedLocked),
	}, nil
}
