package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradesim/settle/internal/domain"
	"github.com/tradesim/settle/internal/ledger"
)

// WalletLedger implements ledger.WalletLedger on the shared database.
type WalletLedger struct {
	store *Store
}

func NewWalletLedger(store *Store) *WalletLedger {
	return &WalletLedger{store: store}
}

func (l *WalletLedger) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var u int64
	err := l.store.db.QueryRowContext(ctx,
		`SELECT balance_u FROM wallets WHERE user_id = ?`, userID).Scan(&u)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("wallet %s: %w", userID, ledger.ErrNotFound)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("read wallet: %w", err)
	}
	return fromMicros(u), nil
}

func (l *WalletLedger) Credit(ctx context.Context, userID string, amount decimal.Decimal, idemKey string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("credit amount must be positive, got %s", amount)
	}
	return l.apply(ctx, userID, toMicros(amount), idemKey)
}

func (l *WalletLedger) Debit(ctx context.Context, userID string, amount decimal.Decimal, idemKey string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("debit amount must be positive, got %s", amount)
	}
	return l.apply(ctx, userID, -toMicros(amount), idemKey)
}

// apply moves the balance by deltaU. Debits carry a zero floor in the UPDATE
// itself; a debit that would go negative is rejected without touching the row.
func (l *WalletLedger) apply(ctx context.Context, userID string, deltaU int64, idemKey string) error {
	tx, err := l.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin wallet apply: %w", err)
	}
	defer tx.Rollback()

	fresh, err := claimOp(ctx, tx, idemKey)
	if err != nil {
		return err
	}
	if !fresh {
		return tx.Commit()
	}

	var res sql.Result
	if deltaU < 0 {
		res, err = tx.ExecContext(ctx,
			`UPDATE wallets SET balance_u = balance_u + ?, updated_at = ? WHERE user_id = ? AND balance_u >= ?`,
			deltaU, nowStr(), userID, -deltaU)
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE wallets SET balance_u = balance_u + ?, updated_at = ? WHERE user_id = ?`,
			deltaU, nowStr(), userID)
	}
	if err != nil {
		return fmt.Errorf("apply wallet delta: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("apply wallet rows: %w", err)
	}
	if n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM wallets WHERE user_id = ?`, userID).Scan(&exists); err != nil {
			return fmt.Errorf("check wallet: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("wallet %s: %w", userID, ledger.ErrNotFound)
		}
		return fmt.Errorf("wallet %s: %w", userID, ledger.ErrInsufficientFunds)
	}
	return tx.Commit()
}

// EnsureWallet creates the wallet row when missing. Used by account setup and
// the deposit endpoint; settlements never create wallets implicitly.
func (l *WalletLedger) EnsureWallet(ctx context.Context, userID string) error {
	_, err := l.store.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO wallets (user_id, balance_u, updated_at) VALUES (?,0,?)`,
		userID, nowStr())
	if err != nil {
		return fmt.Errorf("ensure wallet: %w", err)
	}
	return nil
}

func (l *WalletLedger) GetWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	var u int64
	var updated string
	err := l.store.db.QueryRowContext(ctx,
		`SELECT balance_u, updated_at FROM wallets WHERE user_id = ?`, userID).
		Scan(&u, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("wallet %s: %w", userID, ledger.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read wallet: %w", err)
	}
	w := &domain.Wallet{UserID: userID, Balance: fromMicros(u)}
	if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		w.UpdatedAt = t
	}
	return w, nil
}
