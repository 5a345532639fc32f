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

// PositionStore implements ledger.PositionStore on the shared database.
//
// A buy merges into the row (weighted average cost), a sell only shrinks the
// quantity, and a sell that empties the position deletes the row instead of
// leaving it at zero. Every mutation runs in one transaction together with the
// idempotency claim, so the check-then-write is atomic at this ledger.
type PositionStore struct {
	store *Store
}

func NewPositionStore(store *Store) *PositionStore {
	return &PositionStore{store: store}
}

func (l *PositionStore) Get(ctx context.Context, userID, assetID string) (*domain.Position, error) {
	row := l.store.db.QueryRowContext(ctx, `
SELECT user_id, asset_id, symbol, quantity_u, avg_cost_u, updated_at
FROM positions WHERE user_id = ? AND asset_id = ?`, userID, assetID)
	pos, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // no position is a normal state, not an error
	}
	if err != nil {
		return nil, err
	}
	return pos, nil
}

func (l *PositionStore) ApplyBuy(ctx context.Context, userID, assetID, symbol string, qty, price decimal.Decimal, idemKey string) error {
	if !qty.IsPositive() {
		return fmt.Errorf("buy quantity must be positive, got %s", qty)
	}

	tx, err := l.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin position buy: %w", err)
	}
	defer tx.Rollback()

	fresh, err := claimOp(ctx, tx, idemKey)
	if err != nil {
		return err
	}
	if !fresh {
		return tx.Commit()
	}

	now := time.Now().UTC()
	cur, err := getPositionTx(ctx, tx, userID, assetID)
	if err != nil {
		return err
	}

	var next domain.Position
	if cur == nil {
		next = domain.Position{
			UserID:    userID,
			AssetID:   assetID,
			Symbol:    symbol,
			Quantity:  qty,
			AvgCost:   price,
			UpdatedAt: now,
		}
	} else {
		next = cur.MergeBuy(qty, price, now)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO positions (user_id, asset_id, symbol, quantity_u, avg_cost_u, updated_at)
VALUES (?,?,?,?,?,?)
ON CONFLICT(user_id, asset_id) DO UPDATE SET
  quantity_u = excluded.quantity_u,
  avg_cost_u = excluded.avg_cost_u,
  updated_at = excluded.updated_at`,
		next.UserID, next.AssetID, next.Symbol,
		toMicros(next.Quantity), toMicros(next.AvgCost),
		now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return tx.Commit()
}

func (l *PositionStore) ApplySell(ctx context.Context, userID, assetID string, qty decimal.Decimal, idemKey string) error {
	if !qty.IsPositive() {
		return fmt.Errorf("sell quantity must be positive, got %s", qty)
	}

	tx, err := l.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin position sell: %w", err)
	}
	defer tx.Rollback()

	fresh, err := claimOp(ctx, tx, idemKey)
	if err != nil {
		return err
	}
	if !fresh {
		return tx.Commit()
	}

	now := time.Now().UTC()
	cur, err := getPositionTx(ctx, tx, userID, assetID)
	if err != nil {
		return err
	}
	if cur == nil || qty.GreaterThan(cur.Quantity) {
		return fmt.Errorf("position %s/%s: %w", userID, assetID, ledger.ErrInsufficientHoldings)
	}

	next, remaining := cur.ReduceSell(qty, now)
	if !remaining {
		// fully liquidated: delete, never keep a zero-quantity row
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM positions WHERE user_id = ? AND asset_id = ?`, userID, assetID); err != nil {
			return fmt.Errorf("delete position: %w", err)
		}
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE positions SET quantity_u = ?, updated_at = ? WHERE user_id = ? AND asset_id = ?`,
		toMicros(next.Quantity), now.Format(time.RFC3339Nano), userID, assetID); err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	return tx.Commit()
}

func (l *PositionStore) ListByUser(ctx context.Context, userID string) ([]domain.Position, error) {
	rows, err := l.store.db.QueryContext(ctx, `
SELECT user_id, asset_id, symbol, quantity_u, avg_cost_u, updated_at
FROM positions WHERE user_id = ? ORDER BY symbol`, userID)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *pos)
	}
	return out, rows.Err()
}

func getPositionTx(ctx context.Context, tx *sql.Tx, userID, assetID string) (*domain.Position, error) {
	row := tx.QueryRowContext(ctx, `
SELECT user_id, asset_id, symbol, quantity_u, avg_cost_u, updated_at
FROM positions WHERE user_id = ? AND asset_id = ?`, userID, assetID)
	pos, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return pos, nil
}

func scanPosition(r rowScanner) (*domain.Position, error) {
	var pos domain.Position
	var qtyU, costU int64
	var updated string
	if err := r.Scan(&pos.UserID, &pos.AssetID, &pos.Symbol, &qtyU, &costU, &updated); err != nil {
		return nil, err
	}
	pos.Quantity = fromMicros(qtyU)
	pos.AvgCost = fromMicros(costU)
	if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		pos.UpdatedAt = t
	}
	return &pos, nil
}
