package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tradesim/settle/internal/domain"
	"github.com/tradesim/settle/internal/ledger"
)

// OrderLog implements ledger.OrderLog on the shared database.
// The table is append-only: rows are never updated or deleted, reversals are
// new rows linked through reversal_of.
type OrderLog struct {
	store *Store
}

func NewOrderLog(store *Store) *OrderLog {
	return &OrderLog{store: store}
}

// Append writes one order record. The record ID doubles as the idempotency
// key: replaying the same record is a no-op.
func (l *OrderLog) Append(ctx context.Context, rec domain.OrderRecord) error {
	if rec.ID == "" {
		return errors.New("order record id is required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	var reversalOf any
	if rec.ReversalOf != "" {
		reversalOf = rec.ReversalOf
	}
	_, err := l.store.db.ExecContext(ctx, `
INSERT OR IGNORE INTO orders
  (id, trade_id, user_id, asset_id, symbol, side, quantity_u, price_u, total_u, status, kind, reversal_of, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.TradeID, rec.UserID, rec.AssetID, rec.Symbol, string(rec.Side),
		toMicros(rec.Quantity), toMicros(rec.Price), toMicros(rec.Total),
		string(rec.Status), string(rec.Kind), reversalOf,
		rec.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append order: %w", err)
	}
	return nil
}

func (l *OrderLog) Get(ctx context.Context, orderID string) (*domain.OrderRecord, error) {
	row := l.store.db.QueryRowContext(ctx, `
SELECT id, trade_id, user_id, asset_id, symbol, side, quantity_u, price_u, total_u, status, kind, reversal_of, created_at
FROM orders WHERE id = ?`, orderID)
	rec, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", orderID, ledger.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (l *OrderLog) ListByUser(ctx context.Context, userID string, limit int) ([]domain.OrderRecord, error) {
	if limit <= 0 || limit > 2000 {
		limit = 200
	}
	rows, err := l.store.db.QueryContext(ctx, `
SELECT id, trade_id, user_id, asset_id, symbol, side, quantity_u, price_u, total_u, status, kind, reversal_of, created_at
FROM orders WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []domain.OrderRecord
	for rows.Next() {
		rec, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanOrder(r rowScanner) (*domain.OrderRecord, error) {
	var rec domain.OrderRecord
	var side, status, kind, created string
	var reversalOf sql.NullString
	var qtyU, priceU, totalU int64
	if err := r.Scan(&rec.ID, &rec.TradeID, &rec.UserID, &rec.AssetID, &rec.Symbol,
		&side, &qtyU, &priceU, &totalU, &status, &kind, &reversalOf, &created); err != nil {
		return nil, err
	}
	rec.Side = domain.Side(side)
	rec.Status = domain.OrderStatus(status)
	rec.Kind = domain.OrderKind(kind)
	if reversalOf.Valid {
		rec.ReversalOf = reversalOf.String
	}
	rec.Quantity = fromMicros(qtyU)
	rec.Price = fromMicros(priceU)
	rec.Total = fromMicros(totalU)
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		rec.CreatedAt = t
	}
	return &rec, nil
}
