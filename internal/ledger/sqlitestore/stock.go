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

// StockLedger implements ledger.StockLedger on the shared database.
type StockLedger struct {
	store *Store
}

func NewStockLedger(store *Store) *StockLedger {
	return &StockLedger{store: store}
}

func (l *StockLedger) Available(ctx context.Context, assetID string) (decimal.Decimal, error) {
	var u int64
	err := l.store.db.QueryRowContext(ctx,
		`SELECT available_u FROM assets WHERE id = ?`, assetID).Scan(&u)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("asset %s: %w", assetID, ledger.ErrNotFound)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("read stock: %w", err)
	}
	return fromMicros(u), nil
}

// Adjust applies a signed delta to the available quantity. Decrements are a
// single conditional UPDATE with a zero floor: a stale caller snapshot cannot
// drive the quantity negative, it just loses the race here.
func (l *StockLedger) Adjust(ctx context.Context, assetID string, delta decimal.Decimal, idemKey string) error {
	deltaU := toMicros(delta)

	tx, err := l.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin stock adjust: %w", err)
	}
	defer tx.Rollback()

	fresh, err := claimOp(ctx, tx, idemKey)
	if err != nil {
		return err
	}
	if !fresh {
		return tx.Commit() // already applied under this key
	}

	var res sql.Result
	if deltaU < 0 {
		res, err = tx.ExecContext(ctx,
			`UPDATE assets SET available_u = available_u + ?, updated_at = ? WHERE id = ? AND available_u >= ?`,
			deltaU, nowStr(), assetID, -deltaU)
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE assets SET available_u = available_u + ?, updated_at = ? WHERE id = ?`,
			deltaU, nowStr(), assetID)
	}
	if err != nil {
		return fmt.Errorf("adjust stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("adjust stock rows: %w", err)
	}
	if n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM assets WHERE id = ?`, assetID).Scan(&exists); err != nil {
			return fmt.Errorf("check asset: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("asset %s: %w", assetID, ledger.ErrNotFound)
		}
		return fmt.Errorf("asset %s: %w", assetID, ledger.ErrInsufficientStock)
	}
	return tx.Commit()
}

// UpsertAsset creates or replaces a catalog entry. Admin surface, not part of
// the settlement path.
func (l *StockLedger) UpsertAsset(ctx context.Context, a domain.Asset) error {
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now().UTC()
	}
	_, err := l.store.db.ExecContext(ctx, `
INSERT INTO assets (id, symbol, name, class, available_u, last_price_u, updated_at)
VALUES (?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  symbol = excluded.symbol,
  name = excluded.name,
  class = excluded.class,
  available_u = excluded.available_u,
  last_price_u = excluded.last_price_u,
  updated_at = excluded.updated_at`,
		a.ID, a.Symbol, a.Name, string(a.Class),
		toMicros(a.AvailableQuantity), toMicros(a.LastPrice),
		a.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert asset: %w", err)
	}
	return nil
}

func (l *StockLedger) GetAsset(ctx context.Context, assetID string) (*domain.Asset, error) {
	row := l.store.db.QueryRowContext(ctx, `
SELECT id, symbol, name, class, available_u, last_price_u, updated_at
FROM assets WHERE id = ?`, assetID)
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("asset %s: %w", assetID, ledger.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (l *StockLedger) ListAssets(ctx context.Context) ([]domain.Asset, error) {
	rows, err := l.store.db.QueryContext(ctx, `
SELECT id, symbol, name, class, available_u, last_price_u, updated_at
FROM assets ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var out []domain.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(r rowScanner) (*domain.Asset, error) {
	var a domain.Asset
	var class, updated string
	var availU, priceU int64
	if err := r.Scan(&a.ID, &a.Symbol, &a.Name, &class, &availU, &priceU, &updated); err != nil {
		return nil, err
	}
	a.Class = domain.AssetClass(class)
	a.AvailableQuantity = fromMicros(availU)
	a.LastPrice = fromMicros(priceU)
	if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		a.UpdatedAt = t
	}
	return &a, nil
}
