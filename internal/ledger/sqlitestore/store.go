// Package sqlitestore backs the four ledgers with a single SQLite database.
//
// Each ledger only ever gets per-resource atomicity: one mutation is one
// transaction against one table, and nothing here spans a settlement. Monetary
// amounts and quantities are stored as integer micro-units (6 decimal places)
// so that floor-clamped decrements are a single conditional UPDATE, never a
// read-modify-write from the caller's stale snapshot.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/tradesim/settle/internal/domain"
)

// micro-unit scale shared by all amount columns; anything finer than
// domain.LedgerScale decimal places is rejected upstream at validation
var microScale = decimal.New(1, domain.LedgerScale)

func toMicros(d decimal.Decimal) int64 {
	return d.Mul(microScale).IntPart()
}

func fromMicros(u int64) decimal.Decimal {
	return decimal.NewFromInt(u).Div(microScale)
}

// Store owns the database handle shared by the ledger implementations.
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the ledger database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("db path is required")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: a single connection is the stable choice
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA foreign_keys=ON;`,
		`
CREATE TABLE IF NOT EXISTS assets (
  id TEXT PRIMARY KEY,
  symbol TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  class TEXT NOT NULL,
  available_u INTEGER NOT NULL DEFAULT 0 CHECK (available_u >= 0),
  last_price_u INTEGER NOT NULL DEFAULT 0,
  updated_at TEXT NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS wallets (
  user_id TEXT PRIMARY KEY,
  balance_u INTEGER NOT NULL DEFAULT 0 CHECK (balance_u >= 0),
  updated_at TEXT NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  trade_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  asset_id TEXT NOT NULL,
  symbol TEXT NOT NULL,
  side TEXT NOT NULL,
  quantity_u INTEGER NOT NULL,
  price_u INTEGER NOT NULL,
  total_u INTEGER NOT NULL,
  status TEXT NOT NULL,
  kind TEXT NOT NULL,
  reversal_of TEXT,
  created_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders(user_id, created_at DESC);`,
		`
CREATE TABLE IF NOT EXISTS positions (
  user_id TEXT NOT NULL,
  asset_id TEXT NOT NULL,
  symbol TEXT NOT NULL,
  quantity_u INTEGER NOT NULL CHECK (quantity_u > 0),
  avg_cost_u INTEGER NOT NULL,
  updated_at TEXT NOT NULL,
  PRIMARY KEY (user_id, asset_id)
);`,
		`
CREATE TABLE IF NOT EXISTS ledger_ops (
  op_key TEXT PRIMARY KEY,
  applied_at TEXT NOT NULL
);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// claimOp records an idempotency key inside tx. Returns false when the key was
// already applied, meaning the caller must treat the mutation as done.
func claimOp(ctx context.Context, tx *sql.Tx, opKey string) (bool, error) {
	if opKey == "" {
		return true, nil // no dedup requested
	}
	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO ledger_ops (op_key, applied_at) VALUES (?,?)`,
		opKey, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("claim op: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim op rows: %w", err)
	}
	return n == 1, nil
}

func nowStr() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
