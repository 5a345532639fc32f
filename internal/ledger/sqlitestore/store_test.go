package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tradesim/settle/internal/domain"
	"github.com/tradesim/settle/internal/ledger"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedAsset(t *testing.T, s *Store, id string, available int64) *StockLedger {
	t.Helper()
	stock := NewStockLedger(s)
	require.NoError(t, stock.UpsertAsset(context.Background(), domain.Asset{
		ID:                id,
		Symbol:            "ACME",
		Name:              "Acme Corp",
		Class:             domain.AssetClassEquity,
		AvailableQuantity: decimal.NewFromInt(available),
		LastPrice:         decimal.NewFromInt(5),
	}))
	return stock
}

func TestStockAdjust_FloorClampedDecrement(t *testing.T) {
	ctx := context.Background()
	stock := seedAsset(t, openTestStore(t), "a1", 10)

	require.NoError(t, stock.Adjust(ctx, "a1", decimal.NewFromInt(-4), "k1"))
	avail, err := stock.Available(ctx, "a1")
	require.NoError(t, err)
	require.True(t, avail.Equal(decimal.NewFromInt(6)), "available=%s", avail)

	// a decrement below the floor must not land at all
	err = stock.Adjust(ctx, "a1", decimal.NewFromInt(-10), "k2")
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)

	avail, err = stock.Available(ctx, "a1")
	require.NoError(t, err)
	require.True(t, avail.Equal(decimal.NewFromInt(6)), "rejected decrement must not change the row")
}

func TestStockAdjust_IdempotencyKeyDedup(t *testing.T) {
	ctx := context.Background()
	stock := seedAsset(t, openTestStore(t), "a1", 10)

	require.NoError(t, stock.Adjust(ctx, "a1", decimal.NewFromInt(-4), "trade1:stock.decrement"))
	// network-level retry of the same step
	require.NoError(t, stock.Adjust(ctx, "a1", decimal.NewFromInt(-4), "trade1:stock.decrement"))

	avail, err := stock.Available(ctx, "a1")
	require.NoError(t, err)
	require.True(t, avail.Equal(decimal.NewFromInt(6)), "replay applied twice: available=%s", avail)
}

func TestStockAdjust_UnknownAsset(t *testing.T) {
	ctx := context.Background()
	stock := NewStockLedger(openTestStore(t))

	err := stock.Adjust(ctx, "ghost", decimal.NewFromInt(-1), "k")
	require.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = stock.Available(ctx, "ghost")
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestWallet_DebitFloor(t *testing.T) {
	ctx := context.Background()
	wallet := NewWalletLedger(openTestStore(t))

	require.NoError(t, wallet.EnsureWallet(ctx, "u1"))
	require.NoError(t, wallet.Credit(ctx, "u1", decimal.NewFromInt(100), "c1"))

	err := wallet.Debit(ctx, "u1", decimal.NewFromInt(150), "d1")
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	require.NoError(t, wallet.Debit(ctx, "u1", decimal.NewFromInt(60), "d2"))
	bal, err := wallet.Balance(ctx, "u1")
	require.NoError(t, err)
	require.True(t, bal.Equal(decimal.NewFromInt(40)), "balance=%s", bal)
}

func TestWallet_DebitIdempotent(t *testing.T) {
	ctx := context.Background()
	wallet := NewWalletLedger(openTestStore(t))

	require.NoError(t, wallet.EnsureWallet(ctx, "u1"))
	require.NoError(t, wallet.Credit(ctx, "u1", decimal.NewFromInt(100), "c1"))
	require.NoError(t, wallet.Debit(ctx, "u1", decimal.NewFromInt(30), "t1:wallet.debit"))
	require.NoError(t, wallet.Debit(ctx, "u1", decimal.NewFromInt(30), "t1:wallet.debit"))

	bal, err := wallet.Balance(ctx, "u1")
	require.NoError(t, err)
	require.True(t, bal.Equal(decimal.NewFromInt(70)), "balance=%s", bal)
}

func TestWallet_UnknownUser(t *testing.T) {
	ctx := context.Background()
	wallet := NewWalletLedger(openTestStore(t))

	err := wallet.Debit(ctx, "ghost", decimal.NewFromInt(1), "d")
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestOrders_AppendIdempotentAndListOrder(t *testing.T) {
	ctx := context.Background()
	orders := NewOrderLog(openTestStore(t))

	rec := domain.OrderRecord{
		ID:        "o1",
		TradeID:   "t1",
		UserID:    "u1",
		AssetID:   "a1",
		Symbol:    "ACME",
		Side:      domain.SideBuy,
		Quantity:  decimal.NewFromInt(10),
		Price:     decimal.RequireFromString("5.25"),
		Total:     decimal.RequireFromString("52.5"),
		Status:    domain.OrderStatusCompleted,
		Kind:      domain.OrderKindTrade,
		CreatedAt: time.Now().Add(-time.Minute),
	}
	require.NoError(t, orders.Append(ctx, rec))
	require.NoError(t, orders.Append(ctx, rec)) // same ID, no duplicate row

	rev := rec.Reversal("o2", time.Now())
	require.NoError(t, orders.Append(ctx, rev))

	got, err := orders.Get(ctx, "o1")
	require.NoError(t, err)
	require.True(t, got.Price.Equal(rec.Price), "price=%s", got.Price)
	require.True(t, got.Total.Equal(rec.Total), "total=%s", got.Total)

	list, err := orders.ListByUser(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	// newest first
	require.Equal(t, "o2", list[0].ID)
	require.Equal(t, domain.OrderKindReversal, list[0].Kind)
	require.Equal(t, "o1", list[0].ReversalOf)
}

func TestPositions_BuyBlendsAverageCost(t *testing.T) {
	ctx := context.Background()
	positions := NewPositionStore(openTestStore(t))

	require.NoError(t, positions.ApplyBuy(ctx, "u1", "a1", "ACME",
		decimal.NewFromInt(10), decimal.NewFromInt(5), "b1"))
	require.NoError(t, positions.ApplyBuy(ctx, "u1", "a1", "ACME",
		decimal.NewFromInt(10), decimal.NewFromInt(7), "b2"))

	pos, err := positions.Get(ctx, "u1", "a1")
	require.NoError(t, err)
	require.NotNil(t, pos)
	require.True(t, pos.Quantity.Equal(decimal.NewFromInt(20)), "qty=%s", pos.Quantity)
	require.True(t, pos.AvgCost.Equal(decimal.NewFromInt(6)), "avg=%s", pos.AvgCost)
}

func TestPositions_SellKeepsAvgCostAndDeletesAtZero(t *testing.T) {
	ctx := context.Background()
	positions := NewPositionStore(openTestStore(t))

	require.NoError(t, positions.ApplyBuy(ctx, "u1", "a1", "ACME",
		decimal.NewFromInt(10), decimal.NewFromInt(5), "b1"))

	require.NoError(t, positions.ApplySell(ctx, "u1", "a1", decimal.NewFromInt(4), "s1"))
	pos, err := positions.Get(ctx, "u1", "a1")
	require.NoError(t, err)
	require.NotNil(t, pos)
	require.True(t, pos.Quantity.Equal(decimal.NewFromInt(6)))
	require.True(t, pos.AvgCost.Equal(decimal.NewFromInt(5)), "sell must not move avg cost")

	require.NoError(t, positions.ApplySell(ctx, "u1", "a1", decimal.NewFromInt(6), "s2"))
	pos, err = positions.Get(ctx, "u1", "a1")
	require.NoError(t, err)
	require.Nil(t, pos, "emptied position must be deleted, not kept at zero")

	err = positions.ApplySell(ctx, "u1", "a1", decimal.NewFromInt(1), "s3")
	require.ErrorIs(t, err, ledger.ErrInsufficientHoldings)
}

func TestPositions_SellIdempotent(t *testing.T) {
	ctx := context.Background()
	positions := NewPositionStore(openTestStore(t))

	require.NoError(t, positions.ApplyBuy(ctx, "u1", "a1", "ACME",
		decimal.NewFromInt(10), decimal.NewFromInt(5), "b1"))
	require.NoError(t, positions.ApplySell(ctx, "u1", "a1", decimal.NewFromInt(4), "t1:position.decrement"))
	require.NoError(t, positions.ApplySell(ctx, "u1", "a1", decimal.NewFromInt(4), "t1:position.decrement"))

	pos, err := positions.Get(ctx, "u1", "a1")
	require.NoError(t, err)
	require.True(t, pos.Quantity.Equal(decimal.NewFromInt(6)), "replay applied twice: qty=%s", pos.Quantity)
}

func TestFractionalQuantities_SurviveMicroUnits(t *testing.T) {
	ctx := context.Background()
	positions := NewPositionStore(openTestStore(t))

	qty := decimal.RequireFromString("0.5")
	price := decimal.RequireFromString("61234.25")
	require.NoError(t, positions.ApplyBuy(ctx, "u1", "btc", "BTC", qty, price, "b1"))

	pos, err := positions.Get(ctx, "u1", "btc")
	require.NoError(t, err)
	require.True(t, pos.Quantity.Equal(qty), "qty=%s", pos.Quantity)
	require.True(t, pos.AvgCost.Equal(price), "avg=%s", pos.AvgCost)
}
