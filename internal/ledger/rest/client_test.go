package rest

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tradesim/settle/internal/domain"
	"github.com/tradesim/settle/internal/ledger"
	"github.com/tradesim/settle/internal/ledger/sqlitestore"
	"github.com/tradesim/settle/internal/recon"
	"github.com/tradesim/settle/internal/server"
	"github.com/tradesim/settle/internal/settlement"
	"github.com/tradesim/settle/internal/stream"
)

// startLedgerService brings up the real HTTP surface on top of a throwaway
// SQLite database, so the clients are tested against the actual handlers
// rather than a hand-written stub.
func startLedgerService(t *testing.T) (*Client, *sqlitestore.Store) {
	t.Helper()

	dir := t.TempDir()
	store, err := sqlitestore.Open(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	queue, err := recon.Open(filepath.Join(dir, "recon"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = queue.Close() })

	stock := sqlitestore.NewStockLedger(store)
	wallet := sqlitestore.NewWalletLedger(store)
	orders := sqlitestore.NewOrderLog(store)
	positions := sqlitestore.NewPositionStore(store)

	hub := stream.NewHub()
	t.Cleanup(hub.Close)

	orch := settlement.New(stock, orders, positions, wallet, settlement.Options{Recon: queue})
	srv := httptest.NewServer(server.New(orch, stock, wallet, orders, positions, queue, hub).Router())
	t.Cleanup(srv.Close)

	return New(srv.URL, 5*time.Second), store
}

func seedRemote(t *testing.T, store *sqlitestore.Store, available, balance int64) {
	t.Helper()
	ctx := context.Background()
	stock := sqlitestore.NewStockLedger(store)
	wallet := sqlitestore.NewWalletLedger(store)
	require.NoError(t, stock.UpsertAsset(ctx, domain.Asset{
		ID:                "a1",
		Symbol:            "ACME",
		Name:              "Acme Corp",
		Class:             domain.AssetClassEquity,
		AvailableQuantity: decimal.NewFromInt(available),
		LastPrice:         decimal.NewFromInt(5),
	}))
	require.NoError(t, wallet.EnsureWallet(ctx, "u1"))
	if balance > 0 {
		require.NoError(t, wallet.Credit(ctx, "u1", decimal.NewFromInt(balance), "seed"))
	}
}

func TestStockClient_Roundtrip(t *testing.T) {
	ctx := context.Background()
	client, store := startLedgerService(t)
	seedRemote(t, store, 10, 0)

	avail, err := client.Stock().Available(ctx, "a1")
	require.NoError(t, err)
	require.True(t, avail.Equal(decimal.NewFromInt(10)))

	require.NoError(t, client.Stock().Adjust(ctx, "a1", decimal.NewFromInt(-4), "k1"))
	// HTTP 层重放同一个幂等键
	require.NoError(t, client.Stock().Adjust(ctx, "a1", decimal.NewFromInt(-4), "k1"))

	avail, err = client.Stock().Available(ctx, "a1")
	require.NoError(t, err)
	require.True(t, avail.Equal(decimal.NewFromInt(6)), "available=%s", avail)

	// 条件更新的拒绝穿过 HTTP 后仍是哨兵错误
	err = client.Stock().Adjust(ctx, "a1", decimal.NewFromInt(-100), "k2")
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)

	_, err = client.Stock().Available(ctx, "ghost")
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestWalletClient_Roundtrip(t *testing.T) {
	ctx := context.Background()
	client, store := startLedgerService(t)
	seedRemote(t, store, 0, 100)

	bal, err := client.Wallet().Balance(ctx, "u1")
	require.NoError(t, err)
	require.True(t, bal.Equal(decimal.NewFromInt(100)))

	require.NoError(t, client.Wallet().Debit(ctx, "u1", decimal.NewFromInt(30), "d1"))
	err = client.Wallet().Debit(ctx, "u1", decimal.NewFromInt(1000), "d2")
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	require.NoError(t, client.Wallet().Credit(ctx, "u1", decimal.NewFromInt(5), "c1"))
	bal, err = client.Wallet().Balance(ctx, "u1")
	require.NoError(t, err)
	require.True(t, bal.Equal(decimal.NewFromInt(75)), "balance=%s", bal)
}

func TestOrderAndPositionClients_Roundtrip(t *testing.T) {
	ctx := context.Background()
	client, store := startLedgerService(t)
	seedRemote(t, store, 10, 100)

	rec := domain.OrderRecord{
		ID:        "o1",
		TradeID:   "t1",
		UserID:    "u1",
		AssetID:   "a1",
		Symbol:    "ACME",
		Side:      domain.SideBuy,
		Quantity:  decimal.NewFromInt(2),
		Price:     decimal.NewFromInt(5),
		Total:     decimal.NewFromInt(10),
		Status:    domain.OrderStatusCompleted,
		Kind:      domain.OrderKindTrade,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, client.Orders().Append(ctx, rec))

	got, err := client.Orders().Get(ctx, "o1")
	require.NoError(t, err)
	require.True(t, got.Total.Equal(rec.Total))

	list, err := client.Orders().ListByUser(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)

	// 无持仓时 Get 返回 (nil, nil)，与进程内绑定一致
	pos, err := client.Positions().Get(ctx, "u1", "a1")
	require.NoError(t, err)
	require.Nil(t, pos)

	require.NoError(t, client.Positions().ApplyBuy(ctx, "u1", "a1", "ACME",
		decimal.NewFromInt(2), decimal.NewFromInt(5), "p1"))
	pos, err = client.Positions().Get(ctx, "u1", "a1")
	require.NoError(t, err)
	require.NotNil(t, pos)
	require.True(t, pos.Quantity.Equal(decimal.NewFromInt(2)))

	err = client.Positions().ApplySell(ctx, "u1", "a1", decimal.NewFromInt(5), "p2")
	require.ErrorIs(t, err, ledger.ErrInsufficientHoldings)
}

// TestSettlementOverRemoteLedgers drives a full settlement through the HTTP
// bindings: the orchestrator cannot tell them apart from the in-process ones.
func TestSettlementOverRemoteLedgers(t *testing.T) {
	ctx := context.Background()
	client, store := startLedgerService(t)
	seedRemote(t, store, 100, 1000)

	orch := settlement.New(client.Stock(), client.Orders(), client.Positions(), client.Wallet(),
		settlement.Options{StepTimeout: 5 * time.Second})

	res, err := orch.Execute(ctx, &domain.TradeRequest{
		TradeID:    "remote-t1",
		UserID:     "u1",
		AssetID:    "a1",
		Symbol:     "ACME",
		AssetClass: domain.AssetClassEquity,
		Side:       domain.SideBuy,
		Quantity:   decimal.NewFromInt(10),
		UnitPrice:  decimal.NewFromInt(5),
		Payment:    domain.PaymentWallet,
	})
	require.NoError(t, err)
	require.Equal(t, settlement.StatusSettled, res.Status)

	avail, err := client.Stock().Available(ctx, "a1")
	require.NoError(t, err)
	require.True(t, avail.Equal(decimal.NewFromInt(90)), "available=%s", avail)

	bal, err := client.Wallet().Balance(ctx, "u1")
	require.NoError(t, err)
	require.True(t, bal.Equal(decimal.NewFromInt(950)), "balance=%s", bal)

	pos, err := client.Positions().Get(ctx, "u1", "a1")
	require.NoError(t, err)
	require.NotNil(t, pos)
	require.True(t, pos.Quantity.Equal(decimal.NewFromInt(10)))

	rec, err := client.Orders().Get(ctx, res.OrderID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderKindTrade, rec.Kind)
}
