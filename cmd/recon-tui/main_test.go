package main

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tradesim/settle/internal/domain"
	"github.com/tradesim/settle/internal/ledger/sqlitestore"
	"github.com/tradesim/settle/internal/recon"
	"github.com/tradesim/settle/internal/server"
	"github.com/tradesim/settle/internal/settlement"
	"github.com/tradesim/settle/internal/stream"
)

// startReconService 在真实路由上起一个结算服务，TUI 的命令直接打到真实
// handler 上，避免手写 stub 与服务端响应结构脱节。
func startReconService(t *testing.T) (*resty.Client, *recon.Queue) {
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

	return resty.New().SetBaseURL(srv.URL).SetTimeout(5 * time.Second), queue
}

func TestFetchCmd_DecodesServerList(t *testing.T) {
	api, queue := startReconService(t)

	require.NoError(t, queue.Enqueue(context.Background(), settlement.StuckRecord{
		TradeID:   "t-stuck",
		UserID:    "u1",
		AssetID:   "a1",
		Symbol:    "ACME",
		Side:      domain.SideBuy,
		Quantity:  decimal.NewFromInt(10),
		UnitPrice: decimal.NewFromInt(5),
		FailedCompensations: []settlement.FailedCompensation{
			{Step: "stock.decrement", Reason: "ledger unavailable"},
		},
		CreatedAt: time.Now().UTC(),
	}))

	msg := fetchCmd(api, false)()
	items, ok := msg.(itemsMsg)
	if !ok {
		t.Fatalf("fetch returned %T: %v", msg, msg)
	}
	require.Len(t, items, 1)
	require.NotEmpty(t, items[0].ID)
	require.Equal(t, "t-stuck", items[0].Stuck.TradeID)
	require.Equal(t, "u1", items[0].Stuck.UserID)
	require.Len(t, items[0].Stuck.FailedCompensations, 1)
	require.Equal(t, "stock.decrement", items[0].Stuck.FailedCompensations[0].Step)
	require.Nil(t, items[0].ResolvedAt)
}

func TestResolveCmd_ThenAllToggle(t *testing.T) {
	api, queue := startReconService(t)

	require.NoError(t, queue.Enqueue(context.Background(), settlement.StuckRecord{
		TradeID:   "t-stuck",
		UserID:    "u1",
		AssetID:   "a1",
		Side:      domain.SideSell,
		Quantity:  decimal.NewFromInt(1),
		UnitPrice: decimal.NewFromInt(5),
		CreatedAt: time.Now().UTC(),
	}))

	items := fetchCmd(api, false)().(itemsMsg)
	require.Len(t, items, 1)

	msg := resolveCmd(api, items[0].ID, "ops-zhang")()
	if _, ok := msg.(resolvedMsg); !ok {
		t.Fatalf("resolve returned %T: %v", msg, msg)
	}

	// 默认视图不再展示，all=1 仍能看到处理人
	require.Empty(t, fetchCmd(api, false)().(itemsMsg))
	all := fetchCmd(api, true)().(itemsMsg)
	require.Len(t, all, 1)
	require.Equal(t, "ops-zhang", all[0].ResolvedBy)
	require.NotNil(t, all[0].ResolvedAt)
}
