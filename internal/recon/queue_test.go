package recon

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tradesim/settle/internal/domain"
	"github.com/tradesim/settle/internal/settlement"
)

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func stuckRecord(tradeID string, at time.Time) settlement.StuckRecord {
	return settlement.StuckRecord{
		TradeID:        tradeID,
		UserID:         "u1",
		AssetID:        "a1",
		Symbol:         "ACME",
		Side:           domain.SideBuy,
		Quantity:       decimal.NewFromInt(10),
		UnitPrice:      decimal.NewFromInt(5),
		CommittedSteps: []string{"stock.decrement", "order.append"},
		FailedCompensations: []settlement.FailedCompensation{
			{Step: "stock.decrement", Reason: "stock ledger down"},
		},
		CreatedAt: at,
	}
}

func TestQueue_EnqueueAndList(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	now := time.Now().UTC()
	require.NoError(t, q.Enqueue(ctx, stuckRecord("t2", now)))
	require.NoError(t, q.Enqueue(ctx, stuckRecord("t1", now.Add(-time.Hour))))

	items, err := q.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, items, 2)
	// oldest first
	require.Equal(t, "t1", items[0].Stuck.TradeID)
	require.Equal(t, "t2", items[1].Stuck.TradeID)
	require.Len(t, items[0].Stuck.FailedCompensations, 1)

	n, err := q.PendingCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestQueue_ResolveKeepsAuditTrail(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	require.NoError(t, q.Enqueue(ctx, stuckRecord("t1", time.Now().UTC())))
	items, err := q.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, items, 1)

	resolved, err := q.Resolve(ctx, items[0].ID, "ops-zhang", "credited wallet by hand")
	require.NoError(t, err)
	require.True(t, resolved.Resolved())
	require.Equal(t, "ops-zhang", resolved.ResolvedBy)

	// gone from the default listing, still readable as audit trail
	pending, err := q.List(ctx, false)
	require.NoError(t, err)
	require.Empty(t, pending)

	all, err := q.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 1)

	got, err := q.Get(ctx, items[0].ID)
	require.NoError(t, err)
	require.True(t, got.Resolved())
	require.Equal(t, "credited wallet by hand", got.Note)
}

func TestQueue_ResolveIdempotent(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	require.NoError(t, q.Enqueue(ctx, stuckRecord("t1", time.Now().UTC())))
	items, err := q.List(ctx, false)
	require.NoError(t, err)

	first, err := q.Resolve(ctx, items[0].ID, "ops-a", "fixed")
	require.NoError(t, err)

	// a second resolve must not overwrite who actually handled it
	second, err := q.Resolve(ctx, items[0].ID, "ops-b", "me too")
	require.NoError(t, err)
	require.Equal(t, first.ResolvedBy, second.ResolvedBy)
	require.Equal(t, first.Note, second.Note)
}

func TestQueue_ResolveUnknown(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	_, err := q.Resolve(ctx, "no-such-item", "ops", "")
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestQueue_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	q, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, stuckRecord("t1", time.Now().UTC())))
	require.NoError(t, q.Close())

	q2, err := Open(dir)
	require.NoError(t, err)
	defer q2.Close()

	items, err := q2.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "t1", items[0].Stuck.TradeID)
}
