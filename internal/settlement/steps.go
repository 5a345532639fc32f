package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradesim/settle/internal/domain"
)

// 步骤名。对账条目与结算结果里引用，保持稳定。
const (
	StepStockDecrement    = "stock.decrement"
	StepOrderAppend       = "order.append"
	StepPositionUpsert    = "position.upsert"
	StepWalletDebit       = "wallet.debit"
	StepWalletCredit      = "wallet.credit"
	StepStockIncrement    = "stock.increment"
	StepPositionDecrement = "position.decrement"
)

// sagaStep 一步正向变更及其反向补偿。
// 每一步都是一次独立的网络调用；apply 与 compensate 各自携带派生自交易
// 请求的幂等键，网络层重试不会被账本重复落地。
type sagaStep struct {
	name       string
	apply      func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// idemKey 派生某一步的幂等键。补偿键加 ":undo" 后缀，和正向键区分。
func idemKey(tradeID, step string) string {
	return tradeID + ":" + step
}

func undoKey(tradeID, step string) string {
	return idemKey(tradeID, step) + ":undo"
}

// buildBuySteps 买入的固定顺序：
// (1) 扣减库存 (2) 追加订单记录 (3) 合并持仓 (4) 钱包出账。
// 返回步骤序列和本次交易的订单记录 ID。
func (o *Orchestrator) buildBuySteps(req *domain.TradeRequest) ([]sagaStep, string) {
	rec := newOrderRecord(req)

	steps := []sagaStep{
		{
			name: StepStockDecrement,
			apply: func(ctx context.Context) error {
				return o.stock.Adjust(ctx, req.AssetID, req.Quantity.Neg(), idemKey(req.TradeID, StepStockDecrement))
			},
			compensate: func(ctx context.Context) error {
				return o.stock.Adjust(ctx, req.AssetID, req.Quantity, undoKey(req.TradeID, StepStockDecrement))
			},
		},
		{
			name: StepOrderAppend,
			apply: func(ctx context.Context) error {
				return o.orders.Append(ctx, rec)
			},
			compensate: func(ctx context.Context) error {
				// 订单日志 append-only：冲正追加 reversal 记录，不改原记录
				return o.orders.Append(ctx, rec.Reversal(uuid.NewString(), time.Now()))
			},
		},
		{
			name: StepPositionUpsert,
			apply: func(ctx context.Context) error {
				return o.positions.ApplyBuy(ctx, req.UserID, req.AssetID, req.Symbol,
					req.Quantity, req.UnitPrice, idemKey(req.TradeID, StepPositionUpsert))
			},
			compensate: func(ctx context.Context) error {
				return o.positions.ApplySell(ctx, req.UserID, req.AssetID,
					req.Quantity, undoKey(req.TradeID, StepPositionUpsert))
			},
		},
		{
			name: StepWalletDebit,
			apply: func(ctx context.Context) error {
				return o.wallet.Debit(ctx, req.UserID, req.Total(), idemKey(req.TradeID, StepWalletDebit))
			},
			compensate: func(ctx context.Context) error {
				return o.wallet.Credit(ctx, req.UserID, req.Total(), undoKey(req.TradeID, StepWalletDebit))
			},
		},
	}
	return steps, rec.ID
}

// buildSellSteps 卖出是买入的镜像：
// (1) 追加订单记录 (2) 钱包入账 (3) 回补库存 (4) 扣减/删除持仓。
// priorAvgCost 是校验时读到的持仓平均成本快照：补偿持仓扣减时按原成本
// 恢复，避免用本次卖价污染成本基础。
func (o *Orchestrator) buildSellSteps(req *domain.TradeRequest, priorAvgCost decimal.Decimal) ([]sagaStep, string) {
	rec := newOrderRecord(req)

	steps := []sagaStep{
		{
			name: StepOrderAppend,
			apply: func(ctx context.Context) error {
				return o.orders.Append(ctx, rec)
			},
			compensate: func(ctx context.Context) error {
				return o.orders.Append(ctx, rec.Reversal(uuid.NewString(), time.Now()))
			},
		},
		{
			name: StepWalletCredit,
			apply: func(ctx context.Context) error {
				return o.wallet.Credit(ctx, req.UserID, req.Total(), idemKey(req.TradeID, StepWalletCredit))
			},
			compensate: func(ctx context.Context) error {
				return o.wallet.Debit(ctx, req.UserID, req.Total(), undoKey(req.TradeID, StepWalletCredit))
			},
		},
		{
			name: StepStockIncrement,
			apply: func(ctx context.Context) error {
				return o.stock.Adjust(ctx, req.AssetID, req.Quantity, idemKey(req.TradeID, StepStockIncrement))
			},
			compensate: func(ctx context.Context) error {
				return o.stock.Adjust(ctx, req.AssetID, req.Quantity.Neg(), undoKey(req.TradeID, StepStockIncrement))
			},
		},
		{
			name: StepPositionDecrement,
			apply: func(ctx context.Context) error {
				return o.positions.ApplySell(ctx, req.UserID, req.AssetID,
					req.Quantity, idemKey(req.TradeID, StepPositionDecrement))
			},
			compensate: func(ctx context.Context) error {
				return o.positions.ApplyBuy(ctx, req.UserID, req.AssetID, req.Symbol,
					req.Quantity, priorAvgCost, undoKey(req.TradeID, StepPositionDecrement))
			},
		},
	}
	return steps, rec.ID
}

// newOrderRecord 为通过校验的交易构造订单记录（每次交易尝试恰好一条）。
func newOrderRecord(req *domain.TradeRequest) domain.OrderRecord {
	return domain.OrderRecord{
		ID:        uuid.NewString(),
		TradeID:   req.TradeID,
		UserID:    req.UserID,
		AssetID:   req.AssetID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Quantity:  req.Quantity,
		Price:     req.UnitPrice,
		Total:     req.Total(),
		Status:    domain.OrderStatusCompleted,
		Kind:      domain.OrderKindTrade,
		CreatedAt: time.Now(),
	}
}
