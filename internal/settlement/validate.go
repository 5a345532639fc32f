package settlement

import (
	"context"
	"fmt"

	"github.com/tradesim/settle/internal/domain"
)

// rejection 前置校验失败。零副作用，安全重试。
type rejection struct {
	reason RejectReason
	detail string
}

func (r *rejection) Error() string {
	if r.detail == "" {
		return string(r.reason)
	}
	return fmt.Sprintf("%s: %s", r.reason, r.detail)
}

func reject(reason RejectReason, format string, args ...interface{}) *rejection {
	return &rejection{reason: reason, detail: fmt.Sprintf(format, args...)}
}

// validate 在任何变更之前做快照校验（fail-fast）。
// 返回的 rejection 表示业务拒绝；error 表示快照读取失败（基础设施故障，
// 同样零副作用，但不是用户可修正的拒绝）。卖出请求通过校验时同时返回持仓
// 快照，补偿路径按原平均成本恢复持仓时引用。
//
// 注意：这里只读快照，不持有任何跨 check-then-act 的锁。并发交易可能让两笔
// 请求基于同一份过期快照同时通过校验——这是设计上承认的竞态，最终一致性由
// 账本侧的条件更新兜底：提交时失败的那一笔走补偿路径，而不是拿过期快照重试。
func (o *Orchestrator) validate(ctx context.Context, req *domain.TradeRequest) (*rejection, *domain.Position, error) {
	if !req.Quantity.IsPositive() {
		return reject(ReasonInvalidQuantity, "quantity must be positive, got %s", req.Quantity), nil, nil
	}
	if req.AssetClass == domain.AssetClassEquity && !req.QuantityIsIntegral() {
		return reject(ReasonInvalidQuantity, "equity quantity must be integral, got %s", req.Quantity), nil, nil
	}
	if !req.UnitPrice.IsPositive() {
		return reject(ReasonInvalidQuantity, "unit price must be positive, got %s", req.UnitPrice), nil, nil
	}
	// 账本以 1e-6 微单位记账，更细的精度落库时会被截断，必须在这里挡下，
	// 否则 sub-micro 的数量会在中途撞上持仓表约束、走到冲正而不是拒绝。
	if !req.Quantity.Equal(req.Quantity.Truncate(domain.LedgerScale)) {
		return reject(ReasonInvalidQuantity, "quantity %s finer than ledger granularity (1e-%d)", req.Quantity, domain.LedgerScale), nil, nil
	}
	if !req.UnitPrice.Equal(req.UnitPrice.Truncate(domain.LedgerScale)) {
		return reject(ReasonInvalidQuantity, "unit price %s finer than ledger granularity (1e-%d)", req.UnitPrice, domain.LedgerScale), nil, nil
	}
	if total := req.Total(); !total.Equal(total.Truncate(domain.LedgerScale)) {
		return reject(ReasonInvalidQuantity, "total %s finer than ledger granularity (1e-%d)", total, domain.LedgerScale), nil, nil
	}
	if req.Payment == domain.PaymentCard {
		// 卡支付由外部收款方处理，结算核心不落地
		return reject(ReasonUnsupportedPayment, "card payment is handled by an external collector"), nil, nil
	}

	switch req.Side {
	case domain.SideBuy:
		available, err := o.stock.Available(ctx, req.AssetID)
		if err != nil {
			return nil, nil, fmt.Errorf("read stock snapshot: %w", err)
		}
		if req.Quantity.GreaterThan(available) {
			return reject(ReasonInsufficientStock, "want %s, available %s", req.Quantity, available), nil, nil
		}

		balance, err := o.wallet.Balance(ctx, req.UserID)
		if err != nil {
			return nil, nil, fmt.Errorf("read wallet snapshot: %w", err)
		}
		if req.Total().GreaterThan(balance) {
			return reject(ReasonInsufficientFunds, "need %s, balance %s", req.Total(), balance), nil, nil
		}
		return nil, nil, nil

	case domain.SideSell:
		pos, err := o.positions.Get(ctx, req.UserID, req.AssetID)
		if err != nil {
			return nil, nil, fmt.Errorf("read position snapshot: %w", err)
		}
		if pos == nil || req.Quantity.GreaterThan(pos.Quantity) {
			owned := "0"
			if pos != nil {
				owned = pos.Quantity.String()
			}
			return reject(ReasonInsufficientHoldings, "want %s, owned %s", req.Quantity, owned), nil, nil
		}
		return nil, pos, nil

	default:
		return reject(ReasonInvalidQuantity, "unknown side %q", req.Side), nil, nil
	}
}
