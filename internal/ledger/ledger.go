// Package ledger 定义结算核心消费的四个账本接口。
//
// 每个账本独占一种资源（库存 / 钱包 / 订单日志 / 持仓），只提供单资源原子性：
// 条件更新（CAS 或带下限的原子增减）在账本侧完成，编排层不允许读-改-写。
// 所有变更调用都携带幂等键：同一个键的重试在账本侧去重，至多生效一次。
package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/tradesim/settle/internal/domain"
)

// StockLedger 库存账本：资产的可交易数量。
type StockLedger interface {
	// Available 读取资产当前可交易数量的快照。
	Available(ctx context.Context, assetID string) (decimal.Decimal, error)

	// Adjust 按 delta 原子调整可交易数量（正数回补，负数扣减）。
	// 扣减带下限：结果会为负时返回 ErrInsufficientStock，不落地。
	Adjust(ctx context.Context, assetID string, delta decimal.Decimal, idemKey string) error
}

// WalletLedger 钱包账本：用户现金余额。
type WalletLedger interface {
	// Balance 读取用户余额快照。
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)

	// Credit 入账。amount 必须为正。
	Credit(ctx context.Context, userID string, amount decimal.Decimal, idemKey string) error

	// Debit 出账。余额不足时返回 ErrInsufficientFunds，不落地。
	Debit(ctx context.Context, userID string, amount decimal.Decimal, idemKey string) error
}

// OrderLog 订单日志：append-only，按记录 ID 去重。
type OrderLog interface {
	// Append 追加一条订单记录。同一 ID 重复追加是幂等的。
	Append(ctx context.Context, rec domain.OrderRecord) error

	// Get 按 ID 读取订单记录。
	Get(ctx context.Context, orderID string) (*domain.OrderRecord, error)

	// ListByUser 按用户列出订单记录（新到旧）。
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.OrderRecord, error)
}

// PositionStore 持仓存储：单用户单资产持仓的合并与扣减。
type PositionStore interface {
	// Get 读取持仓快照；无持仓时返回 (nil, nil)。
	Get(ctx context.Context, userID, assetID string) (*domain.Position, error)

	// ApplyBuy 合并一笔买入：数量累加，平均成本按金额加权。
	ApplyBuy(ctx context.Context, userID, assetID, symbol string, qty, price decimal.Decimal, idemKey string) error

	// ApplySell 扣减一笔卖出：数量减到零时删除记录。
	// 持仓不足时返回 ErrInsufficientHoldings，不落地。
	ApplySell(ctx context.Context, userID, assetID string, qty decimal.Decimal, idemKey string) error

	// ListByUser 列出用户的全部持仓。
	ListByUser(ctx context.Context, userID string) ([]domain.Position, error)
}
