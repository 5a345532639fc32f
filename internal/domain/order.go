package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus 订单记录状态
type OrderStatus string

const (
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
)

// OrderKind 订单记录类型。
// 订单日志是 append-only 的：冲正不修改原记录，而是追加一条 kind=reversal
// 的新记录并通过 ReversalOf 链接回原记录。
type OrderKind string

const (
	OrderKindTrade    OrderKind = "trade"
	OrderKindReversal OrderKind = "reversal"
)

// OrderRecord 已执行交易的记录。写入后不可变。
type OrderRecord struct {
	ID         string          `json:"id"`                    // 订单 ID
	TradeID    string          `json:"trade_id"`              // 产生本记录的交易请求 ID
	UserID     string          `json:"user_id"`               // 用户 ID
	AssetID    string          `json:"asset_id"`              // 资产 ID
	Symbol     string          `json:"symbol"`                // 资产代码
	Side       Side            `json:"side"`                  // 交易方向
	Quantity   decimal.Decimal `json:"quantity"`              // 成交数量
	Price      decimal.Decimal `json:"price"`                 // 成交单价
	Total      decimal.Decimal `json:"total"`                 // 成交总额
	Status     OrderStatus     `json:"status"`                // 状态（completed 不会回退）
	Kind       OrderKind       `json:"kind"`                  // trade | reversal
	ReversalOf string          `json:"reversal_of,omitempty"` // kind=reversal 时指向被冲正的订单 ID
	CreatedAt  time.Time       `json:"created_at"`            // 写入时间
}

// IsReversal 是否为冲正记录
func (o *OrderRecord) IsReversal() bool {
	return o.Kind == OrderKindReversal
}

// Reversal 生成本订单的冲正记录。原记录保持不变。
func (o *OrderRecord) Reversal(id string, at time.Time) OrderRecord {
	return OrderRecord{
		ID:         id,
		TradeID:    o.TradeID,
		UserID:     o.UserID,
		AssetID:    o.AssetID,
		Symbol:     o.Symbol,
		Side:       o.Side,
		Quantity:   o.Quantity,
		Price:      o.Price,
		Total:      o.Total,
		Status:     OrderStatusCompleted,
		Kind:       OrderKindReversal,
		ReversalOf: o.ID,
		CreatedAt:  at,
	}
}
