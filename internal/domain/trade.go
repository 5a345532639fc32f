package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerScale 账本记账精度（小数位数）。数量与金额最细到 1e-6，
// 更细的精度在校验阶段拒绝，而不是留到落库时被截断。
const LedgerScale int32 = 6

// Side 交易方向
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// PaymentMethod 支付方式
type PaymentMethod string

const (
	PaymentWallet PaymentMethod = "wallet"
	PaymentCard   PaymentMethod = "card" // 卡支付由外部收款方处理，结算核心不落地
)

// AssetClass 资产类别。股票只允许整数数量，加密货币允许小数数量。
type AssetClass string

const (
	AssetClassEquity AssetClass = "equity"
	AssetClassCrypto AssetClass = "crypto"
)

// TradeRequest 交易请求领域模型。
// 提交后不可变：数量与价格在提交时刻快照，结算过程中不会重读。
type TradeRequest struct {
	TradeID     string          // 请求唯一 ID（幂等键的派生根）
	UserID      string          // 用户 ID
	AssetID     string          // 资产 ID
	Symbol      string          // 资产代码
	AssetClass  AssetClass      // 资产类别
	Side        Side            // 交易方向
	Quantity    decimal.Decimal // 数量（必须为正；股票必须为整数）
	UnitPrice   decimal.Decimal // 提交时刻的单价快照
	Payment     PaymentMethod   // 支付方式
	SubmittedAt time.Time       // 提交时间
}

// Total 返回订单总金额（单价 × 数量）。
func (r *TradeRequest) Total() decimal.Decimal {
	return r.UnitPrice.Mul(r.Quantity)
}

// IsBuy 是否为买入请求
func (r *TradeRequest) IsBuy() bool {
	return r.Side == SideBuy
}

// QuantityIsIntegral 数量是否为整数（股票类资产的前置校验用）
func (r *TradeRequest) QuantityIsIntegral() bool {
	return r.Quantity.Equal(r.Quantity.Truncate(0))
}
