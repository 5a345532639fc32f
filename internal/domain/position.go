package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position 持仓领域模型（单用户、单资产）。
// 不变量：Quantity > 0。数量减到零的持仓应当删除，而不是留一条零记录。
type Position struct {
	UserID    string          `json:"user_id"`    // 用户 ID
	AssetID   string          `json:"asset_id"`   // 资产 ID
	Symbol    string          `json:"symbol"`     // 资产代码
	Quantity  decimal.Decimal `json:"quantity"`   // 持仓数量
	AvgCost   decimal.Decimal `json:"avg_cost"`   // 加权平均成本
	UpdatedAt time.Time       `json:"updated_at"` // 最近变更时间
}

// MarketValue 按给定现价计算持仓市值。
func (p *Position) MarketValue(price decimal.Decimal) decimal.Decimal {
	return price.Mul(p.Quantity)
}

// CostBasis 返回持仓总成本（平均成本 × 数量）。
func (p *Position) CostBasis() decimal.Decimal {
	return p.AvgCost.Mul(p.Quantity)
}

// UnrealizedPnL 按给定现价计算未实现盈亏。
func (p *Position) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	return p.MarketValue(price).Sub(p.CostBasis())
}

// MergeBuy 把一笔买入并入持仓：数量累加，平均成本按金额加权重算。
// qty 必须为正；返回合并后的持仓副本。
func (p Position) MergeBuy(qty, price decimal.Decimal, at time.Time) Position {
	oldCost := p.AvgCost.Mul(p.Quantity)
	newCost := price.Mul(qty)
	total := p.Quantity.Add(qty)
	p.AvgCost = oldCost.Add(newCost).Div(total)
	p.Quantity = total
	p.UpdatedAt = at
	return p
}

// ReduceSell 从持仓中扣减一笔卖出：只减数量，平均成本保持不变。
// 第二个返回值为 false 表示持仓被完全清空（调用方应删除记录而不是保存）。
func (p Position) ReduceSell(qty decimal.Decimal, at time.Time) (Position, bool) {
	p.Quantity = p.Quantity.Sub(qty)
	p.UpdatedAt = at
	return p, p.Quantity.IsPositive()
}
