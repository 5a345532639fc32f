package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Asset 可交易资产（股票或加密货币）。
// AvailableQuantity 不变量：永不为负；只由已完成的买入扣减、已完成的卖出或
// 冲正回补。扣减必须走库存账本的条件更新，不允许读-改-写。
type Asset struct {
	ID                string          `json:"id"`
	Symbol            string          `json:"symbol"`
	Name              string          `json:"name"`
	Class             AssetClass      `json:"class"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
	LastPrice         decimal.Decimal `json:"last_price"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Wallet 用户现金余额。
// 不变量：Balance 永不为负；会导致负余额的扣款在账本侧拒绝。
type Wallet struct {
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}
