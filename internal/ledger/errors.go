package ledger

import "errors"

// 账本侧的业务拒绝。编排层据此区分“可安全重试的拒绝”与“需要补偿的故障”。
var (
	// ErrInsufficientStock 库存不足：扣减会使可交易数量为负。
	ErrInsufficientStock = errors.New("ledger: insufficient stock")

	// ErrInsufficientFunds 余额不足：出账会使余额为负。
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrInsufficientHoldings 持仓不足：卖出数量超过持有数量。
	ErrInsufficientHoldings = errors.New("ledger: insufficient holdings")

	// ErrNotFound 目标记录不存在（资产 / 钱包 / 订单）。
	ErrNotFound = errors.New("ledger: not found")
)

// IsRejection 判断错误是否为账本侧业务拒绝（而非网络/存储故障）。
// 拒绝意味着该调用确定没有落地，无需补偿。
func IsRejection(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInsufficientHoldings) ||
		errors.Is(err, ErrNotFound)
}
