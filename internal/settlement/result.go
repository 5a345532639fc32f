package settlement

// Status 结算终态
type Status string

const (
	// StatusSettled 四步全部提交成功。
	StatusSettled Status = "settled"
	// StatusRejected 前置校验失败，零副作用，用户修正后可安全重试。
	StatusRejected Status = "rejected"
	// StatusReverted 某一步提交失败，已提交步骤全部补偿成功。
	StatusReverted Status = "reverted"
	// StatusNeedsReconciliation 补偿本身失败，需要人工对账。
	StatusNeedsReconciliation Status = "needs_reconciliation"
)

// RejectReason 拒绝原因
type RejectReason string

const (
	ReasonInsufficientFunds    RejectReason = "InsufficientFunds"
	ReasonInsufficientStock    RejectReason = "InsufficientStock"
	ReasonInsufficientHoldings RejectReason = "InsufficientHoldings"
	ReasonInvalidQuantity      RejectReason = "InvalidQuantity"
	ReasonUnsupportedPayment   RejectReason = "UnsupportedPayment"
)

// State 单笔交易的结算状态机。
// Validating → Committing → {Settled | Compensating → {Reverted | StuckNeedsReconciliation}}
type State string

const (
	StateValidating   State = "validating"
	StateCommitting   State = "committing"
	StateCompensating State = "compensating"
	StateSettled      State = "settled"
	StateRejected     State = "rejected"
	StateReverted     State = "reverted"
	StateStuck        State = "stuck_needs_reconciliation"
)

// FailedCompensation 一次失败的补偿：哪一步、最后一次错误。
type FailedCompensation struct {
	Step   string `json:"step"`
	Reason string `json:"reason"`
}

// Result 结算结果。Status 为 settled 时 OrderID 必填；
// rejected / reverted 时 Reason 说明原因；
// needs_reconciliation 时携带已提交步骤与补偿失败明细，供人工对账。
type Result struct {
	TradeID             string               `json:"trade_id"`
	Status              Status               `json:"status"`
	OrderID             string               `json:"order_id,omitempty"`
	Reason              string               `json:"reason,omitempty"`
	CommittedSteps      []string             `json:"committed_steps,omitempty"`
	FailedCompensations []FailedCompensation `json:"failed_compensations,omitempty"`
}

// IsTerminalFailure 是否为需要运维介入的终态。
func (r *Result) IsTerminalFailure() bool {
	return r.Status == StatusNeedsReconciliation
}
