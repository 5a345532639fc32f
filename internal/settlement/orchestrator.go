// Package settlement 实现交易结算编排。
//
// 背后的存储只有单资源原子性，没有跨资源事务：一笔买入/卖出要按固定顺序
// 对四个账本各发一次独立调用。这里把它显式建模为 saga——固定的正向路径，
// 加上每一步显式的反向补偿。绝不假设底层存储有 all-or-nothing 语义。
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tradesim/settle/internal/domain"
	"github.com/tradesim/settle/internal/ledger"
	"github.com/tradesim/settle/internal/metrics"
	"github.com/tradesim/settle/internal/risk"
)

var log = logrus.WithField("component", "settlement")

// StuckRecord 一笔补偿失败、需要人工对账的结算。
type StuckRecord struct {
	TradeID             string               `json:"trade_id"`
	OrderID             string               `json:"order_id,omitempty"`
	UserID              string               `json:"user_id"`
	AssetID             string               `json:"asset_id"`
	Symbol              string               `json:"symbol"`
	Side                domain.Side          `json:"side"`
	Quantity            decimal.Decimal      `json:"quantity"`
	UnitPrice           decimal.Decimal      `json:"unit_price"`
	CommittedSteps      []string             `json:"committed_steps"`
	FailedCompensations []FailedCompensation `json:"failed_compensations"`
	CreatedAt           time.Time            `json:"created_at"`
}

// ReconSink 接收卡死结算的对账队列。
type ReconSink interface {
	Enqueue(ctx context.Context, rec StuckRecord) error
}

// EventSink 结算结果的事件出口（推给 UI 刷新钱包/持仓视图）。
type EventSink interface {
	PublishSettlement(res *Result)
}

// Options 编排器的可选协作方。全部可为零值：缺省时对应能力关闭。
type Options struct {
	Retry       RetryPolicy          // 补偿重试策略；零值用 DefaultRetryPolicy
	StepTimeout time.Duration        // 单步账本调用超时；零值 5s
	Breaker     *risk.CircuitBreaker // 断路器（可 nil）
	Dedup       *InFlightDeduper     // 重复提交去重（可 nil）
	Recon       ReconSink            // 对账队列（可 nil：只记日志）
	Events      EventSink            // 事件出口（可 nil）
}

// Orchestrator 结算编排器。调用之间无状态：全部持久状态在账本侧，
// 单次 Execute 需要的值都由请求与局部变量携带。
type Orchestrator struct {
	stock     ledger.StockLedger
	orders    ledger.OrderLog
	positions ledger.PositionStore
	wallet    ledger.WalletLedger

	retry       RetryPolicy
	stepTimeout time.Duration
	breaker     *risk.CircuitBreaker
	dedup       *InFlightDeduper
	recon       ReconSink
	events      EventSink
}

// New 创建编排器。四个账本为必要依赖。
func New(stock ledger.StockLedger, orders ledger.OrderLog, positions ledger.PositionStore, wallet ledger.WalletLedger, opts Options) *Orchestrator {
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = 5 * time.Second
	}
	return &Orchestrator{
		stock:       stock,
		orders:      orders,
		positions:   positions,
		wallet:      wallet,
		retry:       opts.Retry,
		stepTimeout: opts.StepTimeout,
		breaker:     opts.Breaker,
		dedup:       opts.Dedup,
		recon:       opts.Recon,
		events:      opts.Events,
	}
}

// Execute 结算一笔交易请求，产出一个终态结果。
//
// 返回 error 仅表示请求未进入结算（断路器打开 / 重复提交 / 校验快照读取
// 失败），此时零副作用。进入结算后的一切结局都在 Result 里表达。
func (o *Orchestrator) Execute(ctx context.Context, req *domain.TradeRequest) (*Result, error) {
	if req.TradeID == "" {
		req.TradeID = uuid.NewString()
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = time.Now()
	}

	if err := o.breaker.Allow(); err != nil {
		return nil, err
	}
	if o.dedup != nil {
		if err := o.dedup.TryAcquire(req.TradeID); err != nil {
			return nil, fmt.Errorf("trade %s: %w", req.TradeID, err)
		}
		defer o.dedup.Release(req.TradeID)
	}

	l := log.WithFields(logrus.Fields{
		"trade":  req.TradeID,
		"user":   req.UserID,
		"symbol": req.Symbol,
		"side":   req.Side,
		"qty":    req.Quantity.String(),
		"price":  req.UnitPrice.String(),
	})

	// Validating：只读快照，零副作用
	l.Debugf("state=%s", StateValidating)
	vctx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	rej, sellPos, err := o.validate(vctx, req)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("validate trade %s: %w", req.TradeID, err)
	}
	if rej != nil {
		metrics.TradesRejected.Add(1)
		l.Infof("rejected: %v", rej)
		return o.finish(&Result{
			TradeID: req.TradeID,
			Status:  StatusRejected,
			Reason:  string(rej.reason),
		}), nil
	}

	var steps []sagaStep
	var orderID string
	if req.IsBuy() {
		steps, orderID = o.buildBuySteps(req)
	} else {
		priorAvgCost := req.UnitPrice
		if sellPos != nil {
			priorAvgCost = sellPos.AvgCost
		}
		steps, orderID = o.buildSellSteps(req, priorAvgCost)
	}

	// Committing：按固定顺序串行提交。一旦第一步发出，这笔交易就不再可取消
	// ——调用方的 cancel 在这里被刻意剥离，出口只有 Settled 或补偿路径。
	commitCtx := context.WithoutCancel(ctx)
	l.Debugf("state=%s", StateCommitting)

	committed := make([]sagaStep, 0, len(steps))
	var failedStep string
	var stepErr error
	for _, st := range steps {
		sctx, cancel := context.WithTimeout(commitCtx, o.stepTimeout)
		err := st.apply(sctx)
		cancel()
		if err != nil {
			failedStep = st.name
			stepErr = err
			break
		}
		committed = append(committed, st)
	}

	if stepErr == nil {
		o.breaker.OnSuccess()
		metrics.TradesSettled.Add(1)
		l.Infof("settled: order=%s total=%s", orderID, req.Total())
		return o.finish(&Result{
			TradeID: req.TradeID,
			Status:  StatusSettled,
			OrderID: orderID,
		}), nil
	}

	// Compensating：逆序补偿已提交的步骤。
	// 超时不代表账本没落地——补偿无条件发出，靠幂等键保证重复安全。
	l.Warnf("state=%s: step %s failed: %v (committed=%v)",
		StateCompensating, failedStep, stepErr, stepNames(committed))

	failures := o.compensate(commitCtx, committed)

	if len(failures) == 0 {
		if len(committed) == 0 && ledger.IsRejection(stepErr) {
			// 第一步就被账本的条件更新拒绝（过期快照输掉了竞态）：
			// 零副作用，对用户而言等同前置校验拒绝
			metrics.TradesRejected.Add(1)
			return o.finish(&Result{
				TradeID: req.TradeID,
				Status:  StatusRejected,
				Reason:  string(ledgerReason(stepErr)),
			}), nil
		}
		o.breaker.OnError()
		metrics.TradesReverted.Add(1)
		l.Infof("reverted: all %d committed steps compensated", len(committed))
		return o.finish(&Result{
			TradeID:        req.TradeID,
			Status:         StatusReverted,
			Reason:         fmt.Sprintf("step %s failed: %v", failedStep, stepErr),
			CommittedSteps: stepNames(committed),
		}), nil
	}

	// 补偿失败：致命，进入人工对账。绝不静默重试，绝不谎报成功。
	o.breaker.OnError()
	o.breaker.RecordStuck()
	metrics.TradesStuck.Add(1)

	// 订单记录没写成时不往外带悬空的 orderID
	if !stepCommitted(committed, StepOrderAppend) {
		orderID = ""
	}
	res := &Result{
		TradeID:             req.TradeID,
		Status:              StatusNeedsReconciliation,
		OrderID:             orderID,
		Reason:              fmt.Sprintf("step %s failed: %v", failedStep, stepErr),
		CommittedSteps:      stepNames(committed),
		FailedCompensations: failures,
	}
	l.Errorf("state=%s: committed=%v failed_compensations=%v",
		StateStuck, res.CommittedSteps, failures)

	o.enqueueStuck(commitCtx, req, res)
	return o.finish(res), nil
}

// compensate 逆序补偿已提交步骤，每步按策略有界重试。返回补偿失败明细。
func (o *Orchestrator) compensate(ctx context.Context, committed []sagaStep) []FailedCompensation {
	var failures []FailedCompensation
	for i := len(committed) - 1; i >= 0; i-- {
		st := committed[i]
		attempt := 0
		err := o.retry.retry(ctx, func(c context.Context) error {
			if attempt > 0 {
				metrics.CompensationRetries.Add(1)
			}
			attempt++
			sctx, cancel := context.WithTimeout(c, o.stepTimeout)
			defer cancel()
			return st.compensate(sctx)
		})
		if err != nil {
			metrics.CompensationFailures.Add(1)
			failures = append(failures, FailedCompensation{Step: st.name, Reason: err.Error()})
			continue
		}
		if st.name == StepOrderAppend {
			metrics.ReversalRecords.Add(1)
		}
	}
	return failures
}

func (o *Orchestrator) enqueueStuck(ctx context.Context, req *domain.TradeRequest, res *Result) {
	rec := StuckRecord{
		TradeID:             req.TradeID,
		OrderID:             res.OrderID,
		UserID:              req.UserID,
		AssetID:             req.AssetID,
		Symbol:              req.Symbol,
		Side:                req.Side,
		Quantity:            req.Quantity,
		UnitPrice:           req.UnitPrice,
		CommittedSteps:      res.CommittedSteps,
		FailedCompensations: res.FailedCompensations,
		CreatedAt:           time.Now(),
	}
	if o.recon == nil {
		log.Errorf("no recon sink configured, stuck trade only logged: %+v", rec)
		return
	}
	if err := o.recon.Enqueue(ctx, rec); err != nil {
		// 入队失败只能靠日志兜底；结果本身已经带全量明细
		log.Errorf("enqueue stuck trade %s: %v", req.TradeID, err)
		return
	}
	metrics.ReconEnqueued.Add(1)
}

// finish 发布结算事件并返回结果。
func (o *Orchestrator) finish(res *Result) *Result {
	if o.events != nil {
		o.events.PublishSettlement(res)
	}
	return res
}

func stepCommitted(steps []sagaStep, name string) bool {
	for _, st := range steps {
		if st.name == name {
			return true
		}
	}
	return false
}

func stepNames(steps []sagaStep) []string {
	names := make([]string, 0, len(steps))
	for _, st := range steps {
		names = append(names, st.name)
	}
	return names
}

// ledgerReason 把账本侧拒绝映射为对外的拒绝原因。
func ledgerReason(err error) RejectReason {
	switch {
	case errors.Is(err, ledger.ErrInsufficientStock):
		return ReasonInsufficientStock
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return ReasonInsufficientFunds
	case errors.Is(err, ledger.ErrInsufficientHoldings):
		return ReasonInsufficientHoldings
	default:
		return ReasonInvalidQuantity
	}
}
