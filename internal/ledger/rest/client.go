// Package rest implements the four ledger interfaces against a remote ledger
// service speaking the /api/ledger surface. The orchestrator is constructed
// against the interfaces and cannot tell this binding apart from the in-process
// SQLite one.
package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/tradesim/settle/internal/ledger"
)

// Client 远端账本服务的 HTTP 客户端。
//
// 注意：这里刻意不开 resty 的自动重试。变更调用的重试语义属于编排层
// （正向失败转补偿、补偿才有界重试），传输层自作主张重发会模糊这条边界；
// 幂等键只兜底网络层不可避免的重复投递。
type Client struct {
	http *resty.Client
}

// New 创建客户端。timeout 是单次账本调用的传输超时，应不大于编排层的步骤超时。
func New(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: c}
}

// Stock 返回库存账本绑定。
func (c *Client) Stock() ledger.StockLedger { return &stockClient{c} }

// Wallet 返回钱包账本绑定。
func (c *Client) Wallet() ledger.WalletLedger { return &walletClient{c} }

// Orders 返回订单日志绑定。
func (c *Client) Orders() ledger.OrderLog { return &orderClient{c} }

// Positions 返回持仓存储绑定。
func (c *Client) Positions() ledger.PositionStore { return &positionClient{c} }

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// decodeError 把账本服务的机器可读错误码映射回哨兵错误，
// 让编排层的 errors.Is 判断对两种绑定一视同仁。
func decodeError(resp *resty.Response) error {
	var ae apiError
	if err := json.Unmarshal(resp.Body(), &ae); err == nil && ae.Code != "" {
		var sentinel error
		switch ae.Code {
		case "insufficient_stock":
			sentinel = ledger.ErrInsufficientStock
		case "insufficient_funds":
			sentinel = ledger.ErrInsufficientFunds
		case "insufficient_holdings":
			sentinel = ledger.ErrInsufficientHoldings
		case "not_found":
			sentinel = ledger.ErrNotFound
		}
		if sentinel != nil {
			if ae.Error != "" {
				return errors.Wrap(sentinel, ae.Error)
			}
			return sentinel
		}
	}
	if resp.StatusCode() == http.StatusNotFound {
		return ledger.ErrNotFound
	}
	return errors.Errorf("ledger service: status %d: %s", resp.StatusCode(), strings.TrimSpace(string(resp.Body())))
}

// do 执行一次请求并统一错误处理。
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	if resp.IsError() {
		return errors.Wrapf(decodeError(resp), "%s %s", method, path)
	}
	return nil
}
