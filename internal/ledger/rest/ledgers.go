package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/tradesim/settle/internal/domain"
	"github.com/tradesim/settle/internal/ledger"
)

type stockClient struct{ c *Client }

func (s *stockClient) Available(ctx context.Context, assetID string) (decimal.Decimal, error) {
	var out struct {
		Available decimal.Decimal `json:"available"`
	}
	path := fmt.Sprintf("/api/ledger/stock/%s", url.PathEscape(assetID))
	if err := s.c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return decimal.Zero, err
	}
	return out.Available, nil
}

func (s *stockClient) Adjust(ctx context.Context, assetID string, delta decimal.Decimal, idemKey string) error {
	path := fmt.Sprintf("/api/ledger/stock/%s/adjust", url.PathEscape(assetID))
	body := map[string]any{"delta": delta, "idem_key": idemKey}
	return s.c.do(ctx, http.MethodPost, path, body, nil)
}

type walletClient struct{ c *Client }

func (w *walletClient) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var out struct {
		Balance decimal.Decimal `json:"balance"`
	}
	path := fmt.Sprintf("/api/ledger/wallets/%s", url.PathEscape(userID))
	if err := w.c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return decimal.Zero, err
	}
	return out.Balance, nil
}

func (w *walletClient) Credit(ctx context.Context, userID string, amount decimal.Decimal, idemKey string) error {
	path := fmt.Sprintf("/api/ledger/wallets/%s/credit", url.PathEscape(userID))
	body := map[string]any{"amount": amount, "idem_key": idemKey}
	return w.c.do(ctx, http.MethodPost, path, body, nil)
}

func (w *walletClient) Debit(ctx context.Context, userID string, amount decimal.Decimal, idemKey string) error {
	path := fmt.Sprintf("/api/ledger/wallets/%s/debit", url.PathEscape(userID))
	body := map[string]any{"amount": amount, "idem_key": idemKey}
	return w.c.do(ctx, http.MethodPost, path, body, nil)
}

type orderClient struct{ c *Client }

func (o *orderClient) Append(ctx context.Context, rec domain.OrderRecord) error {
	return o.c.do(ctx, http.MethodPost, "/api/ledger/orders", rec, nil)
}

func (o *orderClient) Get(ctx context.Context, orderID string) (*domain.OrderRecord, error) {
	var out domain.OrderRecord
	path := fmt.Sprintf("/api/ledger/orders/%s", url.PathEscape(orderID))
	if err := o.c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (o *orderClient) ListByUser(ctx context.Context, userID string, limit int) ([]domain.OrderRecord, error) {
	var out struct {
		Orders []domain.OrderRecord `json:"orders"`
	}
	path := fmt.Sprintf("/api/ledger/users/%s/orders?limit=%d", url.PathEscape(userID), limit)
	if err := o.c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Orders, nil
}

type positionClient struct{ c *Client }

func (p *positionClient) Get(ctx context.Context, userID, assetID string) (*domain.Position, error) {
	var out struct {
		Position *domain.Position `json:"position"`
	}
	path := fmt.Sprintf("/api/ledger/users/%s/positions/%s", url.PathEscape(userID), url.PathEscape(assetID))
	if err := p.c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Position, nil
}

func (p *positionClient) ApplyBuy(ctx context.Context, userID, assetID, symbol string, qty, price decimal.Decimal, idemKey string) error {
	body := map[string]any{
		"user_id":  userID,
		"asset_id": assetID,
		"symbol":   symbol,
		"quantity": qty,
		"price":    price,
		"idem_key": idemKey,
	}
	return p.c.do(ctx, http.MethodPost, "/api/ledger/positions/buy", body, nil)
}

func (p *positionClient) ApplySell(ctx context.Context, userID, assetID string, qty decimal.Decimal, idemKey string) error {
	body := map[string]any{
		"user_id":  userID,
		"asset_id": assetID,
		"quantity": qty,
		"idem_key": idemKey,
	}
	return p.c.do(ctx, http.MethodPost, "/api/ledger/positions/sell", body, nil)
}

func (p *positionClient) ListByUser(ctx context.Context, userID string) ([]domain.Position, error) {
	var out struct {
		Positions []domain.Position `json:"positions"`
	}
	path := fmt.Sprintf("/api/ledger/users/%s/positions", url.PathEscape(userID))
	if err := p.c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Positions, nil
}

// 编译期接口符合性断言
var (
	_ ledger.StockLedger   = (*stockClient)(nil)
	_ ledger.WalletLedger  = (*walletClient)(nil)
	_ ledger.OrderLog      = (*orderClient)(nil)
	_ ledger.PositionStore = (*positionClient)(nil)
)
