package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/tradesim/settle/internal/domain"
	"github.com/tradesim/settle/internal/risk"
	"github.com/tradesim/settle/internal/settlement"
)

// TradeRequestBody is the checkout/sell payload from the browser client.
type TradeRequestBody struct {
	TradeID       string          `json:"trade_id"` // optional; client-supplied for dedup
	UserID        string          `json:"user_id" binding:"required"`
	AssetID       string          `json:"asset_id" binding:"required"`
	Side          string          `json:"side" binding:"required"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	PaymentMethod string          `json:"payment_method"`
}

func (s *Server) handleExecuteTrade(c *gin.Context) {
	var body TradeRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid trade payload"})
		return
	}

	if !s.tradeLimiter.Allow(body.UserID) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many trades, slow down"})
		return
	}

	// resolve class/symbol from the catalog; the ledger owns asset identity
	asset, err := s.stock.GetAsset(c.Request.Context(), body.AssetID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown asset: " + body.AssetID})
		return
	}

	payment := domain.PaymentMethod(body.PaymentMethod)
	if payment == "" {
		payment = domain.PaymentWallet
	}

	req := &domain.TradeRequest{
		TradeID:    body.TradeID,
		UserID:     body.UserID,
		AssetID:    asset.ID,
		Symbol:     asset.Symbol,
		AssetClass: asset.Class,
		Side:       domain.Side(body.Side),
		Quantity:   body.Quantity,
		UnitPrice:  body.UnitPrice,
		Payment:    payment,
	}

	res, err := s.orch.Execute(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, risk.ErrCircuitBreakerOpen):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "settlement halted, try again later"})
		case errors.Is(err, settlement.ErrDuplicateInFlight):
			c.JSON(http.StatusConflict, gin.H{"error": "trade already in flight"})
		default:
			log.Errorf("execute trade: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "trade could not be started"})
		}
		return
	}

	s.assetCache.Invalidate()
	c.JSON(statusCode(res), res)
}

// statusCode maps a settlement outcome to an HTTP status. The body always
// carries the full result; the code is for clients that only look at status
// lines.
func statusCode(res *settlement.Result) int {
	switch res.Status {
	case settlement.StatusSettled:
		return http.StatusOK
	case settlement.StatusRejected:
		return http.StatusUnprocessableEntity
	case settlement.StatusReverted:
		return http.StatusConflict
	case settlement.StatusNeedsReconciliation:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
