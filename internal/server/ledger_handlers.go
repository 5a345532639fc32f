package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/tradesim/settle/internal/domain"
	"github.com/tradesim/settle/internal/ledger"
)

// Machine-readable rejection codes on the raw ledger surface. The remote
// ledger clients map these back to the sentinel errors.
const (
	codeInsufficientStock    = "insufficient_stock"
	codeInsufficientFunds    = "insufficient_funds"
	codeInsufficientHoldings = "insufficient_holdings"
	codeNotFound             = "not_found"
)

func ledgerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientStock):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": codeInsufficientStock})
	case errors.Is(err, ledger.ErrInsufficientFunds):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": codeInsufficientFunds})
	case errors.Is(err, ledger.ErrInsufficientHoldings):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": codeInsufficientHoldings})
	case errors.Is(err, ledger.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": codeNotFound})
	default:
		log.Errorf("ledger call: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

type deltaBody struct {
	Delta   decimal.Decimal `json:"delta"`
	IdemKey string          `json:"idem_key"`
}

func (s *Server) handleStockAvailable(c *gin.Context) {
	assetID := strings.TrimSpace(c.Param("assetID"))
	qty, err := s.stock.Available(c.Request.Context(), assetID)
	if err != nil {
		ledgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"asset_id": assetID, "available": qty})
}

func (s *Server) handleStockAdjust(c *gin.Context) {
	assetID := strings.TrimSpace(c.Param("assetID"))
	var body deltaBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delta payload"})
		return
	}
	if err := s.stock.Adjust(c.Request.Context(), assetID, body.Delta, body.IdemKey); err != nil {
		ledgerError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) handleLedgerWalletGet(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userID"))
	balance, err := s.wallet.Balance(c.Request.Context(), userID)
	if err != nil {
		ledgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "balance": balance})
}

type amountBody struct {
	Amount  decimal.Decimal `json:"amount"`
	IdemKey string          `json:"idem_key"`
}

func (s *Server) handleLedgerWalletCredit(c *gin.Context) {
	s.handleWalletDelta(c, true)
}

func (s *Server) handleLedgerWalletDebit(c *gin.Context) {
	s.handleWalletDelta(c, false)
}

func (s *Server) handleWalletDelta(c *gin.Context, credit bool) {
	userID := strings.TrimSpace(c.Param("userID"))
	var body amountBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount payload"})
		return
	}
	var err error
	if credit {
		err = s.wallet.Credit(c.Request.Context(), userID, body.Amount, body.IdemKey)
	} else {
		err = s.wallet.Debit(c.Request.Context(), userID, body.Amount, body.IdemKey)
	}
	if err != nil {
		ledgerError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) handleLedgerOrderAppend(c *gin.Context) {
	var rec domain.OrderRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order record"})
		return
	}
	if err := s.orders.Append(c.Request.Context(), rec); err != nil {
		ledgerError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) handleLedgerOrderGet(c *gin.Context) {
	orderID := strings.TrimSpace(c.Param("orderID"))
	rec, err := s.orders.Get(c.Request.Context(), orderID)
	if err != nil {
		ledgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleLedgerOrdersList(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userID"))
	limit := 200
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 2000 {
			limit = n
		}
	}
	items, err := s.orders.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		ledgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": items})
}

func (s *Server) handleLedgerPositionsList(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userID"))
	items, err := s.positions.ListByUser(c.Request.Context(), userID)
	if err != nil {
		ledgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": items})
}

func (s *Server) handleLedgerPositionGet(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userID"))
	assetID := strings.TrimSpace(c.Param("assetID"))
	pos, err := s.positions.Get(c.Request.Context(), userID, assetID)
	if err != nil {
		ledgerError(c, err)
		return
	}
	// nil position is a valid snapshot: the client maps it back to (nil, nil)
	c.JSON(http.StatusOK, gin.H{"position": pos})
}

type positionDeltaBody struct {
	UserID   string          `json:"user_id" binding:"required"`
	AssetID  string          `json:"asset_id" binding:"required"`
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	IdemKey  string          `json:"idem_key"`
}

func (s *Server) handleLedgerPositionBuy(c *gin.Context) {
	var body positionDeltaBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid position payload"})
		return
	}
	err := s.positions.ApplyBuy(c.Request.Context(),
		body.UserID, body.AssetID, body.Symbol, body.Quantity, body.Price, body.IdemKey)
	if err != nil {
		ledgerError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) handleLedgerPositionSell(c *gin.Context) {
	var body positionDeltaBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid position payload"})
		return
	}
	err := s.positions.ApplySell(c.Request.Context(),
		body.UserID, body.AssetID, body.Quantity, body.IdemKey)
	if err != nil {
		ledgerError(c, err)
		return
	}
	c.Status(http.StatusOK)
}
