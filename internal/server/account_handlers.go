package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradesim/settle/internal/domain"
	"github.com/tradesim/settle/internal/ledger"
)

func (s *Server) handleWalletGet(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userID"))
	w, err := s.wallet.GetWallet(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "wallet not found"})
			return
		}
		log.Errorf("get wallet: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read wallet failed"})
		return
	}
	c.JSON(http.StatusOK, w)
}

type fundingBody struct {
	Amount decimal.Decimal `json:"amount"`
	// IdemKey lets the client retry a deposit/withdraw without double-applying.
	IdemKey string `json:"idem_key"`
}

func (s *Server) handleWalletDeposit(c *gin.Context) {
	s.handleFunding(c, true)
}

func (s *Server) handleWalletWithdraw(c *gin.Context) {
	s.handleFunding(c, false)
}

func (s *Server) handleFunding(c *gin.Context, deposit bool) {
	userID := strings.TrimSpace(c.Param("userID"))
	var body fundingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid funding payload"})
		return
	}
	if !body.Amount.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be positive"})
		return
	}
	if body.IdemKey == "" {
		body.IdemKey = "funding:" + uuid.NewString()
	}

	ctx := c.Request.Context()
	var err error
	if deposit {
		if err = s.wallet.EnsureWallet(ctx, userID); err == nil {
			err = s.wallet.Credit(ctx, userID, body.Amount, body.IdemKey)
		}
	} else {
		err = s.wallet.Debit(ctx, userID, body.Amount, body.IdemKey)
	}
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient funds"})
		case errors.Is(err, ledger.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "wallet not found"})
		default:
			log.Errorf("wallet funding: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "funding failed"})
		}
		return
	}

	w, err := s.wallet.GetWallet(ctx, userID)
	if err != nil {
		log.Errorf("reread wallet: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read wallet failed"})
		return
	}
	c.JSON(http.StatusOK, w)
}

func (s *Server) handleOrdersList(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userID"))
	limit := 200
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 2000 {
			limit = n
		}
	}
	items, err := s.orders.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		log.Errorf("list orders: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list orders failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "orders": items})
}

// handlePortfolio returns the user's positions plus wallet balance and a
// total valued at catalog last prices.
func (s *Server) handlePortfolio(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userID"))
	ctx := c.Request.Context()

	positions, err := s.positions.ListByUser(ctx, userID)
	if err != nil {
		log.Errorf("list positions: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list positions failed"})
		return
	}

	balance := decimal.Zero
	if w, err := s.wallet.GetWallet(ctx, userID); err == nil {
		balance = w.Balance
	}

	total := balance
	type holding struct {
		domain.Position
		LastPrice   decimal.Decimal `json:"last_price"`
		MarketValue decimal.Decimal `json:"market_value"`
	}
	holdings := make([]holding, 0, len(positions))
	for _, p := range positions {
		h := holding{Position: p}
		if a, err := s.stock.GetAsset(ctx, p.AssetID); err == nil {
			h.LastPrice = a.LastPrice
			h.MarketValue = p.MarketValue(a.LastPrice)
			total = total.Add(h.MarketValue)
		}
		holdings = append(holdings, h)
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":      userID,
		"cash_balance": balance,
		"holdings":     holdings,
		"total_value":  total,
	})
}

func (s *Server) handleAssetsList(c *gin.Context) {
	const cacheKey = "catalog"
	if items, ok := s.assetCache.Get(cacheKey); ok {
		c.JSON(http.StatusOK, gin.H{"assets": items})
		return
	}
	items, err := s.stock.ListAssets(c.Request.Context())
	if err != nil {
		log.Errorf("list assets: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list assets failed"})
		return
	}
	s.assetCache.Set(cacheKey, items, 0)
	c.JSON(http.StatusOK, gin.H{"assets": items})
}

func (s *Server) handleAssetGet(c *gin.Context) {
	assetID := strings.TrimSpace(c.Param("assetID"))
	a, err := s.stock.GetAsset(c.Request.Context(), assetID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "asset not found"})
			return
		}
		log.Errorf("get asset: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read asset failed"})
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) handleAssetUpsert(c *gin.Context) {
	assetID := strings.TrimSpace(c.Param("assetID"))
	var a domain.Asset
	if err := c.ShouldBindJSON(&a); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid asset payload"})
		return
	}
	a.ID = assetID
	if a.Symbol == "" || (a.Class != domain.AssetClassEquity && a.Class != domain.AssetClassCrypto) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol and class (equity|crypto) are required"})
		return
	}
	if a.AvailableQuantity.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "available_quantity must not be negative"})
		return
	}
	if err := s.stock.UpsertAsset(c.Request.Context(), a); err != nil {
		log.Errorf("upsert asset: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upsert asset failed"})
		return
	}
	s.assetCache.Invalidate()
	c.JSON(http.StatusOK, a)
}
