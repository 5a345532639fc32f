// Package server exposes the settlement and ledger surface over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/tradesim/settle/internal/domain"
	"github.com/tradesim/settle/internal/ledger/sqlitestore"
	"github.com/tradesim/settle/internal/recon"
	"github.com/tradesim/settle/internal/settlement"
	"github.com/tradesim/settle/internal/stream"
	"github.com/tradesim/settle/pkg/cache"
	"github.com/tradesim/settle/pkg/ratelimit"
)

var log = logrus.WithField("component", "server")

// Server wires the orchestrator, the SQLite ledgers and the supporting
// services behind one router.
type Server struct {
	orch      *settlement.Orchestrator
	stock     *sqlitestore.StockLedger
	wallet    *sqlitestore.WalletLedger
	orders    *sqlitestore.OrderLog
	positions *sqlitestore.PositionStore
	recon     *recon.Queue
	hub       *stream.Hub

	assetCache   *cache.TTLCache[string, []domain.Asset]
	tradeLimiter *ratelimit.PerKey
}

func New(orch *settlement.Orchestrator,
	stock *sqlitestore.StockLedger,
	wallet *sqlitestore.WalletLedger,
	orders *sqlitestore.OrderLog,
	positions *sqlitestore.PositionStore,
	reconQueue *recon.Queue,
	hub *stream.Hub,
) *Server {
	return &Server{
		orch:       orch,
		stock:      stock,
		wallet:     wallet,
		orders:     orders,
		positions:  positions,
		recon:      reconQueue,
		hub:        hub,
		assetCache: cache.NewTTLCache[string, []domain.Asset](2 * time.Second),
		// 单用户每秒 5 笔、突发 10 笔；挡住脚本连点，不挡正常下单
		tradeLimiter: ratelimit.NewPerKey(10, 5),
	}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api")

	// settlement surface
	api.POST("/trades", s.handleExecuteTrade)

	// user-facing reads + wallet funding
	users := api.Group("/users/:userID")
	users.GET("/wallet", s.handleWalletGet)
	users.POST("/wallet/deposit", s.handleWalletDeposit)
	users.POST("/wallet/withdraw", s.handleWalletWithdraw)
	users.GET("/orders", s.handleOrdersList)
	users.GET("/portfolio", s.handlePortfolio)

	// asset catalog (admin writes, user reads)
	api.GET("/assets", s.handleAssetsList)
	api.GET("/assets/:assetID", s.handleAssetGet)
	api.PUT("/assets/:assetID", s.handleAssetUpsert)

	// raw ledger surface consumed by the remote ledger clients
	lg := api.Group("/ledger")
	lg.GET("/stock/:assetID", s.handleStockAvailable)
	lg.POST("/stock/:assetID/adjust", s.handleStockAdjust)
	lg.GET("/wallets/:userID", s.handleLedgerWalletGet)
	lg.POST("/wallets/:userID/credit", s.handleLedgerWalletCredit)
	lg.POST("/wallets/:userID/debit", s.handleLedgerWalletDebit)
	lg.POST("/orders", s.handleLedgerOrderAppend)
	lg.GET("/orders/:orderID", s.handleLedgerOrderGet)
	lg.GET("/users/:userID/orders", s.handleLedgerOrdersList)
	lg.GET("/users/:userID/positions", s.handleLedgerPositionsList)
	lg.GET("/users/:userID/positions/:assetID", s.handleLedgerPositionGet)
	lg.POST("/positions/buy", s.handleLedgerPositionBuy)
	lg.POST("/positions/sell", s.handleLedgerPositionSell)

	// operator surface
	api.GET("/recon", s.handleReconList)
	api.GET("/recon/:itemID", s.handleReconGet)
	api.POST("/recon/:itemID/resolve", s.handleReconResolve)

	// settlement event stream
	r.GET("/ws", s.handleWS)

	return r
}
