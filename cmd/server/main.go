package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tradesim/settle/internal/ledger/sqlitestore"
	"github.com/tradesim/settle/internal/metrics"
	"github.com/tradesim/settle/internal/recon"
	"github.com/tradesim/settle/internal/risk"
	"github.com/tradesim/settle/internal/server"
	"github.com/tradesim/settle/internal/settlement"
	"github.com/tradesim/settle/internal/stream"
	"github.com/tradesim/settle/pkg/config"
	"github.com/tradesim/settle/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "YAML config path (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.OutputFile,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	log := logrus.WithField("component", "server")

	store, err := sqlitestore.Open(cfg.Store.LedgerDBPath)
	if err != nil {
		log.Fatalf("open ledger store: %v", err)
	}
	defer store.Close()

	reconQueue, err := recon.Open(cfg.Store.ReconDir)
	if err != nil {
		log.Fatalf("open recon queue: %v", err)
	}
	defer reconQueue.Close()

	hub := stream.NewHub()
	defer hub.Close()

	stock := sqlitestore.NewStockLedger(store)
	wallet := sqlitestore.NewWalletLedger(store)
	orders := sqlitestore.NewOrderLog(store)
	positions := sqlitestore.NewPositionStore(store)

	orch := settlement.New(stock, orders, positions, wallet, settlement.Options{
		Retry: settlement.RetryPolicy{
			MaxAttempts: cfg.Settlement.CompensateAttempts,
			BaseDelay:   cfg.Settlement.CompensateBaseDelay,
			MaxDelay:    cfg.Settlement.CompensateMaxDelay,
		},
		StepTimeout: cfg.Settlement.StepTimeout,
		Breaker: risk.NewCircuitBreaker(risk.CircuitBreakerConfig{
			MaxConsecutiveErrors: cfg.Settlement.MaxConsecutiveErrors,
			DailyStuckLimit:      cfg.Settlement.DailyStuckLimit,
		}),
		Dedup:  settlement.NewInFlightDeduper(cfg.Settlement.DedupTTL, 16),
		Recon:  reconQueue,
		Events: hub,
	})

	if cfg.Server.MetricsAddr != "" {
		if _, err := metrics.StartAsync(context.Background(), cfg.Server.MetricsAddr); err != nil {
			log.Warnf("start metrics server: %v", err)
		}
	}

	srv := server.New(orch, stock, wallet, orders, positions, reconQueue, hub)
	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infof("settlement api listening on %s", cfg.Server.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("http server error: %v", err)
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	<-stopCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)

	log.Info("server stopped")
}
