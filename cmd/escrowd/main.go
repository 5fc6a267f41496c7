package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	appcfg "github.com/park285/chess-wager-escrow/internal/config"
	"github.com/park285/chess-wager-escrow/internal/escrow"
	"github.com/park285/chess-wager-escrow/internal/eventstream"
	"github.com/park285/chess-wager-escrow/internal/httpapi"
	"github.com/park285/chess-wager-escrow/internal/obslog"
	"github.com/park285/chess-wager-escrow/internal/wager"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("log init error: %v", err)
	}
	logger := obslog.L()

	mgr, err := wager.NewManager(cfg.RedisURL, escrow.Params{
		FeeBps:       cfg.FeeBps,
		FeeCollector: cfg.FeeCollector,
		MinStake:     cfg.MinStake,
		MaxStake:     cfg.MaxStake,
	})
	if err != nil {
		logger.Fatal("wager manager init error", zap.Error(err))
	}

	// Result persistence is optional: without DATABASE_URL settled records
	// stay in Redis only.
	var repo *wager.Repository
	if cfg.DatabaseURL != "" {
		repo, err = wager.NewRepository(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("repository init error", zap.Error(err))
		}
		mgr.AttachRepository(repo)
	}

	hub := eventstream.NewHub()
	mgr.SetEmitter(hub)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("event stream listening", zap.String("addr", cfg.EventsAddr))
		if err := eventstream.Serve(ctx, cfg.EventsAddr, hub); err != nil {
			logger.Error("event stream stopped", zap.Error(err))
		}
	}()

	api := httpapi.NewServer(mgr, cfg.DefaultTimeLimitSec)
	go func() {
		logger.Info("escrow api listening", zap.String("addr", cfg.ListenAddr))
		if err := api.Listen(cfg.ListenAddr); err != nil {
			logger.Fatal("api server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	_ = mgr.Close()
	if repo != nil {
		_ = repo.Close()
	}
}
