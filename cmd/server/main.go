package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/peergrade/peergrade/internal/auth"
	"github.com/peergrade/peergrade/internal/config"
	"github.com/peergrade/peergrade/internal/ledger"
	"github.com/peergrade/peergrade/internal/lifecycle"
	"github.com/peergrade/peergrade/internal/notify"
	"github.com/peergrade/peergrade/internal/readmodel"
	"github.com/peergrade/peergrade/internal/server"
	"github.com/peergrade/peergrade/internal/settlement"
	"github.com/peergrade/peergrade/internal/storage/sqlite"
	"github.com/peergrade/peergrade/pkg/logging"
)

const tokenDuration = 24 * time.Hour

func main() {
	logging.Setup()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.DBPath)

	var jwtManager *auth.JWTManager
	var perms lifecycle.PermissionChecker = auth.AllowAll{}
	if cfg.JWTSecret != "" {
		jwtManager = auth.NewJWTManager(cfg.JWTSecret, tokenDuration)
		perms = auth.RoleChecker{}
	} else {
		slog.Warn("JWT secret not set, authentication disabled")
	}

	logger := slog.Default()
	cache := readmodel.NewCache(store, cfg.CacheTTL)
	notifier := notify.NewLogNotifier(logger)
	engine := settlement.NewEngine(store, cache, notifier, logger, settlement.Config{
		Consensus:   cfg.Consensus(),
		Granularity: cfg.GranularityOrDefault(),
	})
	machine := lifecycle.NewMachine(store, cache, notifier, engine, perms, logger, cfg.Consensus())
	ledgerSvc := ledger.NewService(store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Patrol sweep.
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if err := machine.Sweep(ctx, now); err != nil {
					slog.Error("Sweep failed", "error", err)
				}
			}
		}
	}()

	srv := server.New(store, engine, machine, ledgerSvc, perms, jwtManager)
	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Router(),
	}

	go func() {
		slog.Info("Server starting", "address", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sig:
		slog.Info("Shutdown signal received")
	case <-ctx.Done():
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
	<-sweepDone
	slog.Info("Server stopped")
}
