package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"crosslock/config"
	"crosslock/native/escrow"
	"crosslock/native/order"
	"crosslock/observability/logging"
	"crosslock/observability/metrics"
	"crosslock/rpc"
	"crosslock/storage"
	"crosslock/storage/state"
)

type pauseSet map[string]struct{}

func (p pauseSet) IsPaused(module string) bool {
	_, ok := p[strings.ToLower(strings.TrimSpace(module))]
	return ok
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("CROSSLOCK_ENV"))
	logger := logging.Setup("crosslockd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	st := state.NewState(db)

	collector, err := metrics.NewCollector(prometheus.DefaultRegisterer, nil)
	if err != nil {
		logger.Error("Failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}
	collector.SetLogger(logger)

	pauses := pauseSet{}
	for _, module := range cfg.PausedModules {
		pauses[strings.ToLower(strings.TrimSpace(module))] = struct{}{}
	}

	book := order.NewBook()
	book.SetState(st)
	book.SetEmitter(collector)
	book.SetPauses(pauses)
	book.SetLimits(cfg.Orders.MaxActiveOrders, cfg.Orders.MaxExpirationDays)

	registry := escrow.NewRegistry()
	registry.SetState(st)
	registry.SetLedger(st)
	registry.SetEmitter(collector)
	registry.SetPauses(pauses)

	planner := escrow.NewPlanner(
		time.Duration(cfg.Timelocks.MinStageSeconds)*time.Second,
		time.Duration(cfg.Timelocks.CrossChainBufferSeconds)*time.Second,
	)

	server := rpc.NewServer(book, registry, planner, logger)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("rpc listening",
			slog.String("address", cfg.ListenAddress),
			slog.String("network", cfg.NetworkName))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("rpc server", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
