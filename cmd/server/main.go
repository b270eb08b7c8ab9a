package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"rentguard/internal/booking/service"
	"rentguard/internal/booking/worker"
	"rentguard/internal/platform/config"
	"rentguard/internal/platform/httpserver"
	"rentguard/internal/platform/logger"
	"rentguard/internal/platform/metrics"
	httptransport "rentguard/internal/transport/http"
)

var version = "dev"

// main wires high-level dependencies, exposes the ops router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	configPath := flag.String("config", os.Getenv("RENTGUARD_CONFIG"), "path to a TOML config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log, logCloser := logger.New(cfg.Log)
	slog.SetDefault(log)

	err = run(cfg, log)
	if err != nil {
		log.Error("server stopped with error", "error", err)
	}
	_ = logCloser.Close()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(version)
	infra, err := buildInfra(ctx, cfg, m, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	svc := service.New(infra.store, infra.catalog, infra.keyring, infra.ledger,
		service.WithGateways(infra.gateways),
		service.WithPolicy(bookingPolicy(cfg, log)),
		service.WithAuditPublisher(infra.publisher),
		service.WithMetrics(infra.bookingMetrics),
		service.WithLogger(log),
	)
	sweeper := worker.NewSweeper(svc,
		worker.WithInterval(cfg.Booking.SweepInterval.Duration),
		worker.WithLogger(log),
	)

	handler := httptransport.NewHandler(infra.gateways, infra.checks, m, log)
	srv := httpserver.New(cfg.Server.Addr, httptransport.NewRouter(handler))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting rentguard", "addr", cfg.Server.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
