package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"recibos/internal/app"
	"recibos/internal/platform/config"
	"recibos/internal/platform/httpserver"
	"recibos/internal/platform/logger"
	"recibos/internal/webhook"
)

const shutdownTimeout = 10 * time.Second

// main wires the service, serves HTTP and sweeps sessions until SIGINT or
// SIGTERM. Business logic lives in internal packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", "json").Error("load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := app.Build(ctx, cfg, log, reg)
	if err != nil {
		log.Error("build service", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	handler := a.Handler(webhook.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	srv := httpserver.New(cfg.Server.Addr, handler.Router())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting recibos", "addr", cfg.Server.Addr, "public_base_url", cfg.Server.PublicBaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		a.RunJanitor(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
