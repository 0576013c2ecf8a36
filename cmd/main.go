// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package main runs a gmqtt client that logs broker traffic, with metrics
// and health endpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/absmach/gmqtt"
	"github.com/absmach/gmqtt/examples/simple"
	"github.com/absmach/gmqtt/pkg/client"
	"github.com/absmach/gmqtt/pkg/health"
	"github.com/absmach/gmqtt/pkg/metrics"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// .env file is optional
	envErr := godotenv.Load()

	cfg, err := gmqtt.NewConfig(env.Options{Prefix: gmqtt.EnvPrefix})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	if envErr != nil {
		logger.Debug("no .env file found, using environment variables")
	}

	m := metrics.New("gmqtt", prometheus.DefaultRegisterer)

	clientCfg, err := cfg.ClientConfig()
	if err != nil {
		logger.Error("failed to build client config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	clientCfg.Logger = logger
	clientCfg.Metrics = m

	c := client.New(clientCfg, simple.New(logger))

	checker := health.NewChecker(time.Second)
	checker.Register(health.ConnectionCheckName, health.ConnectionCheck(c.IsConnected))

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting client",
			slog.String("url", cfg.URL),
			slog.Int("version", int(cfg.Version)))
		return c.Run(ctx)
	})

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	g.Go(func() error {
		return serve(ctx, "metrics", cfg.MetricsPort, metricsMux, logger)
	})

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/health", checker.HTTPHandler())
	healthMux.HandleFunc("/ready", checker.ReadinessHandler())
	healthMux.HandleFunc("/live", health.LivenessHandler())
	g.Go(func() error {
		return serve(ctx, "health", cfg.HealthPort, healthMux, logger)
	})

	g.Go(func() error {
		return StopSignalHandler(ctx, cancel, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("gmqtt client terminated with error: %s", err))
		os.Exit(1)
	}
	logger.Info("gmqtt client stopped")
}

// setupLogger creates a structured logger with the specified level and format.
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// serve runs an HTTP server until ctx is done.
func serve(ctx context.Context, name string, port int, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("starting "+name+" server", slog.String("address", srv.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("%s server: %w", name, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func StopSignalHandler(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger) error {
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM, syscall.SIGABRT)
	select {
	case sig := <-c:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
		return nil
	case <-ctx.Done():
		return nil
	}
}
