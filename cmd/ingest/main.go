// Package main is the entry point for the ingestion process: it warms the
// index from Postgres, then runs the partitioned consumer pool that applies
// live events until shut down.
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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/onnwee/thunderindex/internal/config"
	"github.com/onnwee/thunderindex/internal/db"
	"github.com/onnwee/thunderindex/internal/health"
	"github.com/onnwee/thunderindex/internal/ingest"
	"github.com/onnwee/thunderindex/internal/logging"
	"github.com/onnwee/thunderindex/internal/metrics"
	"github.com/onnwee/thunderindex/internal/poststore"
	"github.com/onnwee/thunderindex/internal/warmup"
)

func main() {
	configFile := flag.String("config", "", "path to an optional YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Thunderindex ingest worker")
		fmt.Println()
		fmt.Println("Usage: ingest [options]")
		fmt.Println()
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configFile)
	logger := logging.New(cfg.Env)
	for _, err := range errs {
		logger.Error("config error", "error", err)
	}
	if len(errs) > 0 {
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New()
	if err := m.Register(reg); err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	internalToken := os.Getenv("INTERNAL_AUTH_TOKEN")
	mux := http.NewServeMux()
	metricsHandler := metrics.Handler(reg)
	if internalToken != "" {
		metricsHandler = metrics.InternalAuthMiddleware(internalToken)(metricsHandler)
	}
	mux.Handle("/metrics", metricsHandler)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("starting metrics server", "port", cfg.Port)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	store := poststore.New(cfg.RetentionSeconds, cfg.MinVideoDurationMS)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.WarmupDatabaseURL != "" {
		database, err := db.Open(cfg.WarmupDatabaseURL)
		if err != nil {
			logger.Error("failed to open warm-up database", "error", err)
			os.Exit(1)
		}
		checker := health.NewDBChecker(database)
		if err := checker.HealthCheck(ctx); err != nil {
			logger.Error("warm-up database unreachable", "error", err)
			os.Exit(1)
		}
		loader := warmup.NewLoader(database, store, logger, 0)
		cutoff := time.Now().Unix() - cfg.RetentionSeconds
		if err := loader.Run(ctx, cutoff, time.Now().Unix()); err != nil {
			logger.Error("warm-up load failed", "error", err)
			database.Close()
			os.Exit(1)
		}
		database.Close()
	} else {
		logger.Warn("WARMUP_DATABASE_URL not set, starting from an empty index")
		store.FinalizeInit(time.Now().Unix())
	}

	go poststore.StartTrimmer(ctx, store, cfg.RetentionTrimInterval, logger, func() int64 { return time.Now().Unix() },
		func(timeline string, n int) { m.AddTrimmedEntries(timeline, n) })
	go poststore.StartStatsLogger(ctx, store, cfg.StatsLogInterval, logger)

	var reemitter ingest.Reemitter
	if !cfg.IsServing {
		wr, conn, err := ingest.DialWebSocketReemitter(cfg.EventBusURL)
		if err != nil {
			logger.Error("failed to connect output bus for re-emit", "error", err)
			os.Exit(1)
		}
		reemitter = wr
		defer conn.Close()
	}

	pool := ingest.NewWorkerPool(ingest.WorkerPoolConfig{
		BusURL:               cfg.EventBusURL,
		NumPartitions:        cfg.TweetEventsNumPartitions,
		NumWorkers:           cfg.KafkaNumThreads,
		BatchSize:            cfg.KafkaBatchSize,
		PostRetentionSeconds: cfg.PostRetentionSeconds,
		MinVideoDurationMS:   cfg.MinVideoDurationMS,
		LagMonitorInterval:   time.Duration(cfg.LagMonitorIntervalSecs) * time.Second,
		Store:                store,
		Metrics:              m,
		Logger:               logger,
		NowFn:                func() int64 { return time.Now().Unix() },
		Reemitter:            reemitter,
		Committer:            ingest.NopCommitter{},
	})

	poolDone := make(chan error, 1)
	go func() {
		logger.Info("starting worker pool",
			"partitions", cfg.TweetEventsNumPartitions, "workers", cfg.KafkaNumThreads)
		poolDone <- pool.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("received shutdown signal")
	case err := <-poolDone:
		if err != nil {
			logger.Error("worker pool exited unexpectedly", "error", err)
		}
	}

	cancel()

	select {
	case <-poolDone:
	case <-time.After(15 * time.Second):
		logger.Warn("worker pool shutdown timeout exceeded")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server forced to shutdown", "error", err)
	}

	logger.Info("ingest worker stopped")
}
