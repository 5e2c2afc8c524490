// Package main is the entry point for the query-serving process: it warms
// its own index from Postgres, keeps it live by embedding the same
// ingestion pipeline the ingest binary runs, and answers GetInNetworkPosts
// over HTTP.
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

	"github.com/onnwee/thunderindex/internal/auth"
	"github.com/onnwee/thunderindex/internal/config"
	"github.com/onnwee/thunderindex/internal/db"
	"github.com/onnwee/thunderindex/internal/directory"
	"github.com/onnwee/thunderindex/internal/health"
	"github.com/onnwee/thunderindex/internal/ingest"
	"github.com/onnwee/thunderindex/internal/logging"
	"github.com/onnwee/thunderindex/internal/metrics"
	"github.com/onnwee/thunderindex/internal/poststore"
	"github.com/onnwee/thunderindex/internal/query"
	"github.com/onnwee/thunderindex/internal/service"
	"github.com/onnwee/thunderindex/internal/warmup"
)

func main() {
	configFile := flag.String("config", "", "path to an optional YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Thunderindex query-serving process")
		fmt.Println()
		fmt.Println("Usage: server [options]")
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := poststore.New(cfg.RetentionSeconds, cfg.MinVideoDurationMS)

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

	// The serving process embeds its own copy of the ingestion worker pool
	// to keep its index live against the same partitioned bus the ingest
	// binary consumes (Open Question #1 of spec.md §9, decided in favor of
	// embedding rather than a cross-process shared index). is_serving
	// disables the outbound re-emit producer for this process either way.
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
		Reemitter:            nil,
		Committer:            ingest.NopCommitter{},
	})
	go func() {
		if err := pool.Run(ctx); err != nil {
			logger.Error("embedded ingestion pool exited", "error", err)
		}
	}()

	engine := query.NewEngine(store, m)
	admission := service.NewAdmission(cfg.MaxConcurrentRequests, m)

	// No directory RPC transport ships in this repo (spec.md's Non-goals
	// exclude the directory service's own implementation); wiring a real
	// dialFn here is left to the deployment that has one. With
	// DirectoryRPCAddr unset, debug requests with an empty follow list
	// fail with an internal error rather than silently short-circuiting.
	var directoryClient directory.Client
	if cfg.DirectoryRPCAddr != "" {
		directoryClient = directory.NewRPCClient(cfg.DirectoryRPCAddr, nil)
	}

	svc := service.New(engine, admission, directoryClient, m, logger, service.Config{
		MaxInputListSize:          cfg.MaxInputListSize,
		RequestTimeout:            time.Duration(cfg.RequestTimeoutMS) * time.Millisecond,
		MaxOriginalPostsPerAuthor: cfg.MaxOriginalPostsPerAuthor,
		MaxReplyPostsPerAuthor:    cfg.MaxReplyPostsPerAuthor,
		MaxVideoPostsPerAuthor:    cfg.MaxVideoPostsPerAuthor,
		MaxTinyPostsPerUserScan:   cfg.MaxTinyPostsPerUserScan,
		DirectoryFetchLimit:       cfg.MaxInputListSize,
		MaxPostsToReturn:          cfg.MaxPostsToReturn,
		MaxVideosToReturn:         cfg.MaxVideosToReturn,
	})

	jwtSvc := auth.NewJWTServiceWithRotation(cfg.JWTSecretCurrent, cfg.JWTSecretPrevious)
	handler := service.NewHandler(svc, jwtSvc, logger)

	internalToken := os.Getenv("INTERNAL_AUTH_TOKEN")
	metricsHandler := metrics.Handler(reg)
	if internalToken != "" {
		metricsHandler = metrics.InternalAuthMiddleware(internalToken)(metricsHandler)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/v1/in-network-posts", logging.HTTPMiddleware(logger)(http.HandlerFunc(handler.ServeGetInNetworkPosts)))

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverDone := make(chan error, 1)
	go func() {
		logger.Info("starting query-serving server", "port", cfg.Port)
		serverDone <- httpServer.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("received shutdown signal")
	case err := <-serverDone:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server exited unexpectedly", "error", err)
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("query-serving process stopped")
}
