package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appconfig "github.com/devkyu/platewatch/internal/config"
	"github.com/devkyu/platewatch/internal/crawler"
	"github.com/devkyu/platewatch/internal/database"
	"github.com/devkyu/platewatch/internal/notify"
	"github.com/devkyu/platewatch/internal/pipeline"
	"github.com/devkyu/platewatch/internal/queue"
	"github.com/devkyu/platewatch/internal/redis"
	"github.com/devkyu/platewatch/internal/repository"
	"github.com/devkyu/platewatch/internal/server"
	"github.com/devkyu/platewatch/internal/storage"
	"github.com/devkyu/platewatch/internal/summary"
	"github.com/devkyu/platewatch/internal/tracker"
	httpapi "github.com/devkyu/platewatch/internal/transport/http"
	"github.com/devkyu/platewatch/internal/workers"
)

func main() {
	cfg := appconfig.Load()
	slog.Info("starting platewatch", "addr", cfg.HTTPAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	snapshotStorage, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize snapshot storage", "err", err)
		os.Exit(1)
	}

	// The sink is best-effort: without Redis the engine still runs, just
	// without push notifications.
	var sink notify.Sink = notify.NopSink{}
	var redisService *redis.Service
	if cfg.RedisURL != "" {
		redisService, err = redis.New(cfg.RedisURL)
		if err != nil {
			slog.Warn("Redis unavailable, job notifications disabled", "err", err)
			redisService = nil
		} else {
			defer redisService.Close()
			sink = notify.NewRedisSink(redisService)
		}
	}

	repo := repository.New(db)
	jobTracker := tracker.New(repo, sink)
	executor := pipeline.NewExecutor(jobTracker)

	siteCrawler := crawler.New(repo, jobTracker, snapshotStorage, crawler.Config{
		UserAgent:   cfg.CrawlUserAgent,
		Timeout:     cfg.CrawlTimeout,
		MaxBodySize: cfg.CrawlMaxBodySize,
	})
	summarizer := summary.NewSummarizer(cfg.OpenAIAPIKey, cfg.OpenAIModel, repo, jobTracker)
	runner := workers.NewJobRunner(jobTracker, executor, siteCrawler, summarizer)

	q := queue.New()
	q.Start(ctx, runner.Handle)

	handlers := &httpapi.Handlers{
		Tracker: jobTracker,
		Queue:   q,
		Repo:    repo,
		Redis:   redisService,
		Config:  cfg,
	}
	r := server.NewRouter(handlers)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  90 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
	slog.Info("shutting down")

	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	_ = srv.Shutdown(shCtx)

	// Stop the worker loop and wait for any in-flight item to observe
	// cancellation at its next checkpoint.
	cancel()
	q.Wait()
}
